package spool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aatumaykin/jobspool/internal/job"
	"github.com/aatumaykin/jobspool/internal/logger"
)

// FileStore keeps one JSON file per record under {dir}/{state}/{namespace}/{id}.
//
// Files whose name starts with a dot are in-flight temp or claim files and are
// never listed or counted.
type FileStore struct {
	dir           string
	maxConcurrent int
	logger        *logger.Logger
	registry      *registry
	observer      Observer
}

// NewFileStore creates a FileStore rooted at dir and prepares every state
// directory.
//
// Parameters:
//   - dir: Spool root directory
//   - maxConcurrent: Ongoing records allowed per namespace before NextPendingID holds back
//   - log: Logger instance for storage operations
//
// Returns:
//   - *FileStore: A store ready for use
//   - error: ErrStoreUnavailable if a state directory cannot be created
func NewFileStore(dir string, maxConcurrent int, log *logger.Logger, opts ...Option) (*FileStore, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	o := buildOptions(opts)

	s := &FileStore{
		dir:           dir,
		maxConcurrent: maxConcurrent,
		logger:        log.Named("spool/file"),
		registry:      newRegistry(),
		observer:      o.observer,
	}

	for _, state := range States {
		if err := s.prepareDir(s.StateDir(state)); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Dir returns the spool root.
func (s *FileStore) Dir() string {
	return s.dir
}

// StateDir returns the directory holding every namespace of state.
func (s *FileStore) StateDir(state State) string {
	return filepath.Join(s.dir, string(state))
}

func (s *FileStore) prepareDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		s.logger.Error("failed to create spool directory", err,
			logger.Field{Key: "dir", Value: path})
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Namespaces returns the registered namespaces merged with the namespace
// directories found under the pending partition.
func (s *FileStore) Namespaces(ctx context.Context) []string {
	entries, err := os.ReadDir(s.StateDir(StatePending))
	if err != nil {
		s.logger.Debug("failed to scan pending namespaces", logger.Field{Key: "error", Value: err})
		return s.registry.list()
	}

	for _, e := range entries {
		if !e.IsDir() || checkKey("namespace", e.Name()) != nil {
			continue
		}
		if s.registry.add(e.Name()) {
			s.logger.Debug("namespace discovered", logger.Field{Key: "namespace", Value: e.Name()})
		}
	}

	return s.registry.list()
}

// NextPendingID returns the lexicographically first pending id of ns unless
// the namespace already has maxConcurrent ongoing records.
func (s *FileStore) NextPendingID(ctx context.Context, ns string) (string, bool, error) {
	if err := checkKey("namespace", ns); err != nil {
		return "", false, err
	}

	ongoing, err := s.listIDs(StateOngoing, ns)
	if err != nil {
		return "", false, err
	}
	if len(ongoing) >= s.maxConcurrent {
		return "", false, nil
	}

	pending, err := s.listIDs(StatePending, ns)
	if err != nil {
		return "", false, err
	}
	if len(pending) == 0 {
		return "", false, nil
	}
	return pending[0], true, nil
}

// Fetch claims the record with an atomic rename, reads it and deletes it.
// When two callers race for the same record only one rename succeeds.
func (s *FileStore) Fetch(ctx context.Context, state State, id, ns string) (*job.Record, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownState, state)
	}
	if err := checkKey("namespace", ns); err != nil {
		return nil, err
	}
	if err := checkKey("id", id); err != nil {
		return nil, err
	}

	nsDir := filepath.Join(s.StateDir(state), ns)
	path := filepath.Join(nsDir, id)
	claim := filepath.Join(nsDir, "."+id+".claim-"+job.NewID())

	if err := os.Rename(path, claim); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim record %s: %w", id, err)
	}
	defer func() {
		if err := os.Remove(claim); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove claimed record",
				logger.Field{Key: "file", Value: claim},
				logger.Field{Key: "error", Value: err})
		}
	}()

	data, err := os.ReadFile(claim)
	if err != nil {
		s.logger.Error("failed to read claimed record", err,
			logger.Field{Key: "file", Value: claim},
			logger.Field{Key: "job_id", Value: id})
		return nil, err
	}

	rec, err := decodeStored(data, id, ns)
	if err != nil {
		s.logger.Error("discarding corrupt record", err,
			logger.Field{Key: "state", Value: state},
			logger.Field{Key: "namespace", Value: ns},
			logger.Field{Key: "job_id", Value: id})
		if s.observer != nil {
			s.observer.RecordCorrupt(string(state), ns)
		}
		return nil, nil
	}

	return rec, nil
}

// Add writes rec to a hidden temp file and renames it into place so readers
// never see a partial record.
func (s *FileStore) Add(ctx context.Context, state State, rec *job.Record) error {
	if err := prepare(state, rec); err != nil {
		return err
	}

	if s.registry.add(rec.Namespace) {
		s.logger.Debug("namespace registered", logger.Field{Key: "namespace", Value: rec.Namespace})
	}

	nsDir := filepath.Join(s.StateDir(state), rec.Namespace)
	if err := s.prepareDir(nsDir); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", rec.ID, err)
	}

	if err := writeAtomic(nsDir, rec.ID, data); err != nil {
		s.logger.Error("failed to write record", err,
			logger.Field{Key: "state", Value: state},
			logger.Field{Key: "namespace", Value: rec.Namespace},
			logger.Field{Key: "job_id", Value: rec.ID})
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.logger.Debug("record added",
		logger.Field{Key: "state", Value: state},
		logger.Field{Key: "namespace", Value: rec.Namespace},
		logger.Field{Key: "job_id", Value: rec.ID})

	return nil
}

func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// List returns the ids stored in (state, ns).
func (s *FileStore) List(ctx context.Context, state State, ns string) ([]string, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownState, state)
	}
	if err := checkKey("namespace", ns); err != nil {
		return nil, err
	}
	return s.listIDs(state, ns)
}

// NamespacesIn lists the namespace directories of state that hold at least one record.
func (s *FileStore) NamespacesIn(ctx context.Context, state State) ([]string, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownState, state)
	}

	entries, err := os.ReadDir(s.StateDir(state))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan %s: %w", state, err)
	}

	var out []string
	for _, e := range entries {
		if !e.IsDir() || checkKey("namespace", e.Name()) != nil {
			continue
		}
		ids, err := s.listIDs(state, e.Name())
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// listIDs reads a partition directory. os.ReadDir sorts by name, which gives
// the lexicographic order NextPendingID relies on. Names that cannot be
// used as an id are skipped so they never reach Fetch.
func (s *FileStore) listIDs(state State, ns string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.StateDir(state), ns))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s/%s: %w", state, ns, err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || checkKey("id", e.Name()) != nil {
			continue
		}
		ids = append(ids, e.Name())
	}
	return ids, nil
}

// Prune removes records of state whose file was last written before olderThan.
func (s *FileStore) Prune(ctx context.Context, state State, olderThan time.Time) (int, error) {
	if !state.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownState, state)
	}

	namespaces, err := os.ReadDir(s.StateDir(state))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, nsEntry := range namespaces {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !nsEntry.IsDir() || strings.HasPrefix(nsEntry.Name(), ".") {
			continue
		}

		nsDir := filepath.Join(s.StateDir(state), nsEntry.Name())
		entries, err := os.ReadDir(nsDir)
		if err != nil {
			s.logger.Warn("failed to read namespace during prune",
				logger.Field{Key: "dir", Value: nsDir},
				logger.Field{Key: "error", Value: err})
			continue
		}

		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			info, err := e.Info()
			if err != nil || !info.ModTime().Before(olderThan) {
				continue
			}
			if err := os.Remove(filepath.Join(nsDir, e.Name())); err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					s.logger.Warn("failed to prune record",
						logger.Field{Key: "job_id", Value: e.Name()},
						logger.Field{Key: "error", Value: err})
				}
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("pruned records",
			logger.Field{Key: "state", Value: state},
			logger.Field{Key: "count", Value: removed})
	}

	return removed, nil
}

// Close is a no-op; FileStore holds no open handles.
func (s *FileStore) Close() error {
	return nil
}
