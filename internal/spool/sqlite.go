package spool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aatumaykin/jobspool/internal/job"
	"github.com/aatumaykin/jobspool/internal/logger"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	state      TEXT    NOT NULL,
	ns         TEXT    NOT NULL,
	id         TEXT    NOT NULL,
	body       TEXT    NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (state, ns, id)
);
CREATE INDEX IF NOT EXISTS records_state_created ON records (state, created_at);
`

// SQLiteStore implements Store on a single SQLite database. Fetch is one
// DELETE ... RETURNING statement, so a record is handed out at most once.
type SQLiteStore struct {
	db            *sql.DB
	maxConcurrent int
	logger        *logger.Logger
	registry      *registry
	observer      Observer
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string, maxConcurrent int, log *logger.Logger, opts ...Option) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", ErrStoreUnavailable)
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	o := buildOptions(opts)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrStoreUnavailable, err)
	}

	return &SQLiteStore{
		db:            db,
		maxConcurrent: maxConcurrent,
		logger:        log.Named("spool/sqlite"),
		registry:      newRegistry(),
		observer:      o.observer,
	}, nil
}

// Namespaces merges the registry with namespaces that have pending rows.
func (s *SQLiteStore) Namespaces(ctx context.Context) []string {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT ns FROM records WHERE state = ?`, string(StatePending))
	if err != nil {
		s.logger.Debug("failed to scan pending namespaces", logger.Field{Key: "error", Value: err})
		return s.registry.list()
	}
	defer rows.Close()

	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			continue
		}
		s.registry.add(ns)
	}

	return s.registry.list()
}

// NextPendingID returns the smallest pending id of ns unless the namespace
// already has maxConcurrent ongoing rows.
func (s *SQLiteStore) NextPendingID(ctx context.Context, ns string) (string, bool, error) {
	var ongoing int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE state = ? AND ns = ?`,
		string(StateOngoing), ns).Scan(&ongoing)
	if err != nil {
		return "", false, fmt.Errorf("failed to count ongoing records: %w", err)
	}
	if ongoing >= s.maxConcurrent {
		return "", false, nil
	}

	var id string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM records WHERE state = ? AND ns = ? ORDER BY id LIMIT 1`,
		string(StatePending), ns).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to select pending record: %w", err)
	}
	return id, true, nil
}

// Fetch deletes the row and returns its body in one statement.
func (s *SQLiteStore) Fetch(ctx context.Context, state State, id, ns string) (*job.Record, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownState, state)
	}

	var body string
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM records WHERE state = ? AND ns = ? AND id = ? RETURNING body`,
		string(state), ns, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch record %s: %w", id, err)
	}

	rec, err := decodeStored([]byte(body), id, ns)
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

// Add upserts rec under state.
func (s *SQLiteStore) Add(ctx context.Context, state State, rec *job.Record) error {
	if err := prepare(state, rec); err != nil {
		return err
	}
	s.registry.add(rec.Namespace)

	body, err := rec.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", rec.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (state, ns, id, body, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (state, ns, id) DO UPDATE SET body = excluded.body, created_at = excluded.created_at`,
		string(state), rec.Namespace, rec.ID, string(body), time.Now().UnixNano())
	if err != nil {
		s.logger.Error("failed to insert record", err,
			logger.Field{Key: "state", Value: state},
			logger.Field{Key: "job_id", Value: rec.ID})
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// List returns the ids stored in (state, ns).
func (s *SQLiteStore) List(ctx context.Context, state State, ns string) ([]string, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownState, state)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM records WHERE state = ? AND ns = ? ORDER BY id`,
		string(state), ns)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s/%s: %w", state, ns, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// NamespacesIn returns the namespaces with rows in state.
func (s *SQLiteStore) NamespacesIn(ctx context.Context, state State) ([]string, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownState, state)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT ns FROM records WHERE state = ? ORDER BY ns`, string(state))
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s namespaces: %w", state, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, err
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

// Prune deletes rows of state written before olderThan.
func (s *SQLiteStore) Prune(ctx context.Context, state State, olderThan time.Time) (int, error) {
	if !state.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownState, state)
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE state = ? AND created_at < ?`,
		string(state), olderThan.UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("pruned records",
			logger.Field{Key: "state", Value: state},
			logger.Field{Key: "count", Value: n})
	}
	return int(n), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

