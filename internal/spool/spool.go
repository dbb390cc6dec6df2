// Package spool stores job records partitioned by lifecycle state and
// namespace. A record is moved between states with Fetch (read and remove)
// followed by Add; Fetch hands a stored record to at most one caller.
package spool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aatumaykin/jobspool/internal/job"
)

// State is a lifecycle partition of the spool.
type State string

const (
	StatePending    State = "pending"
	StateOngoing    State = "ongoing"
	StateDone       State = "done"
	StateRecurrence State = "recurrence"
)

// States lists every partition in lifecycle order.
var States = []State{StatePending, StateOngoing, StateDone, StateRecurrence}

// DefaultMaxConcurrent is the per-namespace ongoing limit used when none is configured.
const DefaultMaxConcurrent = 20

var (
	// ErrStoreUnavailable means the persistence medium could not be prepared or written.
	ErrStoreUnavailable = errors.New("spool store unavailable")
	// ErrCorruptRecord means a stored record could not be parsed or does not match its key.
	ErrCorruptRecord = errors.New("corrupt spool record")
	// ErrUnknownState is returned for a state outside States.
	ErrUnknownState = errors.New("unknown spool state")
	// ErrInvalidKey is returned for ids or namespaces that cannot be used as storage keys.
	ErrInvalidKey = errors.New("invalid spool key")
	// ErrInvalidRecord is returned by Add for records that could never be executed.
	ErrInvalidRecord = errors.New("invalid job record")
)

// Store is the storage contract the scheduler runs against. The file and
// SQLite backends are interchangeable implementations.
type Store interface {
	// Namespaces returns every known namespace, always including the default one.
	Namespaces(ctx context.Context) []string

	// NextPendingID returns the next pending id in ns. ok is false when the
	// namespace has no pending work or its ongoing count reached the limit.
	NextPendingID(ctx context.Context, ns string) (id string, ok bool, err error)

	// Fetch reads and removes the record stored at (state, ns, id). It returns
	// nil when the record is absent or was corrupt; corrupt records are discarded.
	Fetch(ctx context.Context, state State, id, ns string) (*job.Record, error)

	// Add persists rec under state. A missing id is generated and a missing
	// namespace defaults to job.DefaultNamespace; both are written back to rec.
	Add(ctx context.Context, state State, rec *job.Record) error

	// List returns the ids stored in (state, ns) in lexicographic order.
	List(ctx context.Context, state State, ns string) ([]string, error)

	// NamespacesIn returns the sorted namespaces holding records in state.
	NamespacesIn(ctx context.Context, state State) ([]string, error)

	// Prune removes records of state persisted before olderThan.
	Prune(ctx context.Context, state State, olderThan time.Time) (int, error)

	Close() error
}

// Observer receives store events worth counting.
type Observer interface {
	RecordCorrupt(state, namespace string)
}

// Option configures a store.
type Option func(*options)

type options struct {
	observer Observer
}

// WithObserver reports corrupt records to o.
func WithObserver(o Observer) Option {
	return func(opts *options) {
		opts.observer = o
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	for _, known := range States {
		if s == known {
			return true
		}
	}
	return false
}

// ParseState converts a name into a State.
func ParseState(name string) (State, error) {
	s := State(strings.ToLower(strings.TrimSpace(name)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownState, name)
	}
	return s, nil
}

// checkKey rejects values that would escape their partition or collide with
// the hidden temp and claim files.
func checkKey(kind, value string) error {
	switch {
	case value == "":
		return fmt.Errorf("%w: empty %s", ErrInvalidKey, kind)
	case strings.HasPrefix(value, "."):
		return fmt.Errorf("%w: %s %q starts with a dot", ErrInvalidKey, kind, value)
	case strings.ContainsAny(value, `/\`), strings.ContainsRune(value, 0):
		return fmt.Errorf("%w: %s %q contains a path separator", ErrInvalidKey, kind, value)
	}
	return nil
}

// prepare normalizes rec and checks it can be stored.
func prepare(state State, rec *job.Record) error {
	if !state.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownState, state)
	}
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if err := checkKey("namespace", rec.Namespace); err != nil {
		return err
	}
	return checkKey("id", rec.ID)
}

// decodeStored parses a stored record and checks it against its storage key.
// The key namespace is authoritative.
func decodeStored(data []byte, id, ns string) (*job.Record, error) {
	rec, err := job.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if rec.ID != id {
		return nil, fmt.Errorf("%w: id mismatch, stored %q under %q", ErrCorruptRecord, rec.ID, id)
	}
	rec.Namespace = ns
	return rec, nil
}
