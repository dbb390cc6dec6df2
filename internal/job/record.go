// Package job defines the unit of work stored in the spool: a command with
// its argument vector plus an open set of extra fields that travel with the
// record untouched.
package job

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	// DefaultNamespace is used for records submitted without a namespace
	DefaultNamespace = "default"

	// RecurrenceOnce means the record runs a single time
	RecurrenceOnce = "once"
)

// Known JSON keys. Everything else lands in Record.Extra.
const (
	keyID         = "id"
	keyNamespace  = "ns"
	keyNSAlias    = "namespace"
	keyCmd        = "cmd"
	keyArgs       = "args"
	keyRecurrence = "recurrence"
)

var (
	// ErrMissingID is returned by Validate when the record has no id
	ErrMissingID = errors.New("record has no id")
	// ErrMissingCmd is returned by Validate when the record has no cmd
	ErrMissingCmd = errors.New("record has no cmd")
	// ErrMissingArgs is returned by Validate when the record has no args
	ErrMissingArgs = errors.New("record has no args")
)

// Record is a single job: what to run and where it belongs.
type Record struct {
	ID         string
	Namespace  string
	Cmd        string
	Args       []string
	Recurrence string

	// Extra holds every field this package does not interpret.
	Extra map[string]json.RawMessage
}

// NewID returns a fresh time-based identifier.
func NewID() string {
	id, err := uuid.NewUUID()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Normalize fills the fields a stored record must carry: an id, a namespace
// and a non-nil argument vector.
func (r *Record) Normalize() {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.Namespace == "" {
		r.Namespace = DefaultNamespace
	}
	if r.Args == nil {
		r.Args = []string{}
	}
}

// Validate checks the fields required to execute and file the record.
func (r *Record) Validate() error {
	if r.ID == "" {
		return ErrMissingID
	}
	if r.Cmd == "" {
		return ErrMissingCmd
	}
	if r.Args == nil {
		return ErrMissingArgs
	}
	return nil
}

// IsRecurring reports whether the record carries a recurrence tag other than once.
func (r *Record) IsRecurring() bool {
	return r.Recurrence != "" && r.Recurrence != RecurrenceOnce
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	if r.Args != nil {
		c.Args = append([]string{}, r.Args...)
	}
	if r.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &c
}

// MarshalJSON writes the known fields alongside the extra ones.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+5)
	for k, v := range r.Extra {
		out[k] = v
	}
	out[keyID] = r.ID
	out[keyNamespace] = r.Namespace
	out[keyCmd] = r.Cmd
	args := r.Args
	if args == nil {
		args = []string{}
	}
	out[keyArgs] = args
	if r.Recurrence != "" {
		out[keyRecurrence] = r.Recurrence
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a record. Both "ns" and "namespace" are accepted; "ns"
// wins when both are present.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return errors.New("record is null")
	}

	var rec Record
	fields := []struct {
		key string
		dst any
	}{
		{keyID, &rec.ID},
		{keyNSAlias, &rec.Namespace},
		{keyNamespace, &rec.Namespace},
		{keyCmd, &rec.Cmd},
		{keyArgs, &rec.Args},
		{keyRecurrence, &rec.Recurrence},
	}
	for _, f := range fields {
		v, ok := raw[f.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return fmt.Errorf("field %q: %w", f.key, err)
		}
		delete(raw, f.key)
	}

	if len(raw) > 0 {
		rec.Extra = raw
	}
	*r = rec
	return nil
}
