package spool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aatumaykin/jobspool/internal/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawInsert stores body verbatim to plant corrupt rows.
func (s *SQLiteStore) rawInsert(state State, ns, id, body string) error {
	_, err := s.db.Exec(
		`INSERT INTO records (state, ns, id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(state), ns, id, body, time.Now().UnixNano())
	return err
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	_, err := NewSQLiteStore("  ", 5, testLogger())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestNewSQLiteStore_Unavailable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := NewSQLiteStore(filepath.Join(blocker, "spool.db"), 5, testLogger())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestSQLiteStore_FetchDiscardsCorruptRows(t *testing.T) {
	obs := &countingObserver{}
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "spool.db"), 5, testLogger(), WithObserver(obs))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.rawInsert(StatePending, "default", "garbage", "{oops"))
	require.NoError(t, s.rawInsert(StatePending, "default", "moved", `{"id":"elsewhere","cmd":"true","args":[]}`))

	for _, id := range []string{"garbage", "moved"} {
		rec, err := s.Fetch(ctx, StatePending, id, job.DefaultNamespace)
		require.NoError(t, err)
		assert.Nil(t, rec, id)
	}

	ids, err := s.List(ctx, StatePending, job.DefaultNamespace)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Len(t, obs.calls, 2)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spool.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path, 5, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, StatePending, &job.Record{ID: "keep", Namespace: "etl", Cmd: "true"}))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path, 5, testLogger())
	require.NoError(t, err)
	defer reopened.Close()

	assert.Contains(t, reopened.Namespaces(ctx), "etl")
	rec, err := reopened.Fetch(ctx, StatePending, "keep", "etl")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "true", rec.Cmd)
}
