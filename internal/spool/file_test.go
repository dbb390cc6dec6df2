package spool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aatumaykin/jobspool/internal/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileStore_PreparesStateDirs(t *testing.T) {
	dir := t.TempDir()

	_, err := NewFileStore(dir, 0, testLogger())
	require.NoError(t, err)

	for _, st := range States {
		info, err := os.Stat(filepath.Join(dir, string(st)))
		require.NoError(t, err, st)
		assert.True(t, info.IsDir())
	}
}

func TestNewFileStore_Unavailable(t *testing.T) {
	// A regular file where the spool root should be.
	root := filepath.Join(t.TempDir(), "spool")
	require.NoError(t, os.WriteFile(root, []byte("x"), 0644))

	_, err := NewFileStore(root, 5, testLogger())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestFileStore_AddUnavailableNamespaceDir(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, 5, testLogger())
	require.NoError(t, err)

	// Block the namespace directory with a file.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pending", "blocked"), []byte("x"), 0644))

	err = s.Add(context.Background(), StatePending, &job.Record{Namespace: "blocked", Cmd: "true"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestFileStore_AddWritesPrettyJSON(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, 5, testLogger())
	require.NoError(t, err)

	rec := &job.Record{ID: "j1", Cmd: "echo", Args: []string{"hi"}, Recurrence: "once"}
	require.NoError(t, s.Add(context.Background(), StatePending, rec))

	data, err := os.ReadFile(filepath.Join(dir, "pending", "default", "j1"))
	require.NoError(t, err)

	assert.Contains(t, string(data), "\n  \"cmd\": \"echo\"")
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "default", raw["ns"])
	assert.Equal(t, "once", raw["recurrence"])

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Join(dir, "pending", "default"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStore_FetchDiscardsCorruptRecords(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", `{not json`},
		{"missing cmd", `{"id":"bad","args":[]}`},
		{"missing args", `{"id":"bad","cmd":"echo"}`},
		{"missing id", `{"cmd":"echo","args":[]}`},
		{"id mismatch", `{"id":"someone-else","cmd":"echo","args":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			obs := &countingObserver{}
			s, err := NewFileStore(dir, 5, testLogger(), WithObserver(obs))
			require.NoError(t, err)

			nsDir := filepath.Join(dir, "pending", "default")
			require.NoError(t, os.MkdirAll(nsDir, 0755))
			path := filepath.Join(nsDir, "bad")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			rec, err := s.Fetch(context.Background(), StatePending, "bad", "default")
			require.NoError(t, err)
			assert.Nil(t, rec)

			_, err = os.Stat(path)
			assert.True(t, os.IsNotExist(err), "corrupt record should be discarded")
			assert.Equal(t, []string{"pending/default"}, obs.calls)
		})
	}
}

func TestFileStore_FetchUsesKeyNamespace(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, 5, testLogger())
	require.NoError(t, err)

	nsDir := filepath.Join(dir, "pending", "reports")
	require.NoError(t, os.MkdirAll(nsDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(nsDir, "r1"), []byte(`{"id":"r1","cmd":"true","args":[]}`), 0644))

	rec, err := s.Fetch(context.Background(), StatePending, "r1", "reports")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "reports", rec.Namespace)
}

func TestFileStore_HiddenFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, 1, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	ongoingDir := filepath.Join(dir, "ongoing", "default")
	require.NoError(t, os.MkdirAll(ongoingDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(ongoingDir, ".x.claim-1"), []byte("{}"), 0644))
	require.NoError(t, s.Add(ctx, StatePending, &job.Record{ID: "p1", Cmd: "true"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pending", "default", ".p0.tmp-1"), []byte("{}"), 0644))

	id, ok, err := s.NextPendingID(ctx, "default")
	require.NoError(t, err)
	assert.True(t, ok, "claim files do not count as ongoing")
	assert.Equal(t, "p1", id)

	ids, err := s.List(ctx, StatePending, "default")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)
}

func TestFileStore_InvalidFileNamesSkipped(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, 5, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, StatePending, &job.Record{ID: "b-good", Cmd: "true"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pending", "default", `a\bad`), []byte("{}"), 0644))

	id, ok, err := s.NextPendingID(ctx, "default")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b-good", id)

	ids, err := s.List(ctx, StatePending, "default")
	require.NoError(t, err)
	assert.Equal(t, []string{"b-good"}, ids)
}

func TestFileStore_DiscoversNamespacesOnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	// Another process submits into a namespace this store has never seen.
	writer, err := NewFileStore(dir, 5, testLogger())
	require.NoError(t, err)
	require.NoError(t, writer.Add(ctx, StatePending, &job.Record{Namespace: "nightly", Cmd: "true"}))

	reader, err := NewFileStore(dir, 5, testLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "nightly"}, reader.Namespaces(ctx))
}

func TestFileStore_NamespacesWithoutPendingDir(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, 5, testLogger())
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "pending")))

	assert.Equal(t, []string{"default"}, s.Namespaces(context.Background()))
}
