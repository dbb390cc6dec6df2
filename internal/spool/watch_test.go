package spool

import (
	"context"
	"testing"
	"time"

	"github.com/aatumaykin/jobspool/internal/job"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReportsNewRecords(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, 5, testLogger())
	require.NoError(t, err)

	events := make(chan string, 16)
	w, err := NewWatcher(s.StateDir(StatePending), testLogger(), func(ns string) {
		events <- ns
	})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// New namespace directory, then a record inside an already-watched one.
	require.NoError(t, s.Add(ctx, StatePending, &job.Record{Namespace: "fresh", Cmd: "true"}))
	waitForNamespace(t, events, "fresh")

	require.NoError(t, s.Add(ctx, StatePending, &job.Record{Namespace: "fresh", Cmd: "true"}))
	waitForNamespace(t, events, "fresh")
}

func TestWatcher_MissingRoot(t *testing.T) {
	_, err := NewWatcher("/definitely/not/here", testLogger(), func(string) {})
	require.Error(t, err)
}

func waitForNamespace(t *testing.T, events <-chan string, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ns := <-events:
			if ns == want {
				return
			}
		case <-deadline:
			t.Fatalf("no watcher event for namespace %q", want)
		}
	}
}
