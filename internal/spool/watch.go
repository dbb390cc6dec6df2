package spool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/aatumaykin/jobspool/internal/logger"
)

// Watcher reports records landing in a FileStore's pending partition. The
// root directory and every namespace directory below it are watched; new
// namespace directories are picked up as they appear.
type Watcher struct {
	fs       *fsnotify.Watcher
	root     string
	onChange func(namespace string)
	logger   *logger.Logger
}

// NewWatcher watches root (normally FileStore.StateDir(StatePending)) and
// calls onChange with the namespace of every new record.
func NewWatcher(root string, log *logger.Logger, onChange func(namespace string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		fs:       fw,
		root:     filepath.Clean(root),
		onChange: onChange,
		logger:   log.Named("spool/watch"),
	}

	if err := fw.Add(w.root); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", w.root, err)
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to read %s: %w", w.root, err)
	}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			w.watchNamespace(filepath.Join(w.root, e.Name()))
		}
	}

	return w, nil
}

func (w *Watcher) watchNamespace(dir string) {
	if err := w.fs.Add(dir); err != nil {
		w.logger.Warn("failed to watch namespace directory",
			logger.Field{Key: "dir", Value: dir},
			logger.Field{Key: "error", Value: err})
	}
}

// Run delivers events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", logger.Field{Key: "error", Value: err})
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) {
		return
	}
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") {
		return
	}

	parent := filepath.Dir(ev.Name)
	if parent == w.root {
		info, err := os.Stat(ev.Name)
		if err != nil || !info.IsDir() {
			return
		}
		// A new namespace; records may already be inside.
		w.watchNamespace(ev.Name)
		w.onChange(name)
		return
	}

	if filepath.Dir(parent) == w.root {
		w.onChange(filepath.Base(parent))
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
