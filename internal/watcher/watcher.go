// Package watcher reports changes to a set of source files, grouping bursts
// of events so that one save triggers one re-render.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/plantctl/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

func eventType(op fsnotify.Op) EventType {
	switch {
	case op.Has(fsnotify.Create):
		return EventTypeCreated
	case op.Has(fsnotify.Write):
		return EventTypeModified
	case op.Has(fsnotify.Remove):
		return EventTypeDeleted
	case op.Has(fsnotify.Rename):
		return EventTypeRenamed
	default:
		return EventTypeModified
	}
}

// ChangeHandler receives the distinct paths changed during one debounce
// window, sorted. Errors are logged and watching continues.
type ChangeHandler func(ctx context.Context, paths []string) error

// Watcher watches individual files. Their parent directories are watched so
// that editors which save by replacing the file are still seen.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	logger   logging.Logger

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]bool
}

// New creates a Watcher that waits for debounce of quiet before reporting.
func New(debounce time.Duration, logger logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Watcher{
		fs:       fsw,
		debounce: debounce,
		logger:   logger.WithComponent("watcher"),
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
	}, nil
}

// AddPath starts watching the file at path.
func (w *Watcher) AddPath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("getting absolute path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("watching %s: is a directory", path)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Dir(abs)
	if !w.dirs[dir] {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	w.files[abs] = true

	return nil
}

func (w *Watcher) watched(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[abs]
}

// Run delivers debounced changes to handler until ctx is done. It returns
// nil on cancellation.
func (w *Watcher) Run(ctx context.Context, handler ChangeHandler) error {
	pending := make(map[string]bool)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Op == fsnotify.Chmod || !w.watched(event.Name) {
				continue
			}
			typ := eventType(event.Op)
			if typ == EventTypeDeleted {
				continue
			}
			w.logger.Debug(ctx, "File changed", "path", event.Name, "type", typ.String())

			abs, _ := filepath.Abs(event.Name)
			pending[abs] = true
			timer.Reset(w.debounce)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, err, "File watcher error")

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)

			if err := handler(ctx, paths); err != nil {
				w.logger.Warn(ctx, err, "Change handler failed", "paths", paths)
			}
		}
	}
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
