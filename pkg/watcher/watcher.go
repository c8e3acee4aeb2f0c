// Package watcher adapts fsnotify to the scheduler's queue model: file
// modifications arrive on a bounded channel the control loop selects
// on, never as a callback into scheduler state.
package watcher

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/mbrevik/sundial/pkg/errors"
	"github.com/mbrevik/sundial/pkg/logging"
)

// DefaultQueueSize bounds the modification queue. A full queue drops
// events; modules re-render from current state, so a dropped
// notification only delays, never corrupts.
const DefaultQueueSize = 64

// Watcher forwards modifications of registered paths to a channel
type Watcher struct {
	fs     *fsnotify.Watcher
	events chan string

	mu       sync.Mutex
	paths    map[string]bool
	watching map[string]bool
}

// New creates a watcher with a bounded event queue. queueSize <= 0 uses
// the default.
func New(queueSize int) (*Watcher, error) {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrFileAccess, "could not create file watcher")
	}

	w := &Watcher{
		fs:       fs,
		events:   make(chan string, queueSize),
		paths:    make(map[string]bool),
		watching: make(map[string]bool),
	}
	go w.run()
	return w, nil
}

// Add registers interest in a file path. The file's directory is
// watched so the path is caught even if the file does not exist yet, or
// is replaced by rename.
func (w *Watcher) Add(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Dir(path)
	if !w.watching[dir] {
		if err := w.fs.Add(dir); err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess,
				"could not watch directory %q", dir)
		}
		w.watching[dir] = true
	}
	w.paths[path] = true
	return nil
}

// Reset drops every registration so the path set can be rebuilt, as
// after a configuration reload. Events already queued for old paths
// are still delivered; callers treat unknown paths as no-ops.
func (w *Watcher) Reset() {
	logger := logging.GetLogger("watcher")

	w.mu.Lock()
	defer w.mu.Unlock()
	for dir := range w.watching {
		if err := w.fs.Remove(dir); err != nil {
			logger.Warn().Err(err).Str("dir", dir).Msg("Could not unwatch directory")
		}
	}
	w.paths = make(map[string]bool)
	w.watching = make(map[string]bool)
}

// Events returns the modification queue. Each item is a registered path
// that changed.
func (w *Watcher) Events() <-chan string {
	return w.events
}

// Active reports whether any path is registered
func (w *Watcher) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.paths) > 0
}

// Close stops the watcher and closes the event channel
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) run() {
	logger := logging.GetLogger("watcher")
	defer close(w.events)

	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			interested := w.paths[ev.Name]
			w.mu.Unlock()
			if !interested {
				continue
			}
			select {
			case w.events <- ev.Name:
			default:
				logger.Warn().Str("path", ev.Name).Msg("Modification queue full, dropping event")
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}
