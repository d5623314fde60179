package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the settings store when the settings file changes on disk
type Watcher struct {
	watcher    *fsnotify.Watcher
	store      *Store
	mu         sync.Mutex
	logger     *slog.Logger
	reloadChan chan struct{}
}

// StartWatcher watches the directory holding the store's settings file.
// Editors often replace files instead of writing them in place, so the
// directory is watched rather than the file itself.
func StartWatcher(store *Store, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := fw.Add(filepath.Dir(store.Path())); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch settings directory: %w", err)
	}

	w := &Watcher{
		watcher:    fw,
		store:      store,
		logger:     logger,
		reloadChan: make(chan struct{}, 1),
	}

	go w.watch()
	return w, nil
}

// ReloadChan receives a notification after each successful reload. It is
// closed once the watcher stops.
func (w *Watcher) ReloadChan() <-chan struct{} {
	return w.reloadChan
}

func (w *Watcher) watch() {
	defer close(w.reloadChan)
	target := filepath.Clean(w.store.Path())

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != target {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.handleChange(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleChange(path string) {
	w.logger.Info("detected settings change", "path", path)

	if err := w.store.Reload(); err != nil {
		w.logger.Error("failed to reload settings",
			"error", err,
			"path", path,
		)
		return
	}

	w.logger.Info("settings reloaded successfully")

	select {
	case w.reloadChan <- struct{}{}:
	default:
		// a reload is already pending
	}
}

// Stop stops watching
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		if err := w.watcher.Close(); err != nil {
			return fmt.Errorf("failed to close watcher: %w", err)
		}
		w.watcher = nil
	}
	return nil
}
