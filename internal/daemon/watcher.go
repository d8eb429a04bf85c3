// Package daemon ties the bridge's components into a running process.
package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/bridge/internal/history"
	"github.com/grovetools/bridge/internal/hub"
	"github.com/grovetools/bridge/logging"
)

// LogWatcher watches the session-log tree and reloads the store when
// logs change on disk, broadcasting the result.
type LogWatcher struct {
	watcher  *fsnotify.Watcher
	recon    *history.Reconstructor
	hub      *hub.Hub
	debounce time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	logger   *logrus.Entry
}

// NewLogWatcher creates a watcher over the reconstructor's root and
// its existing session directories.
func NewLogWatcher(recon *history.Reconstructor, h *hub.Hub, debounce time.Duration) (*LogWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger("log-watcher")
	root := recon.Root()

	if err := os.MkdirAll(root, 0755); err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return nil, err
	}

	// Event files live one level down; watch each session directory too
	if entries, err := os.ReadDir(root); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if err := watcher.Add(filepath.Join(root, entry.Name())); err != nil {
				logger.WithError(err).Warnf("Failed to watch session directory %s", entry.Name())
			}
		}
	}

	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	return &LogWatcher{
		watcher:  watcher,
		recon:    recon,
		hub:      h,
		debounce: debounce,
		logger:   logger,
	}, nil
}

// Start begins watching. It blocks until the context is cancelled.
func (w *LogWatcher) Start(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)

			if event.Op&fsnotify.Create != 0 {
				// New session directories need their own watch
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watcher.Add(event.Name); err != nil {
						w.logger.WithError(err).Warnf("Failed to watch new directory %s", event.Name)
					}
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.handleChange(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			w.watcher.Close()
			return
		}
	}
}

// handleChange schedules a reload once writes settle. A burst of events
// collapses into a single reload after the debounce window.
func (w *LogWatcher) handleChange(file string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.reload(file)
	})
}

func (w *LogWatcher) reload(file string) {
	w.logger.Infof("Session logs changed: %s", filepath.Base(file))
	if err := w.recon.Reload(); err != nil {
		w.logger.WithError(err).Error("Reload after log change failed")
		return
	}
	w.hub.Publish(hub.EventSessionReloaded, map[string]string{
		"file": filepath.Base(file),
	})
}

// Close stops the watcher and releases resources.
func (w *LogWatcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}
