package persona

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a persona file into a Registry whenever it changes on disk.
// Sessions keep the persona they already hold; the new text applies on the
// next INIT.
type Watcher struct {
	path     string
	registry *Registry
	logger   *zap.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatcher loads path once into registry and prepares to watch it.
func NewWatcher(path string, registry *Registry, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := reload(path, registry); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create persona watcher: %w", err)
	}
	// Watch the directory: editors often replace the file instead of writing it.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch persona dir: %w", err)
	}

	return &Watcher{
		path:     filepath.Clean(path),
		registry: registry,
		logger:   logger,
		debounce: 250 * time.Millisecond,
		watcher:  fsw,
	}, nil
}

// Run blocks until ctx is done, applying changes as they arrive.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := reload(w.path, w.registry); err != nil {
				w.logger.Warn("persona reload failed, keeping previous personas", zap.String("path", w.path), zap.Error(err))
				continue
			}
			w.logger.Info("personas reloaded", zap.String("path", w.path))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("persona watcher error", zap.Error(err))
		}
	}
}

func reload(path string, registry *Registry) error {
	items, err := LoadFile(path)
	if err != nil {
		return err
	}
	return registry.Apply(items)
}
