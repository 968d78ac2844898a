package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeHandler is called with the newly loaded config.
type ChangeHandler func(cfg *Config)

// Watcher reloads a config file when it changes. Changes are debounced so
// an editor's write-rename sequence triggers one reload.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	handlers []ChangeHandler
}

// NewWatcher creates a config file watcher.
func NewWatcher(configPath string, logger *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(configPath)
	if err != nil {
		abs = configPath
	}
	return &Watcher{
		path:     abs,
		watcher:  w,
		debounce: 300 * time.Millisecond,
		logger:   logger,
	}, nil
}

// OnChange registers a handler to be called when config changes.
func (cw *Watcher) OnChange(handler ChangeHandler) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.handlers = append(cw.handlers, handler)
}

// Run watches until ctx is done. The containing directory is watched so
// files replaced by rename are still seen.
func (cw *Watcher) Run(ctx context.Context) error {
	defer cw.watcher.Close()
	if err := cw.watcher.Add(filepath.Dir(cw.path)); err != nil {
		return fmt.Errorf("watch %s: %w", cw.path, err)
	}
	cw.logger.Info("config watcher started", "path", cw.path)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		cw.logger.Info("config watcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(cw.debounce, cw.reload)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return nil
			}
			cw.logger.Error("config watcher error", "error", err)
		}
	}
}

func (cw *Watcher) reload() {
	cw.logger.Info("config file changed, reloading", "path", cw.path)

	cfg, err := Load(cw.path)
	if err != nil {
		cw.logger.Error("config reload failed", "error", err)
		return
	}

	cw.mu.Lock()
	handlers := make([]ChangeHandler, len(cw.handlers))
	copy(handlers, cw.handlers)
	cw.mu.Unlock()

	for _, h := range handlers {
		h(cfg)
	}
	cw.logger.Info("config reloaded successfully")
}
