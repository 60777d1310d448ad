package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher loads a config file once and reloads its reloadable fields
// whenever the file changes on disk, leaving Batcher untouched for the
// life of the process (see BatcherConfig's doc comment).
type Watcher struct {
	path string
	log  *zap.Logger

	mu  sync.RWMutex
	cfg *Config

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewWatcher loads, validates, and starts watching the config file at
// path. Closing it with Stop also stops the watch goroutine.
func NewWatcher(path string, log *zap.Logger) (*Watcher, error) {
	cfg, err := loadValidated(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	w := &Watcher{
		path:    path,
		log:     log,
		cfg:     cfg,
		watcher: fsw,
		stopCh:  make(chan struct{}),
	}

	go w.run()
	return w, nil
}

func loadValidated(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Get returns the current configuration. The returned value is a
// snapshot; callers must call Get again to observe a later reload.
func (w *Watcher) Get() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return *w.cfg
}

// Stop stops watching the file. It does not close the zap logger.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	return w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("config watcher error", zap.Error(err))
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) reload() {
	next, err := loadValidated(w.path)
	if err != nil {
		w.log.Error("config reload failed, keeping previous configuration", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.cfg.ReplaceReloadable(next)
	w.mu.Unlock()

	w.log.Info("configuration reloaded", zap.String("path", w.path))
}
