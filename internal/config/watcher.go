package config

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"cairn/pkg/logger"
)

const debounceDelay = 100 * time.Millisecond

// Watcher reloads the config file when it changes and hands the new
// configuration to a callback. Editors often replace files instead of
// writing them, so the parent directory is watched.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func(*Config)
	delay    time.Duration

	stopCh  chan struct{}
	done    chan struct{}
	mu      sync.Mutex
	timer   *time.Timer
	started bool
}

// NewWatcher creates a watcher for the loaded config file.
func NewWatcher(onChange func(*Config)) (*Watcher, error) {
	path := Path()
	if path == "" {
		return nil, errors.New("config path not set")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  w,
		path:     filepath.Clean(path),
		onChange: onChange,
		delay:    debounceDelay,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.started = true
	go w.run()
	return nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("config watcher error")
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logger.Warn().Err(err).Str("path", w.path).Msg("config reload failed, keeping previous config")
		return
	}
	if err := cfg.Validate(); err != nil {
		logger.Warn().Err(err).Str("path", w.path).Msg("reloaded config is invalid, ignoring")
		return
	}
	logger.Info().Str("path", w.path).Msg("config reloaded")
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// Stop stops watching and cancels a pending reload.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	w.watcher.Close()
	if w.started {
		<-w.done
	}
}
