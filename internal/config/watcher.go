package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"book_collector/internal/core"
	apperrors "book_collector/pkg/errors"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the runtime config file and emits validated configs.
// Malformed content and runtime exchange changes are rejected; the last
// good config stays in effect. Emissions are serialized: the next config
// is not delivered until the consumer has taken the previous one.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   core.ILogger

	mu     sync.Mutex
	fs     *fsnotify.Watcher
	closed bool

	out      chan *Config
	lastGood *Config
}

// NewWatcher creates a watcher for the given config file. The parent
// directory is watched rather than the file itself so editor
// rename-and-replace saves keep working.
func NewWatcher(path string, debounce time.Duration, logger core.ILogger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fs.Close()
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := fs.Add(filepath.Dir(abs)); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}

	return &Watcher{
		path:     abs,
		debounce: debounce,
		logger:   logger,
		fs:       fs,
		out:      make(chan *Config, 1),
	}, nil
}

// Events returns the channel of validated config changes. The initial
// config is delivered first.
func (w *Watcher) Events() <-chan *Config {
	return w.out
}

// Start loads the initial config and begins watching for changes. A
// missing or invalid initial config is a startup error.
func (w *Watcher) Start(ctx context.Context) error {
	initial, err := LoadConfig(w.path)
	if err != nil {
		return fmt.Errorf("initial config load: %w", err)
	}
	w.lastGood = initial
	w.out <- initial

	go w.run(ctx)
	return nil
}

// Close stops the underlying file watcher
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return w.fs.Close()
}

func (w *Watcher) watcher() *fsnotify.Watcher {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fs
}

func (w *Watcher) run(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		fs := w.watcher()

		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fs.Events:
			if !ok {
				if !w.rewatch(ctx) {
					return
				}
				continue
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			// Debounce bursts of events from a single save
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload(ctx)

		case err, ok := <-fs.Errors:
			if !ok {
				if !w.rewatch(ctx) {
					return
				}
				continue
			}
			w.logger.Error("Config watcher error, rebuilding watcher", "error", err)
			if !w.rewatch(ctx) {
				return
			}
		}
	}
}

// rewatch replaces a dead fsnotify watcher so config changes keep being
// observed. Returns false once the watcher has been closed for good or
// the context ended. After a successful rebuild the file is reloaded to
// pick up anything changed while the watcher was down.
func (w *Watcher) rewatch(ctx context.Context) bool {
	for {
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return false
		}
		w.fs.Close()
		fs, err := fsnotify.NewWatcher()
		if err == nil {
			if addErr := fs.Add(filepath.Dir(w.path)); addErr != nil {
				fs.Close()
				err = addErr
			} else {
				w.fs = fs
			}
		}
		w.mu.Unlock()

		if err == nil {
			w.logger.Info("Config watcher rebuilt", "path", w.path)
			w.reload(ctx)
			return true
		}

		w.logger.Error("Config watcher rebuild failed, retrying", "error", err)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Second):
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Warn("Ignoring invalid config change, keeping last good config",
			"path", w.path, "error", err)
		return
	}

	if w.lastGood != nil && cfg.Exchange() != w.lastGood.Exchange() {
		w.logger.Error("Exchange cannot change at runtime, keeping last good config",
			"current", w.lastGood.Exchange(), "requested", cfg.Exchange(),
			"error", apperrors.ErrExchangeChanged)
		return
	}

	if w.lastGood != nil && cfg.Equal(w.lastGood) {
		w.logger.Debug("Config unchanged after reload", "path", w.path)
		return
	}

	w.lastGood = cfg
	w.logger.Info("Config changed", "exchange", cfg.Exchange(), "symbols", cfg.Symbols())

	select {
	case w.out <- cfg:
	case <-ctx.Done():
	}
}
