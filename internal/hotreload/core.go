// Package hotreload watches the configuration file and applies the settings
// that may change while the server runs.
package hotreload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Flag is a boolean setting read on every use.
type Flag struct{ v atomic.Bool }

func NewFlag(initial bool) *Flag {
	f := &Flag{}
	f.v.Store(initial)
	return f
}

func (f *Flag) Get() bool  { return f.v.Load() }
func (f *Flag) Set(b bool) { f.v.Store(b) }

// Handler receives the new file content after a change settles.
type Handler func(ctx context.Context, content []byte) error

type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	handlers []Handler

	mu      sync.Mutex
	timer   *time.Timer
	running bool
	stop    chan struct{}
}

// New watches path. Its directory is watched so editors that replace the
// file instead of writing it in place are seen too.
func New(path string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{path: abs, debounce: debounce, logger: logger, watcher: w, stop: make(chan struct{})}, nil
}

// OnChange registers h. Handlers run in registration order.
func (w *Watcher) OnChange(h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", w.path, err)
	}
	go w.loop(ctx)
	w.logger.Info("config watcher started", "file", w.path)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			w.schedule(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

// schedule coalesces bursts of events into one reload.
func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.Reload(ctx); err != nil {
			w.logger.Error("config reload failed", "file", w.path, "error", err)
		}
	})
}

// Reload reads the file and runs every handler.
func (w *Watcher) Reload(ctx context.Context) error {
	content, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	w.mu.Lock()
	hs := append([]Handler(nil), w.handlers...)
	w.mu.Unlock()
	var firstErr error
	for _, h := range hs {
		if err := h(ctx, content); err != nil {
			w.logger.Error("config change handler failed", "file", w.path, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	if w.running {
		close(w.stop)
		w.running = false
	}
	return w.watcher.Close()
}
