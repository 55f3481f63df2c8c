// Package prewarm reacts to workspace file activity and proactively warms
// container services before anything asks for them. It consumes only the
// container's public API and adds no initialization semantics of its own: a
// warm is just a background Get for a service that is not ready yet.
package prewarm

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sourcegraph/conc"

	"github.com/cascadix/cascade"
)

// DefaultDebounce batches bursts of file events into a single warm pass.
const DefaultDebounce = 500 * time.Millisecond

// Config declares what the warmer watches and what it warms.
type Config struct {
	// Paths are the directories handed to the file watcher.
	Paths []string
	// Services are the container names warmed after file activity.
	Services []string
	// Debounce is the quiet period required before a warm pass runs.
	// Zero means DefaultDebounce.
	Debounce time.Duration
}

// Option configures a Warmer.
type Option func(*Warmer)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Warmer) { w.logger = logger }
}

// Warmer watches directories and pre-warms container services when files
// under them change.
type Warmer struct {
	container *cascade.Container
	cfg       Config
	logger    *slog.Logger

	watcher *fsnotify.Watcher
	bg      conc.WaitGroup
	stopCh  chan struct{}
	closed  atomic.Bool
}

// New creates a Warmer bound to the given container. The container is passed
// explicitly; the warmer holds no ambient state.
func New(container *cascade.Container, cfg Config, opts ...Option) *Warmer {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	w := &Warmer{
		container: container,
		cfg:       cfg,
		logger:    slog.Default(),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching the configured paths. The event loop runs in a
// background goroutine until Close.
func (w *Warmer) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, path := range w.cfg.Paths {
		if err := watcher.Add(path); err != nil {
			watcher.Close()
			return err
		}
	}
	w.watcher = watcher
	w.bg.Go(w.loop)
	return nil
}

// Close stops the watcher and waits for in-flight warm passes. Safe to call
// more than once.
func (w *Warmer) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(w.stopCh)
	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
	}
	if r := w.bg.WaitAndRecover(); r != nil {
		w.logger.Error("prewarm pass panicked", "panic", r.Value)
	}
	return err
}

func (w *Warmer) loop() {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.cfg.Debounce)
				fire = timer.C
			} else {
				timer.Reset(w.cfg.Debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("prewarm watch error", "error", err)
		case <-fire:
			w.Warm()
		}
	}
}

// Warm kicks off a background Get for every configured service that is not
// ready yet. Already-ready services are skipped; failures are logged and
// recorded against the service as usual, never propagated.
func (w *Warmer) Warm() {
	for _, name := range w.cfg.Services {
		if _, ok := w.container.GetIfReady(name); ok {
			continue
		}
		name := name
		w.bg.Go(func() {
			if _, err := w.container.Get(context.Background(), name); err != nil {
				w.logger.Warn("prewarm failed", "service", name, "error", err)
			}
		})
	}
}
