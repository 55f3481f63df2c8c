// Package mock provides shared fixtures for the container tests: factories
// that count and record their invocations, factories that block until
// released, factories that fail a configured number of times, and instances
// exposing the optional lifecycle hooks.
package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cascadix/cascade"
)

// Service is a minimal constructed instance carrying the name it was built
// under.
type Service struct {
	Name string
}

// Recorder tracks invocation order and counts across factories and hooks.
// Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	order  []string
	counts map[string]int
}

func NewRecorder() *Recorder {
	return &Recorder{counts: make(map[string]int)}
}

func (r *Recorder) Record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, event)
	r.counts[event]++
}

// Order returns a copy of every recorded event, in order.
func (r *Recorder) Order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Recorder) Count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[event]
}

// Factory returns a factory producing *Service and recording each invocation
// under the service name.
func (r *Recorder) Factory(name string) cascade.Factory {
	return func(ctx context.Context, deps cascade.Deps) (any, error) {
		r.Record(name)
		return &Service{Name: name}, nil
	}
}

// Gate blocks factories until released. Release is idempotent.
type Gate struct {
	ch   chan struct{}
	once sync.Once
}

func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

func (g *Gate) Release() {
	g.once.Do(func() { close(g.ch) })
}

// Factory returns a factory that records its invocation, then blocks until
// the gate is released.
func (g *Gate) Factory(r *Recorder, name string) cascade.Factory {
	return func(ctx context.Context, deps cascade.Deps) (any, error) {
		r.Record(name)
		<-g.ch
		return &Service{Name: name}, nil
	}
}

// HookedFactory is like Factory but produces a *Hooked wired to the recorder,
// so hook invocations on the gated instance are observable too.
func (g *Gate) HookedFactory(r *Recorder, name string) cascade.Factory {
	return func(ctx context.Context, deps cascade.Deps) (any, error) {
		r.Record(name)
		<-g.ch
		return &Hooked{Name: name, rec: r}, nil
	}
}

// Flaky fails its first n construction attempts, then succeeds.
type Flaky struct {
	remaining int32
}

func NewFlaky(failures int) *Flaky {
	return &Flaky{remaining: int32(failures)}
}

func (f *Flaky) Factory(r *Recorder, name string) cascade.Factory {
	return func(ctx context.Context, deps cascade.Deps) (any, error) {
		r.Record(name)
		if atomic.AddInt32(&f.remaining, -1) >= 0 {
			return nil, fmt.Errorf("simulated construction failure of %s", name)
		}
		return &Service{Name: name}, nil
	}
}

// Hooked is a constructed instance exposing both lifecycle hooks. Hook
// invocations are recorded as "init:<name>" and "shutdown:<name>".
type Hooked struct {
	Name        string
	InitErr     error
	ShutdownErr error

	rec *Recorder
}

// HookedFactory returns a factory producing a *Hooked wired to the recorder.
func HookedFactory(r *Recorder, name string) cascade.Factory {
	return func(ctx context.Context, deps cascade.Deps) (any, error) {
		r.Record(name)
		return &Hooked{Name: name, rec: r}, nil
	}
}

// FailingShutdownFactory is like HookedFactory, but the produced instance
// fails its teardown hook.
func FailingShutdownFactory(r *Recorder, name string) cascade.Factory {
	return func(ctx context.Context, deps cascade.Deps) (any, error) {
		r.Record(name)
		return &Hooked{Name: name, rec: r, ShutdownErr: fmt.Errorf("simulated shutdown failure of %s", name)}, nil
	}
}

func (h *Hooked) OnInit(ctx context.Context) error {
	if h.rec != nil {
		h.rec.Record("init:" + h.Name)
	}
	return h.InitErr
}

func (h *Hooked) OnShutdown(ctx context.Context) error {
	if h.rec != nil {
		h.rec.Record("shutdown:" + h.Name)
	}
	return h.ShutdownErr
}
