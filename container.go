package cascade

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/sync/errgroup"
)

// Container is the public face of the subsystem. It composes the registry and
// the lifecycle manager: it resolves dependency chains depth-first, detects
// cycles, drives stage-ordered bulk initialization, and schedules the
// background cascade.
//
// All methods are safe for concurrent use.
type Container struct {
	registry  *registry
	lifecycle *lifecycleManager
	cfg       Config
	logger    *slog.Logger

	// lifeCtx is handed to factories and hooks; it outlives any individual
	// caller so abandoned waits never cancel a running construction.
	lifeCtx context.Context

	mu      sync.Mutex
	started bool
	bg      *conc.WaitGroup
	stopCh  chan struct{}
}

// Option configures a Container during New.
type Option func(*Container)

// WithConfig overrides the cascade timing configuration.
func WithConfig(cfg Config) Option {
	return func(c *Container) { c.cfg = cfg }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) { c.logger = logger }
}

// New creates an empty container ready for registration.
func New(opts ...Option) *Container {
	c := &Container{
		registry: newRegistry(),
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
		lifeCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lifecycle = newLifecycleManager(c.lifeCtx, c.logger)
	return c
}

// Register adds or replaces the descriptor under its name. Replacing a
// descriptor does not disturb an already-ready instance; the new factory
// takes effect on the next construction attempt.
func (c *Container) Register(d Descriptor) error {
	if d.Name == "" {
		return &InvalidDescriptorError{Name: d.Name, Reason: "name is empty"}
	}
	if d.Factory == nil {
		return &InvalidDescriptorError{Name: d.Name, Reason: "factory is nil"}
	}
	seen := make(map[string]struct{}, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		if dep == d.Name {
			return &InvalidDescriptorError{Name: d.Name, Reason: "depends on itself"}
		}
		if _, dup := seen[dep]; dup {
			return &InvalidDescriptorError{Name: d.Name, Reason: "duplicate dependency " + dep}
		}
		seen[dep] = struct{}{}
	}

	d.Dependencies = slices.Clone(d.Dependencies)
	c.registry.register(&d)
	return nil
}

// Unregister removes the descriptor under name. A running or ready instance
// is untouched; it simply becomes unreachable through Get.
func (c *Container) Unregister(name string) {
	c.registry.unregister(name)
}

// Start runs the immediate stage synchronously, then launches the background
// cascade and returns. It is idempotent: a second call is a no-op. A failure
// inside the immediate stage is returned, but the cascade is scheduled
// regardless so the application can run degraded.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	stopCh := make(chan struct{})
	immediateDone := make(chan struct{})
	c.stopCh = stopCh
	c.bg = conc.NewWaitGroup()
	c.bg.Go(func() { c.runCascade(stopCh, immediateDone) })
	c.mu.Unlock()

	err := c.InitializeStage(ctx, StageImmediate)
	if err != nil {
		c.logger.Error("immediate stage initialization failed", "error", err)
	}
	close(immediateDone)

	return err
}

// Stop interrupts the cascade, waits for it, and cleans up all services in
// reverse dependency order. Safe to call without a prior Start (cleanup still
// runs) and safe to call twice.
func (c *Container) Stop(ctx context.Context) {
	c.mu.Lock()
	var stopCh chan struct{}
	var bg *conc.WaitGroup
	if c.started {
		c.started = false
		stopCh, bg = c.stopCh, c.bg
		c.stopCh, c.bg = nil, nil
	}
	c.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		if r := bg.WaitAndRecover(); r != nil {
			c.logger.Error("background cascade panicked", "panic", r.Value)
		}
	}
	c.Cleanup(ctx)
}

// Get returns the instance registered under name, constructing it and its
// dependency chain on demand. It blocks until the construction settles or ctx
// expires; an expired ctx abandons only the wait, never the construction.
func (c *Container) Get(ctx context.Context, name string) (any, error) {
	return c.resolve(ctx, name, nil)
}

// Get is the typed counterpart of [Container.Get].
func Get[T any](ctx context.Context, c *Container, name string) (T, error) {
	var zero T
	inst, err := c.Get(ctx, name)
	if err != nil {
		return zero, err
	}
	t, ok := inst.(T)
	if !ok {
		return zero, &TypeMismatchError{Name: name, Expected: typeName[T](), Got: typeNameOf(inst)}
	}
	return t, nil
}

// GetIfReady returns the instance only if the service is ready right now. It
// never blocks, making it safe on latency-sensitive paths.
func (c *Container) GetIfReady(name string) (any, bool) {
	return c.lifecycle.readyInstance(name)
}

// GetIfReady is the typed counterpart of [Container.GetIfReady].
func GetIfReady[T any](c *Container, name string) (T, bool) {
	var zero T
	inst, ok := c.GetIfReady(name)
	if !ok {
		return zero, false
	}
	t, ok := inst.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// IsReady reports whether the named service is ready. Never blocks.
func (c *Container) IsReady(name string) bool {
	return c.lifecycle.isReady(name)
}

// IsStageReady reports whether every service registered under stage is ready.
func (c *Container) IsStageReady(stage Stage) bool {
	for _, name := range c.registry.byStage(stage) {
		if !c.lifecycle.isReady(name) {
			return false
		}
	}
	return true
}

// InitializeStage constructs every service of the stage concurrently and
// waits for all of them to settle. One member failing fails the call, but
// does not prevent its siblings from completing and staying ready.
func (c *Container) InitializeStage(ctx context.Context, stage Stage) error {
	var eg errgroup.Group
	for _, name := range c.registry.byStage(stage) {
		name := name
		eg.Go(func() error {
			_, err := c.Get(ctx, name)
			return err
		})
	}
	return eg.Wait()
}

// WaitForService polls until the named service is ready, the timeout elapses,
// or ctx is done. A false return abandons only the wait: a construction
// already in flight keeps running and may complete later.
func (c *Container) WaitForService(ctx context.Context, name string, timeout time.Duration) bool {
	return c.poll(ctx, timeout, func() bool { return c.IsReady(name) })
}

// WaitForStage polls until every service of the stage is ready, the timeout
// elapses, or ctx is done.
func (c *Container) WaitForStage(ctx context.Context, stage Stage, timeout time.Duration) bool {
	return c.poll(ctx, timeout, func() bool { return c.IsStageReady(stage) })
}

func (c *Container) poll(ctx context.Context, timeout time.Duration, ready func() bool) bool {
	interval := c.cfg.PollInterval
	if interval <= 0 {
		interval = DefaultConfig().PollInterval
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		if ready() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-tick.C:
		}
	}
}

// Status is the diagnostic snapshot of one service.
type Status struct {
	Stage Stage
	Phase Phase
	Err   error
}

// Ready reports whether the service is currently ready.
func (s Status) Ready() bool {
	return s.Phase == PhaseReady
}

// ReadinessStatus returns a diagnostic snapshot of every registered service:
// its stage, phase and, when failed, the recorded error. Intended for
// operational tooling, not for control flow.
func (c *Container) ReadinessStatus() map[string]Status {
	out := make(map[string]Status)
	for _, name := range c.registry.names() {
		d, ok := c.registry.descriptor(name)
		if !ok {
			continue
		}
		phase, err := c.lifecycle.status(name)
		out[name] = Status{Stage: d.Stage, Phase: phase, Err: err}
	}
	return out
}

// AllInitialized returns every currently-ready name to instance pair.
func (c *Container) AllInitialized() map[string]any {
	out := make(map[string]any)
	for _, name := range c.registry.names() {
		if inst, ok := c.lifecycle.readyInstance(name); ok {
			out[name] = inst
		}
	}
	return out
}

// Cleanup tears down every service in reverse dependency order: no service is
// cleaned up before everything depending on it. Teardown hook errors are
// logged and do not abort the remaining cleanups.
func (c *Container) Cleanup(ctx context.Context) {
	order := c.constructionOrder()
	for i := len(order) - 1; i >= 0; i-- {
		c.lifecycle.cleanup(ctx, order[i])
	}
}

// constructionOrder lists all registered names dependencies-first, matching
// the order construction observes. Cleanup walks it backwards.
func (c *Container) constructionOrder() []string {
	visited := make(map[string]bool)
	var order []string
	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		if d, ok := c.registry.descriptor(name); ok {
			for _, dep := range d.Dependencies {
				visit(dep)
			}
		}
		order = append(order, name)
	}
	for _, name := range c.registry.names() {
		visit(name)
	}
	return order
}

// checkCycles walks the declared dependency graph reachable from name and
// fails on the first cycle. The graph is static, so the walk catches a cycle
// before any flight is joined: concurrent callers entering the same cycle
// from different members each fail here instead of blocking on each other's
// in-progress flight.
func (c *Container) checkCycles(name string) error {
	const (
		visiting = 1
		done     = 2
	)
	marks := make(map[string]int)
	var chain []string
	var walk func(n string) error
	walk = func(n string) error {
		switch marks[n] {
		case done:
			return nil
		case visiting:
			i := slices.Index(chain, n)
			return &CycleError{Chain: append(slices.Clone(chain[i:]), n)}
		}
		marks[n] = visiting
		chain = append(chain, n)
		if d, ok := c.registry.descriptor(n); ok {
			for _, dep := range d.Dependencies {
				if err := walk(dep); err != nil {
					return err
				}
			}
		}
		marks[n] = done
		chain = chain[:len(chain)-1]
		return nil
	}
	return walk(name)
}

// resolve walks the dependency graph depth-first. A top-level call (nil
// chain) first proves the reachable graph acyclic; chain then carries the
// names currently being resolved on this call path, guarding against a
// descriptor replaced mid-resolution introducing a cycle.
func (c *Container) resolve(ctx context.Context, name string, chain []string) (any, error) {
	if chain == nil {
		if err := c.checkCycles(name); err != nil {
			return nil, err
		}
	}

	for i, n := range chain {
		if n == name {
			cycle := append(slices.Clone(chain[i:]), name)
			return nil, &CycleError{Chain: cycle}
		}
	}

	d, ok := c.registry.descriptor(name)
	if !ok {
		return nil, &NotFoundError{Name: name}
	}

	next := append(slices.Clone(chain), name)
	return c.lifecycle.initialize(ctx, d, func(depCtx context.Context) (Deps, error) {
		for _, dep := range d.Dependencies {
			if _, err := c.resolve(depCtx, dep, next); err != nil {
				return Deps{}, err
			}
		}
		return Deps{container: c, owner: name, names: d.Dependencies}, nil
	})
}
