package cascade

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/puzpuzpuz/xsync"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/singleflight"
)

var errCleanedUp = errors.New("cleaned up during construction")

// Phase is the runtime state of a single service.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseInitializing
	PhaseReady
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseInitializing:
		return "initializing"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// serviceState is the mutable runtime record for one service name. Only the
// lifecycle manager writes it, always under its mutex. gen counts cleanups; a
// construction commits only if no cleanup ran while its factory was working.
type serviceState struct {
	mu       sync.Mutex
	phase    Phase
	instance any
	err      error
	gen      uint64
}

// lifecycleManager owns the per-service state table and enforces the
// at-most-one-construction guarantee through a single-flight group keyed by
// service name: concurrent requesters for a not-yet-ready service share one
// in-progress construction and receive the identical instance or error.
type lifecycleManager struct {
	states  *xsync.MapOf[string, *serviceState]
	flights singleflight.Group
	logger  *slog.Logger

	// runCtx is the container lifetime context handed to factories and
	// hooks. A caller abandoning its wait does not cancel a construction
	// that has started.
	runCtx context.Context
}

func newLifecycleManager(runCtx context.Context, logger *slog.Logger) *lifecycleManager {
	return &lifecycleManager{
		states: xsync.NewMapOf[*serviceState](),
		logger: logger,
		runCtx: runCtx,
	}
}

func (m *lifecycleManager) state(name string) *serviceState {
	if st, ok := m.states.Load(name); ok {
		return st
	}
	st, _ := m.states.LoadOrStore(name, &serviceState{})
	return st
}

// initialize returns the ready instance for the descriptor, constructing it
// if necessary. resolveDeps must leave every declared dependency ready before
// returning; it runs inside the flight, so it executes at most once per
// construction attempt. The caller's ctx bounds only the wait: on ctx
// expiry the flight keeps running and may complete later.
func (m *lifecycleManager) initialize(ctx context.Context, d *Descriptor, resolveDeps func(context.Context) (Deps, error)) (any, error) {
	if inst, ok := m.readyInstance(d.Name); ok {
		return inst, nil
	}

	ch := m.flights.DoChan(d.Name, func() (any, error) {
		return m.construct(d, resolveDeps)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		m.logger.Debug("wait for service abandoned", "service", d.Name, "cause", ctx.Err())
		return nil, ctx.Err()
	}
}

// construct runs one construction attempt. It is only ever entered through
// the single-flight group, so per name there is at most one execution at a
// time; the phase re-check below handles flights that lost the race against a
// just-completed one.
func (m *lifecycleManager) construct(d *Descriptor, resolveDeps func(context.Context) (Deps, error)) (any, error) {
	st := m.state(d.Name)

	st.mu.Lock()
	if st.phase == PhaseReady {
		inst := st.instance
		st.mu.Unlock()
		return inst, nil
	}
	st.phase = PhaseInitializing
	st.instance = nil
	st.err = nil
	gen := st.gen
	st.mu.Unlock()

	inst, err := m.runFactory(d, resolveDeps)

	st.mu.Lock()
	if st.gen != gen {
		// A cleanup ran while the factory was working. The state stays as
		// cleanup left it; the instance is torn down instead of resurrected.
		st.mu.Unlock()
		if err == nil {
			m.discard(d.Name, inst)
		}
		return nil, &ConstructionError{Name: d.Name, Err: errCleanedUp}
	}
	defer st.mu.Unlock()
	if err != nil {
		st.phase = PhaseFailed
		st.err = err
		return nil, err
	}
	st.phase = PhaseReady
	st.instance = inst
	return inst, nil
}

// discard tears down an instance that finished construction after a cleanup
// had already reset its service.
func (m *lifecycleManager) discard(name string, inst any) {
	if hook, ok := inst.(Shutdownable); ok {
		if err := hook.OnShutdown(m.runCtx); err != nil {
			m.logger.Error("service shutdown hook failed", "service", name, "error", err)
		}
	}
}

func (m *lifecycleManager) runFactory(d *Descriptor, resolveDeps func(context.Context) (Deps, error)) (any, error) {
	deps, err := resolveDeps(m.runCtx)
	if err != nil {
		// Dependency failures keep their own type (NotFoundError,
		// CycleError, or the dependency's ConstructionError).
		return nil, err
	}

	var inst any
	if r := panics.Try(func() { inst, err = d.Factory(m.runCtx, deps) }); r != nil {
		return nil, &ConstructionError{Name: d.Name, Err: r.AsError()}
	}
	if err != nil {
		return nil, &ConstructionError{Name: d.Name, Err: err}
	}

	if hook, ok := inst.(Initializable); ok {
		if r := panics.Try(func() { err = hook.OnInit(m.runCtx) }); r != nil {
			return nil, &ConstructionError{Name: d.Name, Err: r.AsError()}
		}
		if err != nil {
			return nil, &ConstructionError{Name: d.Name, Err: err}
		}
	}

	return inst, nil
}

// cleanup invokes the instance's teardown hook when present and resets the
// state to uninitialized. Hook errors are logged, never propagated.
func (m *lifecycleManager) cleanup(ctx context.Context, name string) {
	st, ok := m.states.Load(name)
	if !ok {
		return
	}

	st.mu.Lock()
	st.gen++
	if st.phase != PhaseReady {
		st.phase = PhaseUninitialized
		st.instance = nil
		st.err = nil
		st.mu.Unlock()
		return
	}
	inst := st.instance
	st.mu.Unlock()

	if hook, ok := inst.(Shutdownable); ok {
		if err := hook.OnShutdown(ctx); err != nil {
			m.logger.Error("service shutdown hook failed", "service", name, "error", err)
		}
	}

	st.mu.Lock()
	st.phase = PhaseUninitialized
	st.instance = nil
	st.err = nil
	st.mu.Unlock()
}

// readyInstance is a non-blocking read: the instance only if the service is
// ready right now.
func (m *lifecycleManager) readyInstance(name string) (any, bool) {
	st, ok := m.states.Load(name)
	if !ok {
		return nil, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.phase != PhaseReady {
		return nil, false
	}
	return st.instance, true
}

func (m *lifecycleManager) isReady(name string) bool {
	_, ok := m.readyInstance(name)
	return ok
}

// status is a non-blocking read of the service's phase and, when failed, its
// error.
func (m *lifecycleManager) status(name string) (Phase, error) {
	st, ok := m.states.Load(name)
	if !ok {
		return PhaseUninitialized, nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.phase, st.err
}
