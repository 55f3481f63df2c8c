package cascade

import "context"

// Stage is the priority tier controlling when a service is eagerly
// constructed.
type Stage int

const (
	// StageImmediate services are initialized synchronously by Start. They
	// must be cheap to construct: no I/O, or trivial I/O only.
	StageImmediate Stage = iota
	// StageBackgroundFast services are initialized by the background cascade
	// shortly after Start returns.
	StageBackgroundFast
	// StageBackgroundSlow services are initialized after the fast tier has
	// fully settled, so expensive loads never starve cheap ones.
	StageBackgroundSlow
	// StageOnDemand services are never proactively constructed; they are
	// built lazily the first time any caller names them.
	StageOnDemand
)

func (s Stage) String() string {
	switch s {
	case StageImmediate:
		return "immediate"
	case StageBackgroundFast:
		return "background-fast"
	case StageBackgroundSlow:
		return "background-slow"
	case StageOnDemand:
		return "on-demand"
	default:
		return "unknown"
	}
}

// Factory produces a service instance from its already-resolved dependencies.
// It may block on I/O and it may fail. The context is the container's
// lifetime context, not the context of the caller that triggered
// construction: a caller abandoning its wait does not cancel a factory that
// has started.
type Factory func(ctx context.Context, deps Deps) (any, error)

// Descriptor is the static declaration of a service: its unique name, the
// names it depends on, the stage it belongs to, and the factory that builds
// it. Once registered, a descriptor is immutable; re-registering the same
// name replaces the descriptor but does not disturb an already-ready
// instance.
type Descriptor struct {
	Name         string
	Dependencies []string
	Stage        Stage
	Factory      Factory
}

// Deps is the typed view over a service's resolved dependencies, handed to
// its factory. Only declared dependency names are reachable through it.
type Deps struct {
	container *Container
	owner     string
	names     []string
}

func (d Deps) declared(name string) bool {
	for _, n := range d.names {
		if n == name {
			return true
		}
	}
	return false
}

// Dep returns the declared dependency under name, asserted to T. All
// dependencies are ready before the owning factory runs, so Dep never blocks.
func Dep[T any](d Deps, name string) (T, error) {
	var zero T
	if !d.declared(name) {
		return zero, &UndeclaredDependencyError{Service: d.owner, Dependency: name}
	}
	inst, ok := d.container.lifecycle.readyInstance(name)
	if !ok {
		return zero, &NotFoundError{Name: name}
	}
	t, ok := inst.(T)
	if !ok {
		return zero, &TypeMismatchError{Name: name, Expected: typeName[T](), Got: typeNameOf(inst)}
	}
	return t, nil
}

// MustDep is like Dep but panics on error. The panic is contained by the
// lifecycle manager and surfaces to callers as a ConstructionError, so it is
// safe to use inside factories.
func MustDep[T any](d Deps, name string) T {
	t, err := Dep[T](d, name)
	if err != nil {
		panic(err)
	}
	return t
}
