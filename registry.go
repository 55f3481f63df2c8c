package cascade

import "sync"

// registry is the static bookkeeping half of the container: descriptors by
// name, plus a per-stage index preserving registration order. It is pure
// lookup and never fails beyond an absent return.
type registry struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
	order       []string
	stages      map[Stage][]string
}

func newRegistry() *registry {
	return &registry{
		descriptors: make(map[string]*Descriptor),
		stages:      make(map[Stage][]string),
	}
}

// register inserts or replaces the descriptor under its name. A replacement
// keeps the name's original registration position but moves it to the new
// descriptor's stage index.
func (r *registry) register(d *Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.descriptors[d.Name]; ok {
		r.stages[prev.Stage] = removeName(r.stages[prev.Stage], d.Name)
	} else {
		r.order = append(r.order, d.Name)
	}

	r.descriptors[d.Name] = d
	r.stages[d.Stage] = append(r.stages[d.Stage], d.Name)
}

func (r *registry) unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.descriptors[name]
	if !ok {
		return
	}
	delete(r.descriptors, name)
	r.order = removeName(r.order, name)
	r.stages[d.Stage] = removeName(r.stages[d.Stage], name)
}

func (r *registry) descriptor(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

// byStage returns the names registered under stage, in registration order.
func (r *registry) byStage(stage Stage) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.stages[stage]))
	copy(names, r.stages[stage])
	return names
}

// names returns every registered name, in registration order.
func (r *registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

func removeName(names []string, name string) []string {
	for i, n := range names {
		if n == name {
			return append(names[:i], names[i+1:]...)
		}
	}
	return names
}
