package experiment

import (
	"sync"

	"gosplit/domain/core"
)

// Registry holds active and completed experiment records. It is the only state
// shared across experiments; insert, move and lookup are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	active    map[core.ExperimentID]*record
	completed map[core.ExperimentID]*record
	order     []core.ExperimentID
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		active:    make(map[core.ExperimentID]*record),
		completed: make(map[core.ExperimentID]*record),
	}
}

// insert adds a new active record
func (r *Registry) insert(rec *record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[rec.id] = rec
	r.order = append(r.order, rec.id)
}

// get looks in both maps. archived reports which one matched.
func (r *Registry) get(id core.ExperimentID) (rec *record, archived bool, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.active[id]; ok {
		return rec, false, true
	}
	if rec, ok := r.completed[id]; ok {
		return rec, true, true
	}
	return nil, false, false
}

// archive moves a record from active to completed in one step
func (r *Registry) archive(id core.ExperimentID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.active[id]
	if !ok {
		return false
	}
	delete(r.active, id)
	r.completed[id] = rec
	return true
}

// list returns records of one map in creation order
func (r *Registry) list(archived bool) []*record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.active
	if archived {
		src = r.completed
	}
	out := make([]*record, 0, len(src))
	for _, id := range r.order {
		if rec, ok := src[id]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// counts returns the number of active and completed records
func (r *Registry) counts() (active, completed int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active), len(r.completed)
}
