// Package registry is the in-memory directory of worker states: the sole
// owner of live core.WorkerState values. All other components receive
// either a read-only copy or the filtered subset returned by Available.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/kart-io/predictive-scheduler/core"
)

// Registry indexes workers by id with O(1) lookup. The heartbeat
// subscriber and the reaper are its expected single writers; every other
// caller reads a consistent snapshot per query.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*core.WorkerState
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		workers: make(map[string]*core.WorkerState),
	}
}

// Register adds a worker or overwrites an existing entry with the same id.
func (r *Registry) Register(w *core.WorkerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w.Load = core.ClampLoad(w.Load)
	r.workers[w.ID] = w
}

// Unregister removes a worker unconditionally.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, id)
}

// Get returns a copy of the worker state, or false if unknown.
func (r *Registry) Get(id string) (core.WorkerState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	if !ok {
		return core.WorkerState{}, false
	}
	return *w, true
}

// Touch updates last-heartbeat, load, and active-tasks for a worker. It is
// a no-op if the worker is unknown, matching the heartbeat subscriber's
// "locate the worker; if unknown, ignore" rule.
func (r *Registry) Touch(id string, at time.Time, load float64, activeTasks int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return false
	}
	w.LastHeartbeat = at
	w.Load = core.ClampLoad(load)
	w.ActiveTasks = activeTasks
	return true
}

// SetStatus changes a worker's status. It is a no-op if the worker is
// unknown.
func (r *Registry) SetStatus(id string, status core.WorkerStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return false
	}
	w.Status = status
	return true
}

// Available returns the eligible-worker subset: not offline or draining,
// within the heartbeat timeout, below max-concurrency, and a superset of
// requiredCapabilities. The result is sorted by id for deterministic
// tie-breaking downstream.
func (r *Registry) Available(now time.Time, heartbeatTimeout time.Duration, requiredCapabilities []string) []core.WorkerState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]core.WorkerState, 0, len(r.workers))
	for _, w := range r.workers {
		if !w.Eligible() {
			continue
		}
		if now.Sub(w.LastHeartbeat) >= heartbeatTimeout {
			continue
		}
		if w.ActiveTasks >= w.MaxConcurrency {
			continue
		}
		if !w.HasCapabilities(requiredCapabilities) {
			continue
		}
		result = append(result, *w)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Reap marks every worker whose last heartbeat is at least `timeout` old
// as offline and returns their ids. It never deletes; deletion is the
// heartbeat subscriber's removed-timeout responsibility or an explicit
// Unregister.
func (r *Registry) Reap(now time.Time, timeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reaped []string
	for id, w := range r.workers {
		if w.Status == core.WorkerOffline {
			continue
		}
		if now.Sub(w.LastHeartbeat) >= timeout {
			w.Status = core.WorkerOffline
			reaped = append(reaped, id)
		}
	}
	sort.Strings(reaped)
	return reaped
}

// Len returns the number of registered workers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// All returns a copy of every registered worker, sorted by id.
func (r *Registry) All() []core.WorkerState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]core.WorkerState, 0, len(r.workers))
	for _, w := range r.workers {
		result = append(result, *w)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
