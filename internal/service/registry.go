package service

import "sync"

// Registry tracks which jobs this instance is actively driving. It only
// guards against double-scheduling within one process; the Job Store status
// is the coarse cross-instance lock.
type Registry struct {
	mu     sync.Mutex
	active map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{active: make(map[string]bool)}
}

// TryAdd claims the job for this instance. Returns false when a driver loop
// already owns it.
func (r *Registry) TryAdd(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[jobID] {
		return false
	}
	r.active[jobID] = true
	return true
}

// Contains reports whether the job is still claimed. The driver loop checks
// this at every chunk boundary; eviction is how cancel and pause stop it.
func (r *Registry) Contains(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[jobID]
}

// Remove releases the claim. Safe to call for an absent job.
func (r *Registry) Remove(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, jobID)
}
