package orch

import "sync"

// lockRegistry serializes validate-then-commit per project. Reads and the
// external model call never take these locks, so a slow provider cannot
// block previews or other projects.
type lockRegistry struct {
	locks sync.Map // project ID -> *sync.Mutex
}

// acquire locks the project's mutex and returns its release func.
func (r *lockRegistry) acquire(projectID string) func() {
	mu, _ := r.locks.LoadOrStore(projectID, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}
