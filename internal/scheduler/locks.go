package scheduler

import (
	"sync"

	"github.com/aristath/conductor/internal/agent"
)

// RoleLocks serializes invocations per role. Each role gets its own mutex,
// so different roles run concurrently while calls to the same role queue up
// behind its conversation buffer.
type RoleLocks struct {
	mu    sync.Mutex                 // Guards the locks map itself
	locks map[agent.Role]*sync.Mutex // Per-role mutexes
}

// NewRoleLocks creates an empty lock set.
func NewRoleLocks() *RoleLocks {
	return &RoleLocks{
		locks: make(map[agent.Role]*sync.Mutex),
	}
}

// Lock acquires the mutex for role, creating it on first use.
func (r *RoleLocks) Lock(role agent.Role) {
	r.mu.Lock()
	roleLock, exists := r.locks[role]
	if !exists {
		roleLock = &sync.Mutex{}
		r.locks[role] = roleLock
	}
	r.mu.Unlock()

	// Acquire outside the map lock so other roles are not held up
	roleLock.Lock()
}

// Unlock releases the mutex for role.
func (r *RoleLocks) Unlock(role agent.Role) {
	r.mu.Lock()
	roleLock, exists := r.locks[role]
	r.mu.Unlock()

	if exists {
		roleLock.Unlock()
	}
}
