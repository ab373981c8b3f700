package agent

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrDuplicateRole is returned when two agents claim the same role.
	ErrDuplicateRole = errors.New("duplicate agent role")

	// ErrUnknownRole is returned when no agent serves a role.
	ErrUnknownRole = errors.New("unknown agent role")
)

// Registry maps roles to agents. It is immutable after construction and
// safe for concurrent readers.
type Registry struct {
	agents map[Role]*Agent
}

// NewRegistry builds a registry from agents, rejecting duplicate roles.
func NewRegistry(agents ...*Agent) (*Registry, error) {
	r := &Registry{agents: make(map[Role]*Agent, len(agents))}
	for _, a := range agents {
		if a == nil {
			return nil, fmt.Errorf("nil agent")
		}
		if _, exists := r.agents[a.role]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRole, a.role)
		}
		r.agents[a.role] = a
	}
	return r, nil
}

// Get returns the agent serving role.
func (r *Registry) Get(role Role) (*Agent, bool) {
	a, ok := r.agents[role]
	return a, ok
}

// MustGet returns the agent serving role or an ErrUnknownRole error.
func (r *Registry) MustGet(role Role) (*Agent, error) {
	a, ok := r.agents[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return a, nil
}

// Roles returns the registered roles, sorted.
func (r *Registry) Roles() []Role {
	roles := make([]Role, 0, len(r.agents))
	for role := range r.agents {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	return len(r.agents)
}

// Close closes every agent's backend and joins their errors.
func (r *Registry) Close() error {
	var errs []error
	for _, role := range r.Roles() {
		if err := r.agents[role].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", role, err))
		}
	}
	return errors.Join(errs...)
}
