// Package plan turns an objective into a task graph: it builds the planning
// prompt, asks a decomposer for a plan and parses the answer into tasks.
package plan

import (
	"fmt"
	"strings"

	"github.com/aristath/conductor/internal/agent"
)

// ValidationError reports an unusable request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrEmptyObjective is returned for a blank objective.
var ErrEmptyObjective = &ValidationError{Field: "objective", Reason: "must not be empty"}

// Request is an objective to orchestrate.
type Request struct {
	Objective      string
	Context        string
	Constraints    []string
	PreferredRoles []agent.Role
}

// Validate trims the request in place and checks it.
func (r *Request) Validate() error {
	r.Objective = strings.TrimSpace(r.Objective)
	r.Context = strings.TrimSpace(r.Context)
	if r.Objective == "" {
		return ErrEmptyObjective
	}

	var constraints []string
	for _, c := range r.Constraints {
		if c = strings.TrimSpace(c); c != "" {
			constraints = append(constraints, c)
		}
	}
	r.Constraints = constraints

	var roles []agent.Role
	for _, role := range r.PreferredRoles {
		role = agent.NormalizeRole(string(role))
		if !role.IsKnown() {
			return &ValidationError{Field: "preferred roles", Reason: fmt.Sprintf("unknown role %q", role)}
		}
		roles = append(roles, role)
	}
	r.PreferredRoles = roles
	return nil
}
