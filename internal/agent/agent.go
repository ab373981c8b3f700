// Package agent binds roles to capability providers.
package agent

import (
	"context"
	"strings"

	"github.com/aristath/conductor/internal/backend"
)

// Role names a capability. Roles are compared after normalization.
type Role string

const (
	RoleConductor  Role = "conductor"
	RoleCoder      Role = "coder"
	RoleReviewer   Role = "reviewer"
	RoleArchitect  Role = "architect"
	RoleResearcher Role = "researcher"

	// RoleBroadcast addresses every participant of a session.
	RoleBroadcast Role = "broadcast"
)

// KnownRoles lists the roles a plan may assign work to.
func KnownRoles() []Role {
	return []Role{RoleConductor, RoleCoder, RoleReviewer, RoleArchitect, RoleResearcher}
}

// NormalizeRole trims and lowercases s.
func NormalizeRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

// IsKnown reports whether r is one of KnownRoles.
func (r Role) IsKnown() bool {
	for _, k := range KnownRoles() {
		if r == k {
			return true
		}
	}
	return false
}

// Agent is a role bound to a backend and a system prompt.
type Agent struct {
	role         Role
	name         string
	systemPrompt string
	backend      backend.Backend
}

// Option configures an Agent.
type Option func(*Agent)

// WithName sets a display name.
func WithName(name string) Option {
	return func(a *Agent) { a.name = name }
}

// WithSystemPrompt sets the default system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) { a.systemPrompt = prompt }
}

// New creates an agent for role backed by b.
func New(role Role, b backend.Backend, opts ...Option) *Agent {
	a := &Agent{role: role, name: string(role), backend: b}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) Role() Role           { return a.role }
func (a *Agent) Name() string         { return a.name }
func (a *Agent) SystemPrompt() string { return a.systemPrompt }

// InvokeOption adjusts a single invocation.
type InvokeOption func(*backend.Message)

// WithSystem overrides the agent's system prompt for one call.
func WithSystem(prompt string) InvokeOption {
	return func(m *backend.Message) { m.System = prompt }
}

// Invoke sends instruction with the given history. The returned response
// always carries the extended history; history itself is not modified.
func (a *Agent) Invoke(ctx context.Context, instruction string, history backend.Conversation, opts ...InvokeOption) (backend.Response, error) {
	msg := backend.Message{
		System:  a.systemPrompt,
		Content: instruction,
		History: history,
	}
	for _, opt := range opts {
		opt(&msg)
	}

	resp, err := a.backend.Send(ctx, msg)
	if err != nil {
		return backend.Response{History: history}, err
	}

	if resp.History == nil {
		resp.History = history.Append(backend.TurnUser, instruction).Append(backend.TurnAssistant, resp.Content)
	}
	return resp, nil
}

// Close releases the underlying backend.
func (a *Agent) Close() error {
	return a.backend.Close()
}
