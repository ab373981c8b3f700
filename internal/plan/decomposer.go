package plan

import (
	"context"
	"fmt"

	"github.com/aristath/conductor/internal/agent"
)

// Decomposer produces a raw plan for a request.
type Decomposer interface {
	Decompose(ctx context.Context, req Request) (string, error)
}

// DecomposerFunc adapts a function to Decomposer.
type DecomposerFunc func(ctx context.Context, req Request) (string, error)

func (f DecomposerFunc) Decompose(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// AgentDecomposer asks an agent, normally the coordinator, for the plan.
// Every request starts a fresh conversation.
type AgentDecomposer struct {
	agent *agent.Agent
}

// NewAgentDecomposer creates a decomposer backed by a.
func NewAgentDecomposer(a *agent.Agent) *AgentDecomposer {
	return &AgentDecomposer{agent: a}
}

func (d *AgentDecomposer) Decompose(ctx context.Context, req Request) (string, error) {
	resp, err := d.agent.Invoke(ctx, BuildPrompt(req), nil)
	if err != nil {
		return "", fmt.Errorf("decompose with %s: %w", d.agent.Role(), err)
	}
	return resp.Content, nil
}
