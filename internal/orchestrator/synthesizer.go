package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aristath/conductor/internal/agent"
	"github.com/aristath/conductor/internal/scheduler"
)

// SynthesisSystemPrompt replaces the coordinator's system prompt while it
// merges results.
const SynthesisSystemPrompt = "You are synthesizing results from multiple AI agents. Create a coherent summary."

// RenderResults formats completed tasks, in order, as markdown sections.
func RenderResults(tasks []*scheduler.Task) string {
	sections := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if t.Status != scheduler.TaskCompleted {
			continue
		}
		sections = append(sections, fmt.Sprintf("### %s\n%s", t.Title, t.Result))
	}
	return strings.Join(sections, "\n\n")
}

// SynthesisPrompt wraps rendered results in the synthesis instruction.
func SynthesisPrompt(results string) string {
	return "Synthesize these task results into a coherent final deliverable:\n\n" +
		results +
		"\n\nProvide a summary and any final recommendations."
}

// Synthesizer merges a session's results into one deliverable.
type Synthesizer struct {
	agent  *agent.Agent
	logger *zap.Logger
}

// NewSynthesizer creates a synthesizer that asks a.
func NewSynthesizer(a *agent.Agent, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{agent: a, logger: logger.With(zap.String("component", "synthesizer"))}
}

// Synthesize makes one call with the completed results of session. It
// runs even when nothing completed and leaves the session status alone.
func (s *Synthesizer) Synthesize(ctx context.Context, session *scheduler.Session) (string, error) {
	completed := session.CompletedTasks()
	s.logger.Info("synthesizing results",
		zap.String("session", session.ID),
		zap.Int("completed", len(completed)),
		zap.Int("total", len(session.Tasks)))

	resp, err := s.agent.Invoke(ctx, SynthesisPrompt(RenderResults(completed)), nil, agent.WithSystem(SynthesisSystemPrompt))
	if err != nil {
		return "", fmt.Errorf("synthesize with %s: %w", s.agent.Role(), err)
	}
	return resp.Content, nil
}
