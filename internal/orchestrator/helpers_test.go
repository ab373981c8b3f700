package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aristath/conductor/internal/agent"
	"github.com/aristath/conductor/internal/backend"
	"github.com/aristath/conductor/internal/events"
	"github.com/aristath/conductor/internal/scheduler"
)

const twoTaskPlan = "Here is the plan:\n```json\n" + `{
  "analysis": "design first, then build",
  "tasks": [
    {"title": "Design", "description": "Design the limiter", "assignTo": "architect", "priority": "high", "dependencies": []},
    {"title": "Build", "description": "Build the limiter", "assignTo": "coder", "dependencies": ["task-1"]}
  ],
  "workflow": "sequential"
}` + "\n```"

// fakeBackend answers through reply and records every message.
type fakeBackend struct {
	mu    sync.Mutex
	calls []backend.Message
	reply func(msg backend.Message) (string, error)
}

func (b *fakeBackend) Send(ctx context.Context, msg backend.Message) (backend.Response, error) {
	b.mu.Lock()
	b.calls = append(b.calls, msg)
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return backend.Response{}, err
	}
	content := "done: " + msg.Content
	if b.reply != nil {
		var err error
		if content, err = b.reply(msg); err != nil {
			return backend.Response{}, err
		}
	}
	return msg.Reply(content, backend.Usage{InputTokens: 1, OutputTokens: 1}), nil
}

func (b *fakeBackend) Close() error { return nil }

func (b *fakeBackend) Calls() []backend.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.Message(nil), b.calls...)
}

// coordinatorBackend plans with planText and synthesizes with synth.
func coordinatorBackend(planText string, synth func() (string, error)) *fakeBackend {
	return &fakeBackend{reply: func(msg backend.Message) (string, error) {
		if msg.System == SynthesisSystemPrompt {
			if synth == nil {
				return "final deliverable", nil
			}
			return synth()
		}
		if strings.HasPrefix(msg.Content, "Analyze this objective") {
			return planText, nil
		}
		return "coordinator: " + msg.Content, nil
	}}
}

func newRegistry(t *testing.T, backends map[agent.Role]backend.Backend) *agent.Registry {
	t.Helper()
	var agents []*agent.Agent
	for role, b := range backends {
		agents = append(agents, agent.New(role, b, agent.WithSystemPrompt("you are "+string(role))))
	}
	reg, err := agent.NewRegistry(agents...)
	require.NoError(t, err)
	return reg
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Executor.Retry.InitialInterval = time.Millisecond
	cfg.Executor.Retry.MaxInterval = 2 * time.Millisecond
	cfg.Executor.Retry.RandomizationFactor = 0
	return cfg
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ string, ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.EventType())
	}
	return out
}

func (p *recordingPublisher) Find(eventType string) events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ev := range p.events {
		if ev.EventType() == eventType {
			return ev
		}
	}
	return nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
	finished int
}

func (m *recordingMetrics) TaskFinished(string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished++
}
func (m *recordingMetrics) AttemptFinished(string, time.Duration, error) {}
func (m *recordingMetrics) TokensUsed(string, int64, int64)              {}
func (m *recordingMetrics) Deadlock()                                    {}
func (m *recordingMetrics) BreakerStateChanged(string, string)           {}

func (m *recordingMetrics) SessionFinished(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func taskByTitle(s *scheduler.Session, title string) *scheduler.Task {
	for _, t := range s.Tasks {
		if t.Title == title {
			return t
		}
	}
	return nil
}
