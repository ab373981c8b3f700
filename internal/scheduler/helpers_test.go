package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aristath/conductor/internal/agent"
	"github.com/aristath/conductor/internal/backend"
	"github.com/aristath/conductor/internal/events"
)

// scriptedBackend answers every message through reply and records calls.
type scriptedBackend struct {
	mu    sync.Mutex
	calls []backend.Message
	delay time.Duration
	reply func(msg backend.Message, call int) (string, error)
}

func (b *scriptedBackend) Send(ctx context.Context, msg backend.Message) (backend.Response, error) {
	b.mu.Lock()
	b.calls = append(b.calls, msg)
	n := len(b.calls)
	b.mu.Unlock()

	if b.delay > 0 {
		select {
		case <-ctx.Done():
			return backend.Response{}, ctx.Err()
		case <-time.After(b.delay):
		}
	}

	content := "done: " + msg.Content
	if b.reply != nil {
		var err error
		content, err = b.reply(msg, n)
		if err != nil {
			return backend.Response{}, err
		}
	}
	return msg.Reply(content, backend.Usage{InputTokens: 3, OutputTokens: 2}), nil
}

func (b *scriptedBackend) Close() error { return nil }

func (b *scriptedBackend) Calls() []backend.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.Message(nil), b.calls...)
}

func newTestRegistry(t *testing.T, backends map[agent.Role]backend.Backend) *agent.Registry {
	t.Helper()
	var agents []*agent.Agent
	for role, b := range backends {
		agents = append(agents, agent.New(role, b))
	}
	reg, err := agent.NewRegistry(agents...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

// fastExecutorConfig retries without meaningful waits.
func fastExecutorConfig() ExecutorConfig {
	cfg := DefaultExecutorConfig()
	cfg.Retry.InitialInterval = time.Millisecond
	cfg.Retry.MaxInterval = 2 * time.Millisecond
	cfg.Retry.RandomizationFactor = 0
	return cfg
}

func newTask(id string, role agent.Role, deps ...string) *Task {
	return &Task{
		ID:           id,
		Title:        "Title " + id,
		Description:  "Do " + id,
		AssignedTo:   role,
		Priority:     PriorityMedium,
		Dependencies: deps,
		Status:       TaskPending,
		CreatedAt:    time.Now(),
	}
}

func newTestSession(tasks ...*Task) *Session {
	s := NewSession("objective", "")
	s.Tasks = tasks
	return s
}

// recordingPublisher keeps every published event.
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

// recordingMetrics counts calls per kind.
type recordingMetrics struct {
	mu        sync.Mutex
	finished  map[string]int
	attempts  int
	deadlocks int
	tokens    int64
	breakers  []string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{finished: make(map[string]int)}
}

func (m *recordingMetrics) TaskFinished(role, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[fmt.Sprintf("%s/%s", role, status)]++
}

func (m *recordingMetrics) AttemptFinished(string, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
}

func (m *recordingMetrics) TokensUsed(_ string, in, out int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens += in + out
}

func (m *recordingMetrics) Deadlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadlocks++
}

func (m *recordingMetrics) BreakerStateChanged(role, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakers = append(m.breakers, role+":"+state)
}
