package scheduler

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/conductor/internal/agent"
	"github.com/aristath/conductor/internal/backend"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
)

// MessageKind classifies an AgentMessage.
type MessageKind string

const (
	MessageTask     MessageKind = "task"
	MessageResult   MessageKind = "result"
	MessageQuery    MessageKind = "query"
	MessageFeedback MessageKind = "feedback"
)

// AgentMessage is a record of communication between roles.
type AgentMessage struct {
	ID        string
	From      agent.Role
	To        agent.Role // A role or agent.RoleBroadcast
	Kind      MessageKind
	Content   string
	Metadata  map[string]string
	Timestamp time.Time
}

// Session is one orchestration run. Task state is mutated through the DAG
// built by the scheduler; other fields are guarded by the session mutex.
type Session struct {
	mu sync.Mutex

	ID            string
	Objective     string
	Context       string
	Tasks         []*Task // Declaration order
	Messages      []AgentMessage
	Status        SessionStatus
	StartedAt     time.Time
	CompletedAt   *time.Time
	Deliverable   string
	Deadlocked    bool
	Conversations map[agent.Role]backend.Conversation
}

// NewSession creates an active session with a fresh id.
func NewSession(objective, context string) *Session {
	return &Session{
		ID:            uuid.NewString(),
		Objective:     objective,
		Context:       context,
		Status:        SessionActive,
		StartedAt:     time.Now(),
		Conversations: make(map[agent.Role]backend.Conversation),
	}
}

// AppendMessage records m, filling in ID and Timestamp when missing.
func (s *Session) AppendMessage(m AgentMessage) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, m)
}

// MessagesSnapshot returns a copy of the message log.
func (s *Session) MessagesSnapshot() []AgentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AgentMessage(nil), s.Messages...)
}

// Complete marks the session completed with deliverable. Only the first call
// has any effect; it reports whether this call completed the session.
func (s *Session) Complete(deliverable string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status == SessionCompleted {
		return false
	}
	now := time.Now()
	s.Status = SessionCompleted
	s.CompletedAt = &now
	s.Deliverable = deliverable
	return true
}

// IsCompleted reports whether Complete has been called.
func (s *Session) IsCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status == SessionCompleted
}

// Duration is the wall time from start to completion, or to now while active.
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CompletedAt != nil {
		return s.CompletedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}

// Task returns the task with id.
func (s *Session) Task(id string) (*Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// CompletedTasks returns completed tasks in declaration order.
func (s *Session) CompletedTasks() []*Task {
	var out []*Task
	for _, t := range s.Tasks {
		if t.Status == TaskCompleted {
			out = append(out, t)
		}
	}
	return out
}

// Counts tallies tasks per status.
func (s *Session) Counts() map[TaskStatus]int {
	counts := make(map[TaskStatus]int)
	for _, t := range s.Tasks {
		counts[t.Status]++
	}
	return counts
}

func (s *Session) setConversations(c map[agent.Role]backend.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Conversations = c
}

func (s *Session) setDeadlocked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deadlocked = true
}

// ConversationsSnapshot returns a copy of the per-role conversation map.
func (s *Session) ConversationsSnapshot() map[agent.Role]backend.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[agent.Role]backend.Conversation, len(s.Conversations))
	for role, conv := range s.Conversations {
		out[role] = conv
	}
	return out
}
