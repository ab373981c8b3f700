package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	SessionID() string
	TaskID() string
}

// Topic constants
const (
	TopicSession = "session"
	TopicTask    = "task"
	TopicGraph   = "graph"
)

// Event type constants
const (
	EventTypeSessionStarted   = "session.started"
	EventTypePlanReady        = "session.plan_ready"
	EventTypeSessionCompleted = "session.completed"
	EventTypeTaskStarted      = "task.started"
	EventTypeTaskRetrying     = "task.retrying"
	EventTypeTaskCompleted    = "task.completed"
	EventTypeTaskFailed       = "task.failed"
	EventTypeTaskBlocked      = "task.blocked"
	EventTypeGraphProgress    = "graph.progress"
	EventTypeGraphDeadlock    = "graph.deadlock"
)

// Publisher is the producer side of the bus.
type Publisher interface {
	Publish(topic string, event Event)
}

// Publish forwards to p unless it is nil.
func Publish(p Publisher, topic string, event Event) {
	if p != nil {
		p.Publish(topic, event)
	}
}

// SessionStartedEvent is published once an objective has been accepted.
type SessionStartedEvent struct {
	Session   string
	Objective string
	Timestamp time.Time
}

func (e SessionStartedEvent) EventType() string { return EventTypeSessionStarted }
func (e SessionStartedEvent) SessionID() string { return e.Session }
func (e SessionStartedEvent) TaskID() string    { return "" }

// PlannedTask describes one task of a parsed plan.
type PlannedTask struct {
	ID           string
	Title        string
	Role         string
	Priority     string
	Dependencies []string
}

// PlanReadyEvent is published when the plan has been parsed into tasks.
type PlanReadyEvent struct {
	Session   string
	Tasks     []PlannedTask
	Fallback  bool // True when the plan could not be decoded
	Timestamp time.Time
}

func (e PlanReadyEvent) EventType() string { return EventTypePlanReady }
func (e PlanReadyEvent) SessionID() string { return e.Session }
func (e PlanReadyEvent) TaskID() string    { return "" }

// TaskStartedEvent is published before each provider invocation of a task.
type TaskStartedEvent struct {
	Session   string
	ID        string
	Title     string
	Role      string
	Attempt   int
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) SessionID() string { return e.Session }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskRetryingEvent is published when a failed attempt will be retried.
type TaskRetryingEvent struct {
	Session   string
	ID        string
	Role      string
	Attempt   int // The attempt that failed
	Wait      time.Duration
	Err       string
	Timestamp time.Time
}

func (e TaskRetryingEvent) EventType() string { return EventTypeTaskRetrying }
func (e TaskRetryingEvent) SessionID() string { return e.Session }
func (e TaskRetryingEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task completes successfully.
type TaskCompletedEvent struct {
	Session   string
	ID        string
	Role      string
	Result    string
	Attempts  int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) SessionID() string { return e.Session }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task fails for good.
type TaskFailedEvent struct {
	Session   string
	ID        string
	Role      string
	Err       string
	Attempts  int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) SessionID() string { return e.Session }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskBlockedEvent is published when a task can never run because a dependency failed.
type TaskBlockedEvent struct {
	Session   string
	ID        string
	BlockedBy string
	Timestamp time.Time
}

func (e TaskBlockedEvent) EventType() string { return EventTypeTaskBlocked }
func (e TaskBlockedEvent) SessionID() string { return e.Session }
func (e TaskBlockedEvent) TaskID() string    { return e.ID }

// GraphProgressEvent is published after every scheduling round.
type GraphProgressEvent struct {
	Session   string
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
	Blocked   int
	Timestamp time.Time
}

func (e GraphProgressEvent) EventType() string { return EventTypeGraphProgress }
func (e GraphProgressEvent) SessionID() string { return e.Session }
func (e GraphProgressEvent) TaskID() string    { return "" }

// DeadlockEvent is published when no pending task can become ready.
type DeadlockEvent struct {
	Session   string
	Stalled   []string
	Timestamp time.Time
}

func (e DeadlockEvent) EventType() string { return EventTypeGraphDeadlock }
func (e DeadlockEvent) SessionID() string { return e.Session }
func (e DeadlockEvent) TaskID() string    { return "" }

// SessionCompletedEvent is published after synthesis, successful or not.
type SessionCompletedEvent struct {
	Session     string
	Deliverable string
	Completed   int
	Total       int
	Deadlocked  bool
	Err         string
	Duration    time.Duration
	Timestamp   time.Time
}

func (e SessionCompletedEvent) EventType() string { return EventTypeSessionCompleted }
func (e SessionCompletedEvent) SessionID() string { return e.Session }
func (e SessionCompletedEvent) TaskID() string    { return "" }
