package scheduler

import (
	"strings"
	"time"

	"github.com/aristath/conductor/internal/agent"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"     // Waiting for dependencies
	TaskInProgress TaskStatus = "in_progress" // Provider invocation underway
	TaskCompleted  TaskStatus = "completed"   // Finished successfully
	TaskFailed     TaskStatus = "failed"      // Finished with error
	TaskBlocked    TaskStatus = "blocked"     // A dependency failed; never runs
)

// Finished reports whether the status is terminal.
func (s TaskStatus) Finished() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskBlocked
}

// Priority is advisory; it only affects ordering when priority ordering is enabled.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// ParsePriority maps free text to a Priority. Unknown values report false.
func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return p, true
	}
	return PriorityMedium, false
}

// Rank orders priorities, lowest rank first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// FailurePolicy determines how a task's failure affects dependents.
type FailurePolicy string

const (
	FailBlock    FailurePolicy = "block"    // Dependents of a failed task become blocked
	FailContinue FailurePolicy = "continue" // Failed tasks still unlock their dependents
)

// Task is a unit of delegated work in a session's graph.
type Task struct {
	ID           string     // task-<n>, unique within a session
	Title        string     // Human-readable name
	Description  string     // Instruction handed to the provider
	AssignedTo   agent.Role // Registry key of the provider that runs it
	Priority     Priority
	Dependencies []string // Task IDs this task depends on
	Status       TaskStatus
	Result       string // Provider output (populated after completion)
	Err          string // Last failure, if any
	Attempts     int    // Provider invocations made so far
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	cp := *t
	if t.Dependencies != nil {
		cp.Dependencies = append([]string(nil), t.Dependencies...)
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

// DependsOn reports whether id is one of the task's declared dependencies.
func (t *Task) DependsOn(id string) bool {
	for _, dep := range t.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}
