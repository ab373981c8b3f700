package plan

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aristath/conductor/internal/agent"
	"github.com/aristath/conductor/internal/scheduler"
)

// FallbackTitle is the title of the single task used when no plan can be read.
const FallbackTitle = "Complete objective"

type parseOptions struct {
	defaultRole agent.Role
	logger      *zap.Logger
	now         func() time.Time
}

// ParseOption configures Parse.
type ParseOption func(*parseOptions)

// WithDefaultRole sets the role for tasks without an assignee and for the
// fallback task. Default agent.RoleCoder.
func WithDefaultRole(role agent.Role) ParseOption {
	return func(o *parseOptions) { o.defaultRole = role }
}

// WithLogger sets the logger for plan warnings.
func WithLogger(l *zap.Logger) ParseOption {
	return func(o *parseOptions) { o.logger = l }
}

// WithClock sets the source of CreatedAt stamps.
func WithClock(now func() time.Time) ParseOption {
	return func(o *parseOptions) { o.now = now }
}

// Result is the outcome of ParsePlan.
type Result struct {
	Tasks    []*scheduler.Task
	Plan     *Plan // Nil when the fallback was used
	Fallback bool
}

// Parse turns a planner answer into pending tasks. It never fails: an
// unreadable or empty plan yields the single fallback task.
func Parse(raw, objective string, opts ...ParseOption) []*scheduler.Task {
	return ParsePlan(raw, objective, opts...).Tasks
}

// ParsePlan is Parse, also reporting the decoded plan.
func ParsePlan(raw, objective string, opts ...ParseOption) Result {
	o := parseOptions{defaultRole: agent.RoleCoder, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	logger := o.logger.With(zap.String("component", "plan"))

	p, err := Decode(raw)
	if err != nil {
		logger.Warn("could not decode task plan, using fallback task", zap.Error(err))
		return Result{Tasks: Fallback(objective, o.defaultRole, o.now()), Fallback: true}
	}
	if len(p.Tasks) == 0 {
		logger.Warn("task plan has no tasks, using fallback task")
		return Result{Tasks: Fallback(objective, o.defaultRole, o.now()), Plan: p, Fallback: true}
	}

	tasks := buildTasks(p.Tasks, o, logger)

	dag, err := scheduler.NewDAGFromTasks(tasks)
	if err == nil {
		_, err = dag.Validate()
	}
	if err != nil {
		logger.Warn("task plan will not run to completion as written", zap.Error(err))
	}
	if p.Analysis != "" {
		logger.Debug("plan analysis", zap.String("analysis", p.Analysis), zap.String("workflow", p.Workflow))
	}

	return Result{Tasks: tasks, Plan: p}
}

// Fallback returns the single task that stands in for an unusable plan.
func Fallback(objective string, role agent.Role, now time.Time) []*scheduler.Task {
	return []*scheduler.Task{{
		ID:           "task-1",
		Title:        FallbackTitle,
		Description:  objective,
		AssignedTo:   role,
		Priority:     scheduler.PriorityHigh,
		Dependencies: []string{},
		Status:       scheduler.TaskPending,
		CreatedAt:    now,
	}}
}

func buildTasks(specs []TaskSpec, o parseOptions, logger *zap.Logger) []*scheduler.Task {
	created := o.now()
	tasks := make([]*scheduler.Task, len(specs))
	ids := make(map[string]bool, len(specs))
	byTitle := make(map[string]string, len(specs))

	for i, spec := range specs {
		id := fmt.Sprintf("task-%d", i+1)

		title := strings.TrimSpace(spec.Title)
		if title == "" {
			title = fmt.Sprintf("Task %d", i+1)
		}
		description := strings.TrimSpace(spec.Description)
		if description == "" {
			description = title
		}

		role := agent.NormalizeRole(spec.AssignTo)
		if role == "" {
			role = o.defaultRole
		}

		priority, ok := scheduler.ParsePriority(spec.Priority)
		if !ok && strings.TrimSpace(spec.Priority) != "" {
			logger.Warn("unknown task priority, using medium",
				zap.String("task", id),
				zap.String("priority", spec.Priority))
		}

		tasks[i] = &scheduler.Task{
			ID:          id,
			Title:       title,
			Description: description,
			AssignedTo:  role,
			Priority:    priority,
			Status:      scheduler.TaskPending,
			CreatedAt:   created,
		}
		ids[id] = true
		if key := strings.ToLower(title); byTitle[key] == "" {
			byTitle[key] = id
		}
	}

	for i, spec := range specs {
		tasks[i].Dependencies = resolveDependencies(tasks[i].ID, spec.Dependencies, ids, byTitle, logger)
	}
	return tasks
}

func resolveDependencies(self string, deps []string, ids map[string]bool, byTitle map[string]string, logger *zap.Logger) []string {
	resolved := make([]string, 0, len(deps))
	seen := make(map[string]bool, len(deps))

	for _, dep := range deps {
		dep = strings.TrimSpace(dep)
		if dep == "" {
			continue
		}

		id := dep
		switch lower := strings.ToLower(dep); {
		case ids[dep]:
		case ids[lower]:
			id = lower
		case byTitle[lower] != "":
			id = byTitle[lower]
		case isDigits(dep):
			id = "task-" + dep
		}
		if !ids[id] {
			logger.Warn("task depends on an unknown task",
				zap.String("task", self),
				zap.String("dependency", dep))
		}

		if id == self {
			logger.Warn("dropping self dependency", zap.String("task", self))
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		resolved = append(resolved, id)
	}
	return resolved
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
