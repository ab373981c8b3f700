package plan

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/aristath/conductor/internal/agent"
	"github.com/aristath/conductor/internal/config"
	"github.com/aristath/conductor/internal/scheduler"
)

// ApplyWorkflows appends follow-up tasks for configured pipelines. A task
// whose role is a non-final step of a workflow, and which no task of the
// next step's role already depends on, gets a follow-up task for that role.
// Follow-ups are themselves subject to later steps, so a three-step
// workflow chains. Workflows are applied in name order.
func ApplyWorkflows(tasks []*scheduler.Task, workflows map[string]config.WorkflowConfig, logger *zap.Logger) []*scheduler.Task {
	if len(workflows) == 0 {
		return tasks
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "workflow"))

	names := make([]string, 0, len(workflows))
	for name := range workflows {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		steps := workflows[name].Steps
		if repeatsRole(steps) {
			logger.Warn("skipping workflow that repeats a role", zap.String("workflow", name))
			continue
		}
		// Appended tasks are visited too
		for i := 0; i < len(tasks); i++ {
			source := tasks[i]
			step := stepIndex(steps, source.AssignedTo)
			if step < 0 || step == len(steps)-1 {
				continue
			}

			next := agent.NormalizeRole(steps[step+1].Agent)
			if hasDependentWithRole(tasks, source.ID, next) {
				continue
			}

			followUp := &scheduler.Task{
				ID:           fmt.Sprintf("task-%d", len(tasks)+1),
				Title:        fmt.Sprintf("Follow-up (%s): %s", next, source.Title),
				Description:  fmt.Sprintf("Continue the %s workflow after %q. Work from its output, provided below.", name, source.Title),
				AssignedTo:   next,
				Priority:     source.Priority,
				Dependencies: []string{source.ID},
				Status:       scheduler.TaskPending,
				CreatedAt:    source.CreatedAt,
			}
			tasks = append(tasks, followUp)

			logger.Debug("workflow follow-up added",
				zap.String("workflow", name),
				zap.String("source", source.ID),
				zap.String("task", followUp.ID),
				zap.String("role", string(next)))
		}
	}
	return tasks
}

func stepIndex(steps []config.WorkflowStepConfig, role agent.Role) int {
	for i, step := range steps {
		if agent.NormalizeRole(step.Agent) == role {
			return i
		}
	}
	return -1
}

func repeatsRole(steps []config.WorkflowStepConfig) bool {
	seen := make(map[agent.Role]bool, len(steps))
	for _, step := range steps {
		role := agent.NormalizeRole(step.Agent)
		if seen[role] {
			return true
		}
		seen[role] = true
	}
	return false
}

func hasDependentWithRole(tasks []*scheduler.Task, id string, role agent.Role) bool {
	for _, t := range tasks {
		if t.AssignedTo == role && t.DependsOn(id) {
			return true
		}
	}
	return false
}
