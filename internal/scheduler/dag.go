package scheduler

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/toposort"
)

// DAG is the dependency graph of a session's tasks. All task state changes
// during a run go through its methods.
type DAG struct {
	mu         sync.RWMutex
	tasks      map[string]*Task    // All tasks indexed by ID
	order      []string            // Declaration order
	dependents map[string][]string // Maps taskID -> list of tasks that depend on it
}

// NewDAG creates an empty DAG.
func NewDAG() *DAG {
	return &DAG{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// NewDAGFromTasks builds a DAG over tasks, keeping their order. The DAG
// mutates the given task values in place.
func NewDAGFromTasks(tasks []*Task) (*DAG, error) {
	d := NewDAG()
	for _, t := range tasks {
		if err := d.AddTask(t); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// AddTask adds a task to the DAG. Returns error if task ID already exists.
func (d *DAG) AddTask(task *Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %q already exists", task.ID)
	}

	d.tasks[task.ID] = task
	d.order = append(d.order, task.ID)

	for _, depID := range task.Dependencies {
		d.dependents[depID] = append(d.dependents[depID], task.ID)
	}

	return nil
}

// Validate runs topological sort using gammazero/toposort.
// Returns ordered task IDs, or an error naming a missing dependency or a cycle.
func (d *DAG) Validate() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, taskID := range d.order {
		for _, depID := range d.tasks[taskID].Dependencies {
			if _, exists := d.tasks[depID]; !exists {
				return nil, fmt.Errorf("task %q depends on non-existent task %q", taskID, depID)
			}
		}
	}

	var edges []toposort.Edge
	for _, taskID := range d.order {
		task := d.tasks[taskID]
		if len(task.Dependencies) == 0 {
			// Edge from nil keeps isolated tasks in the output
			edges = append(edges, toposort.Edge{nil, taskID})
			continue
		}
		for _, depID := range task.Dependencies {
			edges = append(edges, toposort.Edge{depID, taskID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("DAG contains cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	if len(order) != len(d.tasks) {
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		var missing []string
		for _, taskID := range d.order {
			if !found[taskID] {
				missing = append(missing, taskID)
			}
		}
		return nil, fmt.Errorf("topological sort lost %d tasks: %s", len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}

// Ready returns pending tasks whose dependencies have all finished, in
// declaration order. Under FailBlock a dependency must have completed.
func (d *DAG) Ready(policy FailurePolicy) []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ready []*Task
	for _, taskID := range d.order {
		task := d.tasks[taskID]
		if task.Status != TaskPending {
			continue
		}

		satisfied := true
		for _, depID := range task.Dependencies {
			dep, exists := d.tasks[depID]
			if !exists || !isDependencySatisfied(dep, policy) {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, task.Clone())
		}
	}
	return ready
}

func isDependencySatisfied(dep *Task, policy FailurePolicy) bool {
	if policy == FailContinue {
		return dep.Status.Finished()
	}
	return dep.Status == TaskCompleted
}

// BlockedTask pairs a newly blocked task with the dependency that caused it.
type BlockedTask struct {
	ID        string
	BlockedBy string
}

// BlockUnreachable marks every pending task downstream of a failed or
// blocked task as blocked, walking the dependents edges breadth first.
// Returns the tasks blocked by this call.
func (d *DAG) BlockUnreachable() []BlockedTask {
	d.mu.Lock()
	defer d.mu.Unlock()

	var queue []string
	for _, taskID := range d.order {
		if status := d.tasks[taskID].Status; status == TaskFailed || status == TaskBlocked {
			queue = append(queue, taskID)
		}
	}

	var blocked []BlockedTask
	for len(queue) > 0 {
		depID := queue[0]
		queue = queue[1:]

		for _, taskID := range d.dependents[depID] {
			task := d.tasks[taskID]
			if task.Status != TaskPending {
				continue
			}
			task.Status = TaskBlocked
			task.Err = fmt.Sprintf("dependency %s did not complete", depID)
			blocked = append(blocked, BlockedTask{ID: taskID, BlockedBy: depID})
			queue = append(queue, taskID)
		}
	}
	return blocked
}

// MarkRunning moves a pending task to in progress and counts the attempt.
// Returns the attempt number.
func (d *DAG) MarkRunning(taskID string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return 0, fmt.Errorf("task %q not found", taskID)
	}
	if task.Status != TaskPending {
		return 0, fmt.Errorf("task %q is not pending (status: %s)", taskID, task.Status)
	}

	task.Status = TaskInProgress
	task.Attempts++
	return task.Attempts, nil
}

// MarkCompleted sets task status to TaskCompleted and stores result.
func (d *DAG) MarkCompleted(taskID string, result string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}

	now := time.Now()
	if now.Before(task.CreatedAt) {
		now = task.CreatedAt
	}
	task.Status = TaskCompleted
	task.Result = result
	task.Err = ""
	task.CompletedAt = &now
	return nil
}

// MarkFailed sets task status to TaskFailed and stores the error text.
func (d *DAG) MarkFailed(taskID string, err error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}

	task.Status = TaskFailed
	if err != nil {
		task.Err = err.Error()
	}
	return nil
}

// MarkPending returns a failed task to pending ahead of a retry.
func (d *DAG) MarkPending(taskID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	if task.Status != TaskFailed {
		return fmt.Errorf("task %q is not failed (status: %s)", taskID, task.Status)
	}

	task.Status = TaskPending
	return nil
}

// Get returns a copy of the task by ID.
func (d *DAG) Get(taskID string) (*Task, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return nil, false
	}
	return task.Clone(), true
}

// Tasks returns copies of all tasks in declaration order.
func (d *DAG) Tasks() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tasks := make([]*Task, 0, len(d.order))
	for _, taskID := range d.order {
		tasks = append(tasks, d.tasks[taskID].Clone())
	}
	return tasks
}

// Len returns the number of tasks.
func (d *DAG) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}

// Counts tallies tasks per status.
func (d *DAG) Counts() map[TaskStatus]int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	counts := make(map[TaskStatus]int)
	for _, task := range d.tasks {
		counts[task.Status]++
	}
	return counts
}

// CompletedDependencies returns copies of the completed declared
// dependencies of taskID, in declaration order.
func (d *DAG) CompletedDependencies(taskID string) []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return nil
	}

	var deps []*Task
	for _, id := range d.order {
		other := d.tasks[id]
		if other.Status == TaskCompleted && task.DependsOn(id) {
			deps = append(deps, other.Clone())
		}
	}
	return deps
}
