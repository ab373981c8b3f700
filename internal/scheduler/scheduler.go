package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/conductor/internal/events"
)

// ErrDeadlock reports that pending tasks remain but none can become ready.
var ErrDeadlock = errors.New("deadlock: no runnable tasks remain")

// Options configures the scheduling loop.
type Options struct {
	MaxConcurrentTasks int           // Ready tasks run per round (default 3)
	FailurePolicy      FailurePolicy // Default FailBlock
	PriorityOrdering   bool          // Sort each ready set by priority rank
}

// DefaultOptions returns the default scheduling options.
func DefaultOptions() Options {
	return Options{
		MaxConcurrentTasks: 3,
		FailurePolicy:      FailBlock,
	}
}

// Report summarizes one Execute call.
type Report struct {
	Rounds     int      // Batches executed
	Deadlocked bool     // Loop stopped with unfinished tasks and nothing ready
	Stalled    []string // Unfinished task IDs at deadlock, declaration order
	Err        error    // Wraps ErrDeadlock, a context error, or a graph construction error
}

// Scheduler drives a session's task graph to completion in rounds: each
// round blocks unreachable tasks, picks the ready set and runs a bounded
// batch of it through the Executor.
type Scheduler struct {
	exec *Executor
	opts Options

	logger    *zap.Logger
	publisher events.Publisher
	metrics   Metrics
}

// New creates a Scheduler running tasks through exec.
func New(exec *Executor, opts Options, options ...Option) *Scheduler {
	d := buildDeps(options)
	if opts.MaxConcurrentTasks <= 0 {
		opts.MaxConcurrentTasks = DefaultOptions().MaxConcurrentTasks
	}
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = FailBlock
	}

	return &Scheduler{
		exec:      exec,
		opts:      opts,
		logger:    d.logger.With(zap.String("component", "scheduler")),
		publisher: d.publisher,
		metrics:   d.metrics,
	}
}

// Execute runs every task of session it can. On return no task is pending
// or in progress unless the loop was cancelled or deadlocked, and the
// session holds the final conversation buffers.
func (s *Scheduler) Execute(ctx context.Context, session *Session) Report {
	run, err := NewRun(session)
	if err != nil {
		return Report{Err: fmt.Errorf("build task graph: %w", err)}
	}
	return s.ExecuteRun(ctx, run)
}

// ExecuteRun is Execute over a prepared Run.
func (s *Scheduler) ExecuteRun(ctx context.Context, run *Run) Report {
	session := run.Session
	dag := run.dag
	defer func() { session.setConversations(run.Conversations()) }()

	if _, err := dag.Validate(); err != nil {
		s.logger.Warn("task graph cannot run to completion as declared",
			zap.String("session", session.ID),
			zap.Error(err))
	}

	var report Report
	finished := make(map[string]bool, dag.Len())
	for _, task := range dag.Tasks() {
		if task.Status.Finished() {
			finished[task.ID] = true
		}
	}

	for len(finished) < dag.Len() {
		if err := ctx.Err(); err != nil {
			report.Err = err
			break
		}

		if s.opts.FailurePolicy == FailBlock {
			s.blockUnreachable(run, finished)
			if len(finished) == dag.Len() {
				break
			}
		}

		ready := dag.Ready(s.opts.FailurePolicy)
		if s.opts.PriorityOrdering {
			sort.SliceStable(ready, func(i, j int) bool {
				return ready[i].Priority.Rank() < ready[j].Priority.Rank()
			})
		}

		if len(ready) == 0 {
			report.Deadlocked = true
			report.Stalled = unfinished(dag, finished)
			report.Err = fmt.Errorf("%w: %s", ErrDeadlock, strings.Join(report.Stalled, ", "))
			session.setDeadlocked()

			s.logger.Error("scheduling deadlock",
				zap.String("session", session.ID),
				zap.Strings("stalled", report.Stalled))
			events.Publish(s.publisher, events.TopicGraph, events.DeadlockEvent{
				Session:   session.ID,
				Stalled:   report.Stalled,
				Timestamp: time.Now(),
			})
			s.metrics.Deadlock()
			break
		}

		batch := ready
		if len(batch) > s.opts.MaxConcurrentTasks {
			batch = batch[:s.opts.MaxConcurrentTasks]
		}

		// Task failures live in the DAG; goroutines never fail the group
		var g errgroup.Group
		g.SetLimit(s.opts.MaxConcurrentTasks)
		for _, task := range batch {
			taskID := task.ID
			g.Go(func() error {
				_ = s.exec.RunTask(ctx, run, taskID)
				return nil
			})
		}
		_ = g.Wait()

		for _, task := range batch {
			finished[task.ID] = true
		}
		report.Rounds++
		s.publishProgress(run)
	}

	return report
}

func (s *Scheduler) blockUnreachable(run *Run, finished map[string]bool) {
	for _, b := range run.dag.BlockUnreachable() {
		finished[b.ID] = true

		role := ""
		if task, ok := run.dag.Get(b.ID); ok {
			role = string(task.AssignedTo)
		}
		s.logger.Warn("task blocked",
			zap.String("session", run.Session.ID),
			zap.String("task", b.ID),
			zap.String("blocked_by", b.BlockedBy))
		events.Publish(s.publisher, events.TopicTask, events.TaskBlockedEvent{
			Session:   run.Session.ID,
			ID:        b.ID,
			BlockedBy: b.BlockedBy,
			Timestamp: time.Now(),
		})
		s.metrics.TaskFinished(role, string(TaskBlocked))
	}
}

func (s *Scheduler) publishProgress(run *Run) {
	counts := run.dag.Counts()
	events.Publish(s.publisher, events.TopicGraph, events.GraphProgressEvent{
		Session:   run.Session.ID,
		Total:     run.dag.Len(),
		Pending:   counts[TaskPending],
		Running:   counts[TaskInProgress],
		Completed: counts[TaskCompleted],
		Failed:    counts[TaskFailed],
		Blocked:   counts[TaskBlocked],
		Timestamp: time.Now(),
	})
}

func unfinished(dag *DAG, finished map[string]bool) []string {
	var ids []string
	for _, task := range dag.Tasks() {
		if !finished[task.ID] {
			ids = append(ids, task.ID)
		}
	}
	return ids
}
