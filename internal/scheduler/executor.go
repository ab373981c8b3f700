package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/aristath/conductor/internal/agent"
	"github.com/aristath/conductor/internal/backend"
	"github.com/aristath/conductor/internal/events"
)

// UnknownRoleError is returned when a task is assigned to a role with no
// registered agent.
type UnknownRoleError struct {
	Role agent.Role
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("no agent registered for role %q", e.Role)
}

func (e *UnknownRoleError) Unwrap() error { return agent.ErrUnknownRole }

// Metrics receives task and attempt outcomes. *metrics.Collector satisfies it.
type Metrics interface {
	TaskFinished(role, status string)
	AttemptFinished(role string, d time.Duration, err error)
	TokensUsed(role string, input, output int64)
	Deadlock()
	BreakerStateChanged(role, state string)
}

type nopMetrics struct{}

func (nopMetrics) TaskFinished(string, string)                  {}
func (nopMetrics) AttemptFinished(string, time.Duration, error) {}
func (nopMetrics) TokensUsed(string, int64, int64)              {}
func (nopMetrics) Deadlock()                                    {}
func (nopMetrics) BreakerStateChanged(string, string)           {}

// ExecutorConfig controls how a single task is attempted.
type ExecutorConfig struct {
	AutoRetry   bool
	MaxRetries  int           // Retries after the first attempt
	Retry       RetryConfig   // Waits between attempts
	Breaker     BreakerConfig // Per-role circuit breakers
	TaskTimeout time.Duration // Per-attempt deadline, 0 = none
	Coordinator agent.Role    // Recipient of result messages
}

// DefaultExecutorConfig returns the default executor configuration.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		AutoRetry:   true,
		MaxRetries:  2,
		Retry:       DefaultRetryConfig(),
		Breaker:     DefaultBreakerConfig(),
		Coordinator: agent.RoleConductor,
	}
}

// Option configures an Executor or Scheduler.
type Option func(*deps)

type deps struct {
	logger    *zap.Logger
	publisher events.Publisher
	metrics   Metrics
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *deps) { d.logger = l }
}

// WithPublisher sets where task and graph events are published.
func WithPublisher(p events.Publisher) Option {
	return func(d *deps) { d.publisher = p }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(d *deps) { d.metrics = m }
}

func buildDeps(opts []Option) deps {
	d := deps{}
	for _, opt := range opts {
		opt(&d)
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.metrics == nil {
		d.metrics = nopMetrics{}
	}
	return d
}

// Run is the per-session execution state: the task graph, the per-role
// conversation buffers and the locks that serialize each role.
type Run struct {
	Session *Session

	dag   *DAG
	locks *RoleLocks

	mu            sync.Mutex
	conversations map[agent.Role]backend.Conversation
}

// NewRun prepares session for execution. Conversations already on the
// session seed the buffers.
func NewRun(session *Session) (*Run, error) {
	dag, err := NewDAGFromTasks(session.Tasks)
	if err != nil {
		return nil, err
	}

	conversations := make(map[agent.Role]backend.Conversation, len(session.Conversations))
	for role, conv := range session.Conversations {
		conversations[role] = conv
	}

	return &Run{
		Session:       session,
		dag:           dag,
		locks:         NewRoleLocks(),
		conversations: conversations,
	}, nil
}

// DAG returns the run's task graph.
func (r *Run) DAG() *DAG { return r.dag }

func (r *Run) history(role agent.Role) backend.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conversations[role]
}

func (r *Run) setHistory(role agent.Role, conv backend.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[role] = conv
}

// Conversations returns a snapshot of every role's buffer.
func (r *Run) Conversations() map[agent.Role]backend.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[agent.Role]backend.Conversation, len(r.conversations))
	for role, conv := range r.conversations {
		out[role] = conv
	}
	return out
}

// Executor runs single tasks against the registry with retries, circuit
// breaking and per-role serialization. It is safe for concurrent use and
// may be shared by runs.
type Executor struct {
	registry *agent.Registry
	cfg      ExecutorConfig
	breakers *BreakerRegistry

	logger    *zap.Logger
	publisher events.Publisher
	metrics   Metrics
}

// NewExecutor creates an Executor over registry.
func NewExecutor(registry *agent.Registry, cfg ExecutorConfig, opts ...Option) *Executor {
	d := buildDeps(opts)
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Coordinator == "" {
		cfg.Coordinator = agent.RoleConductor
	}

	return &Executor{
		registry:  registry,
		cfg:       cfg,
		breakers:  NewBreakerRegistry(cfg.Breaker, d.logger, d.metrics),
		logger:    d.logger.With(zap.String("component", "executor")),
		publisher: d.publisher,
		metrics:   d.metrics,
	}
}

// BuildTaskInput renders the instruction for a task: its description,
// followed by the results of completed dependencies when there are any.
func BuildTaskInput(description string, deps []*Task) string {
	if len(deps) == 0 {
		return description
	}

	blocks := make([]string, 0, len(deps))
	for _, dep := range deps {
		blocks = append(blocks, fmt.Sprintf("[%s]:\n%s", dep.Title, dep.Result))
	}
	return description + "\n\nContext from previous tasks:\n" + strings.Join(blocks, "\n\n")
}

// RunTask runs one pending task of run to a final status. The task ends
// completed or failed; the returned error describes a failure and is
// informational, since task state lives in the run's DAG.
func (e *Executor) RunTask(ctx context.Context, run *Run, taskID string) error {
	task, ok := run.dag.Get(taskID)
	if !ok {
		return fmt.Errorf("task %q not found", taskID)
	}
	role := task.AssignedTo
	start := time.Now()

	a, ok := e.registry.Get(role)
	if !ok {
		err := &UnknownRoleError{Role: role}
		_ = run.dag.MarkFailed(taskID, err)
		e.taskFailed(run, task, err, 0, time.Since(start))
		return err
	}

	input := BuildTaskInput(task.Description, run.dag.CompletedDependencies(taskID))
	maxRetries := e.cfg.MaxRetries
	if !e.cfg.AutoRetry {
		maxRetries = 0
	}

	var (
		result   string
		attempts int
	)
	operation := func() error {
		n, err := run.dag.MarkRunning(taskID)
		if err != nil {
			return backoff.Permanent(err)
		}
		attempts = n

		e.logger.Info("task started",
			zap.String("session", run.Session.ID),
			zap.String("task", taskID),
			zap.String("role", string(role)),
			zap.Int("attempt", n))
		events.Publish(e.publisher, events.TopicTask, events.TaskStartedEvent{
			Session:   run.Session.ID,
			ID:        taskID,
			Title:     task.Title,
			Role:      string(role),
			Attempt:   n,
			Timestamp: time.Now(),
		})

		content, err := e.invoke(ctx, run, a, input)
		if err != nil {
			_ = run.dag.MarkFailed(taskID, err)
			if isPermanent(ctx, err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = content
		return nil
	}

	notify := func(err error, wait time.Duration) {
		_ = run.dag.MarkPending(taskID)
		e.logger.Warn("task attempt failed, retrying",
			zap.String("session", run.Session.ID),
			zap.String("task", taskID),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err))
		events.Publish(e.publisher, events.TopicTask, events.TaskRetryingEvent{
			Session:   run.Session.ID,
			ID:        taskID,
			Role:      string(role),
			Attempt:   attempts,
			Wait:      wait,
			Err:       err.Error(),
			Timestamp: time.Now(),
		})
	}

	err := backoff.RetryNotify(operation, e.cfg.Retry.newBackOff(ctx, maxRetries), notify)
	if err != nil {
		// notify resets the task to pending before each wait; a cancelled
		// wait would otherwise leave it there
		_ = run.dag.MarkFailed(taskID, err)
		e.taskFailed(run, task, err, attempts, time.Since(start))
		return fmt.Errorf("task %s: %w", taskID, err)
	}

	if err := run.dag.MarkCompleted(taskID, result); err != nil {
		return err
	}
	run.Session.AppendMessage(AgentMessage{
		From:    role,
		To:      e.cfg.Coordinator,
		Kind:    MessageResult,
		Content: result,
		Metadata: map[string]string{
			"task_id":  taskID,
			"attempts": strconv.Itoa(attempts),
		},
	})

	duration := time.Since(start)
	e.logger.Info("task completed",
		zap.String("session", run.Session.ID),
		zap.String("task", taskID),
		zap.String("role", string(role)),
		zap.Int("attempts", attempts),
		zap.Duration("duration", duration))
	events.Publish(e.publisher, events.TopicTask, events.TaskCompletedEvent{
		Session:   run.Session.ID,
		ID:        taskID,
		Role:      string(role),
		Result:    result,
		Attempts:  attempts,
		Duration:  duration,
		Timestamp: time.Now(),
	})
	e.metrics.TaskFinished(string(role), string(TaskCompleted))
	return nil
}

// invoke makes one provider call for a under the role lock, the breaker and
// the task timeout, and stores the extended conversation on success.
func (e *Executor) invoke(ctx context.Context, run *Run, a *agent.Agent, input string) (string, error) {
	role := a.Role()
	run.locks.Lock(role)
	defer run.locks.Unlock(role)

	attemptCtx := ctx
	if e.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.TaskTimeout)
		defer cancel()
	}

	history := run.history(role)
	start := time.Now()
	out, err := e.breakers.Get(role).Execute(func() (interface{}, error) {
		return a.Invoke(attemptCtx, input, history)
	})
	e.metrics.AttemptFinished(string(role), time.Since(start), err)
	if err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("attempt timed out after %s: %w", e.cfg.TaskTimeout, err)
		}
		return "", err
	}

	resp := out.(backend.Response)
	run.setHistory(role, resp.History)
	e.metrics.TokensUsed(string(role), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return resp.Content, nil
}

func (e *Executor) taskFailed(run *Run, task *Task, err error, attempts int, duration time.Duration) {
	e.logger.Warn("task failed",
		zap.String("session", run.Session.ID),
		zap.String("task", task.ID),
		zap.String("role", string(task.AssignedTo)),
		zap.Int("attempts", attempts),
		zap.Error(err))
	events.Publish(e.publisher, events.TopicTask, events.TaskFailedEvent{
		Session:   run.Session.ID,
		ID:        task.ID,
		Role:      string(task.AssignedTo),
		Err:       err.Error(),
		Attempts:  attempts,
		Duration:  duration,
		Timestamp: time.Now(),
	})
	e.metrics.TaskFinished(string(task.AssignedTo), string(TaskFailed))
}
