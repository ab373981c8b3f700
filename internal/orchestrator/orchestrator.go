// Package orchestrator runs an objective end to end: plan, schedule,
// synthesize and archive.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aristath/conductor/internal/agent"
	"github.com/aristath/conductor/internal/events"
	"github.com/aristath/conductor/internal/persistence"
	"github.com/aristath/conductor/internal/plan"
	"github.com/aristath/conductor/internal/scheduler"
)

// Metrics receives session and task outcomes. *metrics.Collector satisfies it.
type Metrics interface {
	scheduler.Metrics
	SessionFinished(outcome string)
}

// Session outcomes reported to Metrics.
const (
	OutcomeCompleted  = "completed"
	OutcomeDeadlocked = "deadlocked"
	OutcomeFailed     = "failed"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDecomposer replaces the coordinator-backed decomposer.
func WithDecomposer(d plan.Decomposer) Option {
	return func(o *Orchestrator) { o.decomposer = d }
}

// WithStore archives every finished session.
func WithStore(s persistence.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithPublisher publishes session, task and graph events, typically to an *events.EventBus.
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithMetrics records outcomes.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator turns objectives into sessions.
type Orchestrator struct {
	registry   *agent.Registry
	cfg        Config
	decomposer plan.Decomposer
	store      persistence.Store
	publisher  events.Publisher
	metrics    Metrics
	logger     *zap.Logger

	synth     *Synthesizer
	scheduler *scheduler.Scheduler

	mu      sync.Mutex
	current *scheduler.Session
}

// New creates an Orchestrator over registry. The coordinator role must be
// registered.
func New(registry *agent.Registry, cfg Config, opts ...Option) (*Orchestrator, error) {
	if cfg.Coordinator == "" {
		cfg.Coordinator = agent.RoleConductor
	}
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = agent.RoleCoder
	}
	cfg.Executor.Coordinator = cfg.Coordinator

	coordinator, err := registry.MustGet(cfg.Coordinator)
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	o := &Orchestrator{registry: registry, cfg: cfg}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.decomposer == nil {
		o.decomposer = plan.NewAgentDecomposer(coordinator)
	}

	schedOpts := []scheduler.Option{
		scheduler.WithLogger(o.logger),
		scheduler.WithPublisher(o.publisher),
	}
	if o.metrics != nil {
		schedOpts = append(schedOpts, scheduler.WithMetrics(o.metrics))
	}
	exec := scheduler.NewExecutor(registry, cfg.Executor, schedOpts...)
	o.scheduler = scheduler.New(exec, cfg.Scheduling, schedOpts...)
	o.synth = NewSynthesizer(coordinator, o.logger)
	o.logger = o.logger.With(zap.String("component", "orchestrator"))
	return o, nil
}

// Orchestrate plans req, runs the resulting graph and synthesizes the
// results. It fails only on an invalid request, a context cancelled before
// a plan exists, or a failed synthesis; in the last case the completed
// session is returned along with the error.
func (o *Orchestrator) Orchestrate(ctx context.Context, req plan.Request) (*scheduler.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	session := scheduler.NewSession(req.Objective, req.Context)
	o.mu.Lock()
	o.current = session
	o.mu.Unlock()

	o.logger.Info("session started",
		zap.String("session", session.ID),
		zap.String("objective", req.Objective))
	events.Publish(o.publisher, events.TopicSession, events.SessionStartedEvent{
		Session:   session.ID,
		Objective: req.Objective,
		Timestamp: time.Now(),
	})

	raw, err := o.decomposer.Decompose(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("planning cancelled: %w", ctxErr)
		}
		o.logger.Warn("planning failed, running fallback plan",
			zap.String("session", session.ID),
			zap.Error(err))
		raw = ""
	}

	parsed := plan.ParsePlan(raw, req.Objective,
		plan.WithDefaultRole(o.cfg.DefaultRole),
		plan.WithLogger(o.logger))
	session.Tasks = plan.ApplyWorkflows(parsed.Tasks, o.cfg.Workflows, o.logger)
	o.publishPlan(session, parsed.Fallback)

	report := o.scheduler.Execute(ctx, session)
	if report.Err != nil && !errors.Is(report.Err, scheduler.ErrDeadlock) {
		o.logger.Warn("scheduling stopped early",
			zap.String("session", session.ID),
			zap.Error(report.Err))
	}

	deliverable, synthErr := o.synth.Synthesize(ctx, session)
	session.Complete(deliverable)
	o.finish(ctx, session, report, synthErr)

	if synthErr != nil {
		return session, synthErr
	}
	return session, nil
}

func (o *Orchestrator) publishPlan(session *scheduler.Session, fallback bool) {
	planned := make([]events.PlannedTask, 0, len(session.Tasks))
	for _, t := range session.Tasks {
		planned = append(planned, events.PlannedTask{
			ID:           t.ID,
			Title:        t.Title,
			Role:         string(t.AssignedTo),
			Priority:     string(t.Priority),
			Dependencies: append([]string(nil), t.Dependencies...),
		})
	}

	o.logger.Info("plan ready",
		zap.String("session", session.ID),
		zap.Int("tasks", len(planned)),
		zap.Bool("fallback", fallback))
	events.Publish(o.publisher, events.TopicSession, events.PlanReadyEvent{
		Session:   session.ID,
		Tasks:     planned,
		Fallback:  fallback,
		Timestamp: time.Now(),
	})
}

func (o *Orchestrator) finish(ctx context.Context, session *scheduler.Session, report scheduler.Report, synthErr error) {
	completed := len(session.CompletedTasks())
	total := len(session.Tasks)
	duration := session.Duration()

	outcome := OutcomeCompleted
	switch {
	case synthErr != nil:
		outcome = OutcomeFailed
	case report.Deadlocked:
		outcome = OutcomeDeadlocked
	}
	if o.metrics != nil {
		o.metrics.SessionFinished(outcome)
	}

	errText := ""
	if synthErr != nil {
		errText = synthErr.Error()
	}
	o.logger.Info("session completed",
		zap.String("session", session.ID),
		zap.String("outcome", outcome),
		zap.Int("completed", completed),
		zap.Int("total", total),
		zap.Duration("duration", duration))
	events.Publish(o.publisher, events.TopicSession, events.SessionCompletedEvent{
		Session:     session.ID,
		Deliverable: session.Deliverable,
		Completed:   completed,
		Total:       total,
		Deadlocked:  report.Deadlocked,
		Err:         errText,
		Duration:    duration,
		Timestamp:   time.Now(),
	})

	if o.store != nil {
		// Archive even when the run itself was cancelled
		if err := o.store.SaveSession(context.WithoutCancel(ctx), session); err != nil {
			o.logger.Error("failed to archive session",
				zap.String("session", session.ID),
				zap.Error(err))
		}
	}
}

// Ask sends request straight to role with a fresh conversation, bypassing
// planning and scheduling.
func (o *Orchestrator) Ask(ctx context.Context, role agent.Role, request string) (string, error) {
	a, err := o.registry.MustGet(agent.NormalizeRole(string(role)))
	if err != nil {
		return "", err
	}
	resp, err := a.Invoke(ctx, request, nil)
	if err != nil {
		return "", fmt.Errorf("ask %s: %w", a.Role(), err)
	}
	return resp.Content, nil
}

// CurrentSession returns the most recently started session, or nil.
func (o *Orchestrator) CurrentSession() *scheduler.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}
