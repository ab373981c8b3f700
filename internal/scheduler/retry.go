package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/aristath/conductor/internal/agent"
)

// RetryConfig configures exponential backoff between task attempts.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 500ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// newBackOff builds the attempt schedule: exponential waits, at most
// maxRetries of them, abandoned when ctx ends. Provider calls can outlast
// any wall-clock budget, so only maxRetries bounds the attempts.
func (c RetryConfig) newBackOff(ctx context.Context, maxRetries int) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.InitialInterval
	policy.MaxInterval = c.MaxInterval
	policy.MaxElapsedTime = 0
	policy.Multiplier = c.Multiplier
	policy.RandomizationFactor = c.RandomizationFactor
	policy.Reset()

	if maxRetries < 0 {
		maxRetries = 0
	}
	return backoff.WithMaxRetries(backoff.WithContext(policy, ctx), uint64(maxRetries))
}

// BreakerConfig configures the per-role circuit breakers.
type BreakerConfig struct {
	ConsecutiveFailures uint32        // Failures that trip the breaker (default 5)
	OpenTimeout         time.Duration // How long the breaker stays open (default 30s)
	HalfOpenRequests    uint32        // Probe requests allowed while half-open (default 3)
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    3,
	}
}

// BreakerRegistry manages per-role circuit breakers.
type BreakerRegistry struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	logger   *zap.Logger
	metrics  Metrics
	breakers map[agent.Role]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates a registry whose breakers share cfg. State
// changes are logged and reported to m.
func NewBreakerRegistry(cfg BreakerConfig, logger *zap.Logger, m Metrics) *BreakerRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = nopMetrics{}
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultBreakerConfig().ConsecutiveFailures
	}
	return &BreakerRegistry{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "breaker")),
		metrics:  m,
		breakers: make(map[agent.Role]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for role, creating it on first use.
func (r *BreakerRegistry) Get(role agent.Role) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[role]; ok {
		return cb
	}

	threshold := r.cfg.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(role),
		MaxRequests: r.cfg.HalfOpenRequests,
		Interval:    0, // Don't clear counts automatically
		Timeout:     r.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("circuit breaker state change",
				zap.String("role", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			r.metrics.BreakerStateChanged(name, to.String())
		},
		IsSuccessful: func(err error) bool {
			// Cancellation is the caller's doing, not the provider's
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[role] = cb
	return cb
}

// isPermanent reports whether err must not be retried.
func isPermanent(ctx context.Context, err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	var unknown *UnknownRoleError
	if errors.As(err, &unknown) {
		return true
	}
	return ctx.Err() != nil
}
