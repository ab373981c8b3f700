// Package metrics exposes run statistics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collector records task, attempt and session outcomes.
type Collector struct {
	tasksTotal         *prometheus.CounterVec
	attemptsTotal      *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	sessionsTotal      *prometheus.CounterVec
	deadlocksTotal     prometheus.Counter
	tokensTotal        *prometheus.CounterVec
	breakerOpen        *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector registers the collector's metrics on reg under namespace.
// Callers own reg, so tests can use a fresh prometheus.NewRegistry.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	return &Collector{
		tasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Tasks that reached a final status",
			},
			[]string{"role", "status"},
		),
		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_attempts_total",
				Help:      "Provider invocations made for tasks",
			},
			[]string{"role", "outcome"},
		),
		invocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_seconds",
				Help:      "Provider invocation latency in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"role"},
		),
		sessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Orchestration sessions by outcome",
			},
			[]string{"outcome"},
		),
		deadlocksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deadlocks_total",
				Help:      "Scheduling loops that ended with unrunnable tasks",
			},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Tokens reported by providers",
			},
			[]string{"role", "direction"},
		),
		breakerOpen: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_open",
				Help:      "1 while a role's circuit breaker is open",
			},
			[]string{"role"},
		),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// TaskFinished counts a task reaching status.
func (c *Collector) TaskFinished(role, status string) {
	c.tasksTotal.WithLabelValues(role, status).Inc()
}

// AttemptFinished records one provider invocation.
func (c *Collector) AttemptFinished(role string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.attemptsTotal.WithLabelValues(role, outcome).Inc()
	c.invocationDuration.WithLabelValues(role).Observe(d.Seconds())
}

// TokensUsed adds provider token accounting.
func (c *Collector) TokensUsed(role string, input, output int64) {
	if input > 0 {
		c.tokensTotal.WithLabelValues(role, "input").Add(float64(input))
	}
	if output > 0 {
		c.tokensTotal.WithLabelValues(role, "output").Add(float64(output))
	}
}

// Deadlock counts a deadlocked scheduling loop.
func (c *Collector) Deadlock() {
	c.deadlocksTotal.Inc()
}

// BreakerStateChanged tracks whether role's breaker is open.
func (c *Collector) BreakerStateChanged(role, state string) {
	open := 0.0
	if state == "open" {
		open = 1
	}
	c.breakerOpen.WithLabelValues(role).Set(open)
	c.logger.Debug("breaker state", zap.String("role", role), zap.String("state", state))
}

// SessionFinished counts a session by outcome ("completed", "deadlocked", "failed").
func (c *Collector) SessionFinished(outcome string) {
	c.sessionsTotal.WithLabelValues(outcome).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
