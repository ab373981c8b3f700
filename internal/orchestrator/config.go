package orchestrator

import (
	"fmt"
	"sort"

	"github.com/aristath/conductor/internal/agent"
	"github.com/aristath/conductor/internal/backend"
	"github.com/aristath/conductor/internal/config"
	"github.com/aristath/conductor/internal/scheduler"
)

// Config holds the orchestrator's tunables.
type Config struct {
	Executor    scheduler.ExecutorConfig
	Scheduling  scheduler.Options
	DefaultRole agent.Role // Role for unassigned and fallback tasks
	Coordinator agent.Role // Plans, synthesizes and receives results
	Workflows   map[string]config.WorkflowConfig
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		Executor:    scheduler.DefaultExecutorConfig(),
		Scheduling:  scheduler.DefaultOptions(),
		DefaultRole: agent.RoleCoder,
		Coordinator: agent.RoleConductor,
	}
}

// FromConfig maps the loaded configuration onto an orchestrator Config.
func FromConfig(c *config.Config) Config {
	o := c.Orchestration
	coordinator := agent.NormalizeRole(o.CoordinatorRole)
	if coordinator == "" {
		coordinator = agent.RoleConductor
	}
	defaultRole := agent.NormalizeRole(o.DefaultRole)
	if defaultRole == "" {
		defaultRole = agent.RoleCoder
	}

	return Config{
		Executor: scheduler.ExecutorConfig{
			AutoRetry:  o.AutoRetry,
			MaxRetries: o.MaxRetries,
			Retry: scheduler.RetryConfig{
				InitialInterval:     c.Retry.InitialInterval,
				MaxInterval:         c.Retry.MaxInterval,
				Multiplier:          c.Retry.Multiplier,
				RandomizationFactor: c.Retry.RandomizationFactor,
			},
			Breaker: scheduler.BreakerConfig{
				ConsecutiveFailures: c.Breaker.ConsecutiveFailures,
				OpenTimeout:         c.Breaker.OpenTimeout,
				HalfOpenRequests:    c.Breaker.HalfOpenRequests,
			},
			TaskTimeout: o.TaskTimeout,
			Coordinator: coordinator,
		},
		Scheduling: scheduler.Options{
			MaxConcurrentTasks: o.MaxConcurrentTasks,
			FailurePolicy:      scheduler.FailurePolicy(o.FailurePolicy),
			PriorityOrdering:   o.PriorityOrdering,
		},
		DefaultRole: defaultRole,
		Coordinator: coordinator,
		Workflows:   c.Workflows,
	}
}

// BuildRegistry creates one agent per configured agent entry, each backed
// by its provider. The agent's key is its role.
func BuildRegistry(c *config.Config, pm *backend.ProcessManager) (*agent.Registry, error) {
	names := make([]string, 0, len(c.Agents))
	for name := range c.Agents {
		names = append(names, name)
	}
	sort.Strings(names)

	var agents []*agent.Agent
	closeAll := func() {
		for _, a := range agents {
			a.Close()
		}
	}

	for _, name := range names {
		ac := c.Agents[name]
		pc, ok := c.Providers[ac.Provider]
		if !ok {
			closeAll()
			return nil, fmt.Errorf("agent %q: unknown provider %q", name, ac.Provider)
		}

		b, err := backend.New(backend.Config{
			Type:      pc.Type,
			Command:   pc.Command,
			Args:      pc.Args,
			WorkDir:   pc.WorkDir,
			Model:     ac.Model,
			Provider:  pc.Provider,
			APIKey:    pc.APIKey,
			BaseURL:   pc.BaseURL,
			MaxTokens: ac.MaxTokens,
		}, pm)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("agent %q: %w", name, err)
		}

		agents = append(agents, agent.New(agent.NormalizeRole(name), b,
			agent.WithName(name),
			agent.WithSystemPrompt(ac.SystemPrompt)))
	}

	registry, err := agent.NewRegistry(agents...)
	if err != nil {
		closeAll()
		return nil, err
	}
	return registry, nil
}
