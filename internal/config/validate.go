package config

import (
	"errors"
	"fmt"
	"sort"
)

var knownProviderTypes = map[string]bool{
	"anthropic": true,
	"claude":    true,
	"codex":     true,
	"goose":     true,
}

// Validate checks cross references and numeric bounds. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	for _, name := range sortedKeys(c.Providers) {
		if p := c.Providers[name]; !knownProviderTypes[p.Type] {
			errs = append(errs, fmt.Errorf("provider %q: unknown type %q", name, p.Type))
		}
	}

	for _, name := range sortedKeys(c.Agents) {
		a := c.Agents[name]
		if _, ok := c.Providers[a.Provider]; !ok {
			errs = append(errs, fmt.Errorf("agent %q: unknown provider %q", name, a.Provider))
		}
		if a.MaxTokens < 0 {
			errs = append(errs, fmt.Errorf("agent %q: max_tokens must not be negative", name))
		}
	}

	for _, name := range sortedKeys(c.Workflows) {
		w := c.Workflows[name]
		if len(w.Steps) < 2 {
			errs = append(errs, fmt.Errorf("workflow %q: needs at least two steps", name))
		}
		for _, step := range w.Steps {
			if _, ok := c.Agents[step.Agent]; !ok {
				errs = append(errs, fmt.Errorf("workflow %q: unknown agent %q", name, step.Agent))
			}
		}
	}

	o := c.Orchestration
	if o.MaxConcurrentTasks < 1 {
		errs = append(errs, fmt.Errorf("orchestration.max_concurrent_tasks must be at least 1, got %d", o.MaxConcurrentTasks))
	}
	if o.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("orchestration.max_retries must not be negative, got %d", o.MaxRetries))
	}
	if o.FailurePolicy != "block" && o.FailurePolicy != "continue" {
		errs = append(errs, fmt.Errorf("orchestration.failure_policy must be block or continue, got %q", o.FailurePolicy))
	}
	if o.TaskTimeout < 0 {
		errs = append(errs, fmt.Errorf("orchestration.task_timeout must not be negative"))
	}
	if _, ok := c.Agents[o.DefaultRole]; !ok {
		errs = append(errs, fmt.Errorf("orchestration.default_role %q has no agent", o.DefaultRole))
	}
	if _, ok := c.Agents[o.CoordinatorRole]; !ok {
		errs = append(errs, fmt.Errorf("orchestration.coordinator_role %q has no agent", o.CoordinatorRole))
	}

	if c.Retry.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("retry.multiplier must be at least 1, got %v", c.Retry.Multiplier))
	}
	if c.Retry.RandomizationFactor < 0 || c.Retry.RandomizationFactor > 1 {
		errs = append(errs, fmt.Errorf("retry.randomization_factor must be within [0,1], got %v", c.Retry.RandomizationFactor))
	}
	if c.Retry.InitialInterval <= 0 {
		errs = append(errs, fmt.Errorf("retry.initial_interval must be positive"))
	}
	if c.Breaker.ConsecutiveFailures == 0 {
		errs = append(errs, fmt.Errorf("breaker.consecutive_failures must be at least 1"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
