package config

import "time"

// DefaultConfig returns the default configuration with built-in providers, agents, and workflows.
func DefaultConfig() *Config {
	return &Config{
		Providers: map[string]ProviderConfig{
			"anthropic": {
				Type:   "anthropic",
				APIKey: "${ANTHROPIC_API_KEY}",
			},
			"claude": {
				Type:    "claude",
				Command: "claude",
			},
			"codex": {
				Type:    "codex",
				Command: "codex",
			},
			"goose": {
				Type:    "goose",
				Command: "goose",
			},
		},
		Agents: map[string]AgentConfig{
			"conductor": {
				Provider:     "anthropic",
				SystemPrompt: "You break objectives into small tasks for specialist agents and merge their results.",
			},
			"coder": {
				Provider:     "anthropic",
				SystemPrompt: "You implement features and write production code.",
			},
			"reviewer": {
				Provider:     "anthropic",
				SystemPrompt: "You review code for correctness, style, and best practices.",
			},
			"architect": {
				Provider:     "anthropic",
				SystemPrompt: "You design systems: components, interfaces, data flow and trade-offs.",
			},
		},
		Workflows: map[string]WorkflowConfig{},
		Orchestration: OrchestrationConfig{
			MaxConcurrentTasks: 3,
			AutoRetry:          true,
			MaxRetries:         2,
			FailurePolicy:      "block",
			PriorityOrdering:   false,
			TaskTimeout:        0,
			DefaultRole:        "coder",
			CoordinatorRole:    "conductor",
		},
		Retry: RetryConfig{
			InitialInterval:     500 * time.Millisecond,
			MaxInterval:         10 * time.Second,
			Multiplier:          2.0,
			RandomizationFactor: 0.5,
		},
		Breaker: BreakerConfig{
			ConsecutiveFailures: 5,
			OpenTimeout:         30 * time.Second,
			HalfOpenRequests:    3,
		},
		Storage: StorageConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Namespace: "conductor",
		},
	}
}
