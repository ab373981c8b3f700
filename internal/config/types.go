package config

import "time"

// ProviderConfig defines a transport layer (API endpoint or CLI command).
// Providers are separate from agents -- multiple agents can share one provider.
type ProviderConfig struct {
	Type     string   `mapstructure:"type" yaml:"type"`                           // Backend type: "anthropic", "claude", "codex", "goose"
	Command  string   `mapstructure:"command" yaml:"command,omitempty"`           // CLI binary name for CLI types
	Args     []string `mapstructure:"args" yaml:"args,omitempty"`                 // Default args appended to every invocation
	APIKey   string   `mapstructure:"api_key" yaml:"api_key,omitempty"`           // Supports ${VAR} references
	BaseURL  string   `mapstructure:"base_url" yaml:"base_url,omitempty"`         // API endpoint override
	Provider string   `mapstructure:"llm_provider" yaml:"llm_provider,omitempty"` // For Goose local LLMs (e.g., "ollama")
	WorkDir  string   `mapstructure:"work_dir" yaml:"work_dir,omitempty"`
}

// AgentConfig defines a role that uses a specific provider and model.
type AgentConfig struct {
	Provider     string `mapstructure:"provider" yaml:"provider"`                     // Key into Providers map
	Model        string `mapstructure:"model" yaml:"model,omitempty"`                 // Model override
	SystemPrompt string `mapstructure:"system_prompt" yaml:"system_prompt,omitempty"` // Role-specific system prompt
	MaxTokens    int64  `mapstructure:"max_tokens" yaml:"max_tokens,omitempty"`
}

// WorkflowStepConfig defines one step in a workflow pipeline.
type WorkflowStepConfig struct {
	Agent string `mapstructure:"agent" yaml:"agent"` // Key into Agents map
}

// WorkflowConfig defines a pipeline of agent steps (e.g., code -> review).
type WorkflowConfig struct {
	Steps []WorkflowStepConfig `mapstructure:"steps" yaml:"steps"`
}

// OrchestrationConfig tunes the scheduling loop.
type OrchestrationConfig struct {
	MaxConcurrentTasks int           `mapstructure:"max_concurrent_tasks"`
	AutoRetry          bool          `mapstructure:"auto_retry"`
	MaxRetries         int           `mapstructure:"max_retries"`
	FailurePolicy      string        `mapstructure:"failure_policy"` // "block" or "continue"
	PriorityOrdering   bool          `mapstructure:"priority_ordering"`
	TaskTimeout        time.Duration `mapstructure:"task_timeout"` // 0 disables
	DefaultRole        string        `mapstructure:"default_role"`
	CoordinatorRole    string        `mapstructure:"coordinator_role"`
}

// RetryConfig configures exponential backoff between attempts.
type RetryConfig struct {
	InitialInterval     time.Duration `mapstructure:"initial_interval"`
	MaxInterval         time.Duration `mapstructure:"max_interval"`
	Multiplier          float64       `mapstructure:"multiplier"`
	RandomizationFactor float64       `mapstructure:"randomization_factor"`
}

// BreakerConfig configures the per-role circuit breakers.
type BreakerConfig struct {
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
	HalfOpenRequests    uint32        `mapstructure:"half_open_requests"`
}

// StorageConfig configures the run archive.
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path,omitempty"` // Defaults to ~/.conductor/conductor.db
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string   `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format      string   `mapstructure:"format" yaml:"format"` // console or json
	OutputPaths []string `mapstructure:"output_paths" yaml:"output_paths,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr,omitempty"` // Empty disables the listener
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// Config is the top-level configuration.
type Config struct {
	Providers     map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Agents        map[string]AgentConfig    `mapstructure:"agents" yaml:"agents"`
	Workflows     map[string]WorkflowConfig `mapstructure:"workflows" yaml:"workflows,omitempty"`
	Orchestration OrchestrationConfig       `mapstructure:"orchestration" yaml:"orchestration"`
	Retry         RetryConfig               `mapstructure:"retry" yaml:"retry"`
	Breaker       BreakerConfig             `mapstructure:"breaker" yaml:"breaker"`
	Storage       StorageConfig             `mapstructure:"storage" yaml:"storage"`
	Log           LogConfig                 `mapstructure:"log" yaml:"log"`
	Metrics       MetricsConfig             `mapstructure:"metrics" yaml:"metrics"`
}

// Duration fields are written as Go duration strings ("2m0s") so a saved
// file reads back through viper's duration decode hook.

type orchestrationYAML struct {
	MaxConcurrentTasks int    `yaml:"max_concurrent_tasks"`
	AutoRetry          bool   `yaml:"auto_retry"`
	MaxRetries         int    `yaml:"max_retries"`
	FailurePolicy      string `yaml:"failure_policy"`
	PriorityOrdering   bool   `yaml:"priority_ordering"`
	TaskTimeout        string `yaml:"task_timeout"`
	DefaultRole        string `yaml:"default_role"`
	CoordinatorRole    string `yaml:"coordinator_role"`
}

func (o OrchestrationConfig) MarshalYAML() (interface{}, error) {
	return orchestrationYAML{
		MaxConcurrentTasks: o.MaxConcurrentTasks,
		AutoRetry:          o.AutoRetry,
		MaxRetries:         o.MaxRetries,
		FailurePolicy:      o.FailurePolicy,
		PriorityOrdering:   o.PriorityOrdering,
		TaskTimeout:        o.TaskTimeout.String(),
		DefaultRole:        o.DefaultRole,
		CoordinatorRole:    o.CoordinatorRole,
	}, nil
}

type retryYAML struct {
	InitialInterval     string  `yaml:"initial_interval"`
	MaxInterval         string  `yaml:"max_interval"`
	Multiplier          float64 `yaml:"multiplier"`
	RandomizationFactor float64 `yaml:"randomization_factor"`
}

func (r RetryConfig) MarshalYAML() (interface{}, error) {
	return retryYAML{
		InitialInterval:     r.InitialInterval.String(),
		MaxInterval:         r.MaxInterval.String(),
		Multiplier:          r.Multiplier,
		RandomizationFactor: r.RandomizationFactor,
	}, nil
}

type breakerYAML struct {
	ConsecutiveFailures uint32 `yaml:"consecutive_failures"`
	OpenTimeout         string `yaml:"open_timeout"`
	HalfOpenRequests    uint32 `yaml:"half_open_requests"`
}

func (b BreakerConfig) MarshalYAML() (interface{}, error) {
	return breakerYAML{
		ConsecutiveFailures: b.ConsecutiveFailures,
		OpenTimeout:         b.OpenTimeout.String(),
		HalfOpenRequests:    b.HalfOpenRequests,
	}, nil
}
