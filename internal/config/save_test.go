package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "config.yaml")

	if err := Save(DefaultConfig(), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Config file was not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}
}

func TestSaveWritesReadableDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if err := Save(DefaultConfig(), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}
	for _, want := range []string{"initial_interval: 500ms", "open_timeout: 30s", "task_timeout: 0s"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("saved config missing %q:\n%s", want, data)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Agents["coder"] = AgentConfig{Provider: "codex", Model: "gpt-5-codex"}
	cfg.Workflows["review"] = WorkflowConfig{Steps: []WorkflowStepConfig{{Agent: "coder"}, {Agent: "reviewer"}}}
	cfg.Orchestration.TaskTimeout = 5 * time.Minute
	cfg.Storage.Path = "/tmp/runs.db"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load("", path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Agents["coder"].Provider != "codex" || loaded.Agents["coder"].Model != "gpt-5-codex" {
		t.Errorf("coder = %+v, want codex/gpt-5-codex", loaded.Agents["coder"])
	}
	steps := loaded.Workflows["review"].Steps
	if len(steps) != 2 || steps[1].Agent != "reviewer" {
		t.Errorf("workflow steps = %+v", steps)
	}
	if loaded.Orchestration.TaskTimeout != 5*time.Minute {
		t.Errorf("TaskTimeout = %v, want 5m", loaded.Orchestration.TaskTimeout)
	}
	if loaded.Storage.Path != "/tmp/runs.db" {
		t.Errorf("Storage.Path = %q", loaded.Storage.Path)
	}
}

func TestRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers["anthropic"] = ProviderConfig{Type: "anthropic", APIKey: "sk-secret"}

	red := cfg.Redacted()
	if red.Providers["anthropic"].APIKey != "****" {
		t.Errorf("redacted key = %q, want ****", red.Providers["anthropic"].APIKey)
	}
	if cfg.Providers["anthropic"].APIKey != "sk-secret" {
		t.Error("Redacted mutated the original config")
	}
	if red.Providers["claude"].APIKey != "" {
		t.Error("empty keys should stay empty")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Agents["coder"] = AgentConfig{Provider: "missing"} },
			wantErr: `agent "coder": unknown provider "missing"`,
		},
		{
			name:    "unknown provider type",
			mutate:  func(c *Config) { c.Providers["x"] = ProviderConfig{Type: "telnet"} },
			wantErr: `provider "x": unknown type "telnet"`,
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Orchestration.MaxConcurrentTasks = 0 },
			wantErr: "max_concurrent_tasks must be at least 1",
		},
		{
			name:    "bad failure policy",
			mutate:  func(c *Config) { c.Orchestration.FailurePolicy = "explode" },
			wantErr: "failure_policy must be block or continue",
		},
		{
			name:    "coordinator without agent",
			mutate:  func(c *Config) { delete(c.Agents, "conductor") },
			wantErr: `coordinator_role "conductor" has no agent`,
		},
		{
			name: "workflow with unknown agent",
			mutate: func(c *Config) {
				c.Workflows["w"] = WorkflowConfig{Steps: []WorkflowStepConfig{{Agent: "coder"}, {Agent: "tester"}}}
			},
			wantErr: `workflow "w": unknown agent "tester"`,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: "log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
