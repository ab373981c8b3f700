package backend

import (
	"context"
	"fmt"
)

// Backend types accepted by New.
const (
	TypeAnthropic = "anthropic"
	TypeClaude    = "claude"
	TypeCodex     = "codex"
	TypeGoose     = "goose"
)

// Backend defines the interface that all backend adapters must implement.
type Backend interface {
	// Send answers msg.Content given msg.System and msg.History.
	// Implementations hold no conversation state of their own.
	Send(ctx context.Context, msg Message) (Response, error)

	// Close releases any resources held by the backend.
	Close() error
}

// New creates a new backend based on the provided configuration.
// This factory function switches on cfg.Type and returns the appropriate adapter.
func New(cfg Config, pm *ProcessManager) (Backend, error) {
	switch cfg.Type {
	case TypeAnthropic:
		return NewAnthropicAdapter(cfg)
	case TypeClaude:
		return NewClaudeAdapter(cfg, pm)
	case TypeCodex:
		return NewCodexAdapter(cfg, pm)
	case TypeGoose:
		return NewGooseAdapter(cfg, pm)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}
