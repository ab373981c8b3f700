package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// GooseAdapter is a Backend implementation for the Goose CLI.
// Goose supports local LLM providers (Ollama, LM Studio, llama.cpp) via --provider and --model flags.
type GooseAdapter struct {
	command  string
	args     []string
	workDir  string
	model    string
	provider string
	procMgr  *ProcessManager
}

// gooseResponse represents the JSON response structure from Goose CLI.
type gooseResponse struct {
	Content string `json:"content"`
}

// NewGooseAdapter creates a new Goose adapter.
func NewGooseAdapter(cfg Config, procMgr *ProcessManager) (*GooseAdapter, error) {
	command := cfg.Command
	if command == "" {
		command = "goose"
	}

	return &GooseAdapter{
		command:  command,
		args:     cfg.Args,
		workDir:  cfg.WorkDir,
		model:    cfg.Model,
		provider: cfg.Provider,
		procMgr:  procMgr,
	}, nil
}

// Send sends a message to Goose and returns the response.
func (g *GooseAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	cmd := newCommand(ctx, g.command, g.buildArgs(msg)...)
	cmd.Dir = g.workDir

	stdout, _, err := executeCommand(ctx, cmd, g.procMgr)
	if err != nil {
		return Response{}, fmt.Errorf("goose command failed: %w", err)
	}

	content, parseErr := parseGooseResponse(stdout)
	if parseErr != nil {
		// Older goose builds ignore --output-format json
		content = strings.TrimSpace(string(stdout))
	}

	return msg.Reply(content, Usage{}), nil
}

// buildArgs constructs the command-line arguments for the Goose CLI.
// Each call is a throwaway session (--no-session).
func (g *GooseAdapter) buildArgs(msg Message) []string {
	args := []string{"run", "--text", renderPrompt("", msg.History, msg.Content), "--output-format", "json", "--no-session"}

	if g.provider != "" {
		args = append(args, "--provider", g.provider)
	}
	if g.model != "" {
		args = append(args, "--model", g.model)
	}
	if msg.System != "" {
		args = append(args, "--system", msg.System)
	}

	return append(args, g.args...)
}

// parseGooseResponse parses the JSON response from Goose CLI.
// Tries parsing as a single JSON object first.
// If that fails, tries newline-delimited JSON (stream-json format).
func parseGooseResponse(data []byte) (string, error) {
	var gooseResp gooseResponse
	if err := json.Unmarshal(data, &gooseResp); err == nil {
		return gooseResp.Content, nil
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	var contents []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var lineResp gooseResponse
		if err := json.Unmarshal([]byte(line), &lineResp); err == nil {
			if lineResp.Content != "" {
				contents = append(contents, lineResp.Content)
			}
		}
	}

	if len(contents) > 0 {
		return strings.Join(contents, "\n"), nil
	}

	return "", fmt.Errorf("failed to parse Goose JSON response")
}

// Close is a no-op: each invocation is a separate subprocess.
func (g *GooseAdapter) Close() error {
	return nil
}
