package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// ClaudeAdapter implements the Backend interface for the Claude Code CLI.
// Every Send is a fresh `claude -p` invocation; prior turns travel in the prompt.
type ClaudeAdapter struct {
	command string
	args    []string
	workDir string
	model   string
	procMgr *ProcessManager
}

// claudeResponse represents the JSON structure returned by Claude Code CLI.
// Current releases emit {"result": "text", "usage": {...}}; older ones nested
// the text as {"result": {"content": [{"type": "text", "text": "..."}]}}.
type claudeResponse struct {
	IsError bool            `json:"is_error"`
	Result  json.RawMessage `json:"result"`
	Usage   struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

type claudeContent struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// NewClaudeAdapter creates a new Claude Code backend adapter.
// The ProcessManager is optional - if nil, subprocesses won't be tracked.
func NewClaudeAdapter(cfg Config, procMgr *ProcessManager) (*ClaudeAdapter, error) {
	workDir := cfg.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	command := cfg.Command
	if command == "" {
		command = "claude"
	}

	return &ClaudeAdapter{
		command: command,
		args:    cfg.Args,
		workDir: workDir,
		model:   cfg.Model,
		procMgr: procMgr,
	}, nil
}

// Send runs one claude invocation and returns its answer.
func (a *ClaudeAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	cmd := newCommand(ctx, a.command, a.buildArgs(msg)...)
	cmd.Dir = a.workDir

	stdout, stderr, err := executeCommand(ctx, cmd, a.procMgr)
	if err != nil {
		return Response{}, fmt.Errorf("claude command failed: %w", err)
	}

	content, usage, err := parseClaudeResponse(stdout)
	if err != nil {
		return Response{}, fmt.Errorf("failed to parse claude response: %w (stderr: %s)", err, string(stderr))
	}

	return msg.Reply(content, usage), nil
}

// Close is a no-op for Claude Code (subprocess-per-invocation model).
func (a *ClaudeAdapter) Close() error {
	return nil
}

// buildArgs constructs the command-line arguments for the claude CLI.
func (a *ClaudeAdapter) buildArgs(msg Message) []string {
	args := []string{"-p", renderPrompt("", msg.History, msg.Content), "--output-format", "json"}

	if a.model != "" {
		args = append(args, "--model", a.model)
	}
	if msg.System != "" {
		args = append(args, "--system-prompt", msg.System)
	}

	return append(args, a.args...)
}

// parseClaudeResponse parses the JSON output from Claude Code CLI.
func parseClaudeResponse(data []byte) (string, Usage, error) {
	var cr claudeResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return "", Usage{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	usage := Usage{InputTokens: cr.Usage.InputTokens, OutputTokens: cr.Usage.OutputTokens}

	var text string
	if err := json.Unmarshal(cr.Result, &text); err != nil {
		var nested claudeContent
		if err := json.Unmarshal(cr.Result, &nested); err != nil {
			return "", usage, fmt.Errorf("unexpected result payload: %s", string(cr.Result))
		}
		for _, item := range nested.Content {
			if item.Type == "text" {
				text += item.Text
			}
		}
	}

	if cr.IsError {
		return "", usage, fmt.Errorf("claude reported an error: %s", text)
	}
	return text, usage, nil
}
