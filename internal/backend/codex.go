package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CodexAdapter is the Codex CLI backend adapter.
// It uses `codex exec` once per Send; prior turns travel in the prompt.
type CodexAdapter struct {
	command string
	args    []string
	workDir string
	model   string
	procMgr *ProcessManager
}

// codexEvent is one line of the `--json` event stream.
type codexEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Message string `json:"message"`
}

// NewCodexAdapter creates a new Codex backend adapter.
func NewCodexAdapter(cfg Config, procMgr *ProcessManager) (*CodexAdapter, error) {
	command := cfg.Command
	if command == "" {
		command = "codex"
	}

	return &CodexAdapter{
		command: command,
		args:    cfg.Args,
		workDir: cfg.WorkDir,
		model:   cfg.Model,
		procMgr: procMgr,
	}, nil
}

// Send sends a message to the Codex CLI and returns the response.
func (c *CodexAdapter) Send(ctx context.Context, msg Message) (Response, error) {
	cmd := newCommand(ctx, c.command, c.buildArgs(msg)...)
	cmd.Dir = c.workDir

	stdout, _, err := executeCommand(ctx, cmd, c.procMgr)
	if err != nil {
		return Response{}, fmt.Errorf("codex command failed: %w", err)
	}

	content, err := parseCodexEvents(stdout)
	if err != nil {
		return Response{}, fmt.Errorf("failed to parse codex events: %w", err)
	}

	return msg.Reply(content, Usage{}), nil
}

// buildArgs constructs the command arguments for codex CLI:
// ["exec", prompt, "--json", ...].
func (c *CodexAdapter) buildArgs(msg Message) []string {
	args := []string{"exec", renderPrompt(msg.System, msg.History, msg.Content), "--json"}

	if c.model != "" {
		args = append(args, "--model", c.model)
	}

	return append(args, c.args...)
}

// parseCodexEvents parses newline-delimited JSON events from Codex CLI output
// and returns the content of the last TurnCompleted event.
func parseCodexEvents(data []byte) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		content   string
		completed bool
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var evt codexEvent
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			return "", fmt.Errorf("failed to parse event: %w", err)
		}

		switch evt.Type {
		case "TurnCompleted":
			content = evt.Content
			completed = true
		case "Error":
			return "", fmt.Errorf("codex reported an error: %s", evt.Message)
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("error reading events: %w", err)
	}
	if !completed {
		return "", fmt.Errorf("no TurnCompleted event in output")
	}

	return content, nil
}

// Close is a no-op: Codex is invoked per message.
func (c *CodexAdapter) Close() error {
	return nil
}
