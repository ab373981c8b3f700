package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/conductor/internal/agent"
	"github.com/aristath/conductor/internal/backend"
	"github.com/aristath/conductor/internal/config"
	"github.com/aristath/conductor/internal/orchestrator"
	"github.com/aristath/conductor/internal/persistence"
)

const testPlan = `{"analysis": "two steps", "tasks": [
  {"title": "Design", "description": "Design the validator", "assignTo": "architect"},
  {"title": "Build", "description": "Build the validator", "assignTo": "coder", "dependencies": [1]}
]}`

// echoBackend plays every role: it plans, synthesizes, or echoes.
type echoBackend struct{}

func (echoBackend) Send(ctx context.Context, msg backend.Message) (backend.Response, error) {
	if err := ctx.Err(); err != nil {
		return backend.Response{}, err
	}
	switch {
	case msg.System == orchestrator.SynthesisSystemPrompt:
		return msg.Reply("final deliverable", backend.Usage{}), nil
	case strings.HasPrefix(msg.Content, "Analyze this objective"):
		return msg.Reply(testPlan, backend.Usage{}), nil
	default:
		return msg.Reply("done: "+msg.Content, backend.Usage{}), nil
	}
}

func (echoBackend) Close() error { return nil }

func fakeRegistry(*config.Config, *backend.ProcessManager) (*agent.Registry, error) {
	var agents []*agent.Agent
	for _, role := range []agent.Role{agent.RoleConductor, agent.RoleCoder, agent.RoleReviewer, agent.RoleArchitect} {
		agents = append(agents, agent.New(role, echoBackend{}))
	}
	return agent.NewRegistry(agents...)
}

func testApp() *app {
	a := defaultApp()
	a.buildRegistry = fakeRegistry
	return a
}

// writeConfig writes a config whose archive lives in a temp dir.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
providers:
  anthropic:
    type: anthropic
    api_key: sk-very-secret
orchestration:
  max_retries: 0
storage:
  enabled: true
  path: ` + filepath.Join(dir, "runs.db") + `
log:
  level: error
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(a)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestOrchestrateAndBrowseSessions(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := run(t, testApp(), "--config", cfgPath, "orchestrate", "Validate", "emails", "-c", "HTTP API", "--constraint", "stdlib only")
	require.NoError(t, err)
	assert.Contains(t, out, "Tasks Completed: 2/2")
	assert.Contains(t, out, "final deliverable")

	id := regexp.MustCompile(`ID: (\S+)`).FindStringSubmatch(out)
	require.Len(t, id, 2, out)

	out, err = run(t, testApp(), "--config", cfgPath, "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, id[1])
	assert.Contains(t, out, "Validate emails")
	assert.Contains(t, out, "2/2")

	out, err = run(t, testApp(), "--config", cfgPath, "sessions", "show", id[1])
	require.NoError(t, err)
	assert.Contains(t, out, "Context: HTTP API")
	assert.Contains(t, out, "Design")
	assert.Contains(t, out, "architect")
	assert.Contains(t, out, "final deliverable")

	_, err = run(t, testApp(), "--config", cfgPath, "sessions", "show", "missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestOrchestrateRejectsUnknownPreferredRole(t *testing.T) {
	_, err := run(t, testApp(), "--config", writeConfig(t), "orchestrate", "x", "--prefer", "pilot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preferred roles")
}

func TestAskAndShortcuts(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := run(t, testApp(), "--config", cfgPath, "ask", "Reviewer", "is", "this", "safe?")
	require.NoError(t, err)
	assert.Contains(t, out, "done: is this safe?")

	out, err = run(t, testApp(), "--config", cfgPath, "code", "write a parser")
	require.NoError(t, err)
	assert.Contains(t, out, "done: write a parser")

	_, err = run(t, testApp(), "--config", cfgPath, "ask", "researcher", "find papers")
	assert.ErrorIs(t, err, agent.ErrUnknownRole)
}

func TestConfigShowMasksSecrets(t *testing.T) {
	out, err := run(t, testApp(), "--config", writeConfig(t), "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "****")
	assert.NotContains(t, out, "sk-very-secret")
	assert.Contains(t, out, "max_retries: 0")
}

func TestConfigInitProject(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := run(t, testApp(), "config", "init", "--project")
	require.NoError(t, err)
	assert.Contains(t, out, config.ProjectPath())

	_, err = os.Stat(config.ProjectPath())
	require.NoError(t, err)

	_, err = run(t, testApp(), "config", "init", "--project")
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, testApp(), "config", "init", "--project", "--force")
	assert.NoError(t, err)

	// The written file loads back
	_, err = config.LoadFile(config.ProjectPath())
	assert.NoError(t, err)
}

func TestInvalidConfigIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agents:\n  coder:\n    provider: nowhere\n"), 0o600))

	_, err := run(t, testApp(), "--config", path, "ask", "coder", "hi")
	assert.ErrorContains(t, err, "invalid config")
}

// TestCancelKillsProviderProcesses verifies that cancelling the command
// context terminates tracked provider subprocesses.
func TestCancelKillsProviderProcesses(t *testing.T) {
	a := testApp()
	a.configPath = writeConfig(t)
	a.out = io.Discard

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt, err := a.start(ctx, runtimeOptions{})
	require.NoError(t, err)
	defer rt.Close()

	cmd := exec.Command("sleep", "60")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	require.NoError(t, cmd.Start())
	rt.pm.Track(cmd)
	defer rt.pm.Untrack(cmd)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	cancel()

	select {
	case err := <-done:
		assert.Error(t, err, "process should have been killed")
	case <-time.After(2 * time.Second):
		cmd.Process.Kill()
		t.Fatal("process survived cancellation")
	}
}
