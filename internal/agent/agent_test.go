package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/conductor/internal/backend"
)

// stubBackend returns a fixed answer, or err, and keeps the last message.
type stubBackend struct {
	answer      string
	err         error
	keepHistory bool // When false, the response carries no history
	last        backend.Message
	closed      bool
}

func (s *stubBackend) Send(_ context.Context, msg backend.Message) (backend.Response, error) {
	s.last = msg
	if s.err != nil {
		return backend.Response{}, s.err
	}
	if s.keepHistory {
		return msg.Reply(s.answer, backend.Usage{}), nil
	}
	return backend.Response{Content: s.answer}, nil
}

func (s *stubBackend) Close() error {
	s.closed = true
	return s.err
}

func TestNormalizeRole(t *testing.T) {
	assert.Equal(t, RoleCoder, NormalizeRole("  CoDer\n"))
	assert.True(t, NormalizeRole("Architect").IsKnown())
	assert.False(t, Role("pilot").IsKnown())
	assert.False(t, RoleBroadcast.IsKnown())
}

func TestAgentInvoke(t *testing.T) {
	b := &stubBackend{answer: "hello"}
	a := New(RoleCoder, b, WithName("Coder"), WithSystemPrompt("write code"))
	assert.Equal(t, "Coder", a.Name())

	history := backend.Conversation{}.Append(backend.TurnUser, "earlier").Append(backend.TurnAssistant, "reply")
	resp, err := a.Invoke(context.Background(), "now this", history)
	require.NoError(t, err)

	assert.Equal(t, "write code", b.last.System)
	assert.Equal(t, "now this", b.last.Content)
	assert.Len(t, b.last.History, 2)

	// Missing history is rebuilt from the exchange
	require.Len(t, resp.History, 4)
	assert.Equal(t, "now this", resp.History[2].Content)
	assert.Equal(t, "hello", resp.History[3].Content)
	assert.Len(t, history, 2, "caller history must not change")
}

func TestAgentInvoke_SystemOverride(t *testing.T) {
	b := &stubBackend{answer: "ok", keepHistory: true}
	a := New(RoleConductor, b, WithSystemPrompt("plan"))

	_, err := a.Invoke(context.Background(), "merge", nil, WithSystem("synthesize"))
	require.NoError(t, err)
	assert.Equal(t, "synthesize", b.last.System)
}

func TestAgentInvoke_ErrorKeepsHistory(t *testing.T) {
	b := &stubBackend{err: errors.New("boom")}
	a := New(RoleCoder, b)
	history := backend.Conversation{}.Append(backend.TurnUser, "earlier")

	resp, err := a.Invoke(context.Background(), "again", history)
	require.Error(t, err)
	assert.Equal(t, history, resp.History)
}

func TestRegistry(t *testing.T) {
	coder := New(RoleCoder, &stubBackend{})
	reviewer := New(RoleReviewer, &stubBackend{})

	reg, err := NewRegistry(reviewer, coder)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []Role{RoleCoder, RoleReviewer}, reg.Roles())

	got, ok := reg.Get(RoleCoder)
	assert.True(t, ok)
	assert.Same(t, coder, got)

	_, err = reg.MustGet(RoleArchitect)
	assert.ErrorIs(t, err, ErrUnknownRole)

	_, err = NewRegistry(coder, New(RoleCoder, &stubBackend{}))
	assert.ErrorIs(t, err, ErrDuplicateRole)
}

func TestRegistryClose(t *testing.T) {
	ok := &stubBackend{}
	failing := &stubBackend{err: errors.New("stuck")}
	reg, err := NewRegistry(New(RoleCoder, ok), New(RoleReviewer, failing))
	require.NoError(t, err)

	err = reg.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close reviewer: stuck")
	assert.True(t, ok.closed)
	assert.True(t, failing.closed)
}
