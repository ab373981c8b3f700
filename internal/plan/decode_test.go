package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantTasks int
		wantTitle string
	}{
		{
			name:      "bare object",
			raw:       `{"tasks": [{"title": "One"}]}`,
			wantTasks: 1,
			wantTitle: "One",
		},
		{
			name:      "bare array",
			raw:       `[{"title": "One"}, {"title": "Two"}]`,
			wantTasks: 2,
			wantTitle: "One",
		},
		{
			name:      "untagged fence",
			raw:       "```\n{\"tasks\": [{\"title\": \"Fenced\"}]}\n```",
			wantTasks: 1,
			wantTitle: "Fenced",
		},
		{
			name:      "object inside prose",
			raw:       "Sure! {\"tasks\": [{\"title\": \"Embedded\"}]} Let me know.",
			wantTasks: 1,
			wantTitle: "Embedded",
		},
		{
			name:      "yaml fence",
			raw:       "```yaml\nanalysis: short\ntasks:\n  - title: From YAML\n    assignTo: coder\n    dependencies: [1]\n```",
			wantTasks: 1,
			wantTitle: "From YAML",
		},
		{
			name:      "yml sequence",
			raw:       "```yml\n- title: First\n- title: Second\n```",
			wantTasks: 2,
			wantTitle: "First",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Decode(tt.raw)
			require.NoError(t, err)
			require.Len(t, p.Tasks, tt.wantTasks)
			assert.Equal(t, tt.wantTitle, p.Tasks[0].Title)
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	for _, raw := range []string{"", "   ", "no json at all", "```json\nnot json\n```", `{"tasks": "nope"}`} {
		_, err := Decode(raw)
		require.Error(t, err, "raw %q", raw)

		var decodeErr *DecodeError
		assert.True(t, errors.As(err, &decodeErr), "raw %q", raw)
	}
}

func TestDependencyList(t *testing.T) {
	p, err := Decode(`{"tasks": [{"title": "x", "dependencies": [2, " task-1 ", "", 1.5]}]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"task-2", "task-1", "1.5"}, []string(p.Tasks[0].Dependencies))

	_, err = Decode(`{"tasks": [{"title": "x", "dependencies": [{"id": 1}]}]}`)
	assert.Error(t, err)
}
