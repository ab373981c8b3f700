package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DecodeError reports a planner answer that holds no readable plan.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode plan: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

var fencePattern = regexp.MustCompile("(?s)```([A-Za-z]*)[ \\t]*\\r?\\n?(.*?)```")

type candidate struct {
	body   string
	isYAML bool
}

// Decode extracts a plan from a planner answer. The first fenced block is
// used when there is one, otherwise the whole text; failing that, the
// outermost JSON object or array inside the text.
func Decode(raw string) (*Plan, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, &DecodeError{Err: errors.New("empty response")}
	}

	var candidates []candidate
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		lang := strings.ToLower(m[1])
		candidates = append(candidates, candidate{body: m[2], isYAML: lang == "yaml" || lang == "yml"})
	} else {
		candidates = append(candidates, candidate{body: text})
	}
	if span, ok := outermostSpan(text); ok && span != candidates[0].body {
		candidates = append(candidates, candidate{body: span})
	}

	var firstErr error
	for _, c := range candidates {
		p, err := decodePayload(c.body, c.isYAML)
		if err == nil {
			return p, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, &DecodeError{Err: firstErr}
}

// outermostSpan returns the text from the first '{' or '[' to the last
// matching closer.
func outermostSpan(text string) (string, bool) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", false
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func decodePayload(body string, isYAML bool) (*Plan, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.New("empty payload")
	}
	if isYAML {
		return decodeYAML(body)
	}

	switch body[0] {
	case '[':
		var tasks []TaskSpec
		if err := json.Unmarshal([]byte(body), &tasks); err != nil {
			return nil, fmt.Errorf("task list: %w", err)
		}
		return &Plan{Tasks: tasks}, nil
	case '{':
		var p Plan
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			return nil, fmt.Errorf("plan object: %w", err)
		}
		return &p, nil
	default:
		return nil, errors.New("payload is neither a JSON object nor an array")
	}
}

func decodeYAML(body string) (*Plan, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}

	switch root.Kind {
	case yaml.SequenceNode:
		var tasks []TaskSpec
		if err := root.Decode(&tasks); err != nil {
			return nil, fmt.Errorf("yaml task list: %w", err)
		}
		return &Plan{Tasks: tasks}, nil
	case yaml.MappingNode:
		var p Plan
		if err := root.Decode(&p); err != nil {
			return nil, fmt.Errorf("yaml plan: %w", err)
		}
		return &p, nil
	default:
		return nil, errors.New("yaml payload is neither a mapping nor a sequence")
	}
}
