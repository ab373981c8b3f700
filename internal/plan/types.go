package plan

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Plan is a decoded planner answer.
type Plan struct {
	Analysis string     `json:"analysis" yaml:"analysis"`
	Tasks    []TaskSpec `json:"tasks" yaml:"tasks"`
	Workflow string     `json:"workflow" yaml:"workflow"`
}

// TaskSpec is one task as the planner wrote it.
type TaskSpec struct {
	Title        string         `json:"title" yaml:"title"`
	Description  string         `json:"description" yaml:"description"`
	AssignTo     string         `json:"assignTo" yaml:"assignTo"`
	Dependencies dependencyList `json:"dependencies" yaml:"dependencies"`
	Priority     string         `json:"priority" yaml:"priority"`
}

// dependencyList accepts a list or a single value, with strings or task
// numbers as items. Number n stands for task-n.
type dependencyList []string

func (d *dependencyList) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	items, err := dependencyItems(raw)
	if err != nil {
		return err
	}
	*d = items
	return nil
}

func (d *dependencyList) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	items, err := dependencyItems(raw)
	if err != nil {
		return err
	}
	*d = items
	return nil
}

func dependencyItems(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			s, err := dependencyItem(item)
			if err != nil {
				return nil, err
			}
			if s != "" {
				items = append(items, s)
			}
		}
		return items, nil
	default:
		s, err := dependencyItem(v)
		if err != nil || s == "" {
			return nil, err
		}
		return []string{s}, nil
	}
}

func dependencyItem(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case int:
		return numberedID(float64(v)), nil
	case float64:
		return numberedID(v), nil
	default:
		return "", fmt.Errorf("unsupported dependency %v (%T)", raw, raw)
	}
}

func numberedID(n float64) string {
	if n >= 1 && n == math.Trunc(n) {
		return "task-" + strconv.Itoa(int(n))
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}
