package plan

import (
	"fmt"
	"strings"

	"github.com/aristath/conductor/internal/agent"
)

// Format describes the plan payload the parser understands.
const Format = `{
  "analysis": "Brief analysis of the objective",
  "tasks": [
    {
      "title": "Task title",
      "description": "What needs to be done",
      "assignTo": "coder|reviewer|architect|researcher",
      "dependencies": ["task-<n> or title of an earlier task"],
      "priority": "critical|high|medium|low"
    }
  ],
  "workflow": "Explanation of how tasks connect"
}`

// BuildPrompt renders the planning instruction for req.
func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Analyze this objective and create a task plan:\n\n")
	fmt.Fprintf(&b, "OBJECTIVE: %s\n", req.Objective)
	if req.Context != "" {
		fmt.Fprintf(&b, "CONTEXT: %s\n", req.Context)
	}
	if len(req.Constraints) > 0 {
		fmt.Fprintf(&b, "CONSTRAINTS: %s\n", strings.Join(req.Constraints, ", "))
	}
	if len(req.PreferredRoles) > 0 {
		roles := make([]string, 0, len(req.PreferredRoles))
		for _, r := range req.PreferredRoles {
			roles = append(roles, string(r))
		}
		fmt.Fprintf(&b, "PREFERRED AGENTS: %s\n", strings.Join(roles, ", "))
	}

	known := make([]string, 0, len(agent.KnownRoles()))
	for _, r := range agent.KnownRoles() {
		known = append(known, string(r))
	}
	fmt.Fprintf(&b, "\nAssign each task to one of: %s.\n", strings.Join(known, ", "))
	b.WriteString("Tasks are numbered task-1, task-2, ... in the order you list them.\n\n")
	b.WriteString("Respond with a JSON task plan in this format:\n")
	b.WriteString(Format)
	return b.String()
}
