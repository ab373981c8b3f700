package scheduler

import (
	"strings"
	"testing"
)

// TestDAGValidate tests DAG validation with various graph structures.
func TestDAGValidate(t *testing.T) {
	tests := []struct {
		name        string
		setup       func() *DAG
		wantErr     bool
		errContains string
	}{
		{
			name: "valid linear chain",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(newTask("A", "coder"))
				dag.AddTask(newTask("B", "coder", "A"))
				dag.AddTask(newTask("C", "coder", "B"))
				return dag
			},
		},
		{
			name: "valid parallel tasks",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(newTask("A", "coder"))
				dag.AddTask(newTask("B", "coder"))
				dag.AddTask(newTask("C", "coder", "A", "B"))
				return dag
			},
		},
		{
			name: "direct cycle",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(newTask("A", "coder", "B"))
				dag.AddTask(newTask("B", "coder", "A"))
				return dag
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "transitive cycle",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(newTask("A", "coder", "B"))
				dag.AddTask(newTask("B", "coder", "C"))
				dag.AddTask(newTask("C", "coder", "A"))
				return dag
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "missing dependency",
			setup: func() *DAG {
				dag := NewDAG()
				dag.AddTask(newTask("A", "coder", "ghost"))
				return dag
			},
			wantErr:     true,
			errContains: "non-existent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := tt.setup().Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q does not contain %q", err, tt.errContains)
				}
				return
			}
			pos := make(map[string]int)
			for i, id := range order {
				pos[id] = i
			}
			if pos["C"] <= pos["A"] {
				t.Errorf("C sorted before A: %v", order)
			}
		})
	}
}

func TestDAGAddTaskDuplicate(t *testing.T) {
	dag := NewDAG()
	if err := dag.AddTask(newTask("A", "coder")); err != nil {
		t.Fatalf("first AddTask: %v", err)
	}
	if err := dag.AddTask(newTask("A", "coder")); err == nil {
		t.Fatal("expected error for duplicate task ID")
	}
	if _, err := NewDAGFromTasks([]*Task{newTask("A", "coder"), newTask("A", "coder")}); err == nil {
		t.Fatal("expected error from NewDAGFromTasks")
	}
}

func TestDAGReadyDeclarationOrder(t *testing.T) {
	dag, _ := NewDAGFromTasks([]*Task{
		newTask("task-1", "coder"),
		newTask("task-2", "coder", "task-1"),
		newTask("task-3", "coder"),
		newTask("task-4", "coder"),
	})

	ready := dag.Ready(FailBlock)
	got := ids(ready)
	want := []string{"task-1", "task-3", "task-4"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Ready() = %v, want %v", got, want)
	}
}

func TestDAGReadyPolicy(t *testing.T) {
	tests := []struct {
		name      string
		policy    FailurePolicy
		wantReady bool
	}{
		{"block requires completed dependency", FailBlock, false},
		{"continue accepts failed dependency", FailContinue, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dag, _ := NewDAGFromTasks([]*Task{newTask("A", "coder"), newTask("B", "coder", "A")})
			dag.MarkRunning("A")
			dag.MarkFailed("A", nil)

			ready := dag.Ready(tt.policy)
			if got := len(ready) == 1 && ready[0].ID == "B"; got != tt.wantReady {
				t.Errorf("B ready = %v, want %v (ready %v)", got, tt.wantReady, ids(ready))
			}
		})
	}
}

func TestDAGReadyUnknownDependencyNeverReady(t *testing.T) {
	dag, _ := NewDAGFromTasks([]*Task{newTask("A", "coder", "ghost")})
	if ready := dag.Ready(FailContinue); len(ready) != 0 {
		t.Errorf("expected nothing ready, got %v", ids(ready))
	}
}

func TestDAGBlockUnreachableTransitive(t *testing.T) {
	dag, _ := NewDAGFromTasks([]*Task{
		newTask("A", "coder"),
		newTask("B", "coder", "A"),
		newTask("C", "coder", "B"),
		newTask("D", "coder"),
	})
	dag.MarkRunning("A")
	dag.MarkFailed("A", nil)

	blocked := dag.BlockUnreachable()
	if len(blocked) != 2 {
		t.Fatalf("expected 2 blocked tasks, got %v", blocked)
	}
	if blocked[0] != (BlockedTask{ID: "B", BlockedBy: "A"}) || blocked[1] != (BlockedTask{ID: "C", BlockedBy: "B"}) {
		t.Errorf("unexpected blocked chain: %v", blocked)
	}

	d, _ := dag.Get("D")
	if d.Status != TaskPending {
		t.Errorf("independent task status = %s, want pending", d.Status)
	}
	if again := dag.BlockUnreachable(); len(again) != 0 {
		t.Errorf("second call blocked %v", again)
	}
}

func TestDAGBlockUnreachableDiamond(t *testing.T) {
	dag, _ := NewDAGFromTasks([]*Task{
		newTask("A", "coder"),
		newTask("B", "coder", "A"),
		newTask("C", "coder"),
		newTask("D", "coder", "B", "C"),
	})
	dag.MarkRunning("A")
	dag.MarkFailed("A", nil)
	dag.MarkRunning("C")
	dag.MarkCompleted("C", "ok")

	blocked := dag.BlockUnreachable()
	if len(blocked) != 2 || blocked[1] != (BlockedTask{ID: "D", BlockedBy: "B"}) {
		t.Fatalf("unexpected blocked set: %v", blocked)
	}
	c, _ := dag.Get("C")
	if c.Status != TaskCompleted {
		t.Errorf("completed task was touched: %s", c.Status)
	}
}

func TestDAGStateTransitions(t *testing.T) {
	dag, _ := NewDAGFromTasks([]*Task{newTask("A", "coder")})

	n, err := dag.MarkRunning("A")
	if err != nil || n != 1 {
		t.Fatalf("MarkRunning = (%d, %v)", n, err)
	}
	if _, err := dag.MarkRunning("A"); err == nil {
		t.Error("expected error running an in-progress task")
	}
	if err := dag.MarkPending("A"); err == nil {
		t.Error("expected error returning an in-progress task to pending")
	}

	dag.MarkFailed("A", nil)
	if err := dag.MarkPending("A"); err != nil {
		t.Fatalf("MarkPending: %v", err)
	}
	if n, _ := dag.MarkRunning("A"); n != 2 {
		t.Errorf("second attempt = %d, want 2", n)
	}

	if err := dag.MarkCompleted("A", "ok"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	a, _ := dag.Get("A")
	if a.Status != TaskCompleted || a.Result != "ok" || a.CompletedAt == nil {
		t.Errorf("unexpected task after completion: %+v", a)
	}
	if a.CompletedAt.Before(a.CreatedAt) {
		t.Error("CompletedAt before CreatedAt")
	}

	if err := dag.MarkCompleted("missing", ""); err == nil {
		t.Error("expected error for unknown task")
	}
}

func TestDAGGetReturnsCopy(t *testing.T) {
	dag, _ := NewDAGFromTasks([]*Task{newTask("A", "coder"), newTask("B", "coder", "A")})

	b, _ := dag.Get("B")
	b.Status = TaskCompleted
	b.Dependencies[0] = "mutated"

	again, _ := dag.Get("B")
	if again.Status != TaskPending || again.Dependencies[0] != "A" {
		t.Errorf("Get leaked internal state: %+v", again)
	}
}

func TestDAGCompletedDependencies(t *testing.T) {
	dag, _ := NewDAGFromTasks([]*Task{
		newTask("A", "coder"),
		newTask("B", "coder"),
		newTask("C", "coder"),
		newTask("D", "coder", "C", "A", "B"),
	})
	for _, id := range []string{"A", "C"} {
		dag.MarkRunning(id)
		dag.MarkCompleted(id, "result "+id)
	}
	dag.MarkRunning("B")
	dag.MarkFailed("B", nil)

	got := ids(dag.CompletedDependencies("D"))
	if strings.Join(got, ",") != "A,C" {
		t.Errorf("CompletedDependencies = %v, want [A C]", got)
	}
}

func ids(tasks []*Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}
