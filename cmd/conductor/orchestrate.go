package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aristath/conductor/internal/agent"
	"github.com/aristath/conductor/internal/events"
	"github.com/aristath/conductor/internal/orchestrator"
	"github.com/aristath/conductor/internal/plan"
	"github.com/aristath/conductor/internal/scheduler"
	"github.com/aristath/conductor/internal/tui"
)

const (
	demoObjective = "Create a simple Go function that validates email addresses with proper error handling"
	demoContext   = "This will be used in an HTTP backend API"
)

func newOrchestrateCmd(a *app) *cobra.Command {
	var (
		contextText string
		constraints []string
		prefer      []string
		useTUI      bool
	)

	cmd := &cobra.Command{
		Use:   "orchestrate <objective>",
		Short: "Plan an objective and run it across agents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := plan.Request{
				Objective:   strings.Join(args, " "),
				Context:     contextText,
				Constraints: constraints,
			}
			for _, role := range prefer {
				req.PreferredRoles = append(req.PreferredRoles, agent.NormalizeRole(role))
			}
			return a.orchestrate(cmd.Context(), req, useTUI)
		},
	}

	cmd.Flags().StringVarP(&contextText, "context", "c", "", "additional context for the planner")
	cmd.Flags().StringArrayVar(&constraints, "constraint", nil, "constraint the plan must respect (repeatable)")
	cmd.Flags().StringSliceVar(&prefer, "prefer", nil, "roles the planner should favour")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "show a live view of the run")
	return cmd
}

func newDemoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run a demo orchestration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(a.out, "Running demo orchestration: %s\n\n", demoObjective)
			return a.orchestrate(cmd.Context(), plan.Request{Objective: demoObjective, Context: demoContext}, false)
		},
	}
}

func (a *app) orchestrate(ctx context.Context, req plan.Request, useTUI bool) error {
	rt, err := a.start(ctx, runtimeOptions{quiet: useTUI})
	if err != nil {
		return err
	}
	defer rt.Close()

	if !useTUI {
		o, err := rt.orchestrator()
		if err != nil {
			return err
		}
		session, err := o.Orchestrate(ctx, req)
		if session != nil {
			printSummary(a.out, session)
		}
		return err
	}

	bus := events.NewEventBus()
	o, err := rt.orchestrator(orchestrator.WithPublisher(bus))
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub := bus.Subscribe(runCtx, events.Filter{}, 1024)
	program := tea.NewProgram(tui.New(sub, req.Objective), tea.WithAltScreen(), tea.WithContext(runCtx))

	type outcome struct {
		session *scheduler.Session
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		session, err := o.Orchestrate(runCtx, req)
		bus.Close()
		done <- outcome{session, err}
	}()

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		rt.logger.Warn("live view stopped", zap.Error(err))
	}
	// Leaving the view stops the run
	cancel()
	res := <-done

	if n := bus.Dropped(); n > 0 {
		rt.logger.Warn("live view missed events", zap.Uint64("dropped", n))
	}

	if res.session != nil {
		printSummary(a.out, res.session)
	}
	return res.err
}

func printSummary(w io.Writer, s *scheduler.Session) {
	duration := s.Duration().Round(100 * time.Millisecond)

	fmt.Fprintln(w, "Session Summary:")
	fmt.Fprintf(w, "   ID: %s\n", s.ID)
	fmt.Fprintf(w, "   Tasks Completed: %d/%d\n", len(s.CompletedTasks()), len(s.Tasks))
	fmt.Fprintf(w, "   Duration: %.1fs\n", duration.Seconds())
	if s.Deadlocked {
		var stalled []string
		for _, t := range s.Tasks {
			if !t.Status.Finished() {
				stalled = append(stalled, t.ID)
			}
		}
		fmt.Fprintf(w, "   Deadlocked: %s\n", strings.Join(stalled, ", "))
	}
	for _, t := range s.Tasks {
		if t.Status == scheduler.TaskFailed {
			fmt.Fprintf(w, "   Failed: %s (%s): %s\n", t.ID, t.Title, t.Err)
		}
	}
	if s.Deliverable != "" {
		fmt.Fprintf(w, "\n%s\n", s.Deliverable)
	}
}
