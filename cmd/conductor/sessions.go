package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/conductor/internal/scheduler"
)

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Browse archived runs",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openArchive(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(a.out, "No sessions recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tTASKS\tOBJECTIVE")
			for _, s := range sessions {
				status := string(s.Status)
				if s.Deadlocked {
					status += " (deadlocked)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\n",
					s.ID, s.StartedAt.Local().Format(time.DateTime), status,
					s.TasksCompleted, s.TasksTotal, truncate(s.Objective, 60))
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "maximum sessions to show (0 for all)")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one session with its tasks and deliverable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openArchive(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			s, err := store.GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printSession(a, s)
			return nil
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func printSession(a *app, s *scheduler.Session) {
	fmt.Fprintf(a.out, "Session %s\n", s.ID)
	fmt.Fprintf(a.out, "Objective: %s\n", s.Objective)
	if s.Context != "" {
		fmt.Fprintf(a.out, "Context: %s\n", s.Context)
	}
	fmt.Fprintf(a.out, "Status: %s\n", s.Status)
	fmt.Fprintf(a.out, "Started: %s\n\n", s.StartedAt.Local().Format(time.DateTime))

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tROLE\tSTATUS\tATTEMPTS\tTITLE")
	for _, t := range s.Tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", t.ID, t.AssignedTo, t.Status, t.Attempts, t.Title)
	}
	tw.Flush()

	if s.Deliverable != "" {
		fmt.Fprintf(a.out, "\n%s\n", s.Deliverable)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
