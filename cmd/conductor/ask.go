package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/conductor/internal/agent"
)

func newAskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <role> <request>",
		Short: "Send a request straight to one agent",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.ask(cmd.Context(), agent.NormalizeRole(args[0]), strings.Join(args[1:], " "))
		},
	}
}

func newShortcutCmd(a *app, use string, role agent.Role, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <request>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.ask(cmd.Context(), role, strings.Join(args, " "))
		},
	}
}

func (a *app) ask(ctx context.Context, role agent.Role, request string) error {
	rt, err := a.start(ctx, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	o, err := rt.orchestrator()
	if err != nil {
		return err
	}
	answer, err := o.Ask(ctx, role, request)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "\n%s\n", answer)
	return nil
}
