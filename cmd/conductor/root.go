package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "conductor",
		Short: "Plan objectives into task graphs and run them across AI agents",
		Long: `Conductor asks a coordinator agent to break an objective into tasks,
runs the resulting dependency graph across role-specialised agents
(coder, reviewer, architect, ...) and synthesizes their results.

Configuration is read from ~/.conductor/config.yaml, then .conductor/config.yaml,
then CONDUCTOR_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.out = cmd.OutOrStdout()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (skips the global and project files)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log level: debug, info, warn, error")

	root.AddCommand(
		newOrchestrateCmd(a),
		newDemoCmd(a),
		newAskCmd(a),
		newShortcutCmd(a, "code", "coder", "Ask the coder agent directly"),
		newShortcutCmd(a, "review", "reviewer", "Ask the reviewer agent directly"),
		newShortcutCmd(a, "architect", "architect", "Ask the architect agent directly"),
		newSessionsCmd(a),
		newConfigCmd(a),
	)
	return root
}
