package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates and returns the root cobra command for nexus.
func NewRootCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nexus",
		Short: "Autonomous software-construction orchestration engine",
		Long: `Nexus decomposes a submitted feature into a dependency-ordered task
graph, schedules each task onto an isolated worktree run by a
role-specialized agent, drives every result through a self-healing
build/lint/test/review loop, and merges completed work back to the
integration branch.`,
		Version: version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())

	return cmd
}
