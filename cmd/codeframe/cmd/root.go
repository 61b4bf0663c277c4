// Package cmd wires CodeFRAME's cobra command tree: a root command with a
// single serve subcommand, following the project's split between the
// process entry point (cmd/codeframe/main.go) and its command definitions.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "codeframe",
	Short: "Multi-agent autonomous software delivery orchestrator",
	Long: `codeframe drives a product brief through discovery, planning, and
autonomous multi-agent implementation: a lead agent decomposes work into a
task graph, a bounded pool of worker agents executes it in parallel, and a
quality gate reviews every task before it's accepted.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
