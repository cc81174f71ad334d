package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/drydocklabs/drydock/cmd/drydock/commands"
	"github.com/drydocklabs/drydock/logger"
)

var rootCmd = &cobra.Command{
	Use:   "drydock",
	Short: "drydock - ephemeral agent session orchestrator",
	Long: `drydock runs coding-agent tasks in ephemeral sandboxed environments.

Each session clones a repository (or restores a snapshot), runs an agent
command inside an isolated environment, streams its output, and watches for
a pull-request URL as the completion signal.

Available commands:
  serve     - Start the drydock API server
  sessions  - Inspect and manage sessions
  version   - Show version information

Examples:
  drydock serve                  # Start the API server
  drydock sessions ls            # List sessions
  drydock sessions logs <id>     # Print a session's log
  drydock sessions stop <id>     # Stop a running session`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.SessionsCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
