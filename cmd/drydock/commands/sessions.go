package commands

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/drydocklabs/drydock/config"
	"github.com/drydocklabs/drydock/db"
	"github.com/drydocklabs/drydock/logger"
	"github.com/drydocklabs/drydock/sandbox"
	"github.com/drydocklabs/drydock/session"
)

// SessionsCmd groups session management commands
var SessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage sessions",
	Long: `Inspect and manage drydock sessions.

Commands:
  drydock sessions ls            # List sessions
  drydock sessions status <id>   # Show session details
  drydock sessions logs <id>     # Print a session's log
  drydock sessions stop <id>     # Stop a running session`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// SessionsLsCmd lists sessions
var SessionsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List sessions",
	Long: `List sessions, newest first.

Status filters:
  pending    - Created, environment still provisioning
  running    - Agent command executing
  stopping   - Stop requested, shutdown in progress
  completed  - Finished cleanly (exit 0, stop, or snapshot)
  failed     - Finished with an error

Examples:
  drydock sessions ls                     # List recent sessions
  drydock sessions ls --status running    # Only running sessions
  drydock sessions ls --limit 100         # Show up to 100 sessions`,
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFilter, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		return runSessionsLs(statusFilter, limit)
	},
}

// SessionsStatusCmd shows session details
var SessionsStatusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show session details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessionsStatus(args[0])
	},
}

// SessionsLogsCmd prints a session's persisted log
var SessionsLogsCmd = &cobra.Command{
	Use:   "logs <session-id>",
	Short: "Print a session's log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessionsLogs(args[0])
	},
}

// SessionsStopCmd stops a running session
var SessionsStopCmd = &cobra.Command{
	Use:   "stop <session-id>",
	Short: "Stop a running session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessionsStop(args[0])
	},
}

func init() {
	SessionsLsCmd.Flags().String("status", "", "Filter by status")
	SessionsLsCmd.Flags().Int("limit", 20, "Maximum sessions to show")

	SessionsCmd.AddCommand(SessionsLsCmd)
	SessionsCmd.AddCommand(SessionsStatusCmd)
	SessionsCmd.AddCommand(SessionsLogsCmd)
	SessionsCmd.AddCommand(SessionsStopCmd)
}

// openManager wires a manager over the configured database and provider.
func openManager() (*session.Manager, *session.Store, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	conn, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, nil, nil, err
	}

	client := sandbox.NewHTTPClient(
		cfg.Sandbox.BaseURL,
		cfg.Sandbox.Token,
		time.Duration(cfg.Sandbox.RequestTimeoutSeconds)*time.Second,
	)

	store := session.NewStore(conn)
	return session.NewManager(store, client), store, conn, nil
}

func runSessionsLs(statusFilter string, limit int) error {
	_, store, conn, err := openManager()
	if err != nil {
		return err
	}
	defer conn.Close()

	filter := session.Filter{}
	if statusFilter != "" {
		if !session.IsValidStatus(statusFilter) {
			return fmt.Errorf("invalid status %q", statusFilter)
		}
		status := session.Status(statusFilter)
		filter.Status = &status
	}

	sessions, total, err := store.ListSessions(filter, limit, 0)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		pterm.Info.Println("No sessions found")
		return nil
	}

	rows := pterm.TableData{{"ID", "STATUS", "REPO", "RESULT", "CREATED", "ENDED"}}
	for _, s := range sessions {
		ended := "-"
		if s.EndedAt != nil {
			ended = s.EndedAt.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			shortID(s.ID),
			string(s.Status),
			orDash(s.Config.RepoURL),
			orDash(s.ResultURL),
			s.CreatedAt.Local().Format("2006-01-02 15:04"),
			ended,
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		return err
	}

	if total > len(sessions) {
		pterm.Printf("Showing %d of %d sessions\n", len(sessions), total)
	}
	return nil
}

func runSessionsStatus(id string) error {
	mgr, _, conn, err := openManager()
	if err != nil {
		return err
	}
	defer conn.Close()

	sess, err := mgr.GetSession(context.Background(), id)
	if err != nil {
		return err
	}

	pterm.DefaultSection.Printf("Session %s", shortID(sess.ID))
	rows := pterm.TableData{
		{"ID", sess.ID},
		{"Status", string(sess.Status)},
		{"Sandbox", orDash(sess.SandboxID)},
		{"Repo", orDash(sess.Config.RepoURL)},
		{"Branch", orDash(sess.Config.Branch)},
		{"Snapshot", orDash(sess.Config.SnapshotID)},
		{"Command", sess.Config.Command},
		{"Result", orDash(sess.ResultURL)},
		{"Created", sess.CreatedAt.Local().Format(time.RFC3339)},
	}
	if sess.EndedAt != nil {
		rows = append(rows, []string{"Ended", sess.EndedAt.Local().Format(time.RFC3339)})
	}
	return pterm.DefaultTable.WithData(rows).Render()
}

func runSessionsLogs(id string) error {
	mgr, _, conn, err := openManager()
	if err != nil {
		return err
	}
	defer conn.Close()

	entries, err := mgr.Logs(id)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s [%s] %s\n", e.CreatedAt.Local().Format("15:04:05"), e.Level, e.Message)
	}
	return nil
}

func runSessionsStop(id string) error {
	mgr, _, conn, err := openManager()
	if err != nil {
		return err
	}
	defer conn.Close()

	sess, err := mgr.StopSession(context.Background(), id)
	if err != nil {
		return err
	}
	pterm.Success.Printf("Session %s is %s\n", shortID(sess.ID), sess.Status)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
