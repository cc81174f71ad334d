package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/drydocklabs/drydock/config"
	"github.com/drydocklabs/drydock/db"
	"github.com/drydocklabs/drydock/logger"
	"github.com/drydocklabs/drydock/sandbox"
	"github.com/drydocklabs/drydock/server"
)

// ServeCmd starts the drydock API server
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the drydock API server",
	Long: `Start the drydock API server.

The server exposes session lifecycle operations over HTTP and streams live
session logs over WebSocket. On startup it reconciles sessions that were
interrupted by a previous shutdown.

Examples:
  drydock serve                 # Start with config from drydock.toml
  drydock serve --port 9000     # Override the listen port`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.Server.Port = &port
		}

		conn, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger)
		if err != nil {
			return err
		}
		defer conn.Close()

		client := sandbox.NewHTTPClient(
			cfg.Sandbox.BaseURL,
			cfg.Sandbox.Token,
			time.Duration(cfg.Sandbox.RequestTimeoutSeconds)*time.Second,
		)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return server.New(cfg, conn, client).Start(ctx)
	},
}

func init() {
	ServeCmd.Flags().Int("port", 0, "Listen port (overrides config)")
}
