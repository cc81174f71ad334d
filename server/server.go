// Package server exposes the session lifecycle over HTTP and WebSocket.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/drydocklabs/drydock/config"
	"github.com/drydocklabs/drydock/logger"
	"github.com/drydocklabs/drydock/sandbox"
	"github.com/drydocklabs/drydock/session"
)

// Server is the drydock API server.
type Server struct {
	cfg     *config.Config
	db      *sql.DB
	manager *session.Manager
	logger  *zap.SugaredLogger

	mux        *http.ServeMux
	httpServer *http.Server

	configWatcher *config.ConfigWatcher
}

// New assembles a server from its dependencies. The sandbox client is
// injected so tests and alternative providers can swap it.
func New(cfg *config.Config, db *sql.DB, client sandbox.Client) *Server {
	store := session.NewStore(db)
	s := &Server{
		cfg:     cfg,
		db:      db,
		manager: session.NewManager(store, client),
		logger:  logger.Named("server"),
		mux:     http.NewServeMux(),
	}
	s.setupHTTPRoutes()
	return s
}

// Manager exposes the session manager, for the CLI commands that drive it
// directly.
func (s *Server) Manager() *session.Manager {
	return s.manager
}

// Start reconciles interrupted sessions, then serves HTTP until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.Session.ReconcileOnStart {
		if err := s.manager.Reconcile(ctx); err != nil {
			s.logger.Warnw("Startup reconciliation failed", "error", err)
		}
	}

	port := config.DefaultServerPort
	if s.cfg.Server.Port != nil {
		port = *s.cfg.Server.Port
	}
	port, err := findAvailablePort(port)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.watchConfig()

	s.logger.Infow("drydock server listening", "port", port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown drains in-flight requests and releases resources.
func (s *Server) Shutdown() error {
	if s.configWatcher != nil {
		s.configWatcher.Stop()
	}
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// watchConfig hot-reloads the log level when drydock.toml changes.
func (s *Server) watchConfig() {
	path := config.FindConfigFile()
	if path == "" {
		return
	}
	cw, err := config.NewConfigWatcher(path)
	if err != nil {
		s.logger.Warnw("Config watcher unavailable", "error", err)
		return
	}
	cw.OnReload(func(c *config.Config) error {
		level, err := zap.ParseAtomicLevel(levelOrInfo(c.Log.Level))
		if err != nil {
			return err
		}
		return logger.SetLevel(level.Level())
	})
	cw.Start()
	s.configWatcher = cw
}

func levelOrInfo(level string) string {
	if level == "" {
		return "info"
	}
	return level
}

// isPortAvailable checks if a port is available for binding
func isPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = listener.Close()
	return true
}

// findAvailablePort tries the requested port first, then the fallback, then
// a short range above the requested port.
func findAvailablePort(requestedPort int) (int, error) {
	if isPortAvailable(requestedPort) {
		return requestedPort, nil
	}
	if requestedPort != config.FallbackServerPort && isPortAvailable(config.FallbackServerPort) {
		return config.FallbackServerPort, nil
	}
	for port := requestedPort + 1; port <= requestedPort+10; port++ {
		if isPortAvailable(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port near %d", requestedPort)
}
