package server

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
)

// getLogUpgrader creates a WebSocket upgrader with origin checking from config
func (s *Server) getLogUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// No origin header means a direct WebSocket client
			if origin == "" {
				return true
			}
			return s.originAllowed(origin)
		},
	}
}

// HandleSessionLogsWS streams a session's logs over WebSocket at
// /ws/sessions/{id}/logs: everything persisted so far, then new entries as
// they arrive. The connection closes normally once the session reaches a
// terminal status and its log is fully delivered.
func (s *Server) HandleSessionLogsWS(w http.ResponseWriter, r *http.Request) {
	pathParts := extractPathParts(r.URL.Path, "/ws/sessions/")
	if len(pathParts) < 2 || pathParts[0] == "" || pathParts[1] != "logs" {
		writeError(w, http.StatusNotFound, "Unknown WebSocket endpoint")
		return
	}
	sessionID := pathParts[0]

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Resolve the tail before upgrading so an unknown session still gets a
	// plain HTTP 404.
	ch, err := s.manager.TailLogs(ctx, sessionID)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	upgrader := s.getLogUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed",
			"session_id", shortID(sessionID),
			"error", err)
		return
	}
	defer conn.Close()

	// Read pump: the client never sends data, but reading surfaces close
	// frames so an abandoned tail is torn down promptly.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for entry := range ch {
		if err := conn.WriteJSON(entry); err != nil {
			s.logger.Debugw("WebSocket log write failed",
				"session_id", shortID(sessionID),
				"error", err)
			return
		}
	}

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
}
