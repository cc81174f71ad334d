package server

import (
	"net/http"
	"time"

	"github.com/drydocklabs/drydock/session"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 200

	// defaultExtension applies when an extend request carries no duration.
	defaultExtension = 30 * time.Minute
)

// SessionListResponse is the paginated session listing payload.
type SessionListResponse struct {
	Sessions []*session.Session `json:"sessions"`
	Total    int                `json:"total"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

// SessionLogsResponse carries the persisted log entries for a session.
type SessionLogsResponse struct {
	SessionID string             `json:"session_id"`
	Logs      []session.LogEntry `json:"logs"`
}

// ExtendRequest asks for more provider-side time on a running session.
type ExtendRequest struct {
	DurationMS int64 `json:"duration_ms"`
}

// SnapshotResponse returns the persisted environment image reference.
type SnapshotResponse struct {
	SnapshotID string    `json:"snapshot_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// HandleSessions handles requests to /api/sessions
// GET: list sessions, POST: create and launch a session
func (s *Server) HandleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListSessions(w, r)
	case http.MethodPost:
		s.handleCreateSession(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var cfg session.LaunchConfig
	if err := readJSON(w, r, &cfg); err != nil {
		return
	}
	if cfg.TimeoutMS == 0 {
		cfg.TimeoutMS = s.cfg.Session.DefaultTimeoutMS
	}

	sess, err := s.manager.CreateSession(r.Context(), cfg)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}

	s.logger.Infow("Session launched",
		"session_id", shortID(sess.ID),
		"sandbox_id", sess.SandboxID)
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQueryParam(r, "limit", defaultSessionLimit, 1, maxSessionLimit)
	offset := parseIntQueryParam(r, "offset", 0, 0, 1<<30)

	filter := session.Filter{}
	if raw := r.URL.Query().Get("status"); raw != "" {
		if !session.IsValidStatus(raw) {
			writeError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		status := session.Status(raw)
		filter.Status = &status
	}
	if r.URL.Query().Get("active") == "true" {
		filter.Active = true
	}

	sessions, total, err := s.manager.ListSessions(filter, limit, offset)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to list sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}

	writeJSON(w, http.StatusOK, SessionListResponse{
		Sessions: sessions,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

// HandleSession handles requests to /api/sessions/{id}
// GET: session details
// Sub-resources: /logs (GET), /stop (POST), /extend (POST), /snapshot (POST)
func (s *Server) HandleSession(w http.ResponseWriter, r *http.Request) {
	pathParts := extractPathParts(r.URL.Path, "/api/sessions/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing session ID")
		return
	}
	sessionID := pathParts[0]

	if len(pathParts) > 1 && pathParts[1] != "" {
		switch pathParts[1] {
		case "logs":
			if !requireMethod(w, r, http.MethodGet) {
				return
			}
			s.handleSessionLogs(w, r, sessionID)
		case "stop":
			if !requireMethod(w, r, http.MethodPost) {
				return
			}
			s.handleStopSession(w, r, sessionID)
		case "extend":
			if !requireMethod(w, r, http.MethodPost) {
				return
			}
			s.handleExtendSession(w, r, sessionID)
		case "snapshot":
			if !requireMethod(w, r, http.MethodPost) {
				return
			}
			s.handleSnapshotSession(w, r, sessionID)
		default:
			writeError(w, http.StatusNotFound, "Unknown session sub-resource")
		}
		return
	}

	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	s.handleGetSession(w, r, sessionID)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, err := s.manager.GetSession(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionLogs(w http.ResponseWriter, r *http.Request, sessionID string) {
	logs, err := s.manager.Logs(sessionID)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	if logs == nil {
		logs = []session.LogEntry{}
	}
	writeJSON(w, http.StatusOK, SessionLogsResponse{SessionID: sessionID, Logs: logs})
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, err := s.manager.StopSession(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	s.logger.Infow("Session stopped", "session_id", shortID(sessionID))
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleExtendSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req ExtendRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	d := time.Duration(req.DurationMS) * time.Millisecond
	if d <= 0 {
		d = defaultExtension
	}

	if err := s.manager.ExtendTimeout(r.Context(), sessionID, d); err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":  sessionID,
		"extended_ms": d.Milliseconds(),
	})
}

func (s *Server) handleSnapshotSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	snap, err := s.manager.CreateSnapshot(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, s.logger, err)
		return
	}
	s.logger.Infow("Session snapshotted",
		"session_id", shortID(sessionID),
		"snapshot_id", snap.ID)
	writeJSON(w, http.StatusOK, SnapshotResponse{SnapshotID: snap.ID, ExpiresAt: snap.ExpiresAt})
}
