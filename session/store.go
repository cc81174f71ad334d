package session

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/drydocklabs/drydock/errors"
)

// Store handles persistence of sessions and their append-only logs. The
// durable store is the single source of truth for session status; the
// manager's in-memory registry is only an identity cache over it.
type Store struct {
	db *sql.DB
}

// NewStore creates a new session store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Update carries the mutable session fields for UpdateSession. Nil fields are
// left untouched. ResultURL is written at most once per session: an update
// against a session that already has one is silently ignored.
type Update struct {
	Status    *Status
	SandboxID *string
	ResultURL *string
}

// Filter narrows ListSessions. Zero value lists everything.
type Filter struct {
	Status *Status
	// Active limits results to non-terminal sessions.
	Active bool
}

// CreateSession inserts a new pending session with the given launch
// configuration and returns it. The session id is assigned here.
func (s *Store) CreateSession(cfg LaunchConfig) (*Session, error) {
	envJSON, err := json.Marshal(cfg.Env)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal env")
	}
	argsJSON, err := json.Marshal(cfg.Args)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal args")
	}

	sess := &Session{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Config:    cfg,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO sessions (
			id, status,
			repo_url, branch, setup_script_url, work_dir, env_json,
			task, task_path, snapshot_id, command, args_json, timeout_ms,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.Exec(query,
		sess.ID,
		sess.Status,
		cfg.RepoURL,
		cfg.Branch,
		cfg.SetupScriptURL,
		cfg.WorkDir,
		string(envJSON),
		cfg.Task,
		cfg.TaskPath,
		cfg.SnapshotID,
		cfg.Command,
		string(argsJSON),
		cfg.TimeoutMS,
		sess.CreatedAt,
		sess.UpdatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}

	return sess, nil
}

const sessionSelectColumns = `
	id, sandbox_id, status,
	repo_url, branch, setup_script_url, work_dir, env_json,
	task, task_path, snapshot_id, command, args_json, timeout_ms,
	result_url, created_at, updated_at, ended_at
`

// GetSession retrieves a session by id. Returns nil (no error) when the
// session does not exist.
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionSelectColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get session %s", id)
	}
	return sess, nil
}

// UpdateSession applies upd to a session. It always refreshes updated_at, and
// sets ended_at exactly once: on the first transition into a terminal status.
// A session already in a terminal status keeps it; there is no transition out
// of completed or failed, enforced here so concurrent writers cannot regress
// a finished session. Returns the updated session, or nil when no session
// with that id exists.
func (s *Store) UpdateSession(id string, upd Update) (*Session, error) {
	now := time.Now().UTC()

	query := `
		UPDATE sessions
		SET status = CASE
		        WHEN status IN ('completed', 'failed') THEN status
		        ELSE COALESCE(?, status)
		    END,
		    sandbox_id = COALESCE(?, sandbox_id),
		    result_url = COALESCE(result_url, ?),
		    updated_at = ?,
		    ended_at = CASE
		        WHEN ended_at IS NULL AND COALESCE(?, status) IN ('completed', 'failed') THEN ?
		        ELSE ended_at
		    END
		WHERE id = ?
	`
	res, err := s.db.Exec(query,
		nullableStatus(upd.Status),
		nullableString(upd.SandboxID),
		nullableString(upd.ResultURL),
		now,
		nullableStatus(upd.Status),
		now,
		id,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to update session %s", id)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return nil, nil
	}

	return s.GetSession(id)
}

// AppendLog persists one log line for a session. Logs are append-only; the
// assigned id is the tailing cursor.
func (s *Store) AppendLog(sessionID string, level LogLevel, message string) (*LogEntry, error) {
	entry := &LogEntry{
		SessionID: sessionID,
		Level:     level,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}

	res, err := s.db.Exec(
		`INSERT INTO session_logs (session_id, level, message, created_at) VALUES (?, ?, ?, ?)`,
		entry.SessionID, entry.Level, entry.Message, entry.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to append log for session %s", sessionID)
	}

	entry.ID, err = res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get log entry id")
	}
	return entry, nil
}

// ListLogs returns all log entries for a session in insertion order.
func (s *Store) ListLogs(sessionID string) ([]LogEntry, error) {
	return s.ListLogsAfter(sessionID, 0)
}

// ListLogsAfter returns log entries with id greater than afterID, in
// insertion order. The tailing loop uses this as its cursor query.
func (s *Store) ListLogsAfter(sessionID string, afterID int64) ([]LogEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, level, message, created_at
		 FROM session_logs
		 WHERE session_id = ? AND id > ?
		 ORDER BY id ASC`,
		sessionID, afterID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list logs for session %s", sessionID)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Level, &e.Message, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan log entry")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating logs")
	}
	return entries, nil
}

// ListSessions returns a page of sessions matching the filter, newest first,
// along with the total match count from a dedicated COUNT query.
func (s *Store) ListSessions(filter Filter, limit, offset int) ([]*Session, int, error) {
	where := " WHERE 1=1"
	var args []interface{}
	if filter.Status != nil {
		where += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.Active {
		where += " AND status NOT IN ('completed', 'failed')"
	}

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count sessions")
	}

	query := `SELECT ` + sessionSelectColumns + ` FROM sessions` + where +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := s.db.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list sessions")
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan session")
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "error iterating sessions")
	}

	return sessions, total, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*Session, error) {
	var sess Session
	var sandboxID, resultURL sql.NullString
	var envJSON, argsJSON string
	var endedAt sql.NullTime

	err := row.Scan(
		&sess.ID,
		&sandboxID,
		&sess.Status,
		&sess.Config.RepoURL,
		&sess.Config.Branch,
		&sess.Config.SetupScriptURL,
		&sess.Config.WorkDir,
		&envJSON,
		&sess.Config.Task,
		&sess.Config.TaskPath,
		&sess.Config.SnapshotID,
		&sess.Config.Command,
		&argsJSON,
		&sess.Config.TimeoutMS,
		&resultURL,
		&sess.CreatedAt,
		&sess.UpdatedAt,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}

	sess.SandboxID = sandboxID.String
	sess.ResultURL = resultURL.String
	if endedAt.Valid {
		t := endedAt.Time
		sess.EndedAt = &t
	}
	if envJSON != "" {
		if err := json.Unmarshal([]byte(envJSON), &sess.Config.Env); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal env")
		}
	}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &sess.Config.Args); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal args")
		}
	}

	return &sess, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableStatus(s *Status) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*s), Valid: true}
}

// SessionID helpers used by callers that need a fresh id without a store
// round-trip (tests, fixtures).
func NewSessionID() string {
	return uuid.NewString()
}
