// Package session implements the drydock session lifecycle: provisioning an
// execution environment, running the agent command in it, streaming and
// persisting its output while scanning for a completion signal, and
// reconciling in-memory state with the durable store across restarts.
package session

import (
	"time"
)

// Status is the session status vocabulary. A session moves
// pending → running → {completed | failed}, with stopping entered only via an
// explicit user stop while running. There is no transition out of a terminal
// status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusStopping  Status = "stopping"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusStopping, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// LaunchConfig is the immutable snapshot of a session's launch parameters.
type LaunchConfig struct {
	// Source selection. SnapshotID wins over RepoURL; with neither set an
	// empty environment is provisioned.
	SnapshotID string `json:"snapshot_id,omitempty"`
	RepoURL    string `json:"repo_url,omitempty"`
	Branch     string `json:"branch,omitempty"`

	// Optional setup script downloaded and written into the environment
	// before the command runs.
	SetupScriptURL string `json:"setup_script_url,omitempty"`

	// Optional inline task text written to TaskPath before the command runs.
	Task     string `json:"task,omitempty"`
	TaskPath string `json:"task_path,omitempty"`

	// Command execution.
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	WorkDir string            `json:"work_dir,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// Provider-side environment timeout.
	TimeoutMS int64 `json:"timeout_ms,omitempty"`
}

// Session is one end-to-end attempt to run a task inside a provisioned
// environment.
type Session struct {
	ID string `json:"id"`

	// SandboxID is the provider-issued environment handle id, set once
	// provisioning succeeds. Empty until then.
	SandboxID string `json:"sandbox_id,omitempty"`

	Status Status       `json:"status"`
	Config LaunchConfig `json:"config"`

	// ResultURL is set at most once, by the first valid completion signal
	// observed in the command's output.
	ResultURL string `json:"result_url,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// LogLevel classifies a persisted session log line.
type LogLevel string

const (
	LogLevelStdout LogLevel = "stdout"
	LogLevelStderr LogLevel = "stderr"
	LogLevelInfo   LogLevel = "info"
	LogLevelDebug  LogLevel = "debug"
	LogLevelError  LogLevel = "error"
)

// LogEntry is one append-only log line for a session. ID is the SQLite rowid
// and therefore monotonically increasing per session; it is the ordering and
// tailing cursor key.
type LogEntry struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
