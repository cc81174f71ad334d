// Package sandbox defines the contract with the compute provisioning service
// that creates, inspects, stops, and snapshots isolated execution
// environments. Drydock treats the provider as an opaque capability: it never
// implements sandboxing itself, only drives environments through these
// interfaces.
package sandbox

import (
	"context"
	"io"
	"time"
)

// Status is the provider's status vocabulary for an environment. It is
// distinct from the session status vocabulary; session.MapSandboxStatus
// translates between the two.
type Status string

const (
	StatusPending      Status = "pending"
	StatusRunning      Status = "running"
	StatusStopping     Status = "stopping"
	StatusStopped      Status = "stopped"
	StatusFailed       Status = "failed"
	StatusSnapshotting Status = "snapshotting"
)

// SourceType selects how a new environment is seeded.
type SourceType string

const (
	// SourceSnapshot restores a previously taken snapshot.
	SourceSnapshot SourceType = "snapshot"
	// SourceGit clones a repository into the environment.
	SourceGit SourceType = "git"
	// SourceNone provisions an empty environment.
	SourceNone SourceType = "none"
)

// GitSource describes a repository clone request.
type GitSource struct {
	RepoURL string `json:"repo_url"`
	Branch  string `json:"branch,omitempty"`
}

// CreateOptions are the provisioning parameters for a new environment.
type CreateOptions struct {
	Source     SourceType `json:"source"`
	SnapshotID string     `json:"snapshot_id,omitempty"` // required when Source == SourceSnapshot
	Git        *GitSource `json:"git,omitempty"`         // required when Source == SourceGit
	RuntimeID  string     `json:"runtime_id,omitempty"`
	TimeoutMS  int64      `json:"timeout_ms,omitempty"`
}

// RunOptions describe a command to run inside an environment.
type RunOptions struct {
	Cmd      string            `json:"cmd"`
	Args     []string          `json:"args,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
	Cwd      string            `json:"cwd,omitempty"`
	Detached bool              `json:"detached,omitempty"`
}

// File is one file to write into an environment.
type File struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
	Mode    uint32 `json:"mode,omitempty"` // zero means provider default
}

// StreamName identifies which output stream a log chunk came from.
type StreamName string

const (
	StreamStdout StreamName = "stdout"
	StreamStderr StreamName = "stderr"
)

// LogChunk is one event from a running command's output stream. Data may
// contain multiple lines or a partial line.
type LogChunk struct {
	Stream StreamName `json:"stream"`
	Data   string     `json:"data"`
}

// CommandResult is the terminal state of a finished command.
type CommandResult struct {
	ExitCode int `json:"exit_code"`
}

// Snapshot identifies a persisted environment image.
type Snapshot struct {
	ID        string    `json:"snapshot_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Info is a point-in-time description of an environment.
type Info struct {
	ID        string `json:"id"`
	Status    Status `json:"status"`
	TimeoutMS int64  `json:"timeout_ms"`
}

// ListFilter narrows a List call. Zero value lists everything.
type ListFilter struct {
	Status Status
}

// Client is the provisioning service API.
type Client interface {
	// Create provisions a new environment and returns a live handle to it.
	Create(ctx context.Context, opts CreateOptions) (Environment, error)
	// Get returns a handle to an existing environment by provider id.
	Get(ctx context.Context, id string) (Environment, error)
	// List enumerates environments known to the provider.
	List(ctx context.Context, filter ListFilter) ([]Info, error)
}

// Environment is a live handle to a provisioned environment.
type Environment interface {
	ID() string
	Status(ctx context.Context) (Status, error)
	// RunCommand starts a command. With Detached set, the call returns as
	// soon as the command is launched; output is consumed via Logs and the
	// exit code via Wait.
	RunCommand(ctx context.Context, opts RunOptions) (Command, error)
	Stop(ctx context.Context) error
	ExtendTimeout(ctx context.Context, d time.Duration) error
	// Snapshot persists the environment image. The provider stops the
	// environment as part of snapshotting; callers must not issue a
	// separate Stop afterwards.
	Snapshot(ctx context.Context) (*Snapshot, error)
	WriteFiles(ctx context.Context, files []File) error
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// Command is a handle on a launched command.
type Command interface {
	// Logs opens the command's output stream. The stream ends (io.EOF) when
	// the command finishes or the environment stops.
	Logs(ctx context.Context) (LogStream, error)
	// Wait blocks until the command exits.
	Wait(ctx context.Context) (*CommandResult, error)
}

// LogStream is an ordered sequence of output chunks.
type LogStream interface {
	// Next returns the next chunk, or io.EOF when the stream is exhausted.
	Next() (*LogChunk, error)
	io.Closer
}
