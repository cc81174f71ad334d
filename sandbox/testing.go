package sandbox

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/drydocklabs/drydock/errors"
)

// Fakes for tests that exercise session orchestration without a real
// provisioning service. They are exported so other packages' tests can use
// them too.

// FakeClient is an in-memory Client.
type FakeClient struct {
	mu           sync.Mutex
	nextID       int
	Environments map[string]*FakeEnvironment

	// CreateErr, when set, fails every Create call.
	CreateErr error
	// CreateCalls records the options of every Create call in order.
	CreateCalls []CreateOptions
	// Command, when set, is installed on every created environment.
	Command *FakeCommand
}

func NewFakeClient() *FakeClient {
	return &FakeClient{Environments: map[string]*FakeEnvironment{}}
}

func (c *FakeClient) Create(ctx context.Context, opts CreateOptions) (Environment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.CreateCalls = append(c.CreateCalls, opts)
	if c.CreateErr != nil {
		return nil, c.CreateErr
	}

	c.nextID++
	env := NewFakeEnvironment(fmt.Sprintf("env-%d", c.nextID))
	if c.Command != nil {
		env.Command = c.Command
	}
	c.Environments[env.EnvID] = env
	return env, nil
}

func (c *FakeClient) Get(ctx context.Context, id string) (Environment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	env, ok := c.Environments[id]
	if !ok {
		return nil, errors.NewNotFoundError(fmt.Sprintf("sandbox %s", id))
	}
	return env, nil
}

func (c *FakeClient) List(ctx context.Context, filter ListFilter) ([]Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var infos []Info
	for _, env := range c.Environments {
		status := env.CurrentStatus()
		if filter.Status != "" && status != filter.Status {
			continue
		}
		infos = append(infos, Info{ID: env.EnvID, Status: status})
	}
	return infos, nil
}

// FakeEnvironment is an in-memory Environment. Zero value is not usable; use
// NewFakeEnvironment.
type FakeEnvironment struct {
	mu     sync.Mutex
	EnvID  string
	status Status

	// Files holds everything written via WriteFiles, keyed by path.
	Files map[string][]byte
	// Modes holds the requested mode per path, when non-zero.
	Modes map[string]uint32

	// Command returned by RunCommand. Defaults to an exit-0 command with no
	// output.
	Command *FakeCommand

	// RunCalls records the options of every RunCommand call in order.
	RunCalls []RunOptions
	// StopCalls counts Stop invocations.
	StopCalls int
	// Extensions records every ExtendTimeout duration in order.
	Extensions []time.Duration

	// SnapshotResult overrides the snapshot returned by Snapshot.
	SnapshotResult *Snapshot

	RunErr      error
	StopErr     error
	ExtendErr   error
	SnapshotErr error
	WriteErr    error
	StatusErr   error
}

func NewFakeEnvironment(id string) *FakeEnvironment {
	return &FakeEnvironment{
		EnvID:   id,
		status:  StatusRunning,
		Files:   map[string][]byte{},
		Modes:   map[string]uint32{},
		Command: &FakeCommand{},
	}
}

func (e *FakeEnvironment) ID() string { return e.EnvID }

func (e *FakeEnvironment) Status(ctx context.Context) (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.StatusErr != nil {
		return "", e.StatusErr
	}
	return e.status, nil
}

// StopCount reads the stop counter under the lock, for assertions that race
// with a background task.
func (e *FakeEnvironment) StopCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.StopCalls
}

// CurrentStatus reads the status without the error path, for assertions.
func (e *FakeEnvironment) CurrentStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// SetStatus forces the environment status, for test setup.
func (e *FakeEnvironment) SetStatus(s Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = s
}

func (e *FakeEnvironment) RunCommand(ctx context.Context, opts RunOptions) (Command, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.RunCalls = append(e.RunCalls, opts)
	if e.RunErr != nil {
		return nil, e.RunErr
	}
	return e.Command, nil
}

func (e *FakeEnvironment) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.StopCalls++
	if e.StopErr != nil {
		return e.StopErr
	}
	e.status = StatusStopped
	return nil
}

func (e *FakeEnvironment) ExtendTimeout(ctx context.Context, d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ExtendErr != nil {
		return e.ExtendErr
	}
	e.Extensions = append(e.Extensions, d)
	return nil
}

func (e *FakeEnvironment) Snapshot(ctx context.Context) (*Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.SnapshotErr != nil {
		return nil, e.SnapshotErr
	}
	e.status = StatusStopped
	if e.SnapshotResult != nil {
		return e.SnapshotResult, nil
	}
	return &Snapshot{ID: "snap-" + e.EnvID, ExpiresAt: time.Now().Add(24 * time.Hour)}, nil
}

func (e *FakeEnvironment) WriteFiles(ctx context.Context, files []File) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.WriteErr != nil {
		return e.WriteErr
	}
	for _, f := range files {
		e.Files[f.Path] = f.Content
		if f.Mode != 0 {
			e.Modes[f.Path] = f.Mode
		}
	}
	return nil
}

func (e *FakeEnvironment) ReadFile(ctx context.Context, path string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	content, ok := e.Files[path]
	if !ok {
		return nil, errors.NewNotFoundError(path)
	}
	return content, nil
}

// FakeCommand is an in-memory Command whose output and exit code are fixed up
// front.
type FakeCommand struct {
	Chunks   []LogChunk
	ExitCode int

	LogsErr error
	WaitErr error
	// StreamErr, when set, is returned by the log stream after Chunks are
	// exhausted, instead of io.EOF.
	StreamErr error
}

func (c *FakeCommand) Logs(ctx context.Context) (LogStream, error) {
	if c.LogsErr != nil {
		return nil, c.LogsErr
	}
	return &FakeLogStream{chunks: c.Chunks, finalErr: c.StreamErr}, nil
}

func (c *FakeCommand) Wait(ctx context.Context) (*CommandResult, error) {
	if c.WaitErr != nil {
		return nil, c.WaitErr
	}
	return &CommandResult{ExitCode: c.ExitCode}, nil
}

// FakeLogStream replays a fixed chunk sequence.
type FakeLogStream struct {
	mu       sync.Mutex
	chunks   []LogChunk
	pos      int
	finalErr error
	closed   bool
}

func (s *FakeLogStream) Next() (*LogChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.chunks) {
		if s.finalErr != nil {
			return nil, s.finalErr
		}
		return nil, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return &chunk, nil
}

func (s *FakeLogStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
