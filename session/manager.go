package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/drydocklabs/drydock/errors"
	"github.com/drydocklabs/drydock/logger"
	"github.com/drydocklabs/drydock/sandbox"
)

const (
	// defaultTailInterval is the sleep between log cursor polls while tailing.
	defaultTailInterval = 500 * time.Millisecond
	// defaultMaxTailPolls bounds a tail to about an hour at the default
	// interval, so an abandoned tail of a stuck session cannot poll forever.
	defaultMaxTailPolls = 7200

	defaultListLimit = 50
	maxListLimit     = 200
)

// Manager owns the session lifecycle: it provisions environments, launches
// the agent command, supervises the background run, and serves status, stop,
// extend, snapshot, and tail requests. All state of record lives in the
// store; the manager keeps only a registry of live environment handles so a
// process restart loses nothing durable.
type Manager struct {
	store    *Store
	client   sandbox.Client
	streamer *Streamer
	preparer *Preparer
	log      *zap.SugaredLogger

	mu     sync.Mutex
	active map[string]sandbox.Environment

	tailInterval time.Duration
	maxTailPolls int
}

// NewManager creates a session manager on top of a store and a provisioning
// client.
func NewManager(store *Store, client sandbox.Client) *Manager {
	return &Manager{
		store:        store,
		client:       client,
		streamer:     NewStreamer(store),
		preparer:     NewPreparer(),
		log:          logger.Named("session"),
		active:       map[string]sandbox.Environment{},
		tailInterval: defaultTailInterval,
		maxTailPolls: defaultMaxTailPolls,
	}
}

// CreateSession records a new session, provisions its environment, and
// launches the agent command in a background task. It returns once the
// session is running; command output and completion are handled
// asynchronously. A provisioning failure marks the session failed and
// returns an error wrapping ErrProvisioning.
func (m *Manager) CreateSession(ctx context.Context, cfg LaunchConfig) (*Session, error) {
	if cfg.Command == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "command is required")
	}

	sess, err := m.store.CreateSession(cfg)
	if err != nil {
		return nil, err
	}
	m.log.Infow("session created",
		logger.FieldSessionID, sess.ID,
		"repo_url", cfg.RepoURL,
		logger.FieldSnapshot, cfg.SnapshotID)

	env, err := m.client.Create(ctx, createOptions(cfg))
	if err != nil {
		m.appendLog(sess.ID, LogLevelError, fmt.Sprintf("environment provisioning failed: %v", err))
		m.setTerminal(sess.ID, StatusFailed)
		return nil, errors.Wrapf(errors.ErrProvisioning, "session %s: %v", sess.ID, err)
	}

	running := StatusRunning
	sandboxID := env.ID()
	sess, err = m.store.UpdateSession(sess.ID, Update{Status: &running, SandboxID: &sandboxID})
	if err != nil {
		return nil, err
	}

	m.register(sess.ID, env)

	// The background task outlives the request; it must not inherit the
	// request context.
	go m.run(context.Background(), sess.ID, env, cfg)

	return sess, nil
}

// createOptions maps a launch config to provisioning options. A snapshot
// takes precedence over a repository clone; with neither, an empty
// environment is provisioned.
func createOptions(cfg LaunchConfig) sandbox.CreateOptions {
	opts := sandbox.CreateOptions{
		Source:    sandbox.SourceNone,
		TimeoutMS: cfg.TimeoutMS,
	}
	switch {
	case cfg.SnapshotID != "":
		opts.Source = sandbox.SourceSnapshot
		opts.SnapshotID = cfg.SnapshotID
	case cfg.RepoURL != "":
		opts.Source = sandbox.SourceGit
		opts.Git = &sandbox.GitSource{RepoURL: cfg.RepoURL, Branch: cfg.Branch}
	}
	return opts
}

// run is the background task for one session. It stages files, launches the
// command, streams output until it ends, and records the terminal status.
// Every error is absorbed into session logs and status; nothing propagates.
// The environment is stopped on the way out no matter how the run ends;
// stopping an already-stopped environment is harmless.
func (m *Manager) run(ctx context.Context, id string, env sandbox.Environment, cfg LaunchConfig) {
	defer func() {
		// A stop or snapshot elsewhere may already have brought the
		// environment down; only stop what is still up.
		if st, err := env.Status(ctx); err == nil && !providerDown(st) {
			if err := env.Stop(ctx); err != nil {
				m.log.Debugw("environment stop after run",
					logger.FieldSessionID, id,
					logger.FieldError, err)
			}
		}
		m.deregister(id)
	}()

	taskPath, err := m.preparer.PrepareTaskFile(ctx, env, cfg)
	if err != nil {
		m.failRun(id, "failed to stage task file", err)
		return
	}

	scriptPath, err := m.preparer.PrepareSetupScript(ctx, env, cfg.SetupScriptURL)
	if err != nil {
		m.failRun(id, "failed to stage setup script", err)
		return
	}

	cmd, err := env.RunCommand(ctx, runOptions(cfg, taskPath, scriptPath))
	if err != nil {
		m.failRun(id, "failed to launch command", err)
		return
	}

	m.appendLog(id, LogLevelInfo, "agent command launched")
	m.streamer.StreamAndDetect(ctx, id, cmd, RepoSlug(cfg.RepoURL))

	result, err := cmd.Wait(ctx)
	if err != nil {
		m.failRun(id, "failed waiting for command", err)
		return
	}

	if result.ExitCode == 0 {
		m.setTerminal(id, StatusCompleted)
		return
	}
	m.appendLog(id, LogLevelError, fmt.Sprintf("command exited with code %d", result.ExitCode))
	m.setTerminal(id, StatusFailed)
}

// runOptions assembles the in-environment command line. The setup script, if
// staged, runs first and gates the agent command on its success.
func runOptions(cfg LaunchConfig, taskPath, scriptPath string) sandbox.RunOptions {
	agent := shellquote.Join(append([]string{cfg.Command}, cfg.Args...)...)
	line := agent
	if scriptPath != "" {
		line = shellquote.Join("sh", scriptPath) + " && " + agent
	}

	env := cfg.Env
	if taskPath != "" {
		env = map[string]string{}
		for k, v := range cfg.Env {
			env[k] = v
		}
		env["DRYDOCK_TASK_PATH"] = taskPath
	}

	return sandbox.RunOptions{
		Cmd:      "bash",
		Args:     []string{"-lc", line},
		Env:      env,
		Cwd:      cfg.WorkDir,
		Detached: true,
	}
}

func providerDown(s sandbox.Status) bool {
	return s == sandbox.StatusStopped || s == sandbox.StatusStopping || s == sandbox.StatusFailed
}

func (m *Manager) failRun(id, msg string, err error) {
	m.appendLog(id, LogLevelError, fmt.Sprintf("%s: %v", msg, err))
	m.setTerminal(id, StatusFailed)
}

// GetSession returns a session, reconciling a non-terminal status against
// the provider on the way. A non-terminal session whose environment has
// disappeared is marked failed here rather than reported stale. Provider
// lookup errors other than not-found degrade to the stored record.
func (m *Manager) GetSession(ctx context.Context, id string) (*Session, error) {
	sess, err := m.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "session %s", id)
	}
	if sess.Status.IsTerminal() {
		return sess, nil
	}
	if sess.SandboxID == "" {
		// No durable handle. Report failed on this read path without
		// persisting it, so a create still in flight is not clobbered.
		m.mu.Lock()
		_, registered := m.active[sess.ID]
		m.mu.Unlock()
		if !registered {
			reported := *sess
			reported.Status = StatusFailed
			return &reported, nil
		}
		return sess, nil
	}

	env, err := m.client.Get(ctx, sess.SandboxID)
	if err != nil {
		if errors.IsNotFoundError(err) {
			m.appendLog(id, LogLevelError, "execution environment no longer exists")
			return m.setTerminal(id, StatusFailed)
		}
		m.log.Warnw("provider lookup failed during status read",
			logger.FieldSessionID, id,
			logger.FieldError, err)
		return sess, nil
	}

	providerStatus, err := env.Status(ctx)
	if err != nil {
		m.log.Warnw("provider status read failed",
			logger.FieldSessionID, id,
			logger.FieldError, err)
		return sess, nil
	}

	mapped := MapSandboxStatus(providerStatus)
	if mapped == sess.Status {
		return sess, nil
	}
	status := mapped
	return m.store.UpdateSession(id, Update{Status: &status})
}

// StopSession stops a session's environment and marks the session completed.
// Stopping an already-terminal session is a no-op, not an error.
func (m *Manager) StopSession(ctx context.Context, id string) (*Session, error) {
	sess, err := m.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "session %s", id)
	}
	if sess.Status.IsTerminal() {
		return sess, nil
	}

	stopping := StatusStopping
	if _, err := m.store.UpdateSession(id, Update{Status: &stopping}); err != nil {
		return nil, err
	}

	if env := m.environment(ctx, sess); env != nil {
		if err := env.Stop(ctx); err != nil {
			m.log.Warnw("environment stop failed",
				logger.FieldSessionID, id,
				logger.FieldSandboxID, sess.SandboxID,
				logger.FieldError, err)
		}
	}

	m.appendLog(id, LogLevelInfo, "session stopped by request")
	m.deregister(id)
	return m.setTerminal(id, StatusCompleted)
}

// ExtendTimeout extends the provider-side timeout of a running session's
// environment. Returns ErrNotRunning when the session has no live
// environment.
func (m *Manager) ExtendTimeout(ctx context.Context, id string, d time.Duration) error {
	env, err := m.liveEnvironment(ctx, id)
	if err != nil {
		return err
	}
	if err := env.ExtendTimeout(ctx, d); err != nil {
		return errors.Wrapf(err, "failed to extend timeout for session %s", id)
	}
	m.log.Infow("session timeout extended",
		logger.FieldSessionID, id,
		logger.FieldDurationMS, d.Milliseconds())
	return nil
}

// CreateSnapshot snapshots a running session's environment and completes the
// session. The provider stops the environment as part of snapshotting, so no
// separate stop is issued. Returns ErrNotRunning when the session has no
// live environment.
func (m *Manager) CreateSnapshot(ctx context.Context, id string) (*sandbox.Snapshot, error) {
	env, err := m.liveEnvironment(ctx, id)
	if err != nil {
		return nil, err
	}

	snap, err := env.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to snapshot session %s", id)
	}

	m.appendLog(id, LogLevelInfo, fmt.Sprintf("snapshot %s created, expires %s",
		snap.ID, snap.ExpiresAt.UTC().Format(time.RFC3339)))
	m.deregister(id)
	if _, err := m.setTerminal(id, StatusCompleted); err != nil {
		return nil, err
	}

	m.log.Infow("session snapshotted",
		logger.FieldSessionID, id,
		logger.FieldSnapshot, snap.ID)
	return snap, nil
}

// ListSessions returns a page of sessions and the total match count. Limits
// outside (0, maxListLimit] are clamped.
func (m *Manager) ListSessions(filter Filter, limit, offset int) ([]*Session, int, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return m.store.ListSessions(filter, limit, offset)
}

// Logs returns all persisted log entries for a session.
func (m *Manager) Logs(id string) ([]LogEntry, error) {
	sess, err := m.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "session %s", id)
	}
	return m.store.ListLogs(id)
}

// TailLogs streams a session's log entries over a channel: everything
// persisted so far, then new entries as they arrive. The channel closes when
// the session reaches a terminal status and all its entries have been sent,
// when ctx is done, or when the poll bound is exhausted.
func (m *Manager) TailLogs(ctx context.Context, id string) (<-chan LogEntry, error) {
	sess, err := m.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "session %s", id)
	}

	out := make(chan LogEntry)
	go func() {
		defer close(out)

		var cursor int64
		for poll := 0; poll < m.maxTailPolls; poll++ {
			// Read the status before listing: any entry persisted before the
			// terminal transition is then guaranteed to be in this final
			// drain, so nothing written during the session is ever dropped.
			sess, err := m.store.GetSession(id)
			if err != nil || sess == nil {
				return
			}
			terminal := sess.Status.IsTerminal()

			entries, err := m.store.ListLogsAfter(id, cursor)
			if err != nil {
				m.log.Warnw("log tail query failed",
					logger.FieldSessionID, id,
					logger.FieldError, err)
				return
			}
			for _, e := range entries {
				select {
				case out <- e:
					cursor = e.ID
				case <-ctx.Done():
					return
				}
			}

			if terminal {
				return
			}

			select {
			case <-time.After(m.tailInterval):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Reconcile aligns stored session state with the provider after a process
// restart. Sessions that were mid-flight have no background task anymore and
// can never finish, so anything still live is stopped and marked failed;
// sessions whose environments already reached a terminal provider state get
// the mapped terminal status.
func (m *Manager) Reconcile(ctx context.Context) error {
	stale, _, err := m.store.ListSessions(Filter{Active: true}, maxListLimit, 0)
	if err != nil {
		return errors.Wrap(err, "failed to list sessions for reconciliation")
	}

	for _, sess := range stale {
		m.reconcileSession(ctx, sess)
	}
	if len(stale) > 0 {
		m.log.Infow("reconciled interrupted sessions", logger.FieldCount, len(stale))
	}
	return nil
}

func (m *Manager) reconcileSession(ctx context.Context, sess *Session) {
	if sess.SandboxID == "" {
		m.appendLog(sess.ID, LogLevelError, "interrupted before environment provisioning completed")
		m.setTerminal(sess.ID, StatusFailed)
		return
	}

	env, err := m.client.Get(ctx, sess.SandboxID)
	if err != nil {
		m.appendLog(sess.ID, LogLevelError, "execution environment no longer exists")
		m.setTerminal(sess.ID, StatusFailed)
		return
	}

	providerStatus, err := env.Status(ctx)
	if err == nil {
		mapped := MapSandboxStatus(providerStatus)
		if mapped.IsTerminal() {
			m.setTerminal(sess.ID, mapped)
			return
		}
	}

	// Still live, but its supervising task died with the old process.
	if err := env.Stop(ctx); err != nil {
		m.log.Warnw("failed to stop orphaned environment",
			logger.FieldSessionID, sess.ID,
			logger.FieldSandboxID, sess.SandboxID,
			logger.FieldError, err)
	}
	m.appendLog(sess.ID, LogLevelError, "orchestrator restarted during execution")
	m.setTerminal(sess.ID, StatusFailed)
}

// liveEnvironment resolves a session to a live provider environment handle,
// rehydrating from the provider when the in-memory registry misses. Any
// session that is terminal, unprovisioned, unknown, or whose environment is
// not running yields ErrNotRunning.
func (m *Manager) liveEnvironment(ctx context.Context, id string) (sandbox.Environment, error) {
	sess, err := m.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.Status.IsTerminal() || sess.SandboxID == "" {
		return nil, errors.Wrapf(errors.ErrNotRunning, "session %s", id)
	}

	env := m.environment(ctx, sess)
	if env == nil {
		return nil, errors.Wrapf(errors.ErrNotRunning, "session %s", id)
	}

	providerStatus, err := env.Status(ctx)
	if err != nil || providerStatus != sandbox.StatusRunning {
		return nil, errors.Wrapf(errors.ErrNotRunning, "session %s", id)
	}
	return env, nil
}

// environment returns the session's environment handle from the registry, or
// from the provider when this process never held one. Returns nil when the
// environment cannot be resolved.
func (m *Manager) environment(ctx context.Context, sess *Session) sandbox.Environment {
	m.mu.Lock()
	env, ok := m.active[sess.ID]
	m.mu.Unlock()
	if ok {
		return env
	}
	if sess.SandboxID == "" {
		return nil
	}

	env, err := m.client.Get(ctx, sess.SandboxID)
	if err != nil {
		m.log.Debugw("environment rehydration failed",
			logger.FieldSessionID, sess.ID,
			logger.FieldSandboxID, sess.SandboxID,
			logger.FieldError, err)
		return nil
	}
	return env
}

func (m *Manager) register(id string, env sandbox.Environment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[id] = env
}

func (m *Manager) deregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, id)
}

// setTerminal moves a session into a terminal status. The store keeps the
// first terminal status if one is already set.
func (m *Manager) setTerminal(id string, status Status) (*Session, error) {
	sess, err := m.store.UpdateSession(id, Update{Status: &status})
	if err != nil {
		m.log.Errorw("failed to record terminal status",
			logger.FieldSessionID, id,
			logger.FieldStatus, status,
			logger.FieldError, err)
		return nil, err
	}
	return sess, nil
}

// appendLog persists a session log line, absorbing persistence errors into
// the process log.
func (m *Manager) appendLog(id string, level LogLevel, msg string) {
	if _, err := m.store.AppendLog(id, level, msg); err != nil {
		m.log.Warnw("failed to append session log",
			logger.FieldSessionID, id,
			logger.FieldError, err)
	}
}
