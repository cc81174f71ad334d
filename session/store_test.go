package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	drytesting "github.com/drydocklabs/drydock/internal/testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(drytesting.CreateTestDB(t))
}

func TestStoreCreateAndGetSession(t *testing.T) {
	store := newTestStore(t)

	cfg := LaunchConfig{
		RepoURL:  "https://github.com/acme/widgets",
		Branch:   "main",
		Task:     "fix the flaky test",
		TaskPath: "/workspace/TASK.md",
		Command:  "agent",
		Args:     []string{"--auto", "--task-file", "/workspace/TASK.md"},
		WorkDir:  "/workspace/widgets",
		Env:      map[string]string{"CI": "true"},
	}

	created, err := store.CreateSession(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, StatusPending, created.Status)

	got, err := store.GetSession(created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, cfg.RepoURL, got.Config.RepoURL)
	assert.Equal(t, cfg.Args, got.Config.Args)
	assert.Equal(t, cfg.Env, got.Config.Env)
	assert.Empty(t, got.SandboxID)
	assert.Empty(t, got.ResultURL)
	assert.Nil(t, got.EndedAt)
}

func TestStoreGetSessionMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetSession("no-such-session")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreUpdateSessionStatusAndSandboxID(t *testing.T) {
	store := newTestStore(t)
	created, err := store.CreateSession(LaunchConfig{Command: "agent"})
	require.NoError(t, err)

	running := StatusRunning
	sandboxID := "env-9"
	updated, err := store.UpdateSession(created.ID, Update{Status: &running, SandboxID: &sandboxID})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, StatusRunning, updated.Status)
	assert.Equal(t, "env-9", updated.SandboxID)
	assert.Nil(t, updated.EndedAt)

	// Partial update leaves untouched fields alone.
	completed := StatusCompleted
	updated, err = store.UpdateSession(created.ID, Update{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, "env-9", updated.SandboxID)
}

func TestStoreUpdateSessionMissing(t *testing.T) {
	store := newTestStore(t)

	running := StatusRunning
	updated, err := store.UpdateSession("no-such-session", Update{Status: &running})
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestStoreEndedAtSetOnceOnFirstTerminalTransition(t *testing.T) {
	store := newTestStore(t)
	created, err := store.CreateSession(LaunchConfig{Command: "agent"})
	require.NoError(t, err)

	running := StatusRunning
	updated, err := store.UpdateSession(created.ID, Update{Status: &running})
	require.NoError(t, err)
	assert.Nil(t, updated.EndedAt)

	completed := StatusCompleted
	updated, err = store.UpdateSession(created.ID, Update{Status: &completed})
	require.NoError(t, err)
	require.NotNil(t, updated.EndedAt)
	first := *updated.EndedAt

	time.Sleep(5 * time.Millisecond)

	// A later terminal write must not move ended_at or the status itself.
	failed := StatusFailed
	updated, err = store.UpdateSession(created.ID, Update{Status: &failed})
	require.NoError(t, err)
	require.NotNil(t, updated.EndedAt)
	assert.True(t, first.Equal(*updated.EndedAt))
	assert.Equal(t, StatusCompleted, updated.Status)
}

func TestStoreTerminalStatusIsSticky(t *testing.T) {
	store := newTestStore(t)
	created, err := store.CreateSession(LaunchConfig{Command: "agent"})
	require.NoError(t, err)

	failed := StatusFailed
	_, err = store.UpdateSession(created.ID, Update{Status: &failed})
	require.NoError(t, err)

	running := StatusRunning
	updated, err := store.UpdateSession(created.ID, Update{Status: &running})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, updated.Status)
}

func TestStoreResultURLWrittenAtMostOnce(t *testing.T) {
	store := newTestStore(t)
	created, err := store.CreateSession(LaunchConfig{Command: "agent"})
	require.NoError(t, err)

	first := "https://github.com/acme/widgets/pull/1"
	updated, err := store.UpdateSession(created.ID, Update{ResultURL: &first})
	require.NoError(t, err)
	assert.Equal(t, first, updated.ResultURL)

	second := "https://github.com/acme/widgets/pull/2"
	updated, err = store.UpdateSession(created.ID, Update{ResultURL: &second})
	require.NoError(t, err)
	assert.Equal(t, first, updated.ResultURL)
}

func TestStoreAppendAndListLogs(t *testing.T) {
	store := newTestStore(t)
	created, err := store.CreateSession(LaunchConfig{Command: "agent"})
	require.NoError(t, err)

	for _, msg := range []string{"one", "two", "three"} {
		_, err := store.AppendLog(created.ID, LogLevelStdout, msg)
		require.NoError(t, err)
	}

	entries, err := store.ListLogs(created.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "one", entries[0].Message)
	assert.Equal(t, "three", entries[2].Message)
	assert.True(t, entries[0].ID < entries[1].ID && entries[1].ID < entries[2].ID)

	// Cursor query returns only entries past the cursor.
	after, err := store.ListLogsAfter(created.ID, entries[1].ID)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "three", after[0].Message)
}

func TestStoreListSessions(t *testing.T) {
	store := newTestStore(t)

	var ids []string
	for i := 0; i < 5; i++ {
		sess, err := store.CreateSession(LaunchConfig{Command: "agent"})
		require.NoError(t, err)
		ids = append(ids, sess.ID)
	}

	completed := StatusCompleted
	_, err := store.UpdateSession(ids[0], Update{Status: &completed})
	require.NoError(t, err)

	all, total, err := store.ListSessions(Filter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, all, 5)

	// The count reflects the full match set even when the page is smaller.
	page, total, err := store.ListSessions(Filter{}, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 2)

	active, total, err := store.ListSessions(Filter{Active: true}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, active, 4)

	byStatus, total, err := store.ListSessions(Filter{Status: &completed}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, byStatus, 1)
	assert.Equal(t, ids[0], byStatus[0].ID)
}
