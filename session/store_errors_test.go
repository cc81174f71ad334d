package session

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drydocklabs/drydock/errors"
)

// Database failure paths, driven through sqlmock since a healthy SQLite
// database will not produce them.

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestStoreUpdateSessionDatabaseError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE sessions").WillReturnError(errors.New("disk I/O error"))

	running := StatusRunning
	_, err := store.UpdateSession("abc", Update{Status: &running})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update session abc")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreAppendLogDatabaseError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO session_logs").WillReturnError(errors.New("database is locked"))

	_, err := store.AppendLog("abc", LogLevelStdout, "line")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to append log")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreListSessionsCountDatabaseError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("database is locked"))

	_, _, err := store.ListSessions(Filter{}, 10, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to count sessions")
	require.NoError(t, mock.ExpectationsWereMet())
}
