package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelWrappingPreservesIdentity(t *testing.T) {
	err := Wrap(ErrNotRunning, "extend timeout for session abc123")
	assert.True(t, Is(err, ErrNotRunning))
	assert.False(t, Is(err, ErrNotFound))

	err = Wrapf(ErrProvisioning, "creating environment for session %s", "abc123")
	assert.True(t, Is(err, ErrProvisioning))
}

func TestIsNotRunningError(t *testing.T) {
	assert.False(t, IsNotRunningError(nil))
	assert.False(t, IsNotRunningError(New("unrelated")))
	assert.True(t, IsNotRunningError(ErrNotRunning))
	assert.True(t, IsNotRunningError(Wrap(ErrNotRunning, "snapshot")))
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("session %s", "deadbeef")
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "deadbeef")
}
