package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drydocklabs/drydock/sandbox"
)

func TestMapSandboxStatus(t *testing.T) {
	tests := []struct {
		in   sandbox.Status
		want Status
	}{
		{sandbox.StatusPending, StatusPending},
		{sandbox.StatusRunning, StatusRunning},
		{sandbox.StatusStopping, StatusStopping},
		{sandbox.StatusStopped, StatusCompleted},
		{sandbox.StatusFailed, StatusFailed},
		{sandbox.StatusSnapshotting, StatusRunning},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, MapSandboxStatus(tt.in))
		})
	}
}

func TestMapSandboxStatusUnknown(t *testing.T) {
	// The mapping is total: unrecognized provider statuses degrade to pending
	// instead of failing.
	assert.Equal(t, StatusPending, MapSandboxStatus(sandbox.Status("hibernating")))
	assert.Equal(t, StatusPending, MapSandboxStatus(sandbox.Status("")))
}

func TestStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.False(t, StatusStopping.IsTerminal())
}

func TestIsValidStatus(t *testing.T) {
	assert.True(t, IsValidStatus("running"))
	assert.True(t, IsValidStatus("completed"))
	assert.False(t, IsValidStatus("paused"))
	assert.False(t, IsValidStatus(""))
}
