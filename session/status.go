package session

import (
	"github.com/drydocklabs/drydock/sandbox"
)

// MapSandboxStatus translates the provisioning service's status vocabulary
// into the session status vocabulary. The function is total: any
// unrecognized provider status maps to pending, and it never panics.
//
// A snapshotting environment is still doing work on the session's behalf, so
// it maps to running. A cleanly stopped environment maps to completed.
func MapSandboxStatus(s sandbox.Status) Status {
	switch s {
	case sandbox.StatusPending:
		return StatusPending
	case sandbox.StatusRunning:
		return StatusRunning
	case sandbox.StatusStopping:
		return StatusStopping
	case sandbox.StatusStopped:
		return StatusCompleted
	case sandbox.StatusFailed:
		return StatusFailed
	case sandbox.StatusSnapshotting:
		return StatusRunning
	default:
		return StatusPending
	}
}
