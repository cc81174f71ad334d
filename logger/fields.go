package logger

// Standard field names for consistent structured logging across drydock.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldSessionID = "session_id"
	FieldSandboxID = "sandbox_id"
	FieldSnapshot  = "snapshot_id"
	FieldRequestID = "request_id"

	// Components
	FieldComponent = "component"
	FieldService   = "service"

	// Operations
	FieldOperation = "operation"
	FieldMethod    = "method"
	FieldPath      = "path"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldTimeoutMS  = "timeout_ms"

	// Errors
	FieldError    = "error"
	FieldExitCode = "exit_code"

	// Counts and sizes
	FieldCount = "count"
	FieldLines = "lines"

	// Status
	FieldStatus = "status"
	FieldState  = "state"
)
