// Package config holds the drydock configuration, loaded from drydock.toml
// with DRYDOCK_* environment overrides.
package config

// Config represents the core drydock configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Sandbox  SandboxConfig  `mapstructure:"sandbox"`
	Session  SessionConfig  `mapstructure:"session"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the drydock API server
type ServerConfig struct {
	Port           *int     `mapstructure:"port"` // nil = default, 0 is invalid (omit for default)
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Server port constants
const (
	DefaultServerPort  = 8940
	FallbackServerPort = 8941
)

// SandboxConfig configures the compute provisioning service
type SandboxConfig struct {
	BaseURL               string `mapstructure:"base_url"`
	Token                 string `mapstructure:"token"` // bound to DRYDOCK_SANDBOX_TOKEN
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// SessionConfig configures session lifecycle behavior
type SessionConfig struct {
	// DefaultTimeoutMS is the provider-side environment timeout applied when
	// a launch request does not carry one. 0 = provider default.
	DefaultTimeoutMS int64 `mapstructure:"default_timeout_ms"`
	// ReconcileOnStart controls whether interrupted sessions are reconciled
	// against the provider at startup.
	ReconcileOnStart bool `mapstructure:"reconcile_on_start"`
}

// LogConfig configures process logging
type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level"` // debug, info, warn, error
}
