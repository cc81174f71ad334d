package config

import "github.com/drydocklabs/drydock/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Server port: 0 is invalid (omit for default), negative is invalid
	if c.Server.Port != nil && *c.Server.Port == 0 {
		return errors.Newf("server.port cannot be 0 (omit for default port %d)", DefaultServerPort)
	}
	if c.Server.Port != nil && *c.Server.Port < 0 {
		return errors.Newf("server.port must be positive, got %d", *c.Server.Port)
	}

	if c.Sandbox.BaseURL == "" {
		return errors.New("sandbox.base_url cannot be empty")
	}
	if c.Sandbox.RequestTimeoutSeconds <= 0 {
		return errors.Newf("sandbox.request_timeout_seconds must be > 0, got %d", c.Sandbox.RequestTimeoutSeconds)
	}

	if c.Session.DefaultTimeoutMS < 0 {
		return errors.Newf("session.default_timeout_ms must be >= 0, got %d", c.Session.DefaultTimeoutMS)
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.Newf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}

	return nil
}
