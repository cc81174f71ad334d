package config

import "github.com/spf13/viper"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "drydock.db")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})

	// Sandbox provider defaults
	v.SetDefault("sandbox.base_url", "http://localhost:9850")
	v.SetDefault("sandbox.request_timeout_seconds", 60)

	// Session defaults
	v.SetDefault("session.default_timeout_ms", int64(30*60*1000)) // 30 minutes
	v.SetDefault("session.reconcile_on_start", true)

	// Logging defaults
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
}
