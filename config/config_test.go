package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drydock.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
[database]
path = "/var/lib/drydock/drydock.db"

[server]
port = 9000

[sandbox]
base_url = "https://provider.internal"
request_timeout_seconds = 30

[session]
default_timeout_ms = 600000
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/drydock/drydock.db", cfg.Database.Path)
	require.NotNil(t, cfg.Server.Port)
	assert.Equal(t, 9000, *cfg.Server.Port)
	assert.Equal(t, "https://provider.internal", cfg.Sandbox.BaseURL)
	assert.Equal(t, 30, cfg.Sandbox.RequestTimeoutSeconds)
	assert.Equal(t, int64(600000), cfg.Session.DefaultTimeoutMS)
}

func TestLoadFromFileDefaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "drydock.db", cfg.Database.Path)
	require.NotNil(t, cfg.Server.Port)
	assert.Equal(t, DefaultServerPort, *cfg.Server.Port)
	assert.NotEmpty(t, cfg.Sandbox.BaseURL)
	assert.True(t, cfg.Session.ReconcileOnStart)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFileInvalidPort(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 0
`)

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Sandbox: SandboxConfig{BaseURL: "http://localhost:9850", RequestTimeoutSeconds: 60},
		}
	}

	cfg := base()
	require.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Sandbox.BaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Sandbox.RequestTimeoutSeconds = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Session.DefaultTimeoutMS = -1
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Log.Level = "chatty"
	assert.Error(t, cfg.Validate())
}

func TestConfigWatcherReload(t *testing.T) {
	path := writeConfig(t, `
[sandbox]
base_url = "http://localhost:9850"
`)

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	defer cw.Stop()
	cw.debouncePeriod = 10 * time.Millisecond

	reloaded := make(chan *Config, 1)
	cw.OnReload(func(c *Config) error {
		select {
		case reloaded <- c:
		default:
		}
		return nil
	})
	cw.Start()

	require.NoError(t, os.WriteFile(path, []byte(`
[sandbox]
base_url = "http://provider.internal:9850"
`), 0644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "http://provider.internal:9850", cfg.Sandbox.BaseURL)
	case <-time.After(5 * time.Second):
		t.Fatal("config reload callback never fired")
	}
}
