package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.Logging.File)
	assert.NotEmpty(t, cfg.WorkspaceRoot)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wisma.json")
	body := `{
		"server": {"port": 9001},
		"auth": {"driver": "sqlite3", "dsn": "file:users.db"},
		"session": {"idle_timeout_minutes": 10},
		"data_dir": "/tmp/wisma-test"
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Auth.Driver)
	assert.Equal(t, "file:users.db", cfg.Auth.DSN)
	assert.Equal(t, 10, cfg.Session.IdleTimeoutMinutes)

	// Untouched sections keep their defaults.
	assert.Equal(t, 5, cfg.Session.SweepIntervalMinutes)
	assert.Equal(t, 10, cfg.Agent.MaxToolTurns)

	// Derived paths follow the configured data dir.
	assert.Equal(t, "/tmp/wisma-test", cfg.DataDir)
	assert.Equal(t, filepath.Join("/tmp/wisma-test", "wisma.log"), cfg.Logging.File)
	assert.Equal(t, filepath.Join("/tmp/wisma-test", "workspaces"), cfg.WorkspaceRoot)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wisma.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "wisma.json")
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.Server.Port = 9100
	cfg.Auth = AuthConfig{Driver: "sqlite3", DSN: "file:users.db"}
	cfg.DataDir = t.TempDir()
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 9100, loaded.Server.Port)
	assert.Equal(t, "sqlite3", loaded.Auth.Driver)
}

func TestConfigPath(t *testing.T) {
	assert.Equal(t, "/etc/wisma.json", NewLoader("/etc/wisma.json").ConfigPath())
	assert.NotEmpty(t, NewLoader("").ConfigPath())
}
