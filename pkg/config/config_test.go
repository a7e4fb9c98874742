package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 15, cfg.RateLimit.RequestsPerWindow)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.JitterMin)
	assert.Equal(t, 5*time.Second, cfg.RateLimit.JitterMax)
	assert.Equal(t, 100, cfg.RateLimit.BatchSize)
	assert.Equal(t, 600*time.Second, cfg.RateLimit.Cooldown)

	assert.Equal(t, 300*time.Second, cfg.Source.Timeout)
	assert.Equal(t, 3, cfg.Source.MaxAttempts)

	assert.Equal(t, 10, cfg.Collection.PaceEvery)
	assert.Equal(t, 250, cfg.Collection.CheckpointEvery)
	assert.Equal(t, 500, cfg.Collection.PromptEvery)
	assert.Equal(t, 10000, cfg.Collection.LargeFollowers)
	assert.Equal(t, 7500, cfg.Collection.LargeFollowees)

	assert.Equal(t, BackendFile, cfg.Storage.Backend)
	assert.Equal(t, 50, cfg.Storage.Retention)
	assert.Equal(t, 10, cfg.Output.MaxNames)

	assert.NoError(t, cfg.Validate())
}

func TestDefaultDataDirHonoursXDG(t *testing.T) {
	if os.Getenv("APPDATA") != "" {
		t.Skip("windows data directory")
	}
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)

	got := DefaultDataDir()
	if filepath.Base(filepath.Dir(got)) == "Application Support" {
		t.Skip("darwin data directory")
	}
	assert.Equal(t, filepath.Join(dir, "igmonitor"), got)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("IGMONITOR_REQUESTS_PER_WINDOW", "30")
	t.Setenv("IGMONITOR_COOLDOWN", "5m")
	t.Setenv("IGMONITOR_DATA_DIR", "/tmp/igmonitor-test")
	t.Setenv("IGMONITOR_BACKEND", "sqlite")
	t.Setenv("IGMONITOR_ASSUME_YES", "true")
	t.Setenv("IGMONITOR_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 30, cfg.RateLimit.RequestsPerWindow)
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.Cooldown)
	assert.Equal(t, "/tmp/igmonitor-test", cfg.Storage.DataDir)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.True(t, cfg.Collection.AssumeYes)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvRejectsGarbage(t *testing.T) {
	t.Setenv("IGMONITOR_REQUESTS_PER_WINDOW", "lots")
	t.Setenv("IGMONITOR_WINDOW", "soon")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IGMONITOR_REQUESTS_PER_WINDOW")
	assert.Contains(t, err.Error(), "IGMONITOR_WINDOW")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
rate_limit:
  requests_per_window: 10
  window: 2m
  cooldown: 15m
collection:
  checkpoint_every: 100
storage:
  backend: sqlite
  data_dir: /var/lib/igmonitor
  retention: 5
logging:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, 10, cfg.RateLimit.RequestsPerWindow)
	assert.Equal(t, 2*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Cooldown)
	assert.Equal(t, 100, cfg.Collection.CheckpointEvery)
	assert.Equal(t, 500, cfg.Collection.PromptEvery, "untouched keys keep defaults")
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, 5, cfg.Storage.Retention)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "zero ceiling", mutate: func(c *Config) { c.RateLimit.RequestsPerWindow = 0 }, wantErr: "requests per window"},
		{name: "inverted jitter", mutate: func(c *Config) { c.RateLimit.JitterMax = time.Second }, wantErr: "jitter"},
		{name: "bad backend", mutate: func(c *Config) { c.Storage.Backend = "redis" }, wantErr: "storage backend"},
		{name: "no data dir", mutate: func(c *Config) { c.Storage.DataDir = "" }, wantErr: "data directory"},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "log level"},
		{name: "zero timeout", mutate: func(c *Config) { c.Source.Timeout = 0 }, wantErr: "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.RateLimit.Cooldown = 20 * time.Minute
	cfg.Storage.Retention = 7
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, 20*time.Minute, loaded.RateLimit.Cooldown)
	assert.Equal(t, 7, loaded.Storage.Retention)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"data-dir":     "/data",
		"backend":      "sqlite",
		"yes":          true,
		"no-color":     true,
		"max-names":    25,
		"metrics-addr": ":9999",
		"log-level":    "error",
	})

	assert.Equal(t, "/data", cfg.Storage.DataDir)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.True(t, cfg.Collection.AssumeYes)
	assert.False(t, cfg.Output.Color)
	assert.Equal(t, 25, cfg.Output.MaxNames)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9999", cfg.Metrics.Address)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  retention: 3\n  data_dir: /from/file\n"), 0600))

	t.Setenv("IGMONITOR_DATA_DIR", "/from/env")

	cfg, err := Load(path, map[string]interface{}{"backend": "sqlite"})
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Storage.Retention)
	assert.Equal(t, "/from/env", cfg.Storage.DataDir)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
}
