package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
	assert.True(t, cfg.Logging.Sampling)

	assert.Equal(t, "/tmp/app-library", cfg.Library.StoragePath)
	assert.False(t, cfg.Library.KeepFailed)
	assert.Equal(t, 24*time.Hour, cfg.Library.ScratchTTL.Duration)

	assert.Equal(t, 4, cfg.Acquisition.QueueDepth)
	assert.Zero(t, cfg.Acquisition.Timeout.Duration)
	assert.Zero(t, cfg.Acquisition.Retries)

	assert.Equal(t, "127.0.0.1", cfg.Transfer.Host)
	assert.Equal(t, "127.0.0.1", cfg.TransferAdvertiseHost())

	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	require.NoError(t, cfg.Validate())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                    "9000",
		"HOST":                    "127.0.0.1",
		"LOG_LEVEL":               "debug",
		"LOG_DEV":                 "true",
		"LIBRARY_STORAGE_PATH":    "/srv/library",
		"LIBRARY_KEEP_FAILED":     "true",
		"LIBRARY_SCRATCH_TTL":     "2h",
		"ACQUISITION_QUEUE_DEPTH": "2",
		"ACQUISITION_TIMEOUT":     "90s",
		"TRANSFER_HOST":           "0.0.0.0",
		"TRANSFER_ADVERTISE_HOST": "192.168.1.20",
		"RATE_LIMIT_ENABLED":      "false",
		"CORS_ALLOW_ORIGINS":      "http://a.test,http://b.test",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, "/srv/library", cfg.Library.StoragePath)
	assert.True(t, cfg.Library.KeepFailed)
	assert.Equal(t, 2*time.Hour, cfg.Library.ScratchTTL.Duration)
	assert.Equal(t, 2, cfg.Acquisition.QueueDepth)
	assert.Equal(t, 90*time.Second, cfg.Acquisition.Timeout.Duration)
	assert.Equal(t, "192.168.1.20", cfg.TransferAdvertiseHost())
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowOrigins)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)

	// Defaults still apply
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 4, cfg.Acquisition.QueueDepth)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.yaml")
	content := `
server:
  port: "7000"
library:
  storage_path: /data/library
  keep_failed: true
  scratch_ttl: 30m
acquisition:
  queue_depth: 1
  timeout: 5m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "/data/library", cfg.Library.StoragePath)
	assert.True(t, cfg.Library.KeepFailed)
	assert.Equal(t, 30*time.Minute, cfg.Library.ScratchTTL.Duration)
	assert.Equal(t, 1, cfg.Acquisition.QueueDepth)
	assert.Equal(t, 5*time.Minute, cfg.Acquisition.Timeout.Duration)

	// Untouched sections keep their defaults
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadTOMLFileWithEnvironmentOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.toml")
	content := `
[server]
port = "7100"

[transfer]
host = "0.0.0.0"
advertise_host = "10.0.0.5"

[acquisition]
queue_depth = 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("ACQUISITION_QUEUE_DEPTH", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7100", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Transfer.Host)
	assert.Equal(t, "10.0.0.5", cfg.TransferAdvertiseHost())
	assert.Equal(t, 3, cfg.Acquisition.QueueDepth, "environment wins over file")
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		err := LoadFile(filepath.Join(dir, "nope.yaml"), Default())
		assert.Error(t, err)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := filepath.Join(dir, "library.ini")
		require.NoError(t, os.WriteFile(path, []byte("port=1"), 0o644))
		err := LoadFile(path, Default())
		assert.ErrorContains(t, err, "unsupported config file type")
	})

	t.Run("malformed toml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.toml")
		require.NoError(t, os.WriteFile(path, []byte("[server\nport="), 0o644))
		err := LoadFile(path, Default())
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty storage", func(c *Config) { c.Library.StoragePath = "" }, true},
		{"zero queue", func(c *Config) { c.Acquisition.QueueDepth = 0 }, true},
		{"negative retries", func(c *Config) { c.Acquisition.Retries = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("ACQUISITION_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)

	cfg := LoadOrDefault()
	assert.Equal(t, Default(), cfg)
}
