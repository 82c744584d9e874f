package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()

	assert.Equal(t, 445, cfg.Remote.Port)
	assert.Equal(t, "guest", cfg.Remote.User)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout())
	assert.Equal(t, 60*time.Second, cfg.ReadTimeout())
	assert.Equal(t, 60*time.Second, cfg.InactivityTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.ProgressInterval())
	assert.Equal(t, int64(1<<20), cfg.Download.BufferSize)
	assert.Equal(t, int64(8<<30), cfg.Extract.MaxBytes)
	assert.Equal(t, 2, cfg.Pool.Workers)
	assert.Equal(t, 5*time.Second, cfg.ShutdownGrace())
	assert.NoError(t, cfg.Validate())
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "rshop.conf")

	cfg := New()
	cfg.Remote.Port = 1445
	cfg.Remote.User = "alice"
	cfg.Remote.Domain = "WORKGROUP"
	cfg.Download.BufferSize = 256 * 1024
	cfg.Extract.MaxBytes = 2 << 30
	cfg.Pool.Workers = 4
	cfg.Log.Level = "debug"
	cfg.Log.File = "/var/log/rshop.log"

	require.NoError(t, Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "max_bytes")
	assert.Contains(t, string(data), "2.0 GiB")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.conf"))
	require.NoError(t, err)
	assert.Equal(t, New(), cfg)
}

func TestLoadHumanSizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rshop.conf")
	require.NoError(t, os.WriteFile(path, []byte("[extract]\nmax_bytes = 512MB\n[download]\nbuffer_size = 65536\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(512_000_000), cfg.Extract.MaxBytes)
	assert.Equal(t, int64(65536), cfg.Download.BufferSize)

	require.NoError(t, os.WriteFile(path, []byte("[extract]\nmax_bytes = lots\n"), 0600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"port", func(c *Config) { c.Remote.Port = 0 }, ErrInvalidPort},
		{"connect timeout", func(c *Config) { c.Remote.ConnectTimeoutSeconds = 0 }, ErrInvalidConnectTimeout},
		{"read timeout", func(c *Config) { c.Remote.ReadTimeoutSeconds = 4000 }, ErrInvalidReadTimeout},
		{"inactivity", func(c *Config) { c.Download.InactivityTimeoutSeconds = 0 }, ErrInvalidInactivityTimeout},
		{"progress", func(c *Config) { c.Download.ProgressIntervalMs = 1 }, ErrInvalidProgressInterval},
		{"buffer", func(c *Config) { c.Download.BufferSize = 10 }, ErrInvalidBufferSize},
		{"max bytes", func(c *Config) { c.Extract.MaxBytes = 0 }, ErrInvalidMaxBytes},
		{"workers", func(c *Config) { c.Pool.Workers = 0 }, ErrInvalidWorkers},
		{"grace", func(c *Config) { c.Pool.ShutdownGraceSeconds = -1 }, ErrInvalidShutdownGrace},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, ErrInvalidLogLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.modify(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path, err := DefaultConfigPath()
	if err != nil {
		t.Skip("no home directory")
	}
	assert.Equal(t, "rshop.conf", filepath.Base(path))
	assert.Equal(t, "logs", filepath.Base(LogDirectory()))
}
