// Package config loads and saves the rshop.conf settings file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/ini.v1"

	"github.com/retro/rshop/internal/constants"
)

// Config is the full settings file.
//
// INI format:
//
//	[remote]
//	port = 445
//	user = guest
//	domain =
//	connect_timeout_seconds = 30
//	read_timeout_seconds = 60
//
//	[download]
//	inactivity_timeout_seconds = 60
//	progress_interval_ms = 500
//	buffer_size = 1 MiB
//
//	[extract]
//	max_bytes = 8 GiB
//
//	[pool]
//	workers = 2
//	shutdown_grace_seconds = 5
//
//	[log]
//	level = info
//	file =
type Config struct {
	Remote   RemoteConfig
	Download DownloadConfig
	Extract  ExtractConfig
	Pool     PoolConfig
	Log      LogConfig
}

// RemoteConfig holds connection defaults. Credentials other than the user
// name are never stored.
type RemoteConfig struct {
	Port                  int    `ini:"port"`
	User                  string `ini:"user"`
	Domain                string `ini:"domain"`
	ConnectTimeoutSeconds int    `ini:"connect_timeout_seconds"`
	ReadTimeoutSeconds    int    `ini:"read_timeout_seconds"`
}

// DownloadConfig tunes the transfer loop.
type DownloadConfig struct {
	InactivityTimeoutSeconds int `ini:"inactivity_timeout_seconds"`
	ProgressIntervalMs       int `ini:"progress_interval_ms"`
	// BufferSize is the read chunk size in bytes. Written human-readable.
	BufferSize int64 `ini:"buffer_size"`
}

// ExtractConfig bounds archive extraction.
type ExtractConfig struct {
	// MaxBytes is the cumulative decompressed ceiling. Written human-readable.
	MaxBytes int64 `ini:"max_bytes"`
}

// PoolConfig sizes the background worker pool.
type PoolConfig struct {
	Workers              int `ini:"workers"`
	ShutdownGraceSeconds int `ini:"shutdown_grace_seconds"`
}

// LogConfig selects the log level and an optional rotating log file.
type LogConfig struct {
	Level string `ini:"level"`
	File  string `ini:"file"`
}

// Config validation errors
var (
	ErrInvalidPort              = errors.New("port must be between 1 and 65535")
	ErrInvalidConnectTimeout    = errors.New("connect_timeout_seconds must be between 1 and 600")
	ErrInvalidReadTimeout       = errors.New("read_timeout_seconds must be between 1 and 3600")
	ErrInvalidInactivityTimeout = errors.New("inactivity_timeout_seconds must be between 1 and 3600")
	ErrInvalidProgressInterval  = errors.New("progress_interval_ms must be between 10 and 60000")
	ErrInvalidBufferSize        = errors.New("buffer_size must be between 4 KiB and 64 MiB")
	ErrInvalidMaxBytes          = errors.New("max_bytes must be positive")
	ErrInvalidWorkers           = errors.New("workers must be between 1 and 16")
	ErrInvalidShutdownGrace     = errors.New("shutdown_grace_seconds must be between 0 and 300")
	ErrInvalidLogLevel          = errors.New("level must be one of debug, info, warn, error")
)

// New returns a config holding the built-in defaults.
func New() *Config {
	return &Config{
		Remote: RemoteConfig{
			Port:                  constants.DefaultPort,
			User:                  constants.GuestUser,
			ConnectTimeoutSeconds: int(constants.ConnectTimeout / time.Second),
			ReadTimeoutSeconds:    int(constants.ReadTimeout / time.Second),
		},
		Download: DownloadConfig{
			InactivityTimeoutSeconds: int(constants.InactivityTimeout / time.Second),
			ProgressIntervalMs:       int(constants.ProgressInterval / time.Millisecond),
			BufferSize:               constants.ReadBufferSize,
		},
		Extract: ExtractConfig{
			MaxBytes: constants.MaxExtractBytes,
		},
		Pool: PoolConfig{
			Workers:              constants.PoolWorkers,
			ShutdownGraceSeconds: int(constants.PoolShutdownGrace / time.Second),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the config at path. An empty path selects DefaultConfigPath.
// A missing file yields the defaults and no error.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", filepath.Base(path), err)
	}

	remote := iniFile.Section("remote")
	cfg.Remote.Port = remote.Key("port").MustInt(cfg.Remote.Port)
	cfg.Remote.User = remote.Key("user").MustString(cfg.Remote.User)
	cfg.Remote.Domain = remote.Key("domain").String()
	cfg.Remote.ConnectTimeoutSeconds = remote.Key("connect_timeout_seconds").MustInt(cfg.Remote.ConnectTimeoutSeconds)
	cfg.Remote.ReadTimeoutSeconds = remote.Key("read_timeout_seconds").MustInt(cfg.Remote.ReadTimeoutSeconds)

	download := iniFile.Section("download")
	cfg.Download.InactivityTimeoutSeconds = download.Key("inactivity_timeout_seconds").MustInt(cfg.Download.InactivityTimeoutSeconds)
	cfg.Download.ProgressIntervalMs = download.Key("progress_interval_ms").MustInt(cfg.Download.ProgressIntervalMs)
	if cfg.Download.BufferSize, err = parseSize(download.Key("buffer_size").String(), cfg.Download.BufferSize); err != nil {
		return nil, fmt.Errorf("download.buffer_size: %w", err)
	}

	extract := iniFile.Section("extract")
	if cfg.Extract.MaxBytes, err = parseSize(extract.Key("max_bytes").String(), cfg.Extract.MaxBytes); err != nil {
		return nil, fmt.Errorf("extract.max_bytes: %w", err)
	}

	pool := iniFile.Section("pool")
	cfg.Pool.Workers = pool.Key("workers").MustInt(cfg.Pool.Workers)
	cfg.Pool.ShutdownGraceSeconds = pool.Key("shutdown_grace_seconds").MustInt(cfg.Pool.ShutdownGraceSeconds)

	logSection := iniFile.Section("log")
	cfg.Log.Level = logSection.Key("level").MustString(cfg.Log.Level)
	cfg.Log.File = logSection.Key("file").String()

	return cfg, nil
}

// parseSize accepts plain byte counts and humanized sizes such as "8 GiB".
func parseSize(s string, def int64) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// Save writes cfg to path, creating parent directories. An empty path
// selects DefaultConfigPath. The file is written to a temporary name and
// renamed into place.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	remote, err := iniFile.NewSection("remote")
	if err != nil {
		return fmt.Errorf("failed to create remote section: %w", err)
	}
	remote.Key("port").SetValue(fmt.Sprintf("%d", cfg.Remote.Port))
	remote.Key("user").SetValue(cfg.Remote.User)
	remote.Key("domain").SetValue(cfg.Remote.Domain)
	remote.Key("connect_timeout_seconds").SetValue(fmt.Sprintf("%d", cfg.Remote.ConnectTimeoutSeconds))
	remote.Key("read_timeout_seconds").SetValue(fmt.Sprintf("%d", cfg.Remote.ReadTimeoutSeconds))

	download, err := iniFile.NewSection("download")
	if err != nil {
		return fmt.Errorf("failed to create download section: %w", err)
	}
	download.Key("inactivity_timeout_seconds").SetValue(fmt.Sprintf("%d", cfg.Download.InactivityTimeoutSeconds))
	download.Key("progress_interval_ms").SetValue(fmt.Sprintf("%d", cfg.Download.ProgressIntervalMs))
	download.Key("buffer_size").SetValue(humanize.IBytes(uint64(cfg.Download.BufferSize)))

	extract, err := iniFile.NewSection("extract")
	if err != nil {
		return fmt.Errorf("failed to create extract section: %w", err)
	}
	extract.Key("max_bytes").SetValue(humanize.IBytes(uint64(cfg.Extract.MaxBytes)))

	pool, err := iniFile.NewSection("pool")
	if err != nil {
		return fmt.Errorf("failed to create pool section: %w", err)
	}
	pool.Key("workers").SetValue(fmt.Sprintf("%d", cfg.Pool.Workers))
	pool.Key("shutdown_grace_seconds").SetValue(fmt.Sprintf("%d", cfg.Pool.ShutdownGraceSeconds))

	logSection, err := iniFile.NewSection("log")
	if err != nil {
		return fmt.Errorf("failed to create log section: %w", err)
	}
	logSection.Key("level").SetValue(cfg.Log.Level)
	logSection.Key("file").SetValue(cfg.Log.File)

	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// Validate checks value ranges. Returns the first violation found.
func (cfg *Config) Validate() error {
	if cfg.Remote.Port < 1 || cfg.Remote.Port > 65535 {
		return ErrInvalidPort
	}
	if cfg.Remote.ConnectTimeoutSeconds < 1 || cfg.Remote.ConnectTimeoutSeconds > 600 {
		return ErrInvalidConnectTimeout
	}
	if cfg.Remote.ReadTimeoutSeconds < 1 || cfg.Remote.ReadTimeoutSeconds > 3600 {
		return ErrInvalidReadTimeout
	}
	if cfg.Download.InactivityTimeoutSeconds < 1 || cfg.Download.InactivityTimeoutSeconds > 3600 {
		return ErrInvalidInactivityTimeout
	}
	if cfg.Download.ProgressIntervalMs < 10 || cfg.Download.ProgressIntervalMs > 60000 {
		return ErrInvalidProgressInterval
	}
	if cfg.Download.BufferSize < 4*1024 || cfg.Download.BufferSize > 64*1024*1024 {
		return ErrInvalidBufferSize
	}
	if cfg.Extract.MaxBytes <= 0 {
		return ErrInvalidMaxBytes
	}
	if cfg.Pool.Workers < 1 || cfg.Pool.Workers > 16 {
		return ErrInvalidWorkers
	}
	if cfg.Pool.ShutdownGraceSeconds < 0 || cfg.Pool.ShutdownGraceSeconds > 300 {
		return ErrInvalidShutdownGrace
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return ErrInvalidLogLevel
	}
	return nil
}

// ConnectTimeout returns the connect timeout as a duration.
func (cfg *Config) ConnectTimeout() time.Duration {
	return time.Duration(cfg.Remote.ConnectTimeoutSeconds) * time.Second
}

// ReadTimeout returns the socket read timeout as a duration.
func (cfg *Config) ReadTimeout() time.Duration {
	return time.Duration(cfg.Remote.ReadTimeoutSeconds) * time.Second
}

// InactivityTimeout returns the download stall window as a duration.
func (cfg *Config) InactivityTimeout() time.Duration {
	return time.Duration(cfg.Download.InactivityTimeoutSeconds) * time.Second
}

// ProgressInterval returns the download progress throttle as a duration.
func (cfg *Config) ProgressInterval() time.Duration {
	return time.Duration(cfg.Download.ProgressIntervalMs) * time.Millisecond
}

// ShutdownGrace returns the pool drain window as a duration.
func (cfg *Config) ShutdownGrace() time.Duration {
	return time.Duration(cfg.Pool.ShutdownGraceSeconds) * time.Second
}
