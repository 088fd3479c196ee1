package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ning0612/ferry/internal/domain"
)

// Config represents the complete configuration for ferry
type Config struct {
	// Remote describes how to reach the WebHDFS namenode
	Remote RemoteConfig `mapstructure:"remote"`

	// Transfer holds the transfer engine tunables
	Transfer TransferConfig `mapstructure:"transfer"`

	Log LogConfig `mapstructure:"log"`

	// History controls the local session journal
	History HistoryConfig `mapstructure:"history"`
}

// RemoteConfig holds the connection defaults of the remote backend
type RemoteConfig struct {
	// Prefix marks command line arguments that address the remote backend
	Prefix string `mapstructure:"prefix"`

	Host    string        `mapstructure:"host"`
	Port    int           `mapstructure:"port"`
	User    string        `mapstructure:"user"`
	TLS     bool          `mapstructure:"tls"`
	Timeout time.Duration `mapstructure:"timeout"`

	// Root is the virtual cluster prefix every remote path must live under
	Root string `mapstructure:"root"`
}

// TransferConfig holds the engine tunables
type TransferConfig struct {
	ChunkSize   int64       `mapstructure:"chunk_size"`
	ReadBuffer  int64       `mapstructure:"read_buffer"`
	ConcatFanIn int         `mapstructure:"concat_fan_in"`
	Parallel    int         `mapstructure:"parallel"`
	Retry       RetryConfig `mapstructure:"retry"`
}

// RetryConfig holds one policy per engine call site
type RetryConfig struct {
	Describe  RetryPolicy `mapstructure:"describe"`
	ChunkCopy RetryPolicy `mapstructure:"chunk_copy"`
	Concat    RetryPolicy `mapstructure:"concat"`
}

// RetryPolicy mirrors retry.Policy in config form
type RetryPolicy struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
	Backoff  float64       `mapstructure:"backoff"`
}

// LogConfig configures the process-wide logger
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`

	// File enables rotated file output when set
	File string `mapstructure:"file"`
}

// HistoryConfig configures the session journal
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	File    string `mapstructure:"file"`

	// Keep is the number of sessions retained; 0 keeps everything
	Keep int `mapstructure:"keep"`
}

// Validate checks if the configuration is complete and consistent.
// The remote host is only checked when the remote backend is built.
func (c *Config) Validate() error {
	r := c.Remote
	if !strings.HasSuffix(r.Prefix, "://") || len(r.Prefix) < 4 {
		return fmt.Errorf("%w: remote.prefix must look like scheme://, got %q", domain.ErrConfigInvalid, r.Prefix)
	}
	if r.Port <= 0 || r.Port > 65535 {
		return fmt.Errorf("%w: remote.port out of range: %d", domain.ErrConfigInvalid, r.Port)
	}
	if !strings.HasPrefix(r.Root, "/") {
		return fmt.Errorf("%w: remote.root must be absolute: %q", domain.ErrConfigInvalid, r.Root)
	}
	if r.Timeout < 0 {
		return fmt.Errorf("%w: remote.timeout cannot be negative", domain.ErrConfigInvalid)
	}

	t := c.Transfer
	if t.ChunkSize <= 0 {
		return fmt.Errorf("%w: transfer.chunk_size must be positive", domain.ErrConfigInvalid)
	}
	if t.ReadBuffer <= 0 || t.ReadBuffer > t.ChunkSize {
		return fmt.Errorf("%w: transfer.read_buffer must be between 1 and chunk_size", domain.ErrConfigInvalid)
	}
	if t.ConcatFanIn < 2 {
		return fmt.Errorf("%w: transfer.concat_fan_in must be at least 2", domain.ErrConfigInvalid)
	}
	if t.Parallel < 1 {
		return fmt.Errorf("%w: transfer.parallel must be at least 1", domain.ErrConfigInvalid)
	}
	for name, p := range map[string]RetryPolicy{
		"describe":   t.Retry.Describe,
		"chunk_copy": t.Retry.ChunkCopy,
		"concat":     t.Retry.Concat,
	} {
		if p.Attempts < 1 {
			return fmt.Errorf("%w: transfer.retry.%s.attempts must be at least 1", domain.ErrConfigInvalid, name)
		}
		if p.Delay < 0 || p.Backoff < 0 {
			return fmt.Errorf("%w: transfer.retry.%s cannot be negative", domain.ErrConfigInvalid, name)
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log.level %q", domain.ErrConfigInvalid, c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log.format %q", domain.ErrConfigInvalid, c.Log.Format)
	}

	if c.History.Keep < 0 {
		return fmt.Errorf("%w: history.keep cannot be negative", domain.ErrConfigInvalid)
	}

	return nil
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	// Expand ~ to home directory
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	// Expand environment variables
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}
