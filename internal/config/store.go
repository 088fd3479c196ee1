package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Ning0612/ferry/internal/domain"
)

// Store persists the values set with `ferry config key=value` as a flat
// key to value YAML mapping.
type Store struct {
	path string
}

// DefaultStorePath returns the default location of the persisted values
func DefaultStorePath() string {
	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "ferry", "settings.yaml")
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".ferry", "settings.yaml")
	}
	return "settings.yaml"
}

// NewStore creates a store backed by the file at path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted values; a missing file yields an empty map
func (s *Store) Load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	values := map[string]string{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrConfigInvalid, s.path, err)
	}
	return values, nil
}

// Set merges pairs into the persisted values and writes them back.
// An empty value removes the key. Nothing is written when the result
// would not load.
func (s *Store) Set(pairs map[string]string) error {
	for key := range pairs {
		if !IsKnownKey(key) {
			return fmt.Errorf("%w: unknown key %q", domain.ErrConfigInvalid, key)
		}
	}

	values, err := s.Load()
	if err != nil {
		return err
	}
	for key, value := range pairs {
		if value == "" {
			delete(values, key)
			continue
		}
		values[key] = value
	}

	v := newViper()
	if err := v.MergeConfigMap(nest(values)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	if _, err := decode(v); err != nil {
		return err
	}

	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}

// ParseAssignment splits a key=value argument
func ParseAssignment(arg string) (key, value string, err error) {
	key, value, ok := strings.Cut(arg, "=")
	key = strings.ToLower(strings.TrimSpace(key))
	if !ok || key == "" {
		return "", "", fmt.Errorf("%w: expected key=value, got %q", domain.ErrInvalidArgument, arg)
	}
	return key, strings.TrimSpace(value), nil
}

// KnownKeys returns every configuration key, sorted
func KnownKeys() []string {
	keys := make([]string, 0, len(defaults))
	for key := range defaults {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// IsKnownKey reports whether key is a configuration key
func IsKnownKey(key string) bool {
	_, ok := defaults[key]
	return ok
}

// Value renders the effective value of key in cfg
func (c *Config) Value(key string) (string, bool) {
	r, t := c.Remote, c.Transfer
	values := map[string]any{
		"remote.prefix":  r.Prefix,
		"remote.host":    r.Host,
		"remote.port":    r.Port,
		"remote.user":    r.User,
		"remote.tls":     r.TLS,
		"remote.timeout": r.Timeout,
		"remote.root":    r.Root,

		"transfer.chunk_size":    t.ChunkSize,
		"transfer.read_buffer":   t.ReadBuffer,
		"transfer.concat_fan_in": t.ConcatFanIn,
		"transfer.parallel":      t.Parallel,

		"transfer.retry.describe.attempts":   t.Retry.Describe.Attempts,
		"transfer.retry.describe.delay":      t.Retry.Describe.Delay,
		"transfer.retry.describe.backoff":    t.Retry.Describe.Backoff,
		"transfer.retry.chunk_copy.attempts": t.Retry.ChunkCopy.Attempts,
		"transfer.retry.chunk_copy.delay":    t.Retry.ChunkCopy.Delay,
		"transfer.retry.chunk_copy.backoff":  t.Retry.ChunkCopy.Backoff,
		"transfer.retry.concat.attempts":     t.Retry.Concat.Attempts,
		"transfer.retry.concat.delay":        t.Retry.Concat.Delay,
		"transfer.retry.concat.backoff":      t.Retry.Concat.Backoff,

		"log.level":  c.Log.Level,
		"log.format": c.Log.Format,
		"log.file":   c.Log.File,

		"history.enabled": c.History.Enabled,
		"history.file":    c.History.File,
		"history.keep":    c.History.Keep,
	}
	v, ok := values[key]
	if !ok {
		return "", false
	}
	return fmt.Sprint(v), true
}
