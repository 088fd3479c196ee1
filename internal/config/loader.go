package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Ning0612/ferry/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. FERRY_REMOTE_HOST
const EnvPrefix = "FERRY"

// defaults lists every known key with its built-in value
var defaults = map[string]any{
	"remote.prefix":  "hdfs://",
	"remote.host":    "",
	"remote.port":    9870,
	"remote.user":    "",
	"remote.tls":     false,
	"remote.timeout": 60 * time.Second,
	"remote.root":    "/",

	"transfer.chunk_size":    int64(256 << 20),
	"transfer.read_buffer":   int64(8 << 20),
	"transfer.concat_fan_in": 20,
	"transfer.parallel":      1,

	"transfer.retry.describe.attempts":   5,
	"transfer.retry.describe.delay":      10 * time.Second,
	"transfer.retry.describe.backoff":    2.0,
	"transfer.retry.chunk_copy.attempts": 10,
	"transfer.retry.chunk_copy.delay":    10 * time.Second,
	"transfer.retry.chunk_copy.backoff":  2.0,
	"transfer.retry.concat.attempts":     5,
	"transfer.retry.concat.delay":        10 * time.Second,
	"transfer.retry.concat.backoff":      2.0,

	"log.level":  "warn",
	"log.format": "text",
	"log.file":   "",

	"history.enabled": true,
	"history.file":    "",
	"history.keep":    1000,
}

// DefaultConfigPaths returns the default paths to search for config files
func DefaultConfigPaths() []string {
	paths := []string{
		".",
	}

	// Add user config directory
	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "ferry"))
	}

	// Add home directory
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".ferry"))
	}

	return paths
}

// Load reads the configuration. If path is empty, config.yaml is searched in
// the default locations and a missing file is not an error.
//
// Precedence, highest first: environment (FERRY_*, .env included), values
// persisted by the config command, the config file, built-in defaults.
func Load(path string) (*Config, error) {
	return LoadWithStore(path, NewStore(DefaultStorePath()))
}

// LoadWithStore is Load with an explicit persisted store; store may be nil
func LoadWithStore(path string, store *Store) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := newViper()
	v.AutomaticEnv()
	if path != "" {
		// Use specific file
		path = ExpandPath(path)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	} else {
		// Search default paths
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
		}
	}

	if store != nil {
		values, err := store.Load()
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(nest(values)); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
		}
	}

	return decode(v)
}

// LoadFromString parses configuration from a YAML string. The environment is
// not consulted.
func LoadFromString(yamlContent string) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	return decode(v)
}

// Default returns the built-in configuration
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(fmt.Sprintf("built-in config is invalid: %v", err))
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	cfg.Remote.Prefix = strings.ToLower(cfg.Remote.Prefix)
	if cfg.Log.File != "" {
		cfg.Log.File = ExpandPath(cfg.Log.File)
	}
	if cfg.History.File != "" {
		cfg.History.File = ExpandPath(cfg.History.File)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv exports the variables of a .env file that are not already set
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrConfigInvalid, path, err)
}

// nest turns dotted keys into the nested map viper merges
func nest(flat map[string]string) map[string]any {
	out := map[string]any{}
	for key, value := range flat {
		parts := strings.Split(key, ".")
		m := out
		for _, part := range parts[:len(parts)-1] {
			child, ok := m[part].(map[string]any)
			if !ok {
				child = map[string]any{}
				m[part] = child
			}
			m = child
		}
		m[parts[len(parts)-1]] = value
	}
	return out
}
