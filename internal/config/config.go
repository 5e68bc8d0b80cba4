// Package config provides configuration management for notegraph.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/thebtf/notegraph/internal/textgen"
)

const (
	// DefaultPort is the HTTP listen port when none is configured.
	DefaultPort = 8731

	// DefaultMinSimilarity is the edge threshold applied when a request
	// does not supply one.
	DefaultMinSimilarity = 0.3

	// DefaultMaxClusters caps the cluster count when a request does not
	// supply one.
	DefaultMaxClusters = 8
)

// Config holds all notegraph settings.
type Config struct {
	Port          int            `yaml:"port"`
	VaultPath     string         `yaml:"vault_path"`
	MinSimilarity float64        `yaml:"min_similarity"`
	MaxClusters   int            `yaml:"max_clusters"`
	Generator     textgen.Config `yaml:"generator"`
}

var (
	globalConfig *Config
	globalOnce   sync.Once
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Port:          DefaultPort,
		MinSimilarity: DefaultMinSimilarity,
		MaxClusters:   DefaultMaxClusters,
		Generator: textgen.Config{
			Provider: textgen.ProviderOllama,
			Timeout:  60 * time.Second,
		},
	}
}

// DataDir returns the notegraph data directory (~/.notegraph).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".notegraph")
}

// CacheDir returns the directory holding per-vault graph state files.
func CacheDir() string {
	return filepath.Join(DataDir(), "graph-cache")
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o750)
}

// EnsureCacheDir creates the graph cache directory if missing.
func EnsureCacheDir() error {
	return os.MkdirAll(CacheDir(), 0o750)
}

// EnsureConfig writes a default config file if none exists.
func EnsureConfig() error {
	path := ConfigPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	raw, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// EnsureAll initializes the data directory, cache directory, and config file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	if err := EnsureCacheDir(); err != nil {
		return err
	}
	return EnsureConfig()
}

// Load reads the config file, falling back to defaults for anything missing
// or malformed. Environment variables override file values.
func Load() (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(ConfigPath())
	if err == nil {
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			log.Warn().Err(err).Str("path", ConfigPath()).Msg("Malformed config file, using defaults")
			cfg = Default()
		}
	} else if !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", ConfigPath()).Msg("Failed to read config file")
	}

	applyEnv(cfg)
	normalize(cfg)
	return cfg, nil
}

// Get returns the cached global config, loading it on first use.
func Get() *Config {
	globalOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		globalConfig = cfg
	})
	return globalConfig
}

// GetPort returns the listen port, honoring the NOTEGRAPH_PORT override.
func GetPort() int {
	if v := os.Getenv("NOTEGRAPH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			return port
		}
	}
	return Get().Port
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("NOTEGRAPH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Port = port
		}
	}
	if v := os.Getenv("NOTEGRAPH_VAULT_PATH"); v != "" {
		cfg.VaultPath = v
	}
	if v := os.Getenv("NOTEGRAPH_GENERATOR_MODEL"); v != "" {
		cfg.Generator.Model = v
	}
}

func normalize(cfg *Config) {
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.MinSimilarity <= 0 || cfg.MinSimilarity > 1 {
		cfg.MinSimilarity = DefaultMinSimilarity
	}
	if cfg.MaxClusters < 2 {
		cfg.MaxClusters = DefaultMaxClusters
	}
	if cfg.Generator.Timeout <= 0 {
		cfg.Generator.Timeout = 60 * time.Second
	}
}
