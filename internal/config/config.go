package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the searchgate configuration.
type Config struct {
	HTTP       HTTPConfig                `yaml:"http"`
	Providers  map[string]ProviderConfig `yaml:"providers"`
	Routing    RoutingConfig             `yaml:"routing"`
	Batch      BatchConfig               `yaml:"batch"`
	StateStore StateStoreConfig          `yaml:"state_store"`
	Embedding  EmbeddingConfig           `yaml:"embedding"`
	Auth       AuthConfig                `yaml:"auth"`
	Logging    LoggingConfig             `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// ProviderConfig holds the settings for one backend search engine.
type ProviderConfig struct {
	// Kind names the engine family: elasticsearch, opensearch, typesense,
	// meilisearch, algolia, memory.
	Kind     string `yaml:"kind"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	// Capabilities overrides individual flags of the built-in engine
	// profile, e.g. turning vector search on for a plugin-enabled cluster.
	Capabilities map[string]bool `yaml:"capabilities"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig holds per-provider admission limits.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"` // 0 = unlimited
	Burst     int     `yaml:"burst"`
}

// RoutingConfig holds query routing settings.
type RoutingConfig struct {
	// Primary handles writes and schema operations.
	Primary string `yaml:"primary"`
	// Routes maps a query class (simple, faceted, vector, analytical) to a
	// provider priority list.
	Routes            map[string][]string `yaml:"routes"`
	AttemptTimeoutSec int                 `yaml:"attempt_timeout_sec"`
	StreamPageSize    int                 `yaml:"stream_page_size"`
}

// BatchConfig holds durable batch executor settings.
type BatchConfig struct {
	ChunkSize       int `yaml:"chunk_size"`
	CheckpointEvery int `yaml:"checkpoint_every"`
	MaxRetries      int `yaml:"max_retries"`
	// Threshold is the item count at which bulk writes become durable.
	Threshold int `yaml:"threshold"`
}

// StateStoreConfig holds checkpoint persistence settings.
type StateStoreConfig struct {
	Driver           string   `yaml:"driver"` // memory, redis (default: memory)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds query embedding settings.
type EmbeddingConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Routing.AttemptTimeoutSec <= 0 {
		c.Routing.AttemptTimeoutSec = 5
	}
	if c.Routing.StreamPageSize <= 0 {
		c.Routing.StreamPageSize = 50
	}
	if c.Batch.ChunkSize <= 0 {
		c.Batch.ChunkSize = 100
	}
	if c.Batch.CheckpointEvery <= 0 {
		c.Batch.CheckpointEvery = 1
	}
	if c.Batch.MaxRetries <= 0 {
		c.Batch.MaxRetries = 3
	}
	if c.Batch.Threshold <= 0 {
		c.Batch.Threshold = 100
	}
	if c.StateStore.Driver == "" {
		c.StateStore.Driver = "memory"
	}
	if c.StateStore.KeyPrefix == "" {
		c.StateStore.KeyPrefix = "searchgate:batch:"
	}
	if c.StateStore.ReadinessTimeout <= 0 {
		c.StateStore.ReadinessTimeout = 10
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	for id, p := range c.Providers {
		if p.Kind == "" {
			return fmt.Errorf("providers.%s.kind is required", id)
		}
	}
	if c.Routing.Primary != "" {
		if _, ok := c.Providers[c.Routing.Primary]; !ok {
			return fmt.Errorf("routing.primary %q is not a configured provider", c.Routing.Primary)
		}
	}
	for class, route := range c.Routing.Routes {
		switch class {
		case "simple", "faceted", "vector", "analytical":
		default:
			return fmt.Errorf("routing.routes has unknown class %q", class)
		}
		for _, id := range route {
			if _, ok := c.Providers[id]; !ok {
				return fmt.Errorf("routing.routes.%s references unknown provider %q", class, id)
			}
		}
	}
	switch c.StateStore.Driver {
	case "memory":
	case "redis":
		if len(c.StateStore.Addrs) == 0 {
			return fmt.Errorf("state_store.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("state_store.driver must be \"memory\" or \"redis\", got %q", c.StateStore.Driver)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
