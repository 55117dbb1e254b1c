// Package config loads ResearchMesh configuration from YAML with environment
// fallbacks for credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	// API keys
	OpenAIKey    string `yaml:"openai_key"`
	AnthropicKey string `yaml:"anthropic_key"`

	// Generator configuration
	Provider    string  `yaml:"provider"` // openai or anthropic
	Model       string  `yaml:"model"`
	MaxTokens   int64   `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`

	// Engine tuning
	Engine EngineConfig `yaml:"engine"`

	// Session store backend
	Store StoreConfig `yaml:"store"`

	// Observability
	Metrics MetricsConfig `yaml:"metrics"`

	// Default session preferences applied when a caller passes none
	Preferences map[string]any `yaml:"preferences"`
}

// EngineConfig tunes scheduler behavior.
type EngineConfig struct {
	DependencyInterval time.Duration `yaml:"dependency_interval"`
	DependencyTimeout  time.Duration `yaml:"dependency_timeout"`
	MaxGeneratorCalls  int           `yaml:"max_generator_calls"`
	EventBufferSize    int           `yaml:"event_buffer_size"`
}

// StoreConfig selects the durable backend for sessions and shared memory.
type StoreConfig struct {
	Backend string      `yaml:"backend"` // memory or redis
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
	PoolSize int           `yaml:"pool_size"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns a configuration with sane local-development settings.
func Default() *Config {
	return &Config{
		Provider:    "openai",
		MaxTokens:   4096,
		Temperature: 0.7,
		Engine: EngineConfig{
			DependencyInterval: 5 * time.Second,
			DependencyTimeout:  300 * time.Second,
			EventBufferSize:    64,
		},
		Store: StoreConfig{
			Backend: "memory",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "researchmesh",
			},
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// Load reads a YAML config file, applies defaults and environment fallbacks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) applyDefaults() {
	def := Default()

	if c.Provider == "" {
		c.Provider = def.Provider
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = def.MaxTokens
	}
	if c.Temperature == 0 {
		c.Temperature = def.Temperature
	}
	if c.Engine.DependencyInterval == 0 {
		c.Engine.DependencyInterval = def.Engine.DependencyInterval
	}
	if c.Engine.DependencyTimeout == 0 {
		c.Engine.DependencyTimeout = def.Engine.DependencyTimeout
	}
	if c.Engine.EventBufferSize == 0 {
		c.Engine.EventBufferSize = def.Engine.EventBufferSize
	}
	if c.Store.Backend == "" {
		c.Store.Backend = def.Store.Backend
	}
	if c.Store.Redis.Addr == "" {
		c.Store.Redis.Addr = def.Store.Redis.Addr
	}
	if c.Store.Redis.Prefix == "" {
		c.Store.Redis.Prefix = def.Store.Redis.Prefix
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = def.Metrics.Addr
	}
}

// applyEnv fills credentials from the environment when the file left them
// empty.
func (c *Config) applyEnv() {
	if c.OpenAIKey == "" {
		c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.AnthropicKey == "" {
		c.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	switch c.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}

	switch c.Store.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Engine.DependencyTimeout < c.Engine.DependencyInterval {
		return fmt.Errorf("dependency_timeout must be at least dependency_interval")
	}

	return nil
}
