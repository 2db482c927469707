package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the insight engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (API keys, passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Cache configuration
	Cache CacheConfig `yaml:"cache"`

	// DuckDB analytical datasource
	DuckDB DuckDBConfig `yaml:"duckdb"`

	// PostgreSQL datasource (optional, used when configured)
	Postgres PostgresConfig `yaml:"postgres"`

	// LLM provider configuration
	LLM LLMConfig `yaml:"llm"`

	// Kernel holds the WASM analysis plugin settings
	Kernel KernelConfig `yaml:"kernel"`
}

// CacheConfig holds insight result cache settings.
type CacheConfig struct {
	// Dir is the on-disk directory for the cache store.
	Dir string `yaml:"dir" env:"CACHE_DIR" env-default:".insight-cache"`
	// MaxSizeBytes caps the total serialized size of cached entries.
	MaxSizeBytes int64 `yaml:"max_size_bytes" env:"CACHE_MAX_SIZE_BYTES" env-default:"9437184"`
	// MinAgeMinutes protects recently used entries from eviction.
	MinAgeMinutes int `yaml:"min_age_minutes" env:"CACHE_MIN_AGE_MINUTES" env-default:"30"`
}

// DuckDBConfig holds the embedded analytical database settings.
type DuckDBConfig struct {
	// Path is the database file. Empty means in-memory.
	Path string `yaml:"path" env:"DUCKDB_PATH" env-default:""`
}

// PostgresConfig holds PostgreSQL datasource configuration.
type PostgresConfig struct {
	Host     string `yaml:"host" env:"PGHOST" env-default:""`
	Port     int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User     string `yaml:"user" env:"PGUSER" env-default:""`
	Password string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"PGDATABASE" env-default:""`
	SSLMode  string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// IsConfigured returns true if a PostgreSQL datasource is set up.
func (c *PostgresConfig) IsConfigured() bool {
	return c.Host != "" && c.Database != ""
}

// LLMConfig holds the diagnosis model settings.
type LLMConfig struct {
	// Provider selects the chat client: "openai" or "anthropic".
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	// Endpoint overrides the provider base URL (for gateways and local models).
	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:""`
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	APIKey   string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
}

// KernelConfig holds the WASM analysis plugin settings.
type KernelConfig struct {
	// WASMPath is the compiled analysis plugin. Empty disables the kernel.
	WASMPath string `yaml:"wasm_path" env:"KERNEL_WASM_PATH" env-default:""`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// If config.yaml does not exist, configuration comes from environment variables
// and defaults alone.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Cache.MaxSizeBytes <= 0 {
		return fmt.Errorf("cache max_size_bytes must be positive, got %d", c.Cache.MaxSizeBytes)
	}
	if c.Cache.MinAgeMinutes < 0 {
		return fmt.Errorf("cache min_age_minutes must not be negative, got %d", c.Cache.MinAgeMinutes)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	return nil
}
