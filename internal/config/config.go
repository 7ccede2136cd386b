// ABOUTME: Configuration loading and parsing for mentor-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete mentor-gateway configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Database    DatabaseConfig    `yaml:"database" toml:"database"`
	Auth        AuthConfig        `yaml:"auth" toml:"auth"`
	Agents      AgentsConfig      `yaml:"agents" toml:"agents"`
	History     HistoryConfig     `yaml:"history" toml:"history"`
	Idempotency IdempotencyConfig `yaml:"idempotency" toml:"idempotency"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	// DevMode includes internal error text in API error responses
	DevMode bool `yaml:"dev_mode" toml:"dev_mode"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // "sqlite" (pure Go) or "sqlite3" (cgo)
	Path   string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// AgentsConfig selects and tunes the agent backend
type AgentsConfig struct {
	Backend   string `yaml:"backend" toml:"backend"` // "scripted" or "anthropic"
	APIKey    string `yaml:"api_key" toml:"api_key"`
	BaseURL   string `yaml:"base_url" toml:"base_url"`
	Model     string `yaml:"model" toml:"model"`
	MaxTokens int    `yaml:"max_tokens" toml:"max_tokens"`

	Timeout time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// HistoryConfig holds context and paging sizes
type HistoryConfig struct {
	ContextWindow int `yaml:"context_window" toml:"context_window"`
	DisplayLimit  int `yaml:"display_limit" toml:"display_limit"`
	MaxPageLimit  int `yaml:"max_page_limit" toml:"max_page_limit"`
}

// IdempotencyConfig bounds the replay cache for Idempotency-Key requests
type IdempotencyConfig struct {
	MaxEntries int `yaml:"max_entries" toml:"max_entries"`

	TTL    time.Duration `yaml:"-" toml:"-"`
	TTLRaw string        `yaml:"ttl" toml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Defaults for optional fields
const (
	DefaultHTTPAddr      = "127.0.0.1:8080"
	DefaultDriver        = "sqlite"
	DefaultBackend       = "scripted"
	DefaultAgentTimeout  = 30 * time.Second
	DefaultContextWindow = 10
	DefaultDisplayLimit  = 20
	DefaultMaxPageLimit  = 1000
	DefaultIdemTTL       = 10 * time.Minute
	DefaultIdemEntries   = 1024
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if p := os.Getenv("MENTOR_DB_PATH"); p != "" {
		cfg.Database.Path = p
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDriver
	}
	if c.Agents.Backend == "" {
		c.Agents.Backend = DefaultBackend
	}
	if c.Agents.Timeout == 0 {
		c.Agents.Timeout = DefaultAgentTimeout
	}
	if c.History.ContextWindow == 0 {
		c.History.ContextWindow = DefaultContextWindow
	}
	if c.History.DisplayLimit == 0 {
		c.History.DisplayLimit = DefaultDisplayLimit
	}
	if c.History.MaxPageLimit == 0 {
		c.History.MaxPageLimit = DefaultMaxPageLimit
	}
	if c.Idempotency.TTL == 0 {
		c.Idempotency.TTL = DefaultIdemTTL
	}
	if c.Idempotency.MaxEntries == 0 {
		c.Idempotency.MaxEntries = DefaultIdemEntries
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be sqlite or sqlite3, got %q", c.Database.Driver)
	}

	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
	}

	switch c.Agents.Backend {
	case "scripted":
	case "anthropic":
		if c.Agents.APIKey == "" {
			return fmt.Errorf("agents.api_key is required for the anthropic backend")
		}
	default:
		return fmt.Errorf("agents.backend must be scripted or anthropic, got %q", c.Agents.Backend)
	}
	if c.Agents.Timeout < 0 {
		return fmt.Errorf("agents.timeout must not be negative")
	}

	if c.History.ContextWindow < 1 || c.History.DisplayLimit < 1 || c.History.MaxPageLimit < 1 {
		return fmt.Errorf("history sizes must be positive")
	}
	if c.History.DisplayLimit > c.History.MaxPageLimit {
		return fmt.Errorf("history.display_limit must not exceed history.max_page_limit")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Agents.TimeoutRaw != "" {
		cfg.Agents.Timeout, err = time.ParseDuration(cfg.Agents.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing agents.timeout %q: %w", cfg.Agents.TimeoutRaw, err)
		}
	}

	if cfg.Idempotency.TTLRaw != "" {
		cfg.Idempotency.TTL, err = time.ParseDuration(cfg.Idempotency.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing idempotency.ttl %q: %w", cfg.Idempotency.TTLRaw, err)
		}
	}

	return nil
}
