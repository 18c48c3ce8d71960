// ABOUTME: Configuration loading and parsing for mana-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete mana-gateway configuration
type Config struct {
	Server     ServerConfig         `yaml:"server"`
	Database   DatabaseConfig       `yaml:"database"`
	WebAuthn   WebAuthnConfig       `yaml:"webauthn"`
	JWT        JWTConfig            `yaml:"jwt"`
	Challenge  ChallengeConfig      `yaml:"challenge"`
	Chat       ChatConfig           `yaml:"chat"`
	RateLimits map[string]RateLimit `yaml:"rate_limits"`
	Logging    LoggingConfig        `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// WebAuthnConfig holds relying-party configuration for passkey ceremonies
type WebAuthnConfig struct {
	RPID          string   `yaml:"rp_id"`
	RPDisplayName string   `yaml:"rp_display_name"`
	RPOrigins     []string `yaml:"rp_origins"`
}

// JWTConfig holds session token configuration
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"-"`
	TTLRaw string        `yaml:"ttl"`
}

// ChallengeConfig holds ceremony challenge configuration
type ChallengeConfig struct {
	TTL    time.Duration `yaml:"-"`
	TTLRaw string        `yaml:"ttl"`
}

// ChatConfig holds the upstream inference backend configuration
type ChatConfig struct {
	URL        string        `yaml:"url"`
	FlowID     string        `yaml:"flow_id"`
	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// RateLimit holds a per-operation admission limit
type RateLimit struct {
	Limit     int           `yaml:"limit"`
	Window    time.Duration `yaml:"-"`
	WindowRaw string        `yaml:"window"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the config file omits optional values.
const (
	DefaultJWTTTL       = time.Hour
	DefaultChallengeTTL = 300 * time.Second
	DefaultChatTimeout  = 30 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.WebAuthn.RPID == "" {
		return fmt.Errorf("webauthn.rp_id is required")
	}
	if len(c.WebAuthn.RPOrigins) == 0 {
		return fmt.Errorf("webauthn.rp_origins is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}

	for op, rl := range c.RateLimits {
		if rl.Limit <= 0 {
			return fmt.Errorf("rate_limits.%s.limit must be positive", op)
		}
		if rl.Window <= 0 {
			return fmt.Errorf("rate_limits.%s.window must be positive", op)
		}
	}

	return nil
}

// applyDefaults fills in defaultable fields left empty by the config file.
func (c *Config) applyDefaults() {
	if c.WebAuthn.RPDisplayName == "" {
		c.WebAuthn.RPDisplayName = "mana"
	}
	if c.JWT.TTL == 0 {
		c.JWT.TTL = DefaultJWTTTL
	}
	if c.Challenge.TTL == 0 {
		c.Challenge.TTL = DefaultChallengeTTL
	}
	if c.Chat.Timeout == 0 {
		c.Chat.Timeout = DefaultChatTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.JWT.TTLRaw != "" {
		cfg.JWT.TTL, err = time.ParseDuration(cfg.JWT.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing jwt.ttl %q: %w", cfg.JWT.TTLRaw, err)
		}
	}

	if cfg.Challenge.TTLRaw != "" {
		cfg.Challenge.TTL, err = time.ParseDuration(cfg.Challenge.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing challenge.ttl %q: %w", cfg.Challenge.TTLRaw, err)
		}
	}

	if cfg.Chat.TimeoutRaw != "" {
		cfg.Chat.Timeout, err = time.ParseDuration(cfg.Chat.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing chat.timeout %q: %w", cfg.Chat.TimeoutRaw, err)
		}
	}

	for op, rl := range cfg.RateLimits {
		if rl.WindowRaw != "" {
			rl.Window, err = time.ParseDuration(rl.WindowRaw)
			if err != nil {
				return fmt.Errorf("parsing rate_limits.%s.window %q: %w", op, rl.WindowRaw, err)
			}
			cfg.RateLimits[op] = rl
		}
	}

	return nil
}
