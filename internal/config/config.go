// ABOUTME: Configuration loading and parsing for the Draftroom client
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Draftroom client configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Assistant AssistantConfig `yaml:"assistant"`
	Document  DocumentConfig  `yaml:"document"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds platform endpoint configuration
type ServerConfig struct {
	// BaseURL is the HTTP base of the Draftroom API, e.g. https://draftroom.example.com
	BaseURL string `yaml:"base_url"`
	// FeedURL is the WebSocket event feed endpoint. If empty, the realtime
	// feed is disabled and only polling keeps history fresh.
	FeedURL string `yaml:"feed_url"`
}

// AuthConfig holds the platform-issued access token
type AuthConfig struct {
	Token string `yaml:"token"`
}

// StorageConfig holds local snapshot storage configuration
type StorageConfig struct {
	// Path is the SQLite database file for conversation snapshots.
	// Empty means in-memory only (nothing survives a restart).
	Path string `yaml:"path"`
}

// AssistantConfig holds conversation behavior configuration
type AssistantConfig struct {
	// Streaming selects the incremental transport for answers
	Streaming bool `yaml:"streaming"`
	// Scope is the ordered subset of {transcripts, papers, references}
	// the assistant may draw context from
	Scope []string `yaml:"scope"`

	MinRevealDelay      time.Duration `yaml:"-"`
	MaxRevealDelay      time.Duration `yaml:"-"`
	HistoryPollInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	MinRevealDelayRaw      string `yaml:"min_reveal_delay"`
	MaxRevealDelayRaw      string `yaml:"max_reveal_delay"`
	HistoryPollIntervalRaw string `yaml:"history_poll_interval"`
}

// DocumentConfig holds document excerpt preparation configuration
type DocumentConfig struct {
	// MaxChars caps prepared excerpts; 0 uses the built-in budget
	MaxChars int `yaml:"max_chars"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// knownScopes are the resource categories the assistant understands.
var knownScopes = map[string]bool{
	"transcripts": true,
	"papers":      true,
	"references":  true,
}

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

	cfg := Config{
		Assistant: AssistantConfig{Streaming: true},
	}
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

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
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	if c.Auth.Token == "" {
		return fmt.Errorf("auth.token is required")
	}

	for _, scope := range c.Assistant.Scope {
		if !knownScopes[scope] {
			return fmt.Errorf("assistant.scope contains unknown category %q", scope)
		}
	}

	if c.Assistant.MinRevealDelay < 0 || c.Assistant.MaxRevealDelay < 0 {
		return fmt.Errorf("assistant reveal delays must not be negative")
	}
	if c.Assistant.MaxRevealDelay != 0 && c.Assistant.MinRevealDelay > c.Assistant.MaxRevealDelay {
		return fmt.Errorf("assistant.min_reveal_delay must not exceed max_reveal_delay")
	}

	if c.Document.MaxChars < 0 {
		return fmt.Errorf("document.max_chars must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Assistant.MinRevealDelayRaw != "" {
		cfg.Assistant.MinRevealDelay, err = time.ParseDuration(cfg.Assistant.MinRevealDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing min_reveal_delay %q: %w", cfg.Assistant.MinRevealDelayRaw, err)
		}
	}

	if cfg.Assistant.MaxRevealDelayRaw != "" {
		cfg.Assistant.MaxRevealDelay, err = time.ParseDuration(cfg.Assistant.MaxRevealDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing max_reveal_delay %q: %w", cfg.Assistant.MaxRevealDelayRaw, err)
		}
	}

	if cfg.Assistant.HistoryPollIntervalRaw != "" {
		cfg.Assistant.HistoryPollInterval, err = time.ParseDuration(cfg.Assistant.HistoryPollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing history_poll_interval %q: %w", cfg.Assistant.HistoryPollIntervalRaw, err)
		}
	}

	return nil
}
