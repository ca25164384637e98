// ABOUTME: Configuration loading and parsing for helpline-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete helpline-gateway configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Tailscale     TailscaleConfig     `yaml:"tailscale"`
	Database      DatabaseConfig      `yaml:"database"`
	KnowledgeBase KnowledgeBaseConfig `yaml:"knowledge_base"`
	Escalation    EscalationConfig    `yaml:"escalation"`
	Dedupe        DedupeConfig        `yaml:"dedupe"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	// ConnectorURL is the base URL of the frontend connector's HTTP API,
	// used for outbound activities and conversation creation.
	ConnectorURL string `yaml:"connector_url"`

	// ConnectorToken authenticates gateway calls to the connector.
	ConnectorToken string `yaml:"connector_token"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// KnowledgeBaseConfig holds knowledge base service configuration
type KnowledgeBaseConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`

	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// EscalationConfig holds expert escalation configuration
type EscalationConfig struct {
	// ExpertTeamID seeds the expert team configuration entity on startup
	// when the store has none. Runtime changes go through the store.
	ExpertTeamID string `yaml:"expert_team_id"`

	DeliveryTimeout time.Duration `yaml:"-"`

	DeliveryTimeoutRaw string `yaml:"delivery_timeout"`
}

// DedupeConfig bounds the inbound turn dedupe tracker
type DedupeConfig struct {
	MaxEntries int `yaml:"max_entries"`

	TTL time.Duration `yaml:"-"`

	TTLRaw string `yaml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
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

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

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

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// A server address is required unless Tailscale provides the listener
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Server.ConnectorURL == "" {
		return fmt.Errorf("server.connector_url is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.KnowledgeBase.Endpoint == "" {
		return fmt.Errorf("knowledge_base.endpoint is required")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.KnowledgeBase.TimeoutRaw != "" {
		cfg.KnowledgeBase.Timeout, err = time.ParseDuration(cfg.KnowledgeBase.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing knowledge_base.timeout %q: %w", cfg.KnowledgeBase.TimeoutRaw, err)
		}
	}

	if cfg.Escalation.DeliveryTimeoutRaw != "" {
		cfg.Escalation.DeliveryTimeout, err = time.ParseDuration(cfg.Escalation.DeliveryTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing escalation.delivery_timeout %q: %w", cfg.Escalation.DeliveryTimeoutRaw, err)
		}
	}

	if cfg.Dedupe.TTLRaw != "" {
		cfg.Dedupe.TTL, err = time.ParseDuration(cfg.Dedupe.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe.ttl %q: %w", cfg.Dedupe.TTLRaw, err)
		}
	}

	return nil
}

// applyDefaults fills in values the file may omit.
func applyDefaults(cfg *Config) {
	if cfg.KnowledgeBase.Timeout == 0 {
		cfg.KnowledgeBase.Timeout = 10 * time.Second
	}
	if cfg.Escalation.DeliveryTimeout == 0 {
		cfg.Escalation.DeliveryTimeout = 30 * time.Second
	}
	if cfg.Dedupe.TTL == 0 {
		cfg.Dedupe.TTL = 10 * time.Minute
	}
	if cfg.Dedupe.MaxEntries == 0 {
		cfg.Dedupe.MaxEntries = 10000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
