// Package config loads the server configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultMaxMessageBytes is 10 MiB.
const DefaultMaxMessageBytes = 10 * 1024 * 1024

type Config struct {
	SMTP      SMTPConfig      `yaml:"smtp"`
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Relay     RelayConfig     `yaml:"relay"`
	DKIM      DKIMConfig      `yaml:"dkim"`
	Logging   LoggingConfig   `yaml:"logging"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

type SMTPConfig struct {
	Hostname          string        `yaml:"hostname"`
	HostedDomain      string        `yaml:"hosted_domain"`
	Port              string        `yaml:"port"`
	MaxMessageBytes   int64         `yaml:"max_message_bytes"`
	AllowInsecureAuth bool          `yaml:"allow_insecure_auth"`
	CertFile          string        `yaml:"cert_file"`
	KeyFile           string        `yaml:"key_file"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// StorageConfig selects the persistence backend. An empty Path keeps
// everything in memory.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// RelayConfig points at the YAML file the relay credentials are read from.
type RelayConfig struct {
	File string `yaml:"file"`
}

type DKIMConfig struct {
	KeyFile  string `yaml:"key_file"`
	Selector string `yaml:"selector"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	LokiURL    string `yaml:"loki_url"`
	EnableLoki bool   `yaml:"enable_loki"`
}

// SlogLevel parses Level, falling back to info for unknown values.
func (l LoggingConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

type BootstrapConfig struct {
	Accounts []Account `yaml:"accounts"`
}

type Account struct {
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	cfg.derive()
	return cfg, cfg.Validate()
}

func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvVars()
	cfg.derive()
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.SMTP.HostedDomain == "" {
		return fmt.Errorf("smtp.hosted_domain is required")
	}
	if c.SMTP.MaxMessageBytes <= 0 {
		return fmt.Errorf("smtp.max_message_bytes must be positive")
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.SMTP.HostedDomain = "localhost"
	c.SMTP.Port = "2525"
	c.SMTP.MaxMessageBytes = DefaultMaxMessageBytes
	c.SMTP.ReadTimeout = 2 * time.Minute
	c.SMTP.WriteTimeout = 2 * time.Minute
	c.HTTP.Listen = ":8080"
	c.DKIM.Selector = "mail"
	c.Logging.Level = "info"
	c.Logging.LokiURL = "http://localhost:3100/loki/api/v1/push"
}

// derive fills values that default to other values.
func (c *Config) derive() {
	if c.SMTP.Hostname == "" {
		c.SMTP.Hostname = c.SMTP.HostedDomain
	}
}

func (c *Config) applyEnvVars() {
	if v := os.Getenv("SMTP_HOSTNAME"); v != "" {
		c.SMTP.Hostname = v
	}
	if v := os.Getenv("SMTP_HOSTED_DOMAIN"); v != "" {
		c.SMTP.HostedDomain = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		c.SMTP.Port = v
	}
	if v := os.Getenv("SMTP_MAX_MESSAGE_BYTES"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.SMTP.MaxMessageBytes = size
		}
	}
	if v := os.Getenv("SMTP_ALLOW_INSECURE_AUTH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SMTP.AllowInsecureAuth = b
		}
	}
	if v := os.Getenv("TLS_CERT_FILE"); v != "" {
		c.SMTP.CertFile = v
	}
	if v := os.Getenv("TLS_KEY_FILE"); v != "" {
		c.SMTP.KeyFile = v
	}

	if v := os.Getenv("HTTP_LISTEN"); v != "" {
		c.HTTP.Listen = v
	}
	if v := os.Getenv("STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("RELAY_FILE"); v != "" {
		c.Relay.File = v
	}
	if v := os.Getenv("DKIM_KEY_FILE"); v != "" {
		c.DKIM.KeyFile = v
	}
	if v := os.Getenv("DKIM_SELECTOR"); v != "" {
		c.DKIM.Selector = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOKI_URL"); v != "" {
		c.Logging.LokiURL = v
	}
	if v := os.Getenv("LOKI_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.EnableLoki = b
		}
	}
}
