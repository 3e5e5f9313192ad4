// Package relayconfig supplies the credentials of the one operator-configured
// outbound mail provider. Sources are consulted on every delivery and never
// cached, so operator changes apply to the next send.
package relayconfig

import (
	"context"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	KindSMTP = "smtp"
	KindSES  = "ses"

	SecureNone     = "none"
	SecureSTARTTLS = "starttls"
	SecureTLS      = "tls"
)

// Config is a snapshot of the relay settings. For KindSES, AuthUser and
// AuthSecret are the access key pair and Region selects the endpoint.
type Config struct {
	Kind       string `yaml:"kind" json:"kind"`
	Host       string `yaml:"host" json:"host"`
	Port       int    `yaml:"port" json:"port"`
	Secure     string `yaml:"secure" json:"secure"`
	AuthUser   string `yaml:"auth_user" json:"auth_user"`
	AuthSecret string `yaml:"auth_secret" json:"-"`
	Region     string `yaml:"region" json:"region"`
	Active     bool   `yaml:"active" json:"active"`
}

// Source returns the current relay configuration, or nil if none is
// configured.
type Source interface {
	Current(ctx context.Context) (*Config, error)
}

// Usable reports whether cfg describes an active relay.
func Usable(cfg *Config) bool {
	return cfg != nil && cfg.Active
}

func (c Config) withDefaults() Config {
	if c.Kind == "" {
		c.Kind = KindSMTP
	}
	if c.Secure == "" {
		c.Secure = SecureSTARTTLS
	}
	if c.Port == 0 && c.Kind == KindSMTP {
		switch c.Secure {
		case SecureTLS:
			c.Port = 465
		default:
			c.Port = 587
		}
	}
	return c
}

// StaticSource holds a configuration in memory that the operator can swap at
// runtime.
type StaticSource struct {
	mu  sync.RWMutex
	cfg *Config
}

func NewStaticSource(cfg *Config) *StaticSource {
	s := &StaticSource{}
	s.Set(cfg)
	return s
}

func (s *StaticSource) Set(cfg *Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg == nil {
		s.cfg = nil
		return
	}
	c := cfg.withDefaults()
	s.cfg = &c
}

func (s *StaticSource) Current(_ context.Context) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cfg == nil {
		return nil, nil
	}
	c := *s.cfg
	return &c, nil
}

// FileSource reads a YAML relay configuration from Path on every call. A
// missing file means no relay is configured.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) Current(ctx context.Context) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg = cfg.withDefaults()
	return &cfg, nil
}
