package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL        = "http://127.0.0.1:8080"
	DefaultTimeout        = 10 * time.Second
	DefaultTokenStatePath = "configs/reviewctl_state.json"
	DefaultHistoryFile    = "/tmp/reviewctl_history"
	DefaultTokenTTL       = 12 * time.Hour
	DefaultRole           = "teacher"
)

// Config holds CLI configuration.
type Config struct {
	BaseURL        string        `yaml:"baseURL"`
	Timeout        time.Duration `yaml:"timeout"`
	TokenStatePath string        `yaml:"tokenStatePath"`
	HistoryFile    string        `yaml:"historyFile"`
	PrettyJSON     *bool         `yaml:"prettyJSON"`
	Auth           AuthConfig    `yaml:"auth"`
}

// AuthConfig lets an operator mint their own access token with the
// secret shared with the review service.
type AuthConfig struct {
	Secret  string        `yaml:"secret"`
	Issuer  string        `yaml:"issuer"`
	Subject string        `yaml:"subject"`
	Role    string        `yaml:"role"`
	TTL     time.Duration `yaml:"ttl"`
}

func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file failed: %w", err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TokenStatePath == "" {
		cfg.TokenStatePath = DefaultTokenStatePath
	}
	if cfg.HistoryFile == "" {
		cfg.HistoryFile = DefaultHistoryFile
	}
	if cfg.PrettyJSON == nil {
		value := true
		cfg.PrettyJSON = &value
	}
	if cfg.Auth.TTL == 0 {
		cfg.Auth.TTL = DefaultTokenTTL
	}
	if cfg.Auth.Role == "" {
		cfg.Auth.Role = DefaultRole
	}
}
