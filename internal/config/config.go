// Package config provides configuration management for topolens.
//
// Config file locations (priority order):
//  1. $TOPOLENS_CONFIG
//  2. ./topolens.yaml
//  3. ~/.config/topolens/config.yaml
//  4. /etc/topolens/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Load finds and loads the config file, or returns defaults if none found.
func Load() (*Config, string, error) {
	path := FindConfigPath()
	if path == "" {
		return DefaultConfig(), "", nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads and validates config from a specific path.
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return &cfg, path, nil
}

// FindConfigPath returns the first config file found in the search
// order, or "" when none exists.
func FindConfigPath() string {
	if p := os.Getenv("TOPOLENS_CONFIG"); p != "" {
		return p
	}

	candidates := []string{"./topolens.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "topolens", "config.yaml"))
	}
	candidates = append(candidates, "/etc/topolens/config.yaml")

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// DefaultConfig returns sensible defaults for a new installation.
func DefaultConfig() *Config {
	cfg := &Config{
		Version:  1,
		Listen:   ":3000",
		Database: DatabaseConfig{Path: "./topolens.db"},
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Listen == "" {
		c.Listen = ":3000"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./topolens.db"
	}
	if c.ControlPlane.SessionTTLMinutes == 0 {
		c.ControlPlane.SessionTTLMinutes = 30
	}
	if c.ControlPlane.SafetyMarginSeconds == 0 {
		c.ControlPlane.SafetyMarginSeconds = 60
	}
	if c.ControlPlane.TimeoutSeconds == 0 {
		c.ControlPlane.TimeoutSeconds = 15
	}
	if c.Adapters.TimeoutMS == 0 {
		c.Adapters.TimeoutMS = 30000
	}
	if c.Adapters.RateLimitMS == 0 {
		// Documented limit of the primary vendor's control plane.
		c.Adapters.RateLimitMS = 2000
	}
	if c.Adapters.MaxRetries == 0 {
		c.Adapters.MaxRetries = 3
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 30
	}
	if c.Cache.StaleGraceCycles == 0 {
		c.Cache.StaleGraceCycles = 1
	}
	if c.SNMP.TimeoutSeconds == 0 {
		c.SNMP.TimeoutSeconds = 5
	}
	for i := range c.SNMP.Targets {
		if c.SNMP.Targets[i].Community == "" {
			c.SNMP.Targets[i].Community = c.SNMP.Community
		}
		if c.SNMP.Targets[i].Port == 0 {
			c.SNMP.Targets[i].Port = 161
		}
	}
}

// Validate checks structural constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes config to the specified path.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
