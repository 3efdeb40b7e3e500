// Package config loads and persists the scope configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devchilll/scope/internal/policy"
	"github.com/devchilll/scope/internal/safefile"
)

// Config is the top-level scope configuration.
type Config struct {
	Version        string            `yaml:"version"`
	Server         ServerConfig      `yaml:"server"`
	DataDir        string            `yaml:"data_dir"`
	Session        SessionConfig     `yaml:"session"`
	Policy         policy.Thresholds `yaml:"policy"`
	Scorer         ScorerConfig      `yaml:"scorer"`
	Cache          CacheConfig       `yaml:"cache,omitempty"`
	Telemetry      TelemetryConfig   `yaml:"telemetry,omitempty"`
	CustomRulesDir string            `yaml:"custom_rules_dir,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"` // Address to bind (default: 127.0.0.1)
	LogLevel string `yaml:"log_level"`
}

// SessionConfig is the principal the CLI acts as. The HTTP and MCP servers
// resolve principals per request instead.
type SessionConfig struct {
	UserID string `yaml:"user_id"`
	Role   string `yaml:"role"`
	Name   string `yaml:"name"`
}

// ScorerConfig selects and tunes the risk scorer.
type ScorerConfig struct {
	Mode           string `yaml:"mode"` // heuristic or remote
	URL            string `yaml:"url,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the scoring deadline as a duration.
func (s ScorerConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// CacheConfig configures the optional Redis score cache.
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// TTL returns the cache lifetime as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// TelemetryConfig toggles trace export.
type TelemetryConfig struct {
	Traces bool `yaml:"traces"`
}

// Config files are small; anything bigger than this is not ours.
const maxConfigBytes = 1 << 20

// Load reads and parses a scope config file. The path is read through
// safefile so a symlinked config is rejected.
func Load(path string) (*Config, error) {
	data, err := safefile.ReadFileMax(path, maxConfigBytes)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Apply zero-value defaults after unmarshal
	if cfg.Scorer.TimeoutSeconds == 0 {
		cfg.Scorer.TimeoutSeconds = 10
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = 300
	}
	if cfg.Policy == (policy.Thresholds{}) {
		cfg.Policy = policy.DefaultThresholds()
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			Port:     8090,
			Bind:     "127.0.0.1",
			LogLevel: "info",
		},
		DataDir: "./data",
		Session: SessionConfig{
			UserID: "demo-alice",
			Role:   "user",
			Name:   "Alice Chen",
		},
		Policy: policy.DefaultThresholds(),
		Scorer: ScorerConfig{
			Mode:           "heuristic",
			TimeoutSeconds: 10,
		},
		Cache: CacheConfig{
			Addr:       "127.0.0.1:6379",
			TTLSeconds: 300,
		},
	}
}

// Save writes the config to a YAML file at the given path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks that the config is consistent.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Scorer.Mode != "heuristic" && c.Scorer.Mode != "remote" {
		return fmt.Errorf("scorer mode must be heuristic or remote, got %q", c.Scorer.Mode)
	}
	if c.Scorer.Mode == "remote" && c.Scorer.URL == "" {
		return fmt.Errorf("scorer url is required in remote mode")
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy thresholds: %w", err)
	}
	return nil
}

// EscalationDB returns the path of the escalation ledger database.
func (c *Config) EscalationDB() string { return filepath.Join(c.DataDir, "escalations.db") }

// AuditDB returns the path of the audit trail database.
func (c *Config) AuditDB() string { return filepath.Join(c.DataDir, "audit.db") }

// BankDB returns the path of the banking database.
func (c *Config) BankDB() string { return filepath.Join(c.DataDir, "bank.db") }
