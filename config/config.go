// Package config provides layered configuration loading for the flow
// execution engine: defaults, then user config, then project config, then
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete flowengine configuration.
type Config struct {
	NATS     NATSConfig     `yaml:"nats"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Throttle ThrottleConfig `yaml:"throttle"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// NATSConfig configures the NATS connection the engine's components share.
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server).
	URL string `yaml:"url"`
	// Embedded indicates whether to start an embedded NATS server.
	Embedded bool `yaml:"embedded"`
}

// SandboxConfig configures the sandbox executor's (C5) timeouts, overridable
// by the DAYTONA_SYNC_TIMEOUT/DAYTONA_ASYNC_TIMEOUT environment variables
// per spec §6.
type SandboxConfig struct {
	SyncTimeout  time.Duration `yaml:"sync_timeout"`
	AsyncTimeout time.Duration `yaml:"async_timeout"`
}

// ThrottleConfig holds global throttling defaults. They are loaded, merged
// and validated here; the throttling policy table (C8) does not read them,
// its values come from throttle.PolicyFor and throttle.GlobalDefaults.
type ThrottleConfig struct {
	DefaultMaxConcurrent int           `yaml:"default_max_concurrent"`
	DefaultMaxRetries    int           `yaml:"default_max_retries"`
	DefaultBackoff       time.Duration `yaml:"default_backoff"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
		},
		Sandbox: SandboxConfig{
			SyncTimeout:  30 * time.Second,
			AsyncTimeout: 5 * time.Minute,
		},
		Throttle: ThrottleConfig{
			DefaultMaxConcurrent: 5,
			DefaultMaxRetries:    3,
			DefaultBackoff:       time.Second,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Sandbox.SyncTimeout <= 0 {
		return fmt.Errorf("sandbox.sync_timeout must be positive")
	}
	if c.Sandbox.AsyncTimeout <= 0 {
		return fmt.Errorf("sandbox.async_timeout must be positive")
	}
	if c.Throttle.DefaultMaxConcurrent < 1 {
		return fmt.Errorf("throttle.default_max_concurrent must be at least 1")
	}
	if c.Throttle.DefaultMaxRetries < 0 {
		return fmt.Errorf("throttle.default_max_retries must not be negative")
	}
	if c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file, starting from defaults
// so unset fields keep their default value.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file, creating parent
// directories as needed.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one; non-zero fields in other take
// precedence.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	}

	if other.Sandbox.SyncTimeout != 0 {
		c.Sandbox.SyncTimeout = other.Sandbox.SyncTimeout
	}
	if other.Sandbox.AsyncTimeout != 0 {
		c.Sandbox.AsyncTimeout = other.Sandbox.AsyncTimeout
	}

	if other.Throttle.DefaultMaxConcurrent != 0 {
		c.Throttle.DefaultMaxConcurrent = other.Throttle.DefaultMaxConcurrent
	}
	if other.Throttle.DefaultMaxRetries != 0 {
		c.Throttle.DefaultMaxRetries = other.Throttle.DefaultMaxRetries
	}
	if other.Throttle.DefaultBackoff != 0 {
		c.Throttle.DefaultBackoff = other.Throttle.DefaultBackoff
	}

	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}
}

// ApplyEnv overrides sandbox timeouts from DAYTONA_SYNC_TIMEOUT /
// DAYTONA_ASYNC_TIMEOUT, per spec §6's required environment keys. Invalid
// durations are ignored, leaving the existing value in place.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DAYTONA_SYNC_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Sandbox.SyncTimeout = d
		}
	}
	if v := os.Getenv("DAYTONA_ASYNC_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Sandbox.AsyncTimeout = d
		}
	}
	if v := os.Getenv("FLOWENGINE_NATS_URL"); v != "" {
		c.NATS.URL = v
		c.NATS.Embedded = false
	}
}
