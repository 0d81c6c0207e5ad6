package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Sandbox.SyncTimeout != 30*time.Second {
		t.Errorf("expected default sync timeout 30s, got %v", cfg.Sandbox.SyncTimeout)
	}
	if cfg.Sandbox.AsyncTimeout != 5*time.Minute {
		t.Errorf("expected default async timeout 5m, got %v", cfg.Sandbox.AsyncTimeout)
	}
	if !cfg.NATS.Embedded {
		t.Error("expected embedded NATS by default")
	}
	if cfg.Throttle.DefaultMaxConcurrent != 5 {
		t.Errorf("expected default max concurrent 5, got %d", cfg.Throttle.DefaultMaxConcurrent)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("expected default metrics addr :9090, got %s", cfg.Metrics.Addr)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "zero sync timeout",
			modify:  func(c *Config) { c.Sandbox.SyncTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "zero async timeout",
			modify:  func(c *Config) { c.Sandbox.AsyncTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "zero max concurrent",
			modify:  func(c *Config) { c.Throttle.DefaultMaxConcurrent = 0 },
			wantErr: true,
		},
		{
			name:    "negative max retries",
			modify:  func(c *Config) { c.Throttle.DefaultMaxRetries = -1 },
			wantErr: true,
		},
		{
			name:    "missing metrics addr",
			modify:  func(c *Config) { c.Metrics.Addr = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
nats:
  url: "nats://test:4222"
sandbox:
  sync_timeout: 45s
  async_timeout: 10m
throttle:
  default_max_concurrent: 8
metrics:
  addr: ":9999"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.NATS.URL != "nats://test:4222" {
		t.Errorf("expected NATS URL nats://test:4222, got %s", cfg.NATS.URL)
	}
	if cfg.Sandbox.SyncTimeout != 45*time.Second {
		t.Errorf("expected sync timeout 45s, got %v", cfg.Sandbox.SyncTimeout)
	}
	if cfg.Sandbox.AsyncTimeout != 10*time.Minute {
		t.Errorf("expected async timeout 10m, got %v", cfg.Sandbox.AsyncTimeout)
	}
	if cfg.Throttle.DefaultMaxConcurrent != 8 {
		t.Errorf("expected default max concurrent 8, got %d", cfg.Throttle.DefaultMaxConcurrent)
	}
	if cfg.Metrics.Addr != ":9999" {
		t.Errorf("expected metrics addr :9999, got %s", cfg.Metrics.Addr)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		NATS: NATSConfig{
			URL: "nats://override:4222",
		},
		Throttle: ThrottleConfig{
			DefaultMaxConcurrent: 20,
		},
	}

	base.Merge(override)

	if base.NATS.URL != "nats://override:4222" {
		t.Errorf("expected NATS URL override, got %s", base.NATS.URL)
	}
	if base.NATS.Embedded {
		t.Error("expected Embedded to be false once a URL is set")
	}
	if base.Throttle.DefaultMaxConcurrent != 20 {
		t.Errorf("expected max concurrent 20, got %d", base.Throttle.DefaultMaxConcurrent)
	}
	// Sandbox timeouts should remain from base since override didn't set them.
	if base.Sandbox.SyncTimeout != 30*time.Second {
		t.Errorf("expected sync timeout to remain default, got %v", base.Sandbox.SyncTimeout)
	}
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Metrics.Addr = ":8123"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Metrics.Addr != ":8123" {
		t.Errorf("expected metrics addr :8123, got %s", loaded.Metrics.Addr)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DAYTONA_SYNC_TIMEOUT", "15s")
	t.Setenv("DAYTONA_ASYNC_TIMEOUT", "2m")
	t.Setenv("FLOWENGINE_NATS_URL", "nats://env:4222")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	if cfg.Sandbox.SyncTimeout != 15*time.Second {
		t.Errorf("expected sync timeout 15s from env, got %v", cfg.Sandbox.SyncTimeout)
	}
	if cfg.Sandbox.AsyncTimeout != 2*time.Minute {
		t.Errorf("expected async timeout 2m from env, got %v", cfg.Sandbox.AsyncTimeout)
	}
	if cfg.NATS.URL != "nats://env:4222" {
		t.Errorf("expected NATS URL from env, got %s", cfg.NATS.URL)
	}
}
