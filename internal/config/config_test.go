package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "streamer.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-streamer
  az: ap-northeast-2a
valkey:
  addr: localhost:6379
broadcast:
  fast_interval: 50ms
  slow_interval: 500ms
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-streamer" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-streamer")
	}
	if cfg.Valkey.Addr != "localhost:6379" {
		t.Errorf("Valkey.Addr = %q, want %q", cfg.Valkey.Addr, "localhost:6379")
	}
	if cfg.Broadcast.FastInterval != 50*time.Millisecond {
		t.Errorf("Broadcast.FastInterval = %v, want 50ms", cfg.Broadcast.FastInterval)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_VALKEY_PASSWORD", "secret123")

	yaml := `
instance:
  id: test-streamer
valkey:
  addr: localhost:6379
  password: ${TEST_VALKEY_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Valkey.Password != "secret123" {
		t.Errorf("Valkey.Password = %q, want %q", cfg.Valkey.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-streamer
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Broadcast.FastInterval != DefaultFastInterval {
		t.Errorf("FastInterval = %v, want %v", cfg.Broadcast.FastInterval, DefaultFastInterval)
	}
	if cfg.Broadcast.SlowInterval != DefaultSlowInterval {
		t.Errorf("SlowInterval = %v, want %v", cfg.Broadcast.SlowInterval, DefaultSlowInterval)
	}
	if cfg.Gateway.ConnectionTTL != DefaultConnectionTTL {
		t.Errorf("ConnectionTTL = %v, want %v", cfg.Gateway.ConnectionTTL, DefaultConnectionTTL)
	}
	if cfg.Valkey.OpTimeout != DefaultOpTimeout {
		t.Errorf("OpTimeout = %v, want %v", cfg.Valkey.OpTimeout, DefaultOpTimeout)
	}
	if cfg.Health.Port != DefaultHealthPort {
		t.Errorf("Health.Port = %d, want %d", cfg.Health.Port, DefaultHealthPort)
	}
}

func TestPolicyDefaults(t *testing.T) {
	var cfg BroadcastConfig
	if !cfg.TierFilteringEnabled() {
		t.Error("TierFilteringEnabled() = false for unset policy, want true")
	}
	if !cfg.ChangeSuppressionEnabled() {
		t.Error("ChangeSuppressionEnabled() = false for unset policy, want true")
	}
	if !cfg.LegacyUnionEnabled() {
		t.Error("LegacyUnionEnabled() = false for unset policy, want true")
	}

	off := false
	cfg.ChangeSuppression = &off
	if cfg.ChangeSuppressionEnabled() {
		t.Error("ChangeSuppressionEnabled() = true for explicit false")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *StreamerConfig {
		cfg := &StreamerConfig{}
		cfg.Instance.ID = "s1"
		cfg.applyDefaults()
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*StreamerConfig)
	}{
		{"missing instance id", func(c *StreamerConfig) { c.Instance.ID = "" }},
		{"missing valkey addr", func(c *StreamerConfig) { c.Valkey.Addr = "" }},
		{"zero fast interval", func(c *StreamerConfig) { c.Broadcast.FastInterval = 0 }},
		{"slow faster than fast", func(c *StreamerConfig) {
			c.Broadcast.FastInterval = time.Second
			c.Broadcast.SlowInterval = 100 * time.Millisecond
		}},
		{"zero concurrency", func(c *StreamerConfig) { c.Broadcast.Concurrency = 0 }},
		{"bad health port", func(c *StreamerConfig) { c.Health.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestValidateDatabase(t *testing.T) {
	cfg := &StreamerConfig{}
	cfg.applyDefaults()

	if err := cfg.ValidateDatabase(); err == nil {
		t.Error("ValidateDatabase() = nil for empty database section, want error")
	}

	cfg.Database.Host = "localhost"
	cfg.Database.Name = "market"
	cfg.Database.User = "archiver"
	cfg.Database.Password = "pw"
	if err := cfg.ValidateDatabase(); err != nil {
		t.Errorf("ValidateDatabase() = %v, want nil", err)
	}
}
