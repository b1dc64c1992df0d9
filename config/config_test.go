package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sync.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Timeout.Std() != 30*time.Second {
		t.Fatalf("timeout = %v", cfg.Timeout.Std())
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Fatalf("max attempts = %d", cfg.Retry.MaxAttempts)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
timeout: 5s
batch_size: 10
retry:
  max_attempts: 3
  initial_delay: 100ms
  max_delay: 2s
  multiplier: 1.5
cache:
  size: 16
  ttl: 10s
logging:
  level: debug
  format: text
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Timeout.Std() != 5*time.Second {
		t.Fatalf("timeout = %v", cfg.Timeout.Std())
	}
	if cfg.BatchSize != 10 {
		t.Fatalf("batch size = %d", cfg.BatchSize)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.InitialDelay.Std() != 100*time.Millisecond {
		t.Fatalf("retry = %+v", cfg.Retry)
	}
	if cfg.Cache.Size != 16 || cfg.Cache.TTL.Std() != 10*time.Second {
		t.Fatalf("cache = %+v", cfg.Cache)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "batch_size: 7\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BatchSize != 7 {
		t.Fatalf("batch size = %d", cfg.BatchSize)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Fatalf("unset retry field lost its default: %+v", cfg.Retry)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "batch_size: 7\ntimeout: 5s\n")
	t.Setenv("SYNC_BATCH_SIZE", "99")
	t.Setenv("SYNC_TIMEOUT", "1m")
	t.Setenv("SYNC_CACHE_TTL", "2m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BatchSize != 99 {
		t.Fatalf("batch size = %d, want env override", cfg.BatchSize)
	}
	if cfg.Timeout.Std() != time.Minute {
		t.Fatalf("timeout = %v, want env override", cfg.Timeout.Std())
	}
	if cfg.Cache.TTL.Std() != 2*time.Minute {
		t.Fatalf("cache ttl = %v, want env override", cfg.Cache.TTL.Std())
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	path := writeConfig(t, "timeout: not-a-duration\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"sub-one multiplier", func(c *Config) { c.Retry.Multiplier = 0.5 }},
		{"max below initial", func(c *Config) {
			c.Retry.InitialDelay = Duration(time.Minute)
			c.Retry.MaxDelay = Duration(time.Second)
		}},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
