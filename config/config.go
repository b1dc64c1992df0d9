// Package config loads sync configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerufuyo/nerulibrary-sub001/logging"
)

// Duration wraps time.Duration so YAML values like "30s" parse
// naturally.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// RetryConfig bounds queue retry behavior.
type RetryConfig struct {
	MaxAttempts  int      `yaml:"max_attempts"`
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
	Multiplier   float64  `yaml:"multiplier"`
}

// CacheConfig bounds the pull-response cache.
type CacheConfig struct {
	Size int      `yaml:"size"`
	TTL  Duration `yaml:"ttl"`
}

// Config holds every tunable of the sync core.
type Config struct {
	// Timeout bounds each remote network call.
	Timeout Duration `yaml:"timeout"`

	// BatchSize caps how many queue items are pushed per batch.
	BatchSize int `yaml:"batch_size"`

	Retry   RetryConfig    `yaml:"retry"`
	Cache   CacheConfig    `yaml:"cache"`
	Logging logging.Config `yaml:"logging"`
}

// Default returns the standard configuration.
func Default() Config {
	return Config{
		Timeout:   Duration(30 * time.Second),
		BatchSize: 50,
		Retry: RetryConfig{
			MaxAttempts:  5,
			InitialDelay: Duration(500 * time.Millisecond),
			MaxDelay:     Duration(30 * time.Second),
			Multiplier:   2.0,
		},
		Cache: CacheConfig{
			Size: 128,
			TTL:  Duration(30 * time.Second),
		},
		Logging: logging.DefaultConfig,
	}
}

// Load reads a YAML file over the defaults and then applies environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FromEnv returns the defaults with environment overrides applied, for
// callers with no config file.
func FromEnv() Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SYNC_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("SYNC_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BatchSize = n
		}
	}
	if v := os.Getenv("SYNC_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retry.MaxAttempts = n
		}
	}
	if v := os.Getenv("SYNC_RETRY_INITIAL_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Retry.InitialDelay = Duration(d)
		}
	}
	if v := os.Getenv("SYNC_RETRY_MAX_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Retry.MaxDelay = Duration(d)
		}
	}
	if v := os.Getenv("SYNC_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.Size = n
		}
	}
	if v := os.Getenv("SYNC_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Cache.TTL = Duration(d)
		}
	}
}

// Validate rejects configurations the sync core cannot run with.
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout.Std())
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry multiplier must be >= 1, got %v", c.Retry.Multiplier)
	}
	if c.Retry.InitialDelay <= 0 {
		return fmt.Errorf("retry initial delay must be positive, got %v", c.Retry.InitialDelay.Std())
	}
	if c.Retry.MaxDelay < c.Retry.InitialDelay {
		return fmt.Errorf("retry max delay %v is below the initial delay %v",
			c.Retry.MaxDelay.Std(), c.Retry.InitialDelay.Std())
	}
	return nil
}
