package logging

import (
	"os"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		l := NewLogger(Config{Level: level, Format: "text"})
		if l == nil || l.Logger == nil {
			t.Fatalf("NewLogger returned nil for level %q", level)
		}
	}
}

func TestGetConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("LOG_FORMAT", "TEXT")
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("LOG_ADD_SOURCE", "false")

	config := GetConfigFromEnv()
	if config.Level != "warn" {
		t.Errorf("expected warn, got %s", config.Level)
	}
	if config.Format != "text" {
		t.Errorf("expected text, got %s", config.Format)
	}
	if config.Environment != EnvTest {
		t.Errorf("expected test environment, got %s", config.Environment)
	}
	if config.AddSource {
		t.Error("expected AddSource false")
	}
}

func TestGetConfigFromEnvDefaults(t *testing.T) {
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("LOG_FORMAT")
	os.Unsetenv("ENVIRONMENT")
	os.Unsetenv("LOG_ADD_SOURCE")

	config := GetConfigFromEnv()
	if config.Level != DefaultConfig.Level {
		t.Errorf("expected default level, got %s", config.Level)
	}
}

func TestDefaultLoggerSingleton(t *testing.T) {
	first := Default()
	second := Default()
	if first != second {
		t.Fatal("Default should return the same instance")
	}
}
