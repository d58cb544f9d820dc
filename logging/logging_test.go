package logging

import (
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		level string
	}{
		{"debug"},
		{"info"},
		{"warn"},
		{"error"},
		{"bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := NewLogger(Config{Level: tt.level, Format: "text"})
			if logger == nil || logger.Logger == nil {
				t.Fatal("expected a usable logger")
			}
		})
	}
}

func TestWithComponentReturnsChild(t *testing.T) {
	logger := NewLogger(Config{Level: "info", Format: "json", Environment: "test"})
	child := logger.WithComponent(Component("sync-engine"))
	if child == logger {
		t.Error("expected a new child logger")
	}
	if child.Logger == nil {
		t.Error("child logger not usable")
	}
}

func TestGetConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "TEXT")
	t.Setenv("ENVIRONMENT", "test")

	config := GetConfigFromEnv()
	if config.Level != "debug" {
		t.Errorf("Level = %q, want debug", config.Level)
	}
	if config.Format != "text" {
		t.Errorf("Format = %q, want text", config.Format)
	}
	if config.Environment != "test" {
		t.Errorf("Environment = %q, want test", config.Environment)
	}
}
