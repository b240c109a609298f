package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testSecret = "test-secret-key-that-is-long-enough"

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Negotiation.Duration != 72*time.Hour {
		t.Errorf("Duration = %v, want 72h", cfg.Negotiation.Duration)
	}
	if cfg.Negotiation.MessagePageSize != 50 {
		t.Errorf("MessagePageSize = %d, want 50", cfg.Negotiation.MessagePageSize)
	}
	if cfg.StreamPollInterval() != 2*time.Second {
		t.Errorf("StreamPollInterval = %v, want 2s", cfg.StreamPollInterval())
	}
	if !cfg.AutoMigrate || !cfg.JSONLogs() {
		t.Errorf("AutoMigrate = %v, JSONLogs = %v", cfg.AutoMigrate, cfg.JSONLogs())
	}

	schedule, err := cfg.FeeSchedule()
	if err != nil {
		t.Fatal(err)
	}
	if schedule.Rate.String() != "0.02" || schedule.Flat.String() != "50" {
		t.Errorf("schedule = %s + %s", schedule.Rate, schedule.Flat)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	env := "JWT_SECRET=" + testSecret + "\nNEGOTIATION_DURATION=24h\nLOG_FORMAT=text\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")
	t.Setenv("NEGOTIATION_DURATION", "")
	os.Unsetenv("NEGOTIATION_DURATION")
	t.Setenv("LOG_FORMAT", "")
	os.Unsetenv("LOG_FORMAT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Negotiation.Duration != 24*time.Hour {
		t.Errorf("Duration = %v, want 24h", cfg.Negotiation.Duration)
	}
	if cfg.JSONLogs() {
		t.Error("JSONLogs() = true, want false")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"missing secret", func(c *Config) { c.JWTSecret = "" }},
		{"short secret", func(c *Config) { c.JWTSecret = "short" }},
		{"bad port", func(c *Config) { c.APIPort = 0 }},
		{"zero duration", func(c *Config) { c.Negotiation.Duration = 0 }},
		{"zero page size", func(c *Config) { c.Negotiation.MessagePageSize = 0 }},
		{"zero poll interval", func(c *Config) { c.Negotiation.StreamPollInterval = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad fee rate", func(c *Config) { c.Negotiation.FeeRate = "two percent" }},
		{"negative flat fee", func(c *Config) { c.Negotiation.FeeFlat = "-1" }},
		{"negative surcharge", func(c *Config) { c.Negotiation.FeeSurcharge = "-0.01" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadWithDefaults()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestFeeScheduleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fees.yaml")
	if err := os.WriteFile(path, []byte("rate: \"0.03\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := LoadWithDefaults()
	cfg.Negotiation.FeeScheduleFile = path
	cfg.Negotiation.FeeRate = "ignored"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	schedule, err := cfg.FeeSchedule()
	if err != nil {
		t.Fatal(err)
	}
	if schedule.Rate.String() != "0.03" || schedule.Flat.String() != "50" {
		t.Errorf("schedule = %s + %s, want 0.03 + 50", schedule.Rate, schedule.Flat)
	}
}

func TestLogLevelValue(t *testing.T) {
	cfg := LoadWithDefaults()
	cfg.LogLevel = "debug"
	level, err := cfg.LogLevelValue()
	if err != nil || level != slog.LevelDebug {
		t.Errorf("LogLevelValue() = %v, %v", level, err)
	}
}
