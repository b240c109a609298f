// Package config provides environment-based configuration for the API server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bithra/platform/internal/fees"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the API server.
type Config struct {
	// Database configuration
	DatabaseDSN string
	AutoMigrate bool

	// Authentication
	JWTSecret string
	JWTExpiry time.Duration

	// Server configuration
	APIHost         string
	APIPort         int
	ShutdownTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	Negotiation NegotiationConfig
}

// NegotiationConfig holds the negotiation workflow settings.
type NegotiationConfig struct {
	Duration           time.Duration
	MessagePageSize    int
	StreamPollInterval time.Duration

	// FeeRate, FeeFlat and FeeSurcharge are decimal strings. FeeScheduleFile,
	// when set, takes precedence over them.
	FeeRate         string
	FeeFlat         string
	FeeSurcharge    string
	FeeScheduleFile string
}

// StreamPollInterval is a shortcut used by the HTTP layer.
func (c *Config) StreamPollInterval() time.Duration {
	return c.Negotiation.StreamPollInterval
}

// Load reads configuration from a .env file, if present, and the environment.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := fromEnv("")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithDefaults loads configuration with defaults for development.
// It does not validate required fields, useful for testing.
func LoadWithDefaults() *Config {
	return fromEnv("development-secret-key-min-32-chars")
}

func fromEnv(defaultSecret string) *Config {
	return &Config{
		DatabaseDSN:     getEnv("DATABASE_URL", "postgres://localhost:5432/bithra?sslmode=disable"),
		AutoMigrate:     getBoolEnv("AUTO_MIGRATE", true),
		JWTSecret:       getEnv("JWT_SECRET", defaultSecret),
		JWTExpiry:       getDurationEnv("JWT_EXPIRY", 24*time.Hour),
		APIHost:         getEnv("API_HOST", "0.0.0.0"),
		APIPort:         getIntEnv("API_PORT", 8080),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		Negotiation: NegotiationConfig{
			Duration:           getDurationEnv("NEGOTIATION_DURATION", 72*time.Hour),
			MessagePageSize:    getIntEnv("MESSAGE_PAGE_SIZE", 50),
			StreamPollInterval: getDurationEnv("STREAM_POLL_INTERVAL", 2*time.Second),
			FeeRate:            getEnv("FEE_RATE", "0.02"),
			FeeFlat:            getEnv("FEE_FLAT", "50"),
			FeeSurcharge:       getEnv("FEE_SURCHARGE", "0"),
			FeeScheduleFile:    getEnv("FEE_SCHEDULE_FILE", ""),
		},
	}
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("API_PORT must be between 1 and 65535, got %d", c.APIPort)
	}
	if c.Negotiation.Duration <= 0 {
		return fmt.Errorf("NEGOTIATION_DURATION must be positive")
	}
	if c.Negotiation.MessagePageSize <= 0 {
		return fmt.Errorf("MESSAGE_PAGE_SIZE must be positive")
	}
	if c.Negotiation.StreamPollInterval <= 0 {
		return fmt.Errorf("STREAM_POLL_INTERVAL must be positive")
	}
	if _, err := c.LogLevelValue(); err != nil {
		return err
	}
	if c.Negotiation.FeeScheduleFile == "" {
		if _, err := fees.ParseSchedule(c.Negotiation.FeeRate, c.Negotiation.FeeFlat, c.Negotiation.FeeSurcharge); err != nil {
			return fmt.Errorf("invalid fee schedule: %w", err)
		}
	}
	return nil
}

// FeeSchedule returns the configured base fee schedule.
func (c *Config) FeeSchedule() (fees.Schedule, error) {
	if c.Negotiation.FeeScheduleFile != "" {
		return fees.LoadSchedule(c.Negotiation.FeeScheduleFile)
	}
	return fees.ParseSchedule(c.Negotiation.FeeRate, c.Negotiation.FeeFlat, c.Negotiation.FeeSurcharge)
}

// LogLevelValue parses LOG_LEVEL.
func (c *Config) LogLevelValue() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	return level, nil
}

// JSONLogs reports whether LOG_FORMAT selects JSON output.
func (c *Config) JSONLogs() bool {
	return !strings.EqualFold(c.LogFormat, "text")
}

// loadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
