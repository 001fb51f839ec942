// package config loads application configuration from a YAML file, a .env file
// and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// validation errors
var (
	ErrMissingTelegramCredentials = errors.New("TG_API_ID and TG_API_HASH are required")
	ErrMissingTargetChat          = errors.New("TARGET_CHAT is required")
	ErrInvalidSchedule            = errors.New("SCHEDULE must be a 5-field cron expression")
)

// Config holds all application configuration.
type Config struct {
	// telegram
	TGApiID             int     `yaml:"tg_api_id"`
	TGApiHash           string  `yaml:"tg_api_hash"`
	TGSessionStr        string  `yaml:"tg_session_string"`
	TGRequestsPerSecond float64 `yaml:"tg_requests_per_second"`
	TargetChat          string  `yaml:"target_chat"`

	// extraction
	TZOffsetHours        int `yaml:"tz_offset_hours"`
	PacingEvery          int `yaml:"pacing_every"`
	PacingDelayMS        int `yaml:"pacing_delay_ms"`
	RateLimitMaxAttempts int `yaml:"rate_limit_max_attempts"`

	// storage
	OutDir      string `yaml:"out_dir"`
	DatabaseURL string `yaml:"database_url"`

	// nats
	NatsURL string `yaml:"nats_url"`

	// scheduling
	Schedule          string `yaml:"schedule"`
	RunTimeoutMinutes int    `yaml:"run_timeout_minutes"`

	// logging
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// Default returns a Config with the built-in defaults.
func Default() *Config {
	return &Config{
		TZOffsetHours:     7,
		PacingEvery:       200,
		PacingDelayMS:     500,
		OutDir:            "telegram_dump",
		Schedule:          "15 0 * * *",
		RunTimeoutMinutes: 120,
		LogLevel:          "info",
	}
}

// Load reads configuration from .env and environment variables with sensible defaults.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads the YAML file at path (if non-empty) on top of the defaults,
// then applies .env and environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	// a missing .env is normal in production
	_ = godotenv.Load()

	cfg.TGApiID = getEnvInt("TG_API_ID", cfg.TGApiID)
	cfg.TGApiHash = getEnv("TG_API_HASH", cfg.TGApiHash)
	cfg.TGSessionStr = getEnv("TG_SESSION_STRING", cfg.TGSessionStr)
	cfg.TGRequestsPerSecond = getEnvFloat("TG_REQUESTS_PER_SECOND", cfg.TGRequestsPerSecond)
	cfg.TargetChat = getEnv("TARGET_CHAT", cfg.TargetChat)
	cfg.TZOffsetHours = getEnvInt("TZ_OFFSET_HOURS", cfg.TZOffsetHours)
	cfg.PacingEvery = getEnvInt("PACING_EVERY", cfg.PacingEvery)
	cfg.PacingDelayMS = getEnvInt("PACING_DELAY_MS", cfg.PacingDelayMS)
	cfg.RateLimitMaxAttempts = getEnvInt("RATE_LIMIT_MAX_ATTEMPTS", cfg.RateLimitMaxAttempts)
	cfg.OutDir = getEnv("OUT_DIR", cfg.OutDir)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.NatsURL = getEnv("NATS_URL", cfg.NatsURL)
	cfg.Schedule = getEnv("SCHEDULE", cfg.Schedule)
	cfg.RunTimeoutMinutes = getEnvInt("RUN_TIMEOUT_MINUTES", cfg.RunTimeoutMinutes)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)

	return cfg, nil
}

// Validate checks the settings a run cannot start without.
func (c *Config) Validate() error {
	if c.TGApiID == 0 || c.TGApiHash == "" {
		return ErrMissingTelegramCredentials
	}
	if strings.TrimSpace(c.TargetChat) == "" {
		return ErrMissingTargetChat
	}
	if len(strings.Fields(c.Schedule)) != 5 {
		return ErrInvalidSchedule
	}
	return nil
}

// Location returns the fixed-offset zone the report day is defined in.
func (c *Config) Location() *time.Location {
	name := fmt.Sprintf("UTC%+d", c.TZOffsetHours)
	return time.FixedZone(name, c.TZOffsetHours*3600)
}

// PacingDelay returns the pause inserted every PacingEvery messages.
func (c *Config) PacingDelay() time.Duration {
	return time.Duration(c.PacingDelayMS) * time.Millisecond
}

// RunTimeout bounds a single scheduled run.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutMinutes) * time.Minute
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
