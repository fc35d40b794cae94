// Package config loads application configuration from environment variables.
// All variables use the LEARN_ prefix.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Cache      CacheConfig
	Lesson     LessonConfig
	Client     ClientConfig
	Log        LogConfig
	FieldsPath string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig holds PostgreSQL connection settings. An empty URL keeps
// records in memory.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
	Migrate  bool // create tables on startup
}

// CacheConfig holds Dragonfly/Redis connection settings. An empty URL
// disables the cache.
type CacheConfig struct {
	URL string
}

// LessonConfig holds the timing of the answer persistence paths.
type LessonConfig struct {
	AutosaveDebounce time.Duration
	AutosaveTimeout  time.Duration
	SubmitTimeout    time.Duration
	CompleteTimeout  time.Duration
	PositionTTL      time.Duration // 0 keeps cached drafts and positions forever
}

// ClientConfig holds settings for the lessonctl client.
type ClientConfig struct {
	RemoteURL string
	UserID    string
	DraftPath string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with LEARN_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("LEARN_SERVER_PORT", 8080),
			Host: envStr("LEARN_SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			URL:      envStr("LEARN_DATABASE_URL", ""),
			MaxConns: envInt("LEARN_DATABASE_MAX_CONNS", 25),
			MinConns: envInt("LEARN_DATABASE_MIN_CONNS", 5),
			Migrate:  envBool("LEARN_DATABASE_MIGRATE", true),
		},
		Cache: CacheConfig{
			URL: envStr("LEARN_CACHE_URL", ""),
		},
		Lesson: LessonConfig{
			AutosaveDebounce: envDuration("LEARN_AUTOSAVE_DEBOUNCE", 2*time.Second),
			AutosaveTimeout:  envDuration("LEARN_AUTOSAVE_TIMEOUT", 10*time.Second),
			SubmitTimeout:    envDuration("LEARN_SUBMIT_TIMEOUT", 15*time.Second),
			CompleteTimeout:  envDuration("LEARN_COMPLETE_TIMEOUT", 10*time.Second),
			PositionTTL:      envDuration("LEARN_POSITION_TTL", 30*24*time.Hour),
		},
		Client: ClientConfig{
			RemoteURL: envStr("LEARN_REMOTE_URL", "http://localhost:8080"),
			UserID:    envStr("LEARN_USER_ID", ""),
			DraftPath: envStr("LEARN_DRAFT_PATH", defaultDraftPath()),
		},
		Log: LogConfig{
			Level:  envStr("LEARN_LOG_LEVEL", "info"),
			Format: envStr("LEARN_LOG_FORMAT", "json"),
		},
		FieldsPath: envStr("LEARN_FIELDS_PATH", "./modules"),
	}

	return cfg, nil
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("LEARN_SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("LEARN_DATABASE_MIN_CONNS (%d) exceeds LEARN_DATABASE_MAX_CONNS (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}

	for name, d := range map[string]time.Duration{
		"LEARN_AUTOSAVE_DEBOUNCE": c.Lesson.AutosaveDebounce,
		"LEARN_AUTOSAVE_TIMEOUT":  c.Lesson.AutosaveTimeout,
		"LEARN_SUBMIT_TIMEOUT":    c.Lesson.SubmitTimeout,
		"LEARN_COMPLETE_TIMEOUT":  c.Lesson.CompleteTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("LEARN_LOG_FORMAT must be 'json' or 'text', got %q", c.Log.Format)
	}

	return nil
}

func defaultDraftPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "lesson-drafts.db"
	}
	return filepath.Join(dir, "pai-lesson", "drafts.db")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

// envDuration accepts Go duration strings ("2s") or bare milliseconds ("2000").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return fallback
}
