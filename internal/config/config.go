package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP server
	Port string

	// Database
	SQLiteDBPath string

	// Export
	ExportDir string

	// Aggregation time zone (IANA name; month windows are computed in it)
	TimeZone string

	// PIN guard policy
	PinLength          int
	InactivityTimeout  time.Duration
	LockoutMaxAttempts int
	LockoutCooldown    time.Duration

	// Logging
	LogLevel string
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8084"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/pocketledger.db"),
		ExportDir:    getEnv("EXPORT_DIR", "./data/exports"),
		TimeZone:     getEnv("TIME_ZONE", "Local"),

		// The short demo values the app shipped with; override in production.
		PinLength:          getEnvInt("PIN_LENGTH", 4),
		InactivityTimeout:  getEnvDuration("PIN_INACTIVITY_TIMEOUT", 10*time.Second),
		LockoutMaxAttempts: getEnvInt("PIN_MAX_ATTEMPTS", 3),
		LockoutCooldown:    getEnvDuration("PIN_LOCKOUT_COOLDOWN", 60*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	}

	if c.ExportDir == "" {
		errors = append(errors, "export directory cannot be empty")
	}

	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid time zone '%s': %v", c.TimeZone, err))
	}

	if c.PinLength < 4 || c.PinLength > 12 {
		errors = append(errors, fmt.Sprintf("invalid PIN length %d: must be between 4 and 12", c.PinLength))
	}
	if c.InactivityTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid inactivity timeout %v: must be at least 1 second", c.InactivityTimeout))
	}
	if c.LockoutMaxAttempts < 1 {
		errors = append(errors, fmt.Sprintf("invalid max attempts %d: must be at least 1", c.LockoutMaxAttempts))
	}
	if c.LockoutCooldown < time.Second {
		errors = append(errors, fmt.Sprintf("invalid lockout cooldown %v: must be at least 1 second", c.LockoutCooldown))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// Location resolves the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" || strings.EqualFold(c.TimeZone, "Local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.TimeZone)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
