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

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config captures environment driven configuration values for the santa service.
type Config struct {
	HTTPPort          int
	Storage           string
	SQLitePath        string
	SQLiteBusyTimeout time.Duration
	RedisURL          string
	RedisChannel      string
	CORSOrigins       []string
	LogLevel          slog.Level
	ShutdownTimeout   time.Duration
}

// NotificationsEnabled reports whether a Redis broker is configured.
func (c Config) NotificationsEnabled() bool {
	return c.RedisURL != ""
}

// Load reads an optional .env file from the working directory and then parses
// the process environment. Variables already set in the environment win over
// the file.
func Load() (Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is ignored.
func LoadFile(path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return FromEnvironment()
}

// FromEnvironment parses configuration values from the current process environment.
//
// Defaults apply to unset variables. Every malformed variable is reported in a
// single error.
func FromEnvironment() (Config, error) {
	cfg := Config{
		HTTPPort:          8080,
		Storage:           StorageSQLite,
		SQLitePath:        "santa.db",
		SQLiteBusyTimeout: 5 * time.Second,
		RedisChannel:      "santa.events",
		CORSOrigins:       []string{"*"},
		LogLevel:          slog.LevelInfo,
		ShutdownTimeout:   10 * time.Second,
	}

	invalid := make([]string, 0, 2)

	if portValue := lookup("SANTA_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "SANTA_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if storage := strings.ToLower(lookup("SANTA_STORAGE")); storage != "" {
		switch storage {
		case StorageSQLite, StorageMemory:
			cfg.Storage = storage
		default:
			invalid = append(invalid, "SANTA_STORAGE")
		}
	}

	if path := lookup("SANTA_SQLITE_PATH"); path != "" {
		cfg.SQLitePath = path
	}

	if timeoutValue := lookup("SANTA_SQLITE_BUSY_TIMEOUT"); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout < 0 {
			invalid = append(invalid, "SANTA_SQLITE_BUSY_TIMEOUT")
		} else {
			cfg.SQLiteBusyTimeout = timeout
		}
	}

	cfg.RedisURL = lookup("SANTA_REDIS_URL")
	if channel := lookup("SANTA_REDIS_CHANNEL"); channel != "" {
		cfg.RedisChannel = channel
	}

	if origins := lookup("SANTA_CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	if levelValue := lookup("SANTA_LOG_LEVEL"); levelValue != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(levelValue)); err != nil {
			invalid = append(invalid, "SANTA_LOG_LEVEL")
		}
	}

	if timeoutValue := lookup("SANTA_SHUTDOWN_TIMEOUT"); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "SANTA_SHUTDOWN_TIMEOUT")
		} else {
			cfg.ShutdownTimeout = timeout
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func lookup(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
