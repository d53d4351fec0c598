// Package config reads runtime settings for the promote CLI from the
// environment. Command-line flags override whatever Load returns.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/roach88/promote/internal/transfer"
)

// Log formats accepted by PROMOTE_LOG_FORMAT.
const (
	LogText = "text"
	LogJSON = "json"
)

// Config holds settings shared by every command.
type Config struct {
	// Database is the SQLite file holding workspaces, revisions and
	// deliveries.
	Database string

	// PolicyDir is a directory of CUE field-policy files. Empty means the
	// permissive policy.
	PolicyDir string

	BatchSize int
	LogFormat string
	Verbose   bool
}

func Load() Config {
	return Config{
		Database:  getenv("PROMOTE_DB", "promote.db"),
		PolicyDir: getenv("PROMOTE_POLICY", ""),
		BatchSize: getenvInt("PROMOTE_BATCH_SIZE", transfer.DefaultBatchSize),
		LogFormat: getenv("PROMOTE_LOG_FORMAT", LogText),
		Verbose:   getenvBool("PROMOTE_VERBOSE", false),
	}
}

// Validate rejects settings no command can run with.
func (c Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database path is empty")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.LogFormat != LogText && c.LogFormat != LogJSON {
		return fmt.Errorf("invalid log format %q: must be %s or %s", c.LogFormat, LogText, LogJSON)
	}
	return nil
}

// Logger builds the process logger writing to w: Info by default, Debug when
// verbose.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == LogJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
