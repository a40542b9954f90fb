package migration

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteConfig holds SQLite connection settings.
type SQLiteConfig struct {
	// Path is the database file.
	Path string

	// BusyTimeout sets how long a connection waits for a lock before SQLITE_BUSY.
	BusyTimeout time.Duration

	EnableForeignKeys bool

	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, etc.)
	JournalMode string

	// Synchronous sets the synchronous mode (FULL, NORMAL, OFF)
	Synchronous string

	// ImmediateTransactions makes every BEGIN take the write lock up front.
	ImmediateTransactions bool

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders the configuration as a modernc.org/sqlite connection string.
// Pragmas are part of the DSN so that every pooled connection applies them.
func (c SQLiteConfig) DSN() string {
	query := url.Values{}
	if c.BusyTimeout > 0 {
		query.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
	}
	if c.EnableForeignKeys {
		query.Add("_pragma", "foreign_keys(1)")
	}
	if c.JournalMode != "" {
		query.Add("_pragma", fmt.Sprintf("journal_mode(%s)", c.JournalMode))
	}
	if c.Synchronous != "" {
		query.Add("_pragma", fmt.Sprintf("synchronous(%s)", c.Synchronous))
	}
	if c.ImmediateTransactions {
		query.Set("_txlock", "immediate")
	}

	dsn := "file:" + c.Path
	if encoded := query.Encode(); encoded != "" {
		dsn += "?" + encoded
	}
	return dsn
}

// Validate checks the configuration for obviously invalid values.
func (c SQLiteConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("sqlite path cannot be empty")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("BusyTimeout cannot be negative")
	}

	validJournalModes := map[string]bool{
		"DELETE": true, "TRUNCATE": true, "PERSIST": true,
		"MEMORY": true, "WAL": true, "OFF": true,
	}
	if c.JournalMode != "" && !validJournalModes[c.JournalMode] {
		return fmt.Errorf("invalid journal mode: %s", c.JournalMode)
	}

	validSyncModes := map[string]bool{"OFF": true, "NORMAL": true, "FULL": true, "EXTRA": true}
	if c.Synchronous != "" && !validSyncModes[c.Synchronous] {
		return fmt.Errorf("invalid synchronous mode: %s", c.Synchronous)
	}

	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 || c.ConnMaxLifetime < 0 {
		return fmt.Errorf("connection pool settings cannot be negative")
	}
	return nil
}

// Open validates the configuration, creates the parent directory, and returns
// a pinged connection pool.
func Open(ctx context.Context, c SQLiteConfig) (*sql.DB, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite configuration: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", c.DSN())
	if err != nil {
		return nil, fmt.Errorf("open SQLite database: %w", err)
	}
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.MaxIdleConns)
	}
	if c.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(c.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping SQLite database: %w", err)
	}
	return db, nil
}

// DefaultSQLiteConfig returns production settings for the database at path.
func DefaultSQLiteConfig(path string) SQLiteConfig {
	return SQLiteConfig{
		Path:                  path,
		BusyTimeout:           5 * time.Second,
		EnableForeignKeys:     true,
		JournalMode:           "WAL",
		Synchronous:           "NORMAL",
		ImmediateTransactions: true,
		MaxOpenConns:          8,
		MaxIdleConns:          4,
		ConnMaxLifetime:       30 * time.Minute,
	}
}

// TempFileTestSQLiteConfig returns settings tuned for throwaway test databases.
func TempFileTestSQLiteConfig(path string) SQLiteConfig {
	return SQLiteConfig{
		Path:                  path,
		BusyTimeout:           5 * time.Second,
		EnableForeignKeys:     true,
		JournalMode:           "WAL",
		Synchronous:           "OFF",
		ImmediateTransactions: true,
		MaxOpenConns:          4,
		MaxIdleConns:          2,
		ConnMaxLifetime:       time.Minute,
	}
}
