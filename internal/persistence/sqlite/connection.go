package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/example/secret-santa/internal/persistence"
	"github.com/example/secret-santa/internal/persistence/sqlite/migration"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrations returns the schema migrations compiled into the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(fmt.Sprintf("sqlite: embedded migrations: %v", err))
	}
	return sub
}

// timestampLayout is used for every stored time value. The fraction is
// zero-padded so that text comparison in ORDER BY matches time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrBusy is returned when SQLite could not obtain a lock within the busy timeout.
var ErrBusy = errors.New("sqlite: database busy")

// ConnectionPool owns the database handle shared by all repositories.
type ConnectionPool struct {
	db     *sql.DB
	config migration.SQLiteConfig
	retry  *RetryHelper
}

// NewConnectionPool opens the database described by config.
func NewConnectionPool(ctx context.Context, config migration.SQLiteConfig) (*ConnectionPool, error) {
	db, err := migration.Open(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &ConnectionPool{
		db:     db,
		config: config,
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}, nil
}

// DB returns the underlying database handle.
func (cp *ConnectionPool) DB() *sql.DB {
	return cp.db
}

// Close closes the pool.
func (cp *ConnectionPool) Close() error {
	if cp.db != nil {
		return cp.db.Close()
	}
	return nil
}

// Ping checks that the database is reachable.
func (cp *ConnectionPool) Ping(ctx context.Context) error {
	return cp.db.PingContext(ctx)
}

// Migrate applies the embedded schema migrations.
func (cp *ConnectionPool) Migrate(ctx context.Context, logger *slog.Logger) error {
	manager := migration.NewManager(Migrations(), migration.NewSQLiteExecutor(cp.db), logger)
	return manager.Run(ctx)
}

// TransactionFunc executes statements inside a transaction.
type TransactionFunc func(tx *sql.Tx) error

// WithTransaction runs fn in a transaction, committing on success and rolling
// back on error or panic. Errors are mapped to persistence sentinels and the
// whole transaction is retried while the database reports it is busy.
func (cp *ConnectionPool) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	return cp.retry.WithRetry(ctx, func() error {
		return cp.runTransaction(ctx, fn)
	})
}

func (cp *ConnectionPool) runTransaction(ctx context.Context, fn TransactionFunc) (err error) {
	tx, err := cp.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, mapError(err))
		}
		return mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}
	return nil
}

// mapError translates driver errors into persistence sentinels. Errors that
// already carry a sentinel, and unknown errors, are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}

	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	code := sqliteErr.Code()
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %v", ErrBusy, err)
	case sqlite3.SQLITE_CONSTRAINT:
		msg := err.Error()
		switch {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE,
			code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
			strings.Contains(msg, "UNIQUE constraint failed"):
			return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
		default:
			return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
		}
	}
	return err
}

// RetryConfig configures retries of busy transactions.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns the retry settings used by repositories.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
	}
}

// RetryHelper retries operations that failed with ErrBusy.
type RetryHelper struct {
	config RetryConfig
}

// NewRetryHelper creates a RetryHelper.
func NewRetryHelper(config RetryConfig) *RetryHelper {
	return &RetryHelper{config: config}
}

// WithRetry calls fn until it succeeds, fails with a non-busy error, or the
// retry budget is spent.
func (rh *RetryHelper) WithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := rh.config.InitialDelay

	for attempt := 0; attempt <= rh.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * rh.config.BackoffFactor)
			if delay > rh.config.MaxDelay {
				delay = rh.config.MaxDelay
			}
		}

		lastErr = fn()
		if lastErr == nil || !errors.Is(lastErr, ErrBusy) {
			return lastErr
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", rh.config.MaxRetries, lastErr)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(column, value string) (time.Time, error) {
	// RFC3339Nano also accepts rows written without a fraction.
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", column, err)
	}
	return t, nil
}
