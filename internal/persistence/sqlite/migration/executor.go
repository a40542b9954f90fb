package migration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLiteExecutor implements Executor for SQLite databases.
type SQLiteExecutor struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteExecutor creates a SQLite migration executor.
func NewSQLiteExecutor(db *sql.DB) *SQLiteExecutor {
	return &SQLiteExecutor{db: db, now: time.Now}
}

// InitializeVersionTable creates the schema_migrations table if it does not exist.
func (e *SQLiteExecutor) InitializeVersionTable(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			checksum TEXT NOT NULL DEFAULT '',
			applied_at TEXT NOT NULL,
			execution_time_ms INTEGER NOT NULL DEFAULT 0
		)`
	if _, err := e.db.ExecContext(ctx, ddl); err != nil {
		return NewDatabaseError("", "create schema_migrations table", err)
	}
	return nil
}

// ExecuteMigration runs every statement of the migration and records it in a
// single transaction.
func (e *SQLiteExecutor) ExecuteMigration(ctx context.Context, migration Migration) (err error) {
	statements := splitStatements(migration.SQL)
	if len(statements) == 0 {
		return NewMigrationError(migration.Version, migration.FileName, "parse SQL",
			fmt.Errorf("%w: no SQL statements found", ErrInvalidMigrationFile))
	}

	started := e.now()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return NewDatabaseError(migration.Version, "begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return NewDatabaseError(migration.Version, fmt.Sprintf("execute statement %d", i+1), err)
		}
	}

	elapsed := e.now().Sub(started)
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, checksum, applied_at, execution_time_ms) VALUES (?, ?, ?, ?)`,
		migration.Version, migration.Checksum, e.now().UTC().Format(time.RFC3339), elapsed.Milliseconds(),
	); err != nil {
		return NewDatabaseError(migration.Version, "record migration", err)
	}

	if err = tx.Commit(); err != nil {
		return NewDatabaseError(migration.Version, "commit transaction", err)
	}
	return nil
}

// AppliedMigrations lists the recorded migrations in version order.
func (e *SQLiteExecutor) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT version, checksum, applied_at, execution_time_ms
		FROM schema_migrations
		ORDER BY CAST(version AS INTEGER) ASC`)
	if err != nil {
		return nil, NewDatabaseError("", "query applied migrations", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			record    AppliedMigration
			appliedAt string
			elapsedMs int64
		)
		if err := rows.Scan(&record.Version, &record.Checksum, &appliedAt, &elapsedMs); err != nil {
			return nil, NewDatabaseError("", "scan applied migration", err)
		}
		if ts, err := time.Parse(time.RFC3339, appliedAt); err == nil {
			record.AppliedAt = ts
		}
		record.ExecutionTime = time.Duration(elapsedMs) * time.Millisecond
		applied = append(applied, record)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError("", "iterate applied migrations", err)
	}
	return applied, nil
}

// splitStatements splits on semicolons and drops comment-only fragments.
// Migrations must not contain semicolons inside literals or trigger bodies.
func splitStatements(sql string) []string {
	var statements []string
	for _, fragment := range strings.Split(sql, ";") {
		var lines []string
		for _, line := range strings.Split(fragment, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "--") {
				continue
			}
			lines = append(lines, line)
		}
		if len(lines) > 0 {
			statements = append(statements, strings.Join(lines, "\n"))
		}
	}
	return statements
}
