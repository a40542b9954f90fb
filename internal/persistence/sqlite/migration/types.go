package migration

import (
	"context"
	"time"
)

// Migration is a single versioned schema change.
type Migration struct {
	Version     string // numeric prefix of the file name, e.g. "001"
	Description string
	SQL         string
	FileName    string
	Checksum    string // sha256 of SQL, hex encoded
}

// AppliedMigration is a row of the schema_migrations table.
type AppliedMigration struct {
	Version       string
	Checksum      string
	AppliedAt     time.Time
	ExecutionTime time.Duration
}

// Status summarises which migrations are applied and which are pending.
type Status struct {
	CurrentVersion string
	Applied        []AppliedMigration
	Pending        []Migration
}

// Executor runs migrations against a database and tracks applied versions.
type Executor interface {
	InitializeVersionTable(ctx context.Context) error
	ExecuteMigration(ctx context.Context, migration Migration) error
	AppliedMigrations(ctx context.Context) ([]AppliedMigration, error)
}
