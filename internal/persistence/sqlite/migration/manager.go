package migration

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
)

// Manager applies pending migrations from a source filesystem.
type Manager struct {
	source   fs.FS
	executor Executor
	logger   *slog.Logger
}

// NewManager constructs a Manager. A nil logger discards output.
func NewManager(source fs.FS, executor Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		source:   source,
		executor: executor,
		logger:   logger.With("component", "migration"),
	}
}

// Run applies every pending migration in version order and stops at the first failure.
func (m *Manager) Run(ctx context.Context) error {
	status, err := m.Status(ctx)
	if err != nil {
		return err
	}

	if len(status.Pending) == 0 {
		m.logger.InfoContext(ctx, "schema up to date", "version", status.CurrentVersion)
		return nil
	}

	m.logger.InfoContext(ctx, "applying migrations",
		"current_version", status.CurrentVersion,
		"pending", len(status.Pending),
	)

	for _, migration := range status.Pending {
		if err := m.executor.ExecuteMigration(ctx, migration); err != nil {
			m.logger.ErrorContext(ctx, "migration failed",
				"version", migration.Version,
				"file", migration.FileName,
				"error", err,
			)
			return NewMigrationError(migration.Version, migration.FileName, "execute migration",
				fmt.Errorf("%w: %w", ErrMigrationFailed, err))
		}
		m.logger.InfoContext(ctx, "migration applied",
			"version", migration.Version,
			"description", migration.Description,
		)
	}
	return nil
}

// Status reports the applied and pending migrations after validating that the
// source and the version table agree.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return nil, fmt.Errorf("initialize version table: %w", err)
	}

	available, err := Scan(m.source)
	if err != nil {
		return nil, fmt.Errorf("scan migrations: %w", err)
	}
	applied, err := m.executor.AppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load applied migrations: %w", err)
	}
	if err := validateSequence(available, applied); err != nil {
		return nil, err
	}

	appliedByVersion := make(map[string]struct{}, len(applied))
	status := &Status{Applied: applied}
	for _, a := range applied {
		appliedByVersion[a.Version] = struct{}{}
		if versionNumber(a.Version) > versionNumber(status.CurrentVersion) {
			status.CurrentVersion = a.Version
		}
	}
	for _, migration := range available {
		if _, ok := appliedByVersion[migration.Version]; !ok {
			status.Pending = append(status.Pending, migration)
		}
	}
	return status, nil
}

func validateSequence(available []Migration, applied []AppliedMigration) error {
	byVersion := make(map[int]Migration, len(available))
	for _, migration := range available {
		byVersion[versionNumber(migration.Version)] = migration
	}

	if len(available) > 0 {
		first := versionNumber(available[0].Version)
		last := versionNumber(available[len(available)-1].Version)
		for v := first; v <= last; v++ {
			if _, ok := byVersion[v]; !ok {
				return fmt.Errorf("%w: missing migration version %03d in sequence", ErrVersionConflict, v)
			}
		}
	}

	for _, a := range applied {
		migration, ok := byVersion[versionNumber(a.Version)]
		if !ok {
			return fmt.Errorf("%w: applied migration %s has no file", ErrVersionConflict, a.Version)
		}
		if a.Checksum != "" && a.Checksum != migration.Checksum {
			return NewMigrationError(a.Version, migration.FileName, "verify checksum", ErrChecksumMismatch)
		}
	}
	return nil
}
