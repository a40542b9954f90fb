// Package migration applies versioned SQL migrations to a SQLite database.
//
// Migration files are read from an fs.FS (usually an embed.FS compiled into
// the binary) and must be named {version}_{description}.sql, for example
// "001_create_users.sql". Versions must form a continuous sequence. Each
// migration runs in its own transaction together with the row that records
// it in the schema_migrations table, so a failed migration leaves no trace.
//
// Example usage:
//
//	manager := migration.NewManager(migrations, migration.NewSQLiteExecutor(db), logger)
//	if err := manager.Run(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
