package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/secret-santa/internal/persistence"
	"github.com/example/secret-santa/internal/persistence/memory"
	"github.com/example/secret-santa/internal/persistence/sqlite"
	"github.com/example/secret-santa/internal/persistence/sqlite/migration"
)

// Stores bundles the repositories of one storage backend.
type Stores struct {
	Name   string
	Users  persistence.UserRepository
	Events persistence.EventRepository
	Ping   func(ctx context.Context) error
}

// SQLiteHarness provides repository access backed by a migrated temporary
// SQLite file.
type SQLiteHarness struct {
	Pool   *sqlite.ConnectionPool
	Users  *sqlite.UserRepository
	Events *sqlite.EventRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// Stores exposes the harness as a backend-neutral Stores value.
func (h *SQLiteHarness) Stores() Stores {
	return Stores{Name: "sqlite", Users: h.Users, Events: h.Events, Ping: h.Pool.Ping}
}

// NewSQLiteHarness opens and migrates a database in tb.TempDir. Close is
// registered with tb.Cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	ctx := context.Background()
	path := filepath.Join(tb.TempDir(), "santa.db")

	pool, err := sqlite.NewConnectionPool(ctx, migration.TempFileTestSQLiteConfig(path))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := pool.Migrate(ctx, nil); err != nil {
		_ = pool.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Pool:   pool,
		Users:  sqlite.NewUserRepository(pool),
		Events: sqlite.NewEventRepository(pool),
		cleanup: func() {
			_ = pool.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// NewMemoryStores returns Stores backed by a fresh in-memory storage.
func NewMemoryStores() Stores {
	store := memory.New()
	return Stores{Name: "memory", Users: store, Events: store, Ping: store.Ping}
}

// AllStores returns one Stores value per backend so tests can run the same
// scenario against each.
func AllStores(tb testing.TB) []Stores {
	tb.Helper()
	return []Stores{NewMemoryStores(), NewSQLiteHarness(tb).Stores()}
}
