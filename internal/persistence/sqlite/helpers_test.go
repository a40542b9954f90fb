package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/secret-santa/internal/persistence"
	"github.com/example/secret-santa/internal/persistence/sqlite/migration"
)

var referenceTime = time.Date(2024, time.December, 1, 9, 0, 0, 0, time.UTC)

func newTestPool(t *testing.T) *ConnectionPool {
	t.Helper()

	ctx := context.Background()
	pool, err := NewConnectionPool(ctx, migration.TempFileTestSQLiteConfig(filepath.Join(t.TempDir(), "santa.db")))
	if err != nil {
		t.Fatalf("failed to open pool: %v", err)
	}
	t.Cleanup(func() {
		_ = pool.Close()
	})

	if err := pool.Migrate(ctx, nil); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return pool
}

func seedUsers(t *testing.T, repo *UserRepository, ids ...string) {
	t.Helper()

	for i, id := range ids {
		created := referenceTime.Add(time.Duration(i) * time.Minute)
		user := persistence.User{
			ID:           id,
			Username:     id + "-name",
			Name:         "User " + id,
			PasswordHash: "hash",
			CreatedAt:    created,
			UpdatedAt:    created,
		}
		if err := repo.CreateUser(context.Background(), user); err != nil {
			t.Fatalf("CreateUser(%s) failed: %v", id, err)
		}
	}
}

func newEvent(id, moderator string, attenders ...string) persistence.Event {
	return persistence.Event{
		ID:          id,
		Title:       "Office party " + id,
		Description: "Bring something nice",
		Location:    "Kitchen",
		ModeratorID: moderator,
		AttenderIDs: append([]string{moderator}, attenders...),
		CreatedAt:   referenceTime,
		UpdatedAt:   referenceTime,
	}
}
