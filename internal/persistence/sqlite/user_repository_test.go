package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/secret-santa/internal/persistence"
)

func TestUserRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestPool(t))

	user := persistence.User{
		ID:           "user-1",
		Username:     "alice",
		Name:         "Alice",
		PasswordHash: "hash",
		CreatedAt:    referenceTime,
		UpdatedAt:    referenceTime,
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	fetched, err := repo.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if fetched.Username != "alice" || fetched.Name != "Alice" || fetched.PasswordHash != "hash" || !fetched.CreatedAt.Equal(referenceTime) {
		t.Fatalf("unexpected user: %#v", fetched)
	}

	user.Name = "Alice Liddell"
	user.PasswordHash = "rehashed"
	user.UpdatedAt = referenceTime.Add(time.Hour)
	if err := repo.UpdateUser(ctx, user); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}

	fetched, err = repo.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}
	if fetched.Name != "Alice Liddell" || fetched.PasswordHash != "rehashed" || !fetched.UpdatedAt.Equal(user.UpdatedAt) {
		t.Fatalf("unexpected updated user: %#v", fetched)
	}
	if !fetched.CreatedAt.Equal(referenceTime) {
		t.Fatalf("expected CreatedAt to be preserved, got %v", fetched.CreatedAt)
	}
}

func TestUserRepository_Errors(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestPool(t))
	seedUsers(t, repo, "user-1")

	duplicate := persistence.User{
		ID:           "user-2",
		Username:     "user-1-name",
		PasswordHash: "hash",
		CreatedAt:    referenceTime,
		UpdatedAt:    referenceTime,
	}
	if err := repo.CreateUser(ctx, duplicate); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for taken username, got %v", err)
	}

	if err := repo.CreateUser(ctx, persistence.User{ID: "user-3", Username: "nohash"}); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation without hash, got %v", err)
	}

	if _, err := repo.GetUser(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetUserByUsername(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	ghost := persistence.User{ID: "ghost", PasswordHash: "hash", UpdatedAt: referenceTime}
	if err := repo.UpdateUser(ctx, ghost); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
}

func TestUserRepository_ListUsersByIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestPool(t))
	seedUsers(t, repo, "user-c", "user-a", "user-b")

	users, err := repo.ListUsersByIDs(ctx, []string{"user-b", "user-a", "unknown"})
	if err != nil {
		t.Fatalf("ListUsersByIDs failed: %v", err)
	}
	if len(users) != 2 || users[0].ID != "user-a" || users[1].ID != "user-b" {
		t.Fatalf("unexpected users: %#v", users)
	}

	none, err := repo.ListUsersByIDs(ctx, nil)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty result, got %v, %v", none, err)
	}
}
