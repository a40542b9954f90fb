package application

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func newTestUserService(users ...User) (*UserService, *userRepoStub) {
	repo := newUserRepoStub(users...)
	return NewUserService(repo, plainHasher{}, sequentialIDs("user"), fixedNow), repo
}

func TestUserService_RegisterUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("stores the hashed password", func(t *testing.T) {
		t.Parallel()
		svc, repo := newTestUserService()

		user, err := svc.RegisterUser(ctx, RegisterUserInput{Username: " erin ", Name: "Erin", Password: "secret"})
		if err != nil {
			t.Fatalf("RegisterUser returned error: %v", err)
		}
		if user.ID != "user-1" || user.Username != "erin" || !user.CreatedAt.Equal(testNow) {
			t.Fatalf("unexpected user: %+v", user)
		}

		creds, err := repo.GetCredentials(ctx, "erin")
		if err != nil {
			t.Fatalf("GetCredentials returned error: %v", err)
		}
		if creds.PasswordHash != "plain$secret" {
			t.Fatalf("expected hashed password to be stored, got %q", creds.PasswordHash)
		}
	})

	t.Run("duplicate username", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestUserService(alice)

		_, err := svc.RegisterUser(ctx, RegisterUserInput{Username: "alice", Password: "secret"})
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["username"] == "" {
			t.Fatalf("expected username field error, got %v", err)
		}
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestUserService()

		tests := []struct {
			name  string
			input RegisterUserInput
			field string
		}{
			{name: "missing username", input: RegisterUserInput{Password: "secret"}, field: "username"},
			{name: "long username", input: RegisterUserInput{Username: strings.Repeat("u", 256), Password: "secret"}, field: "username"},
			{name: "slash in username", input: RegisterUserInput{Username: "a/b", Password: "secret"}, field: "username"},
			{name: "short password", input: RegisterUserInput{Username: "erin", Password: "abcd"}, field: "password"},
		}
		for _, tc := range tests {
			_, err := svc.RegisterUser(ctx, tc.input)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
			}
			if _, ok := vErr.FieldErrors[tc.field]; !ok {
				t.Fatalf("%s: expected %q field error, got %v", tc.name, tc.field, vErr.FieldErrors)
			}
		}
	})
}

func TestUserService_UpdateProfile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("owner changes name and password", func(t *testing.T) {
		t.Parallel()
		svc, repo := newTestUserService(alice, bob)
		name := "  Alice Liddell "
		password := "rabbit-hole"

		user, err := svc.UpdateProfile(ctx, UpdateProfileParams{
			Principal: principal(alice),
			Username:  "alice",
			Input:     UpdateProfileInput{Name: &name, Password: &password},
		})
		if err != nil {
			t.Fatalf("UpdateProfile returned error: %v", err)
		}
		if user.Name != "Alice Liddell" || !user.UpdatedAt.Equal(testNow) {
			t.Fatalf("unexpected user: %+v", user)
		}
		creds, _ := repo.GetCredentials(ctx, "alice")
		if creds.PasswordHash != "plain$rabbit-hole" {
			t.Fatalf("expected new password hash, got %q", creds.PasswordHash)
		}
	})

	t.Run("omitted fields are kept", func(t *testing.T) {
		t.Parallel()
		svc, repo := newTestUserService(alice)
		name := "Al"

		if _, err := svc.UpdateProfile(ctx, UpdateProfileParams{
			Principal: principal(alice),
			Username:  "alice",
			Input:     UpdateProfileInput{Name: &name},
		}); err != nil {
			t.Fatalf("UpdateProfile returned error: %v", err)
		}
		creds, _ := repo.GetCredentials(ctx, "alice")
		if creds.PasswordHash != "hash" {
			t.Fatalf("expected password hash to be untouched, got %q", creds.PasswordHash)
		}
	})

	t.Run("errors", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestUserService(alice, bob)
		short := "abc"

		if _, err := svc.UpdateProfile(ctx, UpdateProfileParams{Principal: principal(bob), Username: "alice"}); !errors.Is(err, ErrPermissionDenied) {
			t.Fatalf("expected ErrPermissionDenied, got %v", err)
		}
		if _, err := svc.UpdateProfile(ctx, UpdateProfileParams{Username: "alice"}); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}
		if _, err := svc.UpdateProfile(ctx, UpdateProfileParams{Principal: principal(alice), Username: "nobody"}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		_, err := svc.UpdateProfile(ctx, UpdateProfileParams{
			Principal: principal(alice),
			Username:  "alice",
			Input:     UpdateProfileInput{Password: &short},
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["password"] == "" {
			t.Fatalf("expected password field error, got %v", err)
		}
	})
}

func TestUserService_Lookups(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestUserService(alice)

	user, err := svc.GetUserByUsername(ctx, principal(alice), "alice")
	if err != nil || user.ID != alice.ID {
		t.Fatalf("expected alice, got %+v (err=%v)", user, err)
	}
	if _, err := svc.GetUserByUsername(ctx, Principal{}, "alice"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := svc.GetUserByUsername(ctx, principal(alice), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	resolved, err := svc.ResolveUser(ctx, alice.ID)
	if err != nil || resolved.Username != "alice" {
		t.Fatalf("expected alice, got %+v (err=%v)", resolved, err)
	}
	for _, id := range []string{"", "u-ghost"} {
		if _, err := svc.ResolveUser(ctx, id); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("ResolveUser(%q): expected ErrUnauthenticated, got %v", id, err)
		}
	}
}
