package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/secret-santa/internal/persistence"
)

// UserRepository captures the persistence operations needed by the user service.
type UserRepository interface {
	CreateUser(ctx context.Context, credentials UserCredentials) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	GetCredentials(ctx context.Context, username string) (UserCredentials, error)
	UpdateCredentials(ctx context.Context, credentials UserCredentials) (User, error)
}

// UserService registers accounts and maintains profiles.
type UserService struct {
	users       UserRepository
	hasher      PasswordHasher
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewUserService wires dependencies for the user service.
func NewUserService(users UserRepository, hasher PasswordHasher, idGenerator func() string, now func() time.Time) *UserService {
	return NewUserServiceWithLogger(users, hasher, idGenerator, now, nil)
}

// NewUserServiceWithLogger wires dependencies for the user service with a specified logger.
func NewUserServiceWithLogger(users UserRepository, hasher PasswordHasher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *UserService {
	if hasher == nil {
		hasher = NewArgon2idHasher(Argon2idParams{})
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &UserService{
		users:       users,
		hasher:      hasher,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *UserService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "UserService", operation, attrs...)
}

// RegisterUser creates an account. No caller identity is required.
func (s *UserService) RegisterUser(ctx context.Context, input RegisterUserInput) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}

	input.Username = strings.TrimSpace(input.Username)
	input.Name = strings.TrimSpace(input.Name)

	logger := s.loggerWith(ctx, "RegisterUser", "username", input.Username)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to register user", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID).InfoContext(ctx, "user registered")
	}()

	if vErr := validateInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	var hash string
	hash, err = s.hasher.Hash(input.Password)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}

	now := s.now()
	user, err = s.users.CreateUser(ctx, UserCredentials{
		User: User{
			ID:        s.idGenerator(),
			Username:  input.Username,
			Name:      input.Name,
			CreatedAt: now,
			UpdatedAt: now,
		},
		PasswordHash: hash,
	})
	if err != nil {
		err = mapUserRepoError(err)
		if errors.Is(err, ErrAlreadyExists) {
			vErr := &ValidationError{}
			vErr.add("username", "username is already taken")
			err = fmt.Errorf("%w: %w", ErrAlreadyExists, vErr)
		}
	}
	return
}

// GetUserByUsername returns the public profile of a user.
func (s *UserService) GetUserByUsername(ctx context.Context, principal Principal, username string) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("UserService is nil")
	}
	if principal.UserID == "" {
		return User{}, ErrUnauthenticated
	}

	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		err = mapUserRepoError(err)
		s.loggerWith(ctx, "GetUserByUsername", "username", username).
			ErrorContext(ctx, "failed to get user", "error", err, "error_kind", ErrorKind(err))
		return User{}, err
	}
	return user, nil
}

// UpdateProfile changes the display name and/or password of the caller's own account.
func (s *UserService) UpdateProfile(ctx context.Context, params UpdateProfileParams) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateProfile",
		"principal_id", params.Principal.UserID,
		"username", params.Username,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update profile", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "profile updated")
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthenticated
		return
	}

	var current UserCredentials
	current, err = s.users.GetCredentials(ctx, strings.TrimSpace(params.Username))
	if err != nil {
		err = mapUserRepoError(err)
		return
	}
	if current.User.ID != params.Principal.UserID {
		err = fmt.Errorf("%w: profiles can only be changed by their owner", ErrPermissionDenied)
		return
	}

	input := params.Input
	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		input.Name = &trimmed
	}
	if vErr := validateInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	updated := current
	if input.Name != nil {
		updated.User.Name = *input.Name
	}
	if input.Password != nil {
		updated.PasswordHash, err = s.hasher.Hash(*input.Password)
		if err != nil {
			err = fmt.Errorf("hash password: %w", err)
			return
		}
	}
	updated.User.UpdatedAt = s.now()

	user, err = s.users.UpdateCredentials(ctx, updated)
	if err != nil {
		err = mapUserRepoError(err)
	}
	return
}

// ResolveUser returns the user behind a caller identity. Unknown ids yield
// ErrUnauthenticated.
func (s *UserService) ResolveUser(ctx context.Context, id string) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("UserService is nil")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, ErrUnauthenticated
	}

	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		err = mapUserRepoError(err)
		if errors.Is(err, ErrNotFound) {
			return User{}, fmt.Errorf("%w: unknown user %q", ErrUnauthenticated, id)
		}
		s.loggerWith(ctx, "ResolveUser", "user_id", id).
			ErrorContext(ctx, "failed to resolve user", "error", err, "error_kind", ErrorKind(err))
		return User{}, err
	}
	return user, nil
}

func mapUserRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrConstraintViolation):
		vErr := &ValidationError{}
		vErr.add("user", "user violates a storage constraint")
		return vErr
	}
	return err
}
