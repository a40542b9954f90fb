package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/secret-santa/internal/persistence"
)

// UserRepository implements persistence.UserRepository using SQLite.
type UserRepository struct {
	pool *ConnectionPool
}

// NewUserRepository creates a SQLite user repository.
func NewUserRepository(pool *ConnectionPool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, username, name, password_hash, created_at, updated_at`

// CreateUser inserts a new user. Usernames are unique.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO users (id, username, name, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Name,
		user.PasswordHash,
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	return mapError(err)
}

// UpdateUser overwrites the mutable profile fields of an existing user.
func (r *UserRepository) UpdateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}

	result, err := r.pool.db.ExecContext(ctx, `
		UPDATE users
		SET name = ?, password_hash = ?, updated_at = ?
		WHERE id = ?`,
		user.Name,
		user.PasswordHash,
		formatTime(user.UpdatedAt),
		user.ID,
	)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(result)
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	row := r.pool.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByUsername retrieves a user by username.
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (persistence.User, error) {
	if username == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	row := r.pool.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// ListUsersByIDs returns the users with the given ids ordered by id. Unknown
// ids are skipped, so callers compare lengths to detect them.
func (r *UserRepository) ListUsersByIDs(ctx context.Context, ids []string) ([]persistence.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.pool.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders+`) ORDER BY id ASC`, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var users []persistence.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (persistence.User, error) {
	var (
		user                 persistence.User
		createdAt, updatedAt string
	)
	if err := row.Scan(&user.ID, &user.Username, &user.Name, &user.PasswordHash, &createdAt, &updatedAt); err != nil {
		return persistence.User{}, mapError(err)
	}

	var err error
	if user.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.User{}, err
	}
	if user.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.User{}, err
	}
	return user, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
