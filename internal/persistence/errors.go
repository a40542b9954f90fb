package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a write breaks a schema constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrConflict is returned when a guarded state transition lost against another writer,
	// for example starting an event that is already started.
	ErrConflict = errors.New("persistence: state conflict")
)
