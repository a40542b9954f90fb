package migration

import (
	"errors"
	"fmt"
)

var (
	// ErrMigrationFailed indicates that a migration execution failed.
	ErrMigrationFailed = errors.New("migration execution failed")
	// ErrInvalidMigrationFile indicates that a migration file is malformed.
	ErrInvalidMigrationFile = errors.New("invalid migration file format")
	// ErrDuplicateVersion indicates that two files share a version.
	ErrDuplicateVersion = errors.New("duplicate migration version")
	// ErrVersionConflict indicates a gap in the sequence or an applied version without a file.
	ErrVersionConflict = errors.New("migration version conflict")
	// ErrChecksumMismatch indicates that an applied migration file was edited afterwards.
	ErrChecksumMismatch = errors.New("migration checksum mismatch")
)

// MigrationError wraps migration failures with the file and step involved.
type MigrationError struct {
	Version   string
	FileName  string
	Operation string
	Err       error
}

func (e *MigrationError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("migration %s (%s): %s: %v", e.Version, e.FileName, e.Operation, e.Err)
	}
	return fmt.Sprintf("migration (%s): %s: %v", e.FileName, e.Operation, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// NewMigrationError creates a MigrationError.
func NewMigrationError(version, fileName, operation string, err error) *MigrationError {
	return &MigrationError{Version: version, FileName: fileName, Operation: operation, Err: err}
}

// DatabaseError wraps driver errors raised while migrating.
type DatabaseError struct {
	Version   string
	Operation string
	Err       error
}

func (e *DatabaseError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("database error in migration %s during %s: %v", e.Version, e.Operation, e.Err)
	}
	return fmt.Sprintf("database error during %s: %v", e.Operation, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// NewDatabaseError creates a DatabaseError.
func NewDatabaseError(version, operation string, err error) *DatabaseError {
	return &DatabaseError{Version: version, Operation: operation, Err: err}
}
