package application

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrUnauthenticated is returned when a service method is invoked without a caller identity.
	ErrUnauthenticated = errors.New("application: unauthenticated")
	// ErrPermissionDenied is returned when the caller's role does not allow the operation.
	ErrPermissionDenied = errors.New("application: permission denied")
	// ErrInvalidState is returned when the event lifecycle state does not allow the operation.
	ErrInvalidState = errors.New("application: invalid event state")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a unique attribute is already taken.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrMatchingImpossible is returned when an event cannot be started because
	// fewer than two attenders take part.
	ErrMatchingImpossible = errors.New("application: matching impossible")
	// ErrIntegrityViolation is returned when stored gifts contradict the event state.
	ErrIntegrityViolation = errors.New("application: gift integrity violation")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}
