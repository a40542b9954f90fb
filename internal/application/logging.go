package application

import (
	"cmp"
	"context"
	"errors"
	"log/slog"

	"github.com/example/secret-santa/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	return cmp.Or(logger, slog.Default())
}

// serviceLogger prefers the request logger carried by ctx so request ids
// reach service log lines.
func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := cmp.Or(logging.FromContext(ctx), base, slog.Default())
	logger = logger.With("service", serviceName)
	if operation != "" {
		logger = logger.With("operation", operation)
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrIntegrityViolation):
		return "integrity_violation"
	case errors.Is(err, ErrMatchingImpossible):
		return "matching_impossible"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
