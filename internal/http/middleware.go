package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/secret-santa/internal/application"
)

const (
	// UserIDHeader carries the caller identity set by the gateway.
	UserIDHeader = "X-User-ID"
	// RequestIDHeader carries the request id, generated when absent.
	RequestIDHeader = "X-Request-ID"
)

var errMissingIdentity = errors.New("caller identity is required")

type userResolver interface {
	ResolveUser(ctx context.Context, id string) (application.User, error)
}

// RequireUser resolves the X-User-ID header to a registered user and stores
// the principal in the request context.
func RequireUser(resolver userResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
			if userID == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, "UNAUTHENTICATED", errMissingIdentity)
				return
			}

			user, err := resolver.ResolveUser(r.Context(), userID)
			if err != nil {
				responder.handleServiceError(r.Context(), w, err)
				return
			}

			ctx := ContextWithPrincipal(r.Context(), application.Principal{UserID: user.ID})
			if logger := LoggerFromContext(ctx); logger != nil {
				ctx = ContextWithLogger(ctx, logger.With("user_id", user.ID))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// RequestLogger assigns a request id, attaches a request scoped logger to the
// context and logs the start and completion of every request.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			logger.InfoContext(ctx, "request started")
			next.ServeHTTP(recorder, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", recorder.status, "duration", time.Since(start))
		})
	}
}
