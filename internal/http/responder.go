package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/secret-santa/internal/application"
)

var (
	errBadRequestBody = errors.New("request body is not valid JSON")
	errMissingEventID = errors.New("event id is required")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, code string, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: code, Message: message})
}

// handleServiceError maps application errors to status codes. Internal
// details are logged but never written to the client.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", errors.New("unknown error"))
		return
	}

	var vErr *application.ValidationError
	hasFields := errors.As(err, &vErr) && vErr.HasErrors()

	switch {
	case errors.Is(err, application.ErrIntegrityViolation):
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{
			ErrorCode: "INTEGRITY_VIOLATION",
			Message:   "stored gift assignments are inconsistent",
		})
	case errors.Is(err, application.ErrMatchingImpossible):
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{
			ErrorCode: "MATCHING_IMPOSSIBLE",
			Message:   "an event needs at least two attenders to start",
		})
	case errors.Is(err, application.ErrUnauthenticated):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{ErrorCode: "UNAUTHENTICATED", Message: "caller identity is not recognised"})
	case errors.Is(err, application.ErrPermissionDenied):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{ErrorCode: "PERMISSION_DENIED", Message: "you are not allowed to perform this operation"})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{ErrorCode: "NOT_FOUND", Message: "the requested resource does not exist"})
	case errors.Is(err, application.ErrInvalidState):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: "INVALID_STATE", Message: "the event is not in a state that allows this operation"})
	case errors.Is(err, application.ErrAlreadyExists):
		resp := errorResponse{ErrorCode: "ALREADY_EXISTS", Message: "the resource already exists"}
		if hasFields {
			resp.Errors = vErr.FieldErrors
		}
		r.writeJSON(ctx, w, http.StatusConflict, resp)
	case hasFields:
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   "the request contains invalid fields",
			Errors:    vErr.FieldErrors,
		})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{ErrorCode: "INTERNAL", Message: "internal server error"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errBadRequestBody
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Join(errBadRequestBody, err)
	}
	return nil
}
