package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/secret-santa/internal/application"
)

type userService interface {
	RegisterUser(ctx context.Context, input application.RegisterUserInput) (application.User, error)
	GetUserByUsername(ctx context.Context, principal application.Principal, username string) (application.User, error)
	UpdateProfile(ctx context.Context, params application.UpdateProfileParams) (application.User, error)
	ResolveUser(ctx context.Context, id string) (application.User, error)
}

type UserHandler struct {
	service   userService
	responder responder
	logger    *slog.Logger
}

func NewUserHandler(service userService, logger *slog.Logger) *UserHandler {
	base := defaultLogger(logger)
	return &UserHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *UserHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "UserHandler", operation, attrs...)
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Register", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode registration", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Register", "username", strings.TrimSpace(req.Username))

	user, err := h.service.RegisterUser(r.Context(), application.RegisterUserInput{
		Username: req.Username,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "registration failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("user_id", user.ID).InfoContext(r.Context(), "user registered")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, userResponse{User: toUserDTO(user)})
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	username := mux.Vars(r)["username"]

	user, err := h.service.GetUserByUsername(r.Context(), principal, username)
	if err != nil {
		h.log(r.Context(), "Get", "principal_id", principal.UserID, "username", username).
			ErrorContext(r.Context(), "user lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	username := mux.Vars(r)["username"]

	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Update", "principal_id", principal.UserID, "username", username, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode profile update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "principal_id", principal.UserID, "username", username)

	user, err := h.service.UpdateProfile(r.Context(), application.UpdateProfileParams{
		Principal: principal,
		Username:  username,
		Input:     application.UpdateProfileInput{Name: req.Name, Password: req.Password},
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "profile update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "profile updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

type registerRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type profileRequest struct {
	Name     *string `json:"name"`
	Password *string `json:"password"`
}

type userResponse struct {
	User userDTO `json:"user"`
}

type userDTO struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toUserDTO(user application.User) userDTO {
	return userDTO{
		ID:        user.ID,
		Username:  user.Username,
		Name:      user.Name,
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: user.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
