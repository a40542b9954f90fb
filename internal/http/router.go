package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Users    *UserHandler
	Events   *EventHandler
	Identity userResolver
	Storage  pinger
	Logger   *slog.Logger
	// Middleware wraps the whole router, outermost first.
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	responder := newResponder(logger)

	root := mux.NewRouter()
	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		responder.writeJSON(r.Context(), w, http.StatusNotFound, errorResponse{ErrorCode: "NOT_FOUND", Message: "route not found"})
	})
	root.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		responder.writeJSON(r.Context(), w, http.StatusMethodNotAllowed, errorResponse{ErrorCode: "METHOD_NOT_ALLOWED", Message: http.StatusText(http.StatusMethodNotAllowed)})
	})

	root.Handle("/healthz", healthHandler(cfg.Storage, responder)).Methods(http.MethodGet)

	if cfg.Users != nil {
		root.HandleFunc("/users", cfg.Users.Register).Methods(http.MethodPost)
	}

	protected := root.NewRoute().Subrouter()
	if cfg.Identity != nil {
		protected.Use(RequireUser(cfg.Identity, logger))
	}

	if cfg.Users != nil {
		protected.HandleFunc("/users/{username}", cfg.Users.Get).Methods(http.MethodGet)
		protected.HandleFunc("/users/{username}", cfg.Users.Update).Methods(http.MethodPatch)
	}

	if cfg.Events != nil {
		protected.HandleFunc("/events", cfg.Events.List).Methods(http.MethodGet)
		protected.HandleFunc("/events", cfg.Events.Create).Methods(http.MethodPost)
		protected.HandleFunc("/events/{id}", cfg.Events.Get).Methods(http.MethodGet)
		protected.HandleFunc("/events/{id}", cfg.Events.Update).Methods(http.MethodPut)
		protected.HandleFunc("/events/{id}", cfg.Events.Patch).Methods(http.MethodPatch)
		protected.HandleFunc("/events/{id}", cfg.Events.Delete).Methods(http.MethodDelete)
		protected.HandleFunc("/events/{id}/attenders", cfg.Events.AddAttender).Methods(http.MethodPost)
		protected.HandleFunc("/events/{id}/start", cfg.Events.Start).Methods(http.MethodPost)
		protected.HandleFunc("/events/{id}/gift", cfg.Events.Gift).Methods(http.MethodGet)
	}

	var handler http.Handler = root
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}

type healthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

func healthHandler(storage pinger, responder responder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if storage == nil {
			responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok", Storage: "unchecked"})
			return
		}
		if err := storage.Ping(r.Context()); err != nil {
			responder.loggerFor(r.Context()).ErrorContext(r.Context(), "storage ping failed", "error", err)
			responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Storage: "unavailable"})
			return
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok", Storage: "ok"})
	})
}
