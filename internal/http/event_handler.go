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

type eventService interface {
	CreateEvent(ctx context.Context, params application.CreateEventParams) (application.Event, error)
	GetEvent(ctx context.Context, principal application.Principal, eventID string) (application.Event, error)
	ListEvents(ctx context.Context, principal application.Principal) ([]application.Event, error)
	UpdateEvent(ctx context.Context, params application.UpdateEventParams) (application.Event, error)
	PatchEvent(ctx context.Context, params application.PatchEventParams) (application.Event, error)
	DeleteEvent(ctx context.Context, principal application.Principal, eventID string) error
	AddAttender(ctx context.Context, principal application.Principal, eventID, username string) (application.Event, error)
	StartEvent(ctx context.Context, principal application.Principal, eventID string) (application.StartResult, error)
	GetMyGift(ctx context.Context, principal application.Principal, eventID string) (application.GiftAssignment, error)
}

type EventHandler struct {
	service   eventService
	responder responder
	logger    *slog.Logger
}

func NewEventHandler(service eventService, logger *slog.Logger) *EventHandler {
	base := defaultLogger(logger)
	return &EventHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *EventHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "EventHandler", operation, attrs...)
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "List", "principal_id", principal.UserID)

	events, err := h.service.ListEvents(r.Context(), principal)
	if err != nil {
		logger.ErrorContext(r.Context(), "event list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listEventsResponse{Events: toEventDTOs(events)})
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode event request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID)

	event, err := h.service.CreateEvent(r.Context(), application.CreateEventParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "event creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("event_id", event.ID).InfoContext(r.Context(), "event created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	eventID, principal, ok := h.prepare(w, r, "Get")
	if !ok {
		return
	}

	event, err := h.service.GetEvent(r.Context(), principal, eventID)
	if err != nil {
		h.log(r.Context(), "Get", "principal_id", principal.UserID, "event_id", eventID).
			ErrorContext(r.Context(), "event lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	eventID, principal, ok := h.prepare(w, r, "Update")
	if !ok {
		return
	}

	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Update", "principal_id", principal.UserID, "event_id", eventID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode event update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "principal_id", principal.UserID, "event_id", eventID)

	event, err := h.service.UpdateEvent(r.Context(), application.UpdateEventParams{
		Principal:        principal,
		EventID:          eventID,
		Input:            req.toInput(),
		ReplaceAttenders: req.AttenderIDs != nil,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "event update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "event updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Patch(w http.ResponseWriter, r *http.Request) {
	eventID, principal, ok := h.prepare(w, r, "Patch")
	if !ok {
		return
	}

	var req patchEventRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Patch", "principal_id", principal.UserID, "event_id", eventID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode event patch", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Patch", "principal_id", principal.UserID, "event_id", eventID)

	event, err := h.service.PatchEvent(r.Context(), application.PatchEventParams{
		Principal: principal,
		EventID:   eventID,
		Patch: application.EventPatch{
			Title:       req.Title,
			Description: req.Description,
			Location:    req.Location,
			AttenderIDs: req.AttenderIDs,
		},
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "event patch failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "event patched")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	eventID, principal, ok := h.prepare(w, r, "Delete")
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Delete", "principal_id", principal.UserID, "event_id", eventID)
	if err := h.service.DeleteEvent(r.Context(), principal, eventID); err != nil {
		logger.ErrorContext(r.Context(), "event delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "event deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *EventHandler) AddAttender(w http.ResponseWriter, r *http.Request) {
	eventID, principal, ok := h.prepare(w, r, "AddAttender")
	if !ok {
		return
	}

	var req attenderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "AddAttender", "principal_id", principal.UserID, "event_id", eventID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode attender request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "AddAttender", "principal_id", principal.UserID, "event_id", eventID)

	event, err := h.service.AddAttender(r.Context(), principal, eventID, req.Username)
	if err != nil {
		logger.ErrorContext(r.Context(), "attender add failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "attender added")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Start(w http.ResponseWriter, r *http.Request) {
	eventID, principal, ok := h.prepare(w, r, "Start")
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Start", "principal_id", principal.UserID, "event_id", eventID)

	result, err := h.service.StartEvent(r.Context(), principal, eventID)
	if err != nil {
		logger.ErrorContext(r.Context(), "event start failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("gift_count", result.GiftCount).InfoContext(r.Context(), "event started")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, startResponse{
		Event:     toEventDTO(result.Event),
		GiftCount: result.GiftCount,
	})
}

func (h *EventHandler) Gift(w http.ResponseWriter, r *http.Request) {
	eventID, principal, ok := h.prepare(w, r, "Gift")
	if !ok {
		return
	}

	assignment, err := h.service.GetMyGift(r.Context(), principal, eventID)
	if err != nil {
		h.log(r.Context(), "Gift", "principal_id", principal.UserID, "event_id", eventID).
			ErrorContext(r.Context(), "gift lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, giftResponse{Gift: toGiftDTO(assignment)})
}

// prepare extracts the event id path variable and the caller.
func (h *EventHandler) prepare(w http.ResponseWriter, r *http.Request, operation string) (string, application.Principal, bool) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return "", application.Principal{}, false
	}

	eventID := strings.TrimSpace(mux.Vars(r)["id"])
	if eventID == "" {
		h.log(r.Context(), operation, "error_kind", "bad_request").ErrorContext(r.Context(), "missing event id")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "BAD_REQUEST", errMissingEventID)
		return "", application.Principal{}, false
	}

	principal, _ := PrincipalFromContext(r.Context())
	return eventID, principal, true
}

type eventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	AttenderIDs *[]string `json:"attender_ids"`
}

func (r eventRequest) toInput() application.EventInput {
	input := application.EventInput{
		Title:       r.Title,
		Description: r.Description,
		Location:    r.Location,
	}
	if r.AttenderIDs != nil {
		input.AttenderIDs = append([]string(nil), (*r.AttenderIDs)...)
	}
	return input
}

type patchEventRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Location    *string   `json:"location"`
	AttenderIDs *[]string `json:"attender_ids"`
}

type attenderRequest struct {
	Username string `json:"username"`
}

type eventResponse struct {
	Event eventDTO `json:"event"`
}

type listEventsResponse struct {
	Events []eventDTO `json:"events"`
}

type startResponse struct {
	Event     eventDTO `json:"event"`
	GiftCount int      `json:"gift_count"`
}

type giftResponse struct {
	Gift giftDTO `json:"gift"`
}

type eventDTO struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	ModeratorID string   `json:"moderator_id"`
	AttenderIDs []string `json:"attender_ids"`
	State       string   `json:"state"`
	StartedAt   *string  `json:"started_at,omitempty"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

type giftDTO struct {
	EventID  string      `json:"event_id"`
	GiverID  string      `json:"giver_id"`
	Receiver receiverDTO `json:"receiver"`
}

type receiverDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

func toEventDTO(event application.Event) eventDTO {
	attenders := event.AttenderIDs
	if attenders == nil {
		attenders = []string{}
	}
	dto := eventDTO{
		ID:          event.ID,
		Title:       event.Title,
		Description: event.Description,
		Location:    event.Location,
		ModeratorID: event.ModeratorID,
		AttenderIDs: attenders,
		State:       string(event.State),
		CreatedAt:   event.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   event.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if event.StartedAt != nil {
		startedAt := event.StartedAt.UTC().Format(time.RFC3339Nano)
		dto.StartedAt = &startedAt
	}
	return dto
}

func toEventDTOs(events []application.Event) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, event := range events {
		out = append(out, toEventDTO(event))
	}
	return out
}

func toGiftDTO(assignment application.GiftAssignment) giftDTO {
	return giftDTO{
		EventID: assignment.EventID,
		GiverID: assignment.GiverID,
		Receiver: receiverDTO{
			ID:       assignment.ReceiverID,
			Username: assignment.ReceiverUsername,
			Name:     assignment.ReceiverName,
		},
	}
}
