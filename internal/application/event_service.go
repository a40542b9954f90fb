package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/example/secret-santa/internal/matching"
	"github.com/example/secret-santa/internal/persistence"
)

// AssignFunc computes gifts for an event whose start has been claimed.
type AssignFunc func(event Event) ([]Gift, error)

// EventRepository captures the persistence operations needed by the event service.
// Attender changes and StartEvent fail with persistence.ErrConflict once the
// event has started.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) (Event, error)
	GetEvent(ctx context.Context, id string) (Event, error)
	// UpdateEvent stores the metadata, and the attender set when
	// replaceAttenders is true, in one atomic write.
	UpdateEvent(ctx context.Context, event Event, replaceAttenders bool) (Event, error)
	DeleteEvent(ctx context.Context, id string) error
	ListEventsForAttender(ctx context.Context, userID string) ([]Event, error)
	AddAttender(ctx context.Context, eventID, userID string, at time.Time) (Event, error)
	StartEvent(ctx context.Context, eventID string, startedAt time.Time, assign AssignFunc) (Event, []Gift, error)
	GetGiftByGiver(ctx context.Context, eventID, giverID string) (Gift, error)
}

// UserDirectory resolves users referenced by events.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsersByIDs(ctx context.Context, ids []string) ([]User, error)
}

// Matcher computes the gift chain for a set of attenders.
type Matcher interface {
	Assign(participants []string) ([]matching.Pair, error)
}

// Notifier receives lifecycle notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// EventService controls the event lifecycle: attender management while OPEN,
// the one-way start that draws the gifts, and gift lookup once STARTED.
type EventService struct {
	events      EventRepository
	users       UserDirectory
	matcher     Matcher
	notifier    Notifier
	idGenerator func() string
	now         func() time.Time
	gifts       *giftCache
	logger      *slog.Logger
}

// NewEventService constructs an event service with the provided dependencies.
func NewEventService(events EventRepository, users UserDirectory, matcher Matcher, notifier Notifier, idGenerator func() string, now func() time.Time) *EventService {
	return NewEventServiceWithLogger(events, users, matcher, notifier, idGenerator, now, nil)
}

// NewEventServiceWithLogger constructs an event service with a specified logger.
func NewEventServiceWithLogger(events EventRepository, users UserDirectory, matcher Matcher, notifier Notifier, idGenerator func() string, now func() time.Time, logger *slog.Logger) *EventService {
	if matcher == nil {
		matcher = matching.NewEngine(nil)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &EventService{
		events:      events,
		users:       users,
		matcher:     matcher,
		notifier:    notifier,
		idGenerator: idGenerator,
		now:         now,
		gifts:       newGiftCache(0, 0, now),
		logger:      defaultLogger(logger),
	}
}

func (s *EventService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EventService", operation, attrs...)
}

// CreateEvent validates input and persists a new OPEN event moderated by the caller.
// The moderator is always an attender.
func (s *EventService) CreateEvent(ctx context.Context, params CreateEventParams) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateEvent", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("event_id", event.ID).InfoContext(ctx, "event created")
	}()

	if err = authorize(OpCreateEvent, Event{}, params.Principal); err != nil {
		return
	}

	input := normalizeEventInput(params.Input)
	input.AttenderIDs = withModerator(input.AttenderIDs, params.Principal.UserID)
	vErr := validateInput(input)
	if !vErr.HasErrors() {
		vErr.merge(s.checkAttendersExist(ctx, input.AttenderIDs))
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	event = Event{
		ID:          s.idGenerator(),
		Title:       input.Title,
		Description: input.Description,
		Location:    input.Location,
		ModeratorID: params.Principal.UserID,
		AttenderIDs: input.AttenderIDs,
		State:       StateOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	event, err = s.events.CreateEvent(ctx, event)
	if err != nil {
		err = mapEventRepoError(err)
	}
	return
}

// GetEvent returns an event to one of its attenders.
func (s *EventService) GetEvent(ctx context.Context, principal Principal, eventID string) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "GetEvent", "principal_id", principal.UserID, "event_id", eventID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to get event", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	event, err = s.loadAuthorized(ctx, OpGetEvent, principal, eventID)
	return
}

// ListEvents returns the events the caller attends, newest first.
func (s *EventService) ListEvents(ctx context.Context, principal Principal) (events []Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListEvents", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list events", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(events)).InfoContext(ctx, "events listed")
	}()

	if err = authorize(OpListEvents, Event{}, principal); err != nil {
		return
	}

	events, err = s.events.ListEventsForAttender(ctx, principal.UserID)
	if err != nil {
		err = mapEventRepoError(err)
		return
	}
	slices.SortStableFunc(events, func(a, b Event) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return
}

// UpdateEvent lets the moderator change the event metadata at any time and
// replace the attender set while the event is OPEN.
func (s *EventService) UpdateEvent(ctx context.Context, params UpdateEventParams) (Event, error) {
	if s == nil {
		return Event{}, fmt.Errorf("EventService is nil")
	}
	return s.update(ctx, "UpdateEvent", params.Principal, params.EventID, params.ReplaceAttenders, func(Event) EventInput {
		return params.Input
	})
}

// PatchEvent is UpdateEvent for a partial body: omitted fields keep their
// stored values and the attender set is only replaced when provided.
func (s *EventService) PatchEvent(ctx context.Context, params PatchEventParams) (Event, error) {
	if s == nil {
		return Event{}, fmt.Errorf("EventService is nil")
	}
	return s.update(ctx, "PatchEvent", params.Principal, params.EventID, params.Patch.AttenderIDs != nil, params.Patch.merge)
}

func (s *EventService) update(ctx context.Context, operation string, principal Principal, eventID string, replaceAttenders bool, inputFor func(Event) EventInput) (event Event, err error) {
	logger := s.loggerWith(ctx, operation,
		"principal_id", principal.UserID,
		"event_id", eventID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event updated")
	}()

	var existing Event
	existing, err = s.loadAuthorized(ctx, OpUpdateEvent, principal, eventID)
	if err != nil {
		return
	}

	input := normalizeEventInput(inputFor(existing))
	if replaceAttenders {
		if existing.State != StateOpen {
			err = fmt.Errorf("%w: attenders of a started event cannot change", ErrInvalidState)
			return
		}
		input.AttenderIDs = withModerator(input.AttenderIDs, existing.ModeratorID)
	} else {
		input.AttenderIDs = nil
	}

	vErr := validateInput(input)
	if replaceAttenders && !vErr.HasErrors() {
		vErr.merge(s.checkAttendersExist(ctx, input.AttenderIDs))
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	updated := existing
	updated.Title = input.Title
	updated.Description = input.Description
	updated.Location = input.Location
	updated.UpdatedAt = s.now()
	if replaceAttenders {
		updated.AttenderIDs = input.AttenderIDs
	}

	event, err = s.events.UpdateEvent(ctx, updated, replaceAttenders)
	if err != nil {
		err = mapEventRepoError(err)
	}
	return
}

// DeleteEvent removes an event and its gifts when requested by the moderator.
func (s *EventService) DeleteEvent(ctx context.Context, principal Principal, eventID string) error {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteEvent", "principal_id", principal.UserID, "event_id", eventID)

	if _, err := s.loadAuthorized(ctx, OpDeleteEvent, principal, eventID); err != nil {
		logger.ErrorContext(ctx, "failed to delete event", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	if err := s.events.DeleteEvent(ctx, eventID); err != nil {
		err = mapEventRepoError(err)
		logger.ErrorContext(ctx, "failed to delete event", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	s.gifts.InvalidateEvent(eventID)

	logger.InfoContext(ctx, "event deleted")
	return nil
}

// AddAttender adds the user with the given username to an OPEN event.
// Adding a user who already attends is a no-op.
func (s *EventService) AddAttender(ctx context.Context, principal Principal, eventID, username string) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "AddAttender",
		"principal_id", principal.UserID,
		"event_id", eventID,
		"username", username,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to add attender", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("attender_count", len(event.AttenderIDs)).InfoContext(ctx, "attender added")
	}()

	var existing Event
	existing, err = s.loadAuthorized(ctx, OpAddAttender, principal, eventID)
	if err != nil {
		return
	}
	if existing.State != StateOpen {
		err = fmt.Errorf("%w: event already started", ErrInvalidState)
		return
	}

	username = strings.TrimSpace(username)
	if username == "" {
		vErr := &ValidationError{}
		vErr.add("username", "username is required")
		err = vErr
		return
	}

	var user User
	user, err = s.users.GetUserByUsername(ctx, username)
	if err != nil {
		err = mapUserRepoError(err)
		if errors.Is(err, ErrNotFound) {
			err = fmt.Errorf("%w: user %q", ErrNotFound, username)
		}
		return
	}
	if existing.IsAttender(user.ID) {
		event = existing
		return
	}

	now := s.now()
	event, err = s.events.AddAttender(ctx, eventID, user.ID, now)
	if err != nil {
		err = mapEventRepoError(err)
		return
	}

	s.publish(ctx, logger, Notification{
		Kind:        NotificationAttenderAdded,
		EventID:     event.ID,
		ActorID:     principal.UserID,
		AttenderIDs: []string{user.ID},
		OccurredAt:  now,
	})
	return
}

// StartEvent freezes the attender set and draws the gifts. Only the moderator
// may start an OPEN event. Claiming the start, drawing and storing the gifts
// commit together, so a failed draw leaves the event OPEN without gifts and a
// concurrent second start fails with ErrInvalidState.
func (s *EventService) StartEvent(ctx context.Context, principal Principal, eventID string) (result StartResult, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "StartEvent", "principal_id", principal.UserID, "event_id", eventID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to start event", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("gift_count", result.GiftCount).InfoContext(ctx, "event started")
	}()

	var existing Event
	existing, err = s.loadAuthorized(ctx, OpStartEvent, principal, eventID)
	if err != nil {
		return
	}
	if existing.State != StateOpen {
		err = fmt.Errorf("%w: event already started", ErrInvalidState)
		return
	}

	startedAt := s.now()
	started, gifts, err := s.events.StartEvent(ctx, eventID, startedAt, func(claimed Event) ([]Gift, error) {
		return s.drawGifts(claimed, startedAt)
	})
	if err != nil {
		err = mapEventRepoError(err)
		return
	}

	result = StartResult{Event: started, GiftCount: len(gifts)}
	s.publish(ctx, logger, Notification{
		Kind:        NotificationEventStarted,
		EventID:     started.ID,
		ActorID:     principal.UserID,
		AttenderIDs: slices.Clone(started.AttenderIDs),
		OccurredAt:  startedAt,
	})
	return
}

// GetMyGift tells an attender of a STARTED event whom they give a gift to.
func (s *EventService) GetMyGift(ctx context.Context, principal Principal, eventID string) (assignment GiftAssignment, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "GetMyGift", "principal_id", principal.UserID, "event_id", eventID)
	defer func() {
		if err == nil {
			return
		}
		if errors.Is(err, ErrIntegrityViolation) {
			logger.ErrorContext(ctx, "gift integrity violation", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.ErrorContext(ctx, "failed to get gift", "error", err, "error_kind", ErrorKind(err))
	}()

	var event Event
	event, err = s.loadAuthorized(ctx, OpGetMyGift, principal, eventID)
	if err != nil {
		return
	}
	if event.State != StateStarted {
		err = fmt.Errorf("%w: event has not started", ErrInvalidState)
		return
	}
	if cached, ok := s.gifts.Get(eventID, principal.UserID); ok {
		assignment = cached
		return
	}

	var gift Gift
	gift, err = s.events.GetGiftByGiver(ctx, eventID, principal.UserID)
	if err != nil {
		err = mapEventRepoError(err)
		if errors.Is(err, ErrNotFound) {
			err = fmt.Errorf("%w: no gift for attender %s", ErrIntegrityViolation, principal.UserID)
		}
		return
	}

	var receiver User
	receiver, err = s.users.GetUser(ctx, gift.ReceiverID)
	if err != nil {
		err = mapUserRepoError(err)
		if errors.Is(err, ErrNotFound) {
			err = fmt.Errorf("%w: receiver %s does not exist", ErrIntegrityViolation, gift.ReceiverID)
		}
		return
	}

	assignment = GiftAssignment{
		EventID:          eventID,
		GiverID:          gift.GiverID,
		ReceiverID:       receiver.ID,
		ReceiverUsername: receiver.Username,
		ReceiverName:     receiver.Name,
	}
	s.gifts.Store(assignment)
	return
}

// drawGifts runs the matcher over the frozen attender set and checks the result
// is a single cycle before it is stored.
func (s *EventService) drawGifts(event Event, startedAt time.Time) ([]Gift, error) {
	pairs, err := s.matcher.Assign(event.AttenderIDs)
	if err != nil {
		if errors.Is(err, matching.ErrMatchingImpossible) {
			return nil, fmt.Errorf("%w: %w", ErrMatchingImpossible, err)
		}
		return nil, err
	}
	if err := matching.VerifyCycle(event.AttenderIDs, pairs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIntegrityViolation, err)
	}

	gifts := make([]Gift, len(pairs))
	for i, pair := range pairs {
		gifts[i] = Gift{
			ID:         s.idGenerator(),
			EventID:    event.ID,
			GiverID:    pair.Giver,
			ReceiverID: pair.Receiver,
			CreatedAt:  startedAt,
		}
	}
	return gifts, nil
}

func (s *EventService) loadAuthorized(ctx context.Context, op Operation, principal Principal, eventID string) (Event, error) {
	if principal.UserID == "" {
		return Event{}, ErrUnauthenticated
	}
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return Event{}, mapEventRepoError(err)
	}
	if err := authorize(op, event, principal); err != nil {
		return Event{}, err
	}
	return event, nil
}

func (s *EventService) checkAttendersExist(ctx context.Context, ids []string) *ValidationError {
	vErr := &ValidationError{}
	if len(ids) == 0 {
		return vErr
	}

	found, err := s.users.ListUsersByIDs(ctx, ids)
	if err != nil {
		vErr.add("attenders", "attenders could not be verified")
		return vErr
	}
	known := make(map[string]struct{}, len(found))
	for _, user := range found {
		known[user.ID] = struct{}{}
	}

	var missing []string
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		vErr.add("attenders", fmt.Sprintf("unknown attenders: %s", strings.Join(missing, ", ")))
	}
	return vErr
}

func (s *EventService) publish(ctx context.Context, logger *slog.Logger, notification Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, notification); err != nil {
		logger.WarnContext(ctx, "failed to publish notification",
			"error", err,
			"notification_kind", string(notification.Kind),
		)
	}
}

func normalizeEventInput(input EventInput) EventInput {
	out := EventInput{
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Location:    strings.TrimSpace(input.Location),
	}
	for _, id := range input.AttenderIDs {
		out.AttenderIDs = append(out.AttenderIDs, strings.TrimSpace(id))
	}
	return out
}

// withModerator returns the sorted, de-duplicated attender ids including the moderator.
func withModerator(ids []string, moderatorID string) []string {
	out := append(slices.Clone(ids), moderatorID)
	slices.Sort(out)
	return slices.Compact(out)
}

func mapEventRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrConflict):
		return fmt.Errorf("%w: event already started", ErrInvalidState)
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	case errors.Is(err, persistence.ErrConstraintViolation):
		vErr := &ValidationError{}
		vErr.add("event", "event violates a storage constraint")
		return vErr
	}
	return err
}
