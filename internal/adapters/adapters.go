// Package adapters connects the application services to a storage backend by
// translating between application and persistence models.
package adapters

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/example/secret-santa/internal/application"
	"github.com/example/secret-santa/internal/persistence"
)

// UserStore satisfies application.UserRepository and application.UserDirectory.
type UserStore struct {
	repo persistence.UserRepository
}

// NewUserStore wraps a persistence user repository.
func NewUserStore(repo persistence.UserRepository) *UserStore {
	return &UserStore{repo: repo}
}

var (
	_ application.UserRepository = (*UserStore)(nil)
	_ application.UserDirectory  = (*UserStore)(nil)
)

func (a *UserStore) CreateUser(ctx context.Context, credentials application.UserCredentials) (application.User, error) {
	if err := a.repo.CreateUser(ctx, toPersistenceUser(credentials)); err != nil {
		return application.User{}, err
	}
	stored, err := a.repo.GetUser(ctx, credentials.User.ID)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *UserStore) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *UserStore) GetUserByUsername(ctx context.Context, username string) (application.User, error) {
	stored, err := a.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *UserStore) GetCredentials(ctx context.Context, username string) (application.UserCredentials, error) {
	stored, err := a.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return application.UserCredentials{}, err
	}
	return application.UserCredentials{User: toApplicationUser(stored), PasswordHash: stored.PasswordHash}, nil
}

func (a *UserStore) UpdateCredentials(ctx context.Context, credentials application.UserCredentials) (application.User, error) {
	if err := a.repo.UpdateUser(ctx, toPersistenceUser(credentials)); err != nil {
		return application.User{}, err
	}
	stored, err := a.repo.GetUser(ctx, credentials.User.ID)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *UserStore) ListUsersByIDs(ctx context.Context, ids []string) ([]application.User, error) {
	models, err := a.repo.ListUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	users := make([]application.User, 0, len(models))
	for _, model := range models {
		users = append(users, toApplicationUser(model))
	}
	return users, nil
}

// EventStore satisfies application.EventRepository.
type EventStore struct {
	repo persistence.EventRepository
}

// NewEventStore wraps a persistence event repository.
func NewEventStore(repo persistence.EventRepository) *EventStore {
	return &EventStore{repo: repo}
}

var _ application.EventRepository = (*EventStore)(nil)

func (a *EventStore) CreateEvent(ctx context.Context, event application.Event) (application.Event, error) {
	if err := a.repo.CreateEvent(ctx, toPersistenceEvent(event)); err != nil {
		return application.Event{}, err
	}
	return a.GetEvent(ctx, event.ID)
}

func (a *EventStore) GetEvent(ctx context.Context, id string) (application.Event, error) {
	stored, err := a.repo.GetEvent(ctx, id)
	if err != nil {
		return application.Event{}, err
	}
	return toApplicationEvent(stored), nil
}

func (a *EventStore) UpdateEvent(ctx context.Context, event application.Event, replaceAttenders bool) (application.Event, error) {
	if err := a.repo.UpdateEvent(ctx, toPersistenceEvent(event), replaceAttenders); err != nil {
		return application.Event{}, err
	}
	return a.GetEvent(ctx, event.ID)
}

func (a *EventStore) DeleteEvent(ctx context.Context, id string) error {
	return a.repo.DeleteEvent(ctx, id)
}

func (a *EventStore) ListEventsForAttender(ctx context.Context, userID string) ([]application.Event, error) {
	models, err := a.repo.ListEventsForAttender(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	events := make([]application.Event, 0, len(models))
	for _, model := range models {
		events = append(events, toApplicationEvent(model))
	}
	return events, nil
}

func (a *EventStore) AddAttender(ctx context.Context, eventID, userID string, at time.Time) (application.Event, error) {
	if err := a.repo.AddAttender(ctx, eventID, userID, at); err != nil {
		return application.Event{}, err
	}
	return a.GetEvent(ctx, eventID)
}

func (a *EventStore) StartEvent(ctx context.Context, eventID string, startedAt time.Time, assign application.AssignFunc) (application.Event, []application.Gift, error) {
	if assign == nil {
		return application.Event{}, nil, errors.New("adapters: assign func is nil")
	}
	started, gifts, err := a.repo.StartEvent(ctx, eventID, startedAt, func(claimed persistence.Event) ([]persistence.Gift, error) {
		computed, err := assign(toApplicationEvent(claimed))
		if err != nil {
			return nil, err
		}
		out := make([]persistence.Gift, 0, len(computed))
		for _, gift := range computed {
			out = append(out, toPersistenceGift(gift))
		}
		return out, nil
	})
	if err != nil {
		return application.Event{}, nil, err
	}

	result := make([]application.Gift, 0, len(gifts))
	for _, gift := range gifts {
		result = append(result, toApplicationGift(gift))
	}
	return toApplicationEvent(started), result, nil
}

func (a *EventStore) GetGiftByGiver(ctx context.Context, eventID, giverID string) (application.Gift, error) {
	stored, err := a.repo.GetGiftByGiver(ctx, eventID, giverID)
	if err != nil {
		return application.Gift{}, err
	}
	return toApplicationGift(stored), nil
}

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		ID:        model.ID,
		Username:  model.Username,
		Name:      model.Name,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

func toPersistenceUser(credentials application.UserCredentials) persistence.User {
	return persistence.User{
		ID:           credentials.User.ID,
		Username:     credentials.User.Username,
		Name:         credentials.User.Name,
		PasswordHash: credentials.PasswordHash,
		CreatedAt:    credentials.User.CreatedAt,
		UpdatedAt:    credentials.User.UpdatedAt,
	}
}

func toApplicationEvent(model persistence.Event) application.Event {
	state := application.StateOpen
	if model.Started {
		state = application.StateStarted
	}
	return application.Event{
		ID:          model.ID,
		Title:       model.Title,
		Description: model.Description,
		Location:    model.Location,
		ModeratorID: model.ModeratorID,
		AttenderIDs: slices.Clone(model.AttenderIDs),
		State:       state,
		StartedAt:   cloneTime(model.StartedAt),
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func toPersistenceEvent(event application.Event) persistence.Event {
	return persistence.Event{
		ID:          event.ID,
		Title:       event.Title,
		Description: event.Description,
		Location:    event.Location,
		ModeratorID: event.ModeratorID,
		AttenderIDs: slices.Clone(event.AttenderIDs),
		Started:     event.State == application.StateStarted,
		StartedAt:   cloneTime(event.StartedAt),
		CreatedAt:   event.CreatedAt,
		UpdatedAt:   event.UpdatedAt,
	}
}

func toApplicationGift(model persistence.Gift) application.Gift {
	return application.Gift(model)
}

func toPersistenceGift(gift application.Gift) persistence.Gift {
	return persistence.Gift(gift)
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
