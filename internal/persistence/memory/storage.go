// Package memory provides an in-process implementation of the persistence
// repositories. It mirrors the constraints of the SQLite schema and is used
// for tests and for running the service without a database file.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/secret-santa/internal/persistence"
)

// Storage keeps users, events and gifts in maps guarded by a single mutex.
type Storage struct {
	mu     sync.RWMutex
	users  map[string]persistence.User
	events map[string]persistence.Event
	gifts  map[string][]persistence.Gift
}

var (
	_ persistence.UserRepository  = (*Storage)(nil)
	_ persistence.EventRepository = (*Storage)(nil)
)

// New returns an empty Storage.
func New() *Storage {
	return &Storage{
		users:  make(map[string]persistence.User),
		events: make(map[string]persistence.Event),
		gifts:  make(map[string][]persistence.Gift),
	}
}

// Ping always succeeds.
func (s *Storage) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Storage) Close() error {
	return nil
}

// --- UserRepository implementation ---

// CreateUser stores a new user.
func (s *Storage) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" || user.Username == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("%w: user %s", persistence.ErrDuplicate, user.ID)
	}
	for _, existing := range s.users {
		if existing.Username == user.Username {
			return fmt.Errorf("%w: username %s", persistence.ErrDuplicate, user.Username)
		}
	}

	s.users[user.ID] = user
	return nil
}

// UpdateUser overwrites name, password hash and UpdatedAt of an existing user.
func (s *Storage) UpdateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	existing.Name = user.Name
	existing.PasswordHash = user.PasswordHash
	existing.UpdatedAt = user.UpdatedAt
	s.users[user.ID] = existing
	return nil
}

// GetUser retrieves a user by ID.
func (s *Storage) GetUser(ctx context.Context, id string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Username == username {
			return user, nil
		}
	}
	return persistence.User{}, persistence.ErrNotFound
}

// ListUsersByIDs returns the known users among ids ordered by ID.
func (s *Storage) ListUsersByIDs(ctx context.Context, ids []string) ([]persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []persistence.User
	for _, id := range normalizeIDs(ids) {
		if user, ok := s.users[id]; ok {
			users = append(users, user)
		}
	}
	return users, nil
}

// --- EventRepository implementation ---

// CreateEvent stores a new event with its attenders.
func (s *Storage) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" || event.ModeratorID == "" {
		return persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; ok {
		return fmt.Errorf("%w: event %s", persistence.ErrDuplicate, event.ID)
	}
	attenders := normalizeIDs(event.AttenderIDs)
	if err := s.requireUsersLocked(append([]string{event.ModeratorID}, attenders...)); err != nil {
		return err
	}

	event.AttenderIDs = attenders
	s.events[event.ID] = cloneEvent(event)
	return nil
}

// UpdateEvent overwrites title, description, location and UpdatedAt, and the
// attender set when replaceAttenders is true.
func (s *Storage) UpdateEvent(ctx context.Context, event persistence.Event, replaceAttenders bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.events[event.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if replaceAttenders {
		if existing.Started {
			return fmt.Errorf("%w: event %s already started", persistence.ErrConflict, event.ID)
		}
		attenders := normalizeIDs(event.AttenderIDs)
		if err := s.requireUsersLocked(attenders); err != nil {
			return err
		}
		existing.AttenderIDs = attenders
	}
	existing.Title = event.Title
	existing.Description = event.Description
	existing.Location = event.Location
	existing.UpdatedAt = event.UpdatedAt
	s.events[event.ID] = existing
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Storage) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[id]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return cloneEvent(event), nil
}

// ListEventsForAttender returns the user's events, newest first.
func (s *Storage) ListEventsForAttender(ctx context.Context, userID string) ([]persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []persistence.Event
	for _, event := range s.events {
		if slices.Contains(event.AttenderIDs, userID) {
			events = append(events, cloneEvent(event))
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	return events, nil
}

// DeleteEvent removes an event and its gifts.
func (s *Storage) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.events, id)
	delete(s.gifts, id)
	return nil
}

// AddAttender adds a user to an open event. Re-adding is a no-op.
func (s *Storage) AddAttender(ctx context.Context, eventID, userID string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, err := s.openEventLocked(eventID)
	if err != nil {
		return err
	}
	if err := s.requireUsersLocked([]string{userID}); err != nil {
		return err
	}

	event.AttenderIDs = normalizeIDs(append(event.AttenderIDs, userID))
	event.UpdatedAt = updatedAt
	s.events[eventID] = event
	return nil
}

// StartEvent marks an open event started and stores the gifts returned by
// assign. The write lock is held for the whole call, so assign must not call
// back into the Storage.
func (s *Storage) StartEvent(ctx context.Context, eventID string, startedAt time.Time, assign persistence.AssignFunc) (persistence.Event, []persistence.Gift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, err := s.openEventLocked(eventID)
	if err != nil {
		return persistence.Event{}, nil, err
	}

	claimed := cloneEvent(event)
	claimed.Started = true
	claimed.StartedAt = &startedAt
	claimed.UpdatedAt = startedAt

	gifts, err := assign(cloneEvent(claimed))
	if err != nil {
		return persistence.Event{}, nil, err
	}
	if err := s.checkGiftsLocked(eventID, gifts); err != nil {
		return persistence.Event{}, nil, err
	}

	s.events[eventID] = claimed
	s.gifts[eventID] = slices.Clone(gifts)
	return cloneEvent(claimed), slices.Clone(gifts), nil
}

// GetGiftByGiver returns the gift given by giverID in the event.
func (s *Storage) GetGiftByGiver(ctx context.Context, eventID, giverID string) (persistence.Gift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, gift := range s.gifts[eventID] {
		if gift.GiverID == giverID {
			return gift, nil
		}
	}
	return persistence.Gift{}, persistence.ErrNotFound
}

// ListGifts returns the event's gifts ordered by giver.
func (s *Storage) ListGifts(ctx context.Context, eventID string) ([]persistence.Gift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	gifts := slices.Clone(s.gifts[eventID])
	sort.Slice(gifts, func(i, j int) bool { return gifts[i].GiverID < gifts[j].GiverID })
	return gifts, nil
}

func (s *Storage) openEventLocked(eventID string) (persistence.Event, error) {
	event, ok := s.events[eventID]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	if event.Started {
		return persistence.Event{}, fmt.Errorf("%w: event %s already started", persistence.ErrConflict, eventID)
	}
	return cloneEvent(event), nil
}

func (s *Storage) requireUsersLocked(ids []string) error {
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: empty user id", persistence.ErrConstraintViolation)
		}
		if _, ok := s.users[id]; !ok {
			return fmt.Errorf("%w: unknown user %s", persistence.ErrConstraintViolation, id)
		}
	}
	return nil
}

func (s *Storage) checkGiftsLocked(eventID string, gifts []persistence.Gift) error {
	givers := make(map[string]struct{}, len(gifts))
	receivers := make(map[string]struct{}, len(gifts))
	for _, gift := range gifts {
		if gift.ID == "" || gift.EventID != eventID || gift.GiverID == gift.ReceiverID {
			return fmt.Errorf("%w: invalid gift %+v", persistence.ErrConstraintViolation, gift)
		}
		if err := s.requireUsersLocked([]string{gift.GiverID, gift.ReceiverID}); err != nil {
			return err
		}
		if _, dup := givers[gift.GiverID]; dup {
			return fmt.Errorf("%w: giver %s", persistence.ErrDuplicate, gift.GiverID)
		}
		if _, dup := receivers[gift.ReceiverID]; dup {
			return fmt.Errorf("%w: receiver %s", persistence.ErrDuplicate, gift.ReceiverID)
		}
		givers[gift.GiverID] = struct{}{}
		receivers[gift.ReceiverID] = struct{}{}
	}
	return nil
}

func normalizeIDs(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func cloneEvent(event persistence.Event) persistence.Event {
	event.AttenderIDs = slices.Clone(event.AttenderIDs)
	if event.StartedAt != nil {
		ts := *event.StartedAt
		event.StartedAt = &ts
	}
	return event
}
