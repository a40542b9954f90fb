package persistence

import (
	"context"
	"time"
)

// UserRepository exposes storage operations for user accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	ListUsersByIDs(ctx context.Context, ids []string) ([]User, error)
}

// AssignFunc computes the gifts for an event whose start has just been claimed.
// It receives the event with its frozen attender set. Returning an error aborts
// the start and leaves the event open.
type AssignFunc func(event Event) ([]Gift, error)

// EventRepository stores events, their attenders and their gifts.
//
// Methods that change the attender set or start an event only succeed while
// the event is open; otherwise they return ErrConflict.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) error
	// UpdateEvent overwrites title, description, location and UpdatedAt. With
	// replaceAttenders set it also swaps in event.AttenderIDs, which requires
	// the event to be open. Both changes commit together or not at all.
	UpdateEvent(ctx context.Context, event Event, replaceAttenders bool) error
	GetEvent(ctx context.Context, id string) (Event, error)
	ListEventsForAttender(ctx context.Context, userID string) ([]Event, error)
	DeleteEvent(ctx context.Context, id string) error

	AddAttender(ctx context.Context, eventID, userID string, updatedAt time.Time) error

	// StartEvent atomically moves the event from open to started, calls assign
	// once with the claimed event and stores the returned gifts. Either all of
	// it is committed or none of it is.
	StartEvent(ctx context.Context, eventID string, startedAt time.Time, assign AssignFunc) (Event, []Gift, error)
	GetGiftByGiver(ctx context.Context, eventID, giverID string) (Gift, error)
	ListGifts(ctx context.Context, eventID string) ([]Gift, error)
}
