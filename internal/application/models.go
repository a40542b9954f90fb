package application

import (
	"slices"
	"time"
)

// Principal identifies the user invoking a service method.
type Principal struct {
	UserID string
}

// EventState is the lifecycle state of an event.
type EventState string

const (
	// StateOpen accepts attender changes and can be started.
	StateOpen EventState = "OPEN"
	// StateStarted has a frozen attender set and stored gifts. It is terminal.
	StateStarted EventState = "STARTED"
)

// User represents a registered participant.
type User struct {
	ID        string
	Username  string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserCredentials pairs a user with the stored password hash.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// Event represents a Secret Santa gathering.
type Event struct {
	ID          string
	Title       string
	Description string
	Location    string
	ModeratorID string
	AttenderIDs []string
	State       EventState
	StartedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsModerator reports whether userID moderates the event.
func (e Event) IsModerator(userID string) bool {
	return userID != "" && e.ModeratorID == userID
}

// IsAttender reports whether userID takes part in the event.
func (e Event) IsAttender(userID string) bool {
	return userID != "" && slices.Contains(e.AttenderIDs, userID)
}

// Gift is a single giver to receiver assignment.
type Gift struct {
	ID         string
	EventID    string
	GiverID    string
	ReceiverID string
	CreatedAt  time.Time
}

// GiftAssignment is what a giver learns about their gift.
type GiftAssignment struct {
	EventID          string
	GiverID          string
	ReceiverID       string
	ReceiverUsername string
	ReceiverName     string
}

// StartResult describes a successfully started event.
type StartResult struct {
	Event     Event
	GiftCount int
}

// EventInput captures caller provided event fields.
type EventInput struct {
	Title       string   `label:"title" validate:"required,max=128"`
	Description string   `label:"description"`
	Location    string   `label:"location" validate:"required,max=128"`
	AttenderIDs []string `label:"attenders" validate:"dive,required"`
}

// CreateEventParams wraps the data required to create an event.
type CreateEventParams struct {
	Principal Principal
	Input     EventInput
}

// UpdateEventParams wraps the data required to update an event. The attender
// set is only replaced when ReplaceAttenders is set.
type UpdateEventParams struct {
	Principal        Principal
	EventID          string
	Input            EventInput
	ReplaceAttenders bool
}

// EventPatch captures a partial event update. Nil fields keep the stored value.
type EventPatch struct {
	Title       *string
	Description *string
	Location    *string
	AttenderIDs *[]string
}

// merge fills the omitted fields from existing.
func (p EventPatch) merge(existing Event) EventInput {
	input := EventInput{
		Title:       existing.Title,
		Description: existing.Description,
		Location:    existing.Location,
	}
	if p.Title != nil {
		input.Title = *p.Title
	}
	if p.Description != nil {
		input.Description = *p.Description
	}
	if p.Location != nil {
		input.Location = *p.Location
	}
	if p.AttenderIDs != nil {
		input.AttenderIDs = append([]string(nil), (*p.AttenderIDs)...)
	}
	return input
}

// PatchEventParams wraps the data required to partially update an event.
type PatchEventParams struct {
	Principal Principal
	EventID   string
	Patch     EventPatch
}

// RegisterUserInput captures the fields of a new account.
type RegisterUserInput struct {
	Username string `label:"username" validate:"required,max=255,excludesall=/"`
	Name     string `label:"name" validate:"max=255"`
	Password string `label:"password" validate:"required,min=5"`
}

// UpdateProfileInput captures optional profile changes.
type UpdateProfileInput struct {
	Name     *string `label:"name" validate:"omitempty,max=255"`
	Password *string `label:"password" validate:"omitempty,min=5"`
}

// UpdateProfileParams wraps the data required to update a profile.
type UpdateProfileParams struct {
	Principal Principal
	Username  string
	Input     UpdateProfileInput
}

// NotificationKind names a lifecycle notification.
type NotificationKind string

const (
	NotificationEventStarted  NotificationKind = "event.started"
	NotificationAttenderAdded NotificationKind = "event.attender_added"
)

// Notification is published after a lifecycle change. It never carries gift pairs.
type Notification struct {
	Kind        NotificationKind
	EventID     string
	ActorID     string
	AttenderIDs []string
	OccurredAt  time.Time
}
