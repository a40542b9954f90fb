package persistence

import "time"

// User represents a registered participant account.
type User struct {
	ID           string
	Username     string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Event represents a Secret Santa gathering and its attender set.
type Event struct {
	ID          string
	Title       string
	Description string
	Location    string
	ModeratorID string
	AttenderIDs []string
	Started     bool
	StartedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Gift is one giver to receiver assignment produced when an event starts.
type Gift struct {
	ID         string
	EventID    string
	GiverID    string
	ReceiverID string
	CreatedAt  time.Time
}
