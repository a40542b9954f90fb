package testfixtures

import (
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/example/secret-santa/internal/application"
	"github.com/example/secret-santa/internal/persistence"
)

var (
	userCounter  atomic.Uint64
	eventCounter atomic.Uint64
)

var referenceTime = time.Date(2024, time.December, 1, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// UserFixture is a deterministic user that can be materialised for
// application or persistence tests.
type UserFixture struct {
	ID           string
	Username     string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// UserOption configures a UserFixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a user with generated id, username and name.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := userCounter.Add(1)
	fixture := UserFixture{
		ID:           fmt.Sprintf("user-%03d", idx),
		Username:     fmt.Sprintf("santa%03d", idx),
		Name:         fmt.Sprintf("User %03d", idx),
		PasswordHash: fmt.Sprintf("hash-%03d", idx),
		CreatedAt:    referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUsername sets the username and derives the id from it.
func WithUsername(username string) UserOption {
	return func(f *UserFixture) {
		f.Username = username
		f.ID = "u-" + username
	}
}

// WithUserName overrides the display name.
func WithUserName(name string) UserOption {
	return func(f *UserFixture) {
		f.Name = name
	}
}

// Application returns the fixture as an application.User.
func (f UserFixture) Application() application.User {
	return application.User{
		ID:        f.ID,
		Username:  f.Username,
		Name:      f.Name,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.CreatedAt,
	}
}

// Credentials returns the fixture as application.UserCredentials.
func (f UserFixture) Credentials() application.UserCredentials {
	return application.UserCredentials{User: f.Application(), PasswordHash: f.PasswordHash}
}

// Principal returns the caller identity of the fixture.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID}
}

// Persistence returns the fixture as a persistence.User.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:           f.ID,
		Username:     f.Username,
		Name:         f.Name,
		PasswordHash: f.PasswordHash,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.CreatedAt,
	}
}

// EventFixture is a deterministic OPEN event.
type EventFixture struct {
	ID          string
	Title       string
	Description string
	Location    string
	ModeratorID string
	AttenderIDs []string
	CreatedAt   time.Time
}

// EventOption configures an EventFixture.
type EventOption func(*EventFixture)

// NewEventFixture returns an event moderated by moderator. The moderator is
// always among the attenders.
func NewEventFixture(moderator UserFixture, opts ...EventOption) EventFixture {
	idx := eventCounter.Add(1)
	fixture := EventFixture{
		ID:          fmt.Sprintf("event-%03d", idx),
		Title:       fmt.Sprintf("Gift exchange %03d", idx),
		Description: "Budget 20 EUR",
		Location:    "Main office",
		ModeratorID: moderator.ID,
		AttenderIDs: []string{moderator.ID},
		CreatedAt:   referenceTime.Add(time.Duration(idx) * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	slices.Sort(fixture.AttenderIDs)
	fixture.AttenderIDs = slices.Compact(fixture.AttenderIDs)
	return fixture
}

// WithEventID overrides the generated event id.
func WithEventID(id string) EventOption {
	return func(f *EventFixture) {
		f.ID = id
	}
}

// WithAttenders adds users to the attender set.
func WithAttenders(users ...UserFixture) EventOption {
	return func(f *EventFixture) {
		for _, u := range users {
			f.AttenderIDs = append(f.AttenderIDs, u.ID)
		}
	}
}

// WithEventCreatedAt overrides the creation time.
func WithEventCreatedAt(t time.Time) EventOption {
	return func(f *EventFixture) {
		f.CreatedAt = t
	}
}

// Application returns the fixture as an OPEN application.Event.
func (f EventFixture) Application() application.Event {
	return application.Event{
		ID:          f.ID,
		Title:       f.Title,
		Description: f.Description,
		Location:    f.Location,
		ModeratorID: f.ModeratorID,
		AttenderIDs: slices.Clone(f.AttenderIDs),
		State:       application.StateOpen,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.CreatedAt,
	}
}

// Persistence returns the fixture as an open persistence.Event.
func (f EventFixture) Persistence() persistence.Event {
	return persistence.Event{
		ID:          f.ID,
		Title:       f.Title,
		Description: f.Description,
		Location:    f.Location,
		ModeratorID: f.ModeratorID,
		AttenderIDs: slices.Clone(f.AttenderIDs),
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.CreatedAt,
	}
}

// Input returns the fixture as create input, without the implicit moderator.
func (f EventFixture) Input() application.EventInput {
	attenders := slices.DeleteFunc(slices.Clone(f.AttenderIDs), func(id string) bool { return id == f.ModeratorID })
	return application.EventInput{
		Title:       f.Title,
		Description: f.Description,
		Location:    f.Location,
		AttenderIDs: attenders,
	}
}
