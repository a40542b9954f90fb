package application

import (
	"context"
	"slices"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/secret-santa/internal/matching"
	"github.com/example/secret-santa/internal/persistence"
)

var testNow = time.Date(2024, time.December, 1, 9, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return prefix + "-" + strconv.FormatInt(n.Add(1), 10)
	}
}

type userRepoStub struct {
	mu    sync.Mutex
	users map[string]UserCredentials
}

func newUserRepoStub(users ...User) *userRepoStub {
	repo := &userRepoStub{users: make(map[string]UserCredentials)}
	for _, u := range users {
		repo.users[u.ID] = UserCredentials{User: u, PasswordHash: "hash"}
	}
	return repo
}

func (r *userRepoStub) CreateUser(_ context.Context, credentials UserCredentials) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.User.Username == credentials.User.Username || existing.User.ID == credentials.User.ID {
			return User{}, persistence.ErrDuplicate
		}
	}
	r.users[credentials.User.ID] = credentials
	return credentials.User, nil
}

func (r *userRepoStub) GetUser(_ context.Context, id string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	creds, ok := r.users[id]
	if !ok {
		return User{}, persistence.ErrNotFound
	}
	return creds.User, nil
}

func (r *userRepoStub) GetUserByUsername(ctx context.Context, username string) (User, error) {
	creds, err := r.GetCredentials(ctx, username)
	return creds.User, err
}

func (r *userRepoStub) GetCredentials(_ context.Context, username string) (UserCredentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, creds := range r.users {
		if creds.User.Username == username {
			return creds, nil
		}
	}
	return UserCredentials{}, persistence.ErrNotFound
}

func (r *userRepoStub) UpdateCredentials(_ context.Context, credentials UserCredentials) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[credentials.User.ID]; !ok {
		return User{}, persistence.ErrNotFound
	}
	r.users[credentials.User.ID] = credentials
	return credentials.User, nil
}

func (r *userRepoStub) ListUsersByIDs(_ context.Context, ids []string) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []User
	for _, id := range ids {
		if creds, ok := r.users[id]; ok {
			out = append(out, creds.User)
		}
	}
	return out, nil
}

// eventRepoStub mirrors the store contract: attender changes and starts
// compare-and-swap on the started flag under one lock.
type eventRepoStub struct {
	mu     sync.Mutex
	events map[string]Event
	gifts  map[string][]Gift

	startCalls  atomic.Int32
	giftReads   atomic.Int32
	updateCalls atomic.Int32
	// updateErr fails UpdateEvent before anything is written.
	updateErr error
	// dropGiftFor removes the gift of this giver after a start, simulating corruption.
	dropGiftFor string
}

func newEventRepoStub() *eventRepoStub {
	return &eventRepoStub{events: make(map[string]Event), gifts: make(map[string][]Gift)}
}

func (r *eventRepoStub) put(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[event.ID] = cloneTestEvent(event)
}

func (r *eventRepoStub) CreateEvent(_ context.Context, event Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.events[event.ID]; exists {
		return Event{}, persistence.ErrDuplicate
	}
	r.events[event.ID] = cloneTestEvent(event)
	return cloneTestEvent(event), nil
}

func (r *eventRepoStub) GetEvent(_ context.Context, id string) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok {
		return Event{}, persistence.ErrNotFound
	}
	return cloneTestEvent(event), nil
}

func (r *eventRepoStub) UpdateEvent(_ context.Context, event Event, replaceAttenders bool) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls.Add(1)
	if r.updateErr != nil {
		return Event{}, r.updateErr
	}
	existing, ok := r.events[event.ID]
	if !ok {
		return Event{}, persistence.ErrNotFound
	}
	if replaceAttenders {
		if existing.State != StateOpen {
			return Event{}, persistence.ErrConflict
		}
		existing.AttenderIDs = slices.Clone(event.AttenderIDs)
	}
	existing.Title = event.Title
	existing.Description = event.Description
	existing.Location = event.Location
	existing.UpdatedAt = event.UpdatedAt
	r.events[event.ID] = existing
	return cloneTestEvent(existing), nil
}

func (r *eventRepoStub) DeleteEvent(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(r.events, id)
	delete(r.gifts, id)
	return nil
}

func (r *eventRepoStub) ListEventsForAttender(_ context.Context, userID string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, event := range r.events {
		if event.IsAttender(userID) {
			out = append(out, cloneTestEvent(event))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *eventRepoStub) AddAttender(_ context.Context, eventID, userID string, at time.Time) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[eventID]
	if !ok {
		return Event{}, persistence.ErrNotFound
	}
	if event.State != StateOpen {
		return Event{}, persistence.ErrConflict
	}
	if !slices.Contains(event.AttenderIDs, userID) {
		event.AttenderIDs = append(event.AttenderIDs, userID)
		slices.Sort(event.AttenderIDs)
	}
	event.UpdatedAt = at
	r.events[eventID] = event
	return cloneTestEvent(event), nil
}

func (r *eventRepoStub) StartEvent(_ context.Context, eventID string, startedAt time.Time, assign AssignFunc) (Event, []Gift, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startCalls.Add(1)

	event, ok := r.events[eventID]
	if !ok {
		return Event{}, nil, persistence.ErrNotFound
	}
	if event.State != StateOpen {
		return Event{}, nil, persistence.ErrConflict
	}

	claimed := cloneTestEvent(event)
	claimed.State = StateStarted
	claimed.StartedAt = &startedAt
	claimed.UpdatedAt = startedAt

	gifts, err := assign(claimed)
	if err != nil {
		return Event{}, nil, err
	}

	r.events[eventID] = claimed
	stored := slices.Clone(gifts)
	if r.dropGiftFor != "" {
		stored = slices.DeleteFunc(stored, func(g Gift) bool { return g.GiverID == r.dropGiftFor })
	}
	r.gifts[eventID] = stored
	return cloneTestEvent(claimed), slices.Clone(gifts), nil
}

func (r *eventRepoStub) GetGiftByGiver(_ context.Context, eventID, giverID string) (Gift, error) {
	r.giftReads.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, gift := range r.gifts[eventID] {
		if gift.GiverID == giverID {
			return gift, nil
		}
	}
	return Gift{}, persistence.ErrNotFound
}

func (r *eventRepoStub) storedGifts(eventID string) []Gift {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.gifts[eventID])
}

func cloneTestEvent(event Event) Event {
	event.AttenderIDs = slices.Clone(event.AttenderIDs)
	if event.StartedAt != nil {
		startedAt := *event.StartedAt
		event.StartedAt = &startedAt
	}
	return event
}

type countingMatcher struct {
	calls atomic.Int32
	inner Matcher
	pairs []matching.Pair
	err   error
}

func (m *countingMatcher) Assign(participants []string) ([]matching.Pair, error) {
	m.calls.Add(1)
	if m.pairs != nil || m.err != nil {
		return m.pairs, m.err
	}
	return m.inner.Assign(participants)
}

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []Notification
	err           error
}

func (n *recordingNotifier) Notify(_ context.Context, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
	return n.err
}

func (n *recordingNotifier) recorded() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.notifications)
}

// plainHasher keeps tests fast; argon2id is exercised in password_test.go.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain$" + password, nil }

func (plainHasher) Verify(encoded, password string) error {
	if encoded != "plain$"+password {
		return ErrPasswordMismatch
	}
	return nil
}
