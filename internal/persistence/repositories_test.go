package persistence_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/secret-santa/internal/persistence"
	"github.com/example/secret-santa/internal/testfixtures"
)

// Every backend runs through the same scenarios so the in-memory storage
// cannot drift from the SQLite schema.

func seed(t *testing.T, stores testfixtures.Stores, names ...string) []testfixtures.UserFixture {
	t.Helper()
	users := make([]testfixtures.UserFixture, len(names))
	for i, name := range names {
		users[i] = testfixtures.NewUserFixture(testfixtures.WithUsername(name))
		if err := stores.Users.CreateUser(context.Background(), users[i].Persistence()); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	return users
}

func giftsFor(event persistence.Event, at time.Time) persistence.AssignFunc {
	return func(started persistence.Event) ([]persistence.Gift, error) {
		ids := started.AttenderIDs
		gifts := make([]persistence.Gift, len(ids))
		for i := range ids {
			gifts[i] = persistence.Gift{
				ID:         event.ID + "-gift-" + ids[i],
				EventID:    event.ID,
				GiverID:    ids[i],
				ReceiverID: ids[(i+1)%len(ids)],
				CreatedAt:  at,
			}
		}
		return gifts, nil
	}
}

func TestUserRepositoryContract(t *testing.T) {
	for _, stores := range testfixtures.AllStores(t) {
		stores := stores
		t.Run(stores.Name, func(t *testing.T) {
			ctx := context.Background()
			users := seed(t, stores, "alice", "bob")

			got, err := stores.Users.GetUserByUsername(ctx, "alice")
			if err != nil {
				t.Fatalf("GetUserByUsername: %v", err)
			}
			if got.ID != users[0].ID || got.PasswordHash != users[0].PasswordHash {
				t.Fatalf("unexpected user: %+v", got)
			}

			duplicate := testfixtures.NewUserFixture(testfixtures.WithUsername("alice"))
			duplicate.ID = "u-other"
			if err := stores.Users.CreateUser(ctx, duplicate.Persistence()); !errors.Is(err, persistence.ErrDuplicate) {
				t.Fatalf("expected ErrDuplicate for taken username, got %v", err)
			}

			updated := users[1].Persistence()
			updated.Name = "Robert"
			updated.PasswordHash = "rehashed"
			updated.UpdatedAt = updated.UpdatedAt.Add(time.Hour)
			if err := stores.Users.UpdateUser(ctx, updated); err != nil {
				t.Fatalf("UpdateUser: %v", err)
			}
			reloaded, err := stores.Users.GetUser(ctx, users[1].ID)
			if err != nil {
				t.Fatalf("GetUser: %v", err)
			}
			if reloaded.Name != "Robert" || reloaded.PasswordHash != "rehashed" || reloaded.Username != "bob" {
				t.Fatalf("update not applied: %+v", reloaded)
			}

			listed, err := stores.Users.ListUsersByIDs(ctx, []string{"u-bob", "u-missing", "u-alice", "u-bob"})
			if err != nil {
				t.Fatalf("ListUsersByIDs: %v", err)
			}
			if len(listed) != 2 || listed[0].ID != "u-alice" || listed[1].ID != "u-bob" {
				t.Fatalf("expected alice and bob ordered by id, got %+v", listed)
			}

			if _, err := stores.Users.GetUser(ctx, "u-missing"); !errors.Is(err, persistence.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestEventRepositoryContract(t *testing.T) {
	for _, stores := range testfixtures.AllStores(t) {
		stores := stores
		t.Run(stores.Name, func(t *testing.T) {
			ctx := context.Background()
			users := seed(t, stores, "alice", "bob", "carol", "dave")
			alice, bob, carol, dave := users[0], users[1], users[2], users[3]

			event := testfixtures.NewEventFixture(alice, testfixtures.WithAttenders(bob)).Persistence()
			if err := stores.Events.CreateEvent(ctx, event); err != nil {
				t.Fatalf("CreateEvent: %v", err)
			}

			stranger := testfixtures.NewEventFixture(alice, testfixtures.WithAttenders(testfixtures.UserFixture{ID: "u-ghost"})).Persistence()
			if err := stores.Events.CreateEvent(ctx, stranger); !errors.Is(err, persistence.ErrConstraintViolation) {
				t.Fatalf("expected ErrConstraintViolation for unknown attender, got %v", err)
			}

			at := event.CreatedAt.Add(time.Minute)
			if err := stores.Events.AddAttender(ctx, event.ID, carol.ID, at); err != nil {
				t.Fatalf("AddAttender: %v", err)
			}
			if err := stores.Events.AddAttender(ctx, event.ID, carol.ID, at); err != nil {
				t.Fatalf("re-adding an attender should be a no-op: %v", err)
			}
			if err := stores.Events.AddAttender(ctx, "missing", carol.ID, at); !errors.Is(err, persistence.ErrNotFound) {
				t.Fatalf("expected ErrNotFound for unknown event, got %v", err)
			}

			loaded, err := stores.Events.GetEvent(ctx, event.ID)
			if err != nil {
				t.Fatalf("GetEvent: %v", err)
			}
			if want := []string{alice.ID, bob.ID, carol.ID}; !slices.Equal(loaded.AttenderIDs, want) {
				t.Fatalf("expected attenders %v, got %v", want, loaded.AttenderIDs)
			}

			replaced := event
			replaced.AttenderIDs = []string{alice.ID, dave.ID, bob.ID}
			replaced.UpdatedAt = at
			if err := stores.Events.UpdateEvent(ctx, replaced, true); err != nil {
				t.Fatalf("UpdateEvent with attenders: %v", err)
			}
			listed, err := stores.Events.ListEventsForAttender(ctx, dave.ID)
			if err != nil {
				t.Fatalf("ListEventsForAttender: %v", err)
			}
			if len(listed) != 1 || listed[0].ID != event.ID {
				t.Fatalf("expected dave to see the event, got %+v", listed)
			}
			if listed, _ := stores.Events.ListEventsForAttender(ctx, carol.ID); len(listed) != 0 {
				t.Fatalf("expected carol to be removed, got %+v", listed)
			}

			startedAt := at.Add(time.Hour)
			started, gifts, err := stores.Events.StartEvent(ctx, event.ID, startedAt, giftsFor(event, startedAt))
			if err != nil {
				t.Fatalf("StartEvent: %v", err)
			}
			if !started.Started || started.StartedAt == nil || !started.StartedAt.Equal(startedAt) {
				t.Fatalf("expected started event, got %+v", started)
			}
			if len(gifts) != 3 {
				t.Fatalf("expected 3 gifts, got %d", len(gifts))
			}

			stored, err := stores.Events.ListGifts(ctx, event.ID)
			if err != nil {
				t.Fatalf("ListGifts: %v", err)
			}
			if len(stored) != 3 || stored[0].GiverID != alice.ID {
				t.Fatalf("expected gifts ordered by giver, got %+v", stored)
			}
			gift, err := stores.Events.GetGiftByGiver(ctx, event.ID, dave.ID)
			if err != nil {
				t.Fatalf("GetGiftByGiver: %v", err)
			}
			if gift.ReceiverID != alice.ID {
				t.Fatalf("expected dave to give to alice, got %+v", gift)
			}

			if _, _, err := stores.Events.StartEvent(ctx, event.ID, startedAt, giftsFor(event, startedAt)); !errors.Is(err, persistence.ErrConflict) {
				t.Fatalf("expected ErrConflict on second start, got %v", err)
			}
			if err := stores.Events.AddAttender(ctx, event.ID, carol.ID, startedAt); !errors.Is(err, persistence.ErrConflict) {
				t.Fatalf("expected ErrConflict adding to a started event, got %v", err)
			}
			replaced.AttenderIDs = []string{alice.ID}
			if err := stores.Events.UpdateEvent(ctx, replaced, true); !errors.Is(err, persistence.ErrConflict) {
				t.Fatalf("expected ErrConflict replacing attenders of a started event, got %v", err)
			}

			if err := stores.Events.DeleteEvent(ctx, event.ID); err != nil {
				t.Fatalf("DeleteEvent: %v", err)
			}
			if _, err := stores.Events.GetGiftByGiver(ctx, event.ID, dave.ID); !errors.Is(err, persistence.ErrNotFound) {
				t.Fatalf("expected gifts to be removed with the event, got %v", err)
			}
			if err := stores.Events.DeleteEvent(ctx, event.ID); !errors.Is(err, persistence.ErrNotFound) {
				t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
			}
		})
	}
}

func TestEventRepositoryUpdateIsAtomic(t *testing.T) {
	for _, stores := range testfixtures.AllStores(t) {
		stores := stores
		t.Run(stores.Name, func(t *testing.T) {
			ctx := context.Background()
			users := seed(t, stores, "alice", "bob", "carol")
			alice, bob, carol := users[0], users[1], users[2]
			event := testfixtures.NewEventFixture(alice, testfixtures.WithAttenders(bob)).Persistence()
			if err := stores.Events.CreateEvent(ctx, event); err != nil {
				t.Fatalf("CreateEvent: %v", err)
			}

			unchanged := func(t *testing.T) {
				t.Helper()
				reloaded, err := stores.Events.GetEvent(ctx, event.ID)
				if err != nil {
					t.Fatalf("GetEvent: %v", err)
				}
				if reloaded.Title != event.Title || reloaded.Location != event.Location {
					t.Fatalf("failed update must not change metadata, got %+v", reloaded)
				}
				if want := []string{alice.ID, bob.ID}; !slices.Equal(reloaded.AttenderIDs, want) {
					t.Fatalf("failed update must not change attenders, got %v", reloaded.AttenderIDs)
				}
			}

			update := event
			update.Title = "Renamed"
			update.Location = "Garden"
			update.AttenderIDs = []string{alice.ID, carol.ID, "u-ghost"}
			update.UpdatedAt = event.CreatedAt.Add(time.Minute)
			if err := stores.Events.UpdateEvent(ctx, update, true); !errors.Is(err, persistence.ErrConstraintViolation) {
				t.Fatalf("expected ErrConstraintViolation for unknown attender, got %v", err)
			}
			unchanged(t)

			update.ID = "missing"
			update.AttenderIDs = []string{alice.ID, carol.ID}
			if err := stores.Events.UpdateEvent(ctx, update, true); !errors.Is(err, persistence.ErrNotFound) {
				t.Fatalf("expected ErrNotFound for a missing event, got %v", err)
			}

			update.ID = event.ID
			if err := stores.Events.UpdateEvent(ctx, update, true); err != nil {
				t.Fatalf("UpdateEvent: %v", err)
			}
			reloaded, err := stores.Events.GetEvent(ctx, event.ID)
			if err != nil {
				t.Fatalf("GetEvent: %v", err)
			}
			if reloaded.Title != "Renamed" || !slices.Equal(reloaded.AttenderIDs, []string{alice.ID, carol.ID}) {
				t.Fatalf("expected metadata and attenders together, got %+v", reloaded)
			}

			update.Title = "Metadata only"
			update.AttenderIDs = nil
			if err := stores.Events.UpdateEvent(ctx, update, false); err != nil {
				t.Fatalf("UpdateEvent without attenders: %v", err)
			}
			reloaded, _ = stores.Events.GetEvent(ctx, event.ID)
			if reloaded.Title != "Metadata only" || !slices.Equal(reloaded.AttenderIDs, []string{alice.ID, carol.ID}) {
				t.Fatalf("expected attenders to be kept, got %+v", reloaded)
			}
		})
	}
}

func TestEventRepositoryStartRollsBack(t *testing.T) {
	for _, stores := range testfixtures.AllStores(t) {
		stores := stores
		t.Run(stores.Name, func(t *testing.T) {
			ctx := context.Background()
			users := seed(t, stores, "alice", "bob")
			event := testfixtures.NewEventFixture(users[0], testfixtures.WithAttenders(users[1])).Persistence()
			if err := stores.Events.CreateEvent(ctx, event); err != nil {
				t.Fatalf("CreateEvent: %v", err)
			}

			boom := errors.New("draw failed")
			_, _, err := stores.Events.StartEvent(ctx, event.ID, event.CreatedAt, func(persistence.Event) ([]persistence.Gift, error) {
				return nil, boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("expected assign error, got %v", err)
			}

			selfGift := func(persistence.Event) ([]persistence.Gift, error) {
				return []persistence.Gift{{ID: "g1", EventID: event.ID, GiverID: users[0].ID, ReceiverID: users[0].ID, CreatedAt: event.CreatedAt}}, nil
			}
			if _, _, err := stores.Events.StartEvent(ctx, event.ID, event.CreatedAt, selfGift); !errors.Is(err, persistence.ErrConstraintViolation) {
				t.Fatalf("expected ErrConstraintViolation for a self gift, got %v", err)
			}

			reloaded, err := stores.Events.GetEvent(ctx, event.ID)
			if err != nil {
				t.Fatalf("GetEvent: %v", err)
			}
			if reloaded.Started {
				t.Fatal("failed start must leave the event open")
			}
			if gifts, _ := stores.Events.ListGifts(ctx, event.ID); len(gifts) != 0 {
				t.Fatalf("failed start must not store gifts, got %+v", gifts)
			}
		})
	}
}

func TestEventRepositoryConcurrentStart(t *testing.T) {
	for _, stores := range testfixtures.AllStores(t) {
		stores := stores
		t.Run(stores.Name, func(t *testing.T) {
			ctx := context.Background()
			users := seed(t, stores, "alice", "bob", "carol")
			event := testfixtures.NewEventFixture(users[0], testfixtures.WithAttenders(users[1], users[2])).Persistence()
			if err := stores.Events.CreateEvent(ctx, event); err != nil {
				t.Fatalf("CreateEvent: %v", err)
			}

			var (
				wg        sync.WaitGroup
				assigned  atomic.Int32
				succeeded atomic.Int32
				conflicts atomic.Int32
			)
			assign := giftsFor(event, event.CreatedAt)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _, err := stores.Events.StartEvent(ctx, event.ID, event.CreatedAt, func(e persistence.Event) ([]persistence.Gift, error) {
						assigned.Add(1)
						return assign(e)
					})
					switch {
					case err == nil:
						succeeded.Add(1)
					case errors.Is(err, persistence.ErrConflict):
						conflicts.Add(1)
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			wg.Wait()

			if succeeded.Load() != 1 || conflicts.Load() != 7 {
				t.Fatalf("expected 1 success and 7 conflicts, got %d and %d", succeeded.Load(), conflicts.Load())
			}
			if assigned.Load() != 1 {
				t.Fatalf("expected the draw to run once, ran %d times", assigned.Load())
			}
		})
	}
}
