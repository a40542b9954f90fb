package testfixtures

import (
	"slices"
	"sync"
	"testing"
	"time"
)

func TestClock(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected reference time, got %v", clock.Now())
	}

	nowFn := clock.NowFunc()
	advanced := clock.Advance(36 * time.Hour)
	if !advanced.Equal(ReferenceTime().Add(36 * time.Hour)) {
		t.Fatalf("advance returned %v", advanced)
	}
	if got := nowFn(); !got.Equal(advanced) {
		t.Fatalf("NowFunc did not follow the clock: %v", got)
	}

	var nilClock *Clock
	if nilClock.NowFunc() == nil {
		t.Fatal("expected wall clock fallback for nil clock")
	}
}

func TestIDGenerator(t *testing.T) {
	gen := NewIDGenerator("gift")
	if first, second := gen.Next(), gen.Next(); first != "gift-1" || second != "gift-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = gen.Next()
		}()
	}
	wg.Wait()
	if gen.Issued() != 52 {
		t.Fatalf("expected 52 issued ids, got %d", gen.Issued())
	}

	if id := NewIDGenerator("").Next(); id != "id-1" {
		t.Fatalf("expected default prefix, got %q", id)
	}
}

func TestEventFixtureIncludesModerator(t *testing.T) {
	alice := NewUserFixture(WithUsername("alice"))
	bob := NewUserFixture(WithUsername("bob"))

	event := NewEventFixture(alice, WithAttenders(bob, alice))

	if want := []string{"u-alice", "u-bob"}; !slices.Equal(event.AttenderIDs, want) {
		t.Fatalf("expected attenders %v, got %v", want, event.AttenderIDs)
	}
	if input := event.Input(); !slices.Equal(input.AttenderIDs, []string{"u-bob"}) {
		t.Fatalf("expected input without moderator, got %v", input.AttenderIDs)
	}
	if app := event.Application(); !app.IsModerator("u-alice") || !app.IsAttender("u-bob") {
		t.Fatalf("unexpected application event: %+v", app)
	}
	if model := event.Persistence(); model.Started {
		t.Fatal("fixture events must be open")
	}
}
