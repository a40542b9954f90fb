package matching

import (
	"errors"
	"fmt"
)

// ErrInvalidAssignment indicates a pair list that is not a single cycle over the participants.
var ErrInvalidAssignment = errors.New("matching: invalid assignment")

// VerifyCycle checks that pairs form exactly one cycle covering every
// participant: n pairs, each participant gives once and receives once,
// nobody gives to themselves, and following the chain from any participant
// visits all of them before returning.
func VerifyCycle(participants []string, pairs []Pair) error {
	ids, err := distinct(participants)
	if err != nil {
		return err
	}
	if len(ids) < 2 {
		return fmt.Errorf("%w: got %d", ErrMatchingImpossible, len(ids))
	}
	if len(pairs) != len(ids) {
		return fmt.Errorf("%w: expected %d pairs, got %d", ErrInvalidAssignment, len(ids), len(pairs))
	}

	members := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		members[id] = struct{}{}
	}

	next := make(map[string]string, len(pairs))
	received := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		if _, ok := members[p.Giver]; !ok {
			return fmt.Errorf("%w: unknown giver %q", ErrInvalidAssignment, p.Giver)
		}
		if _, ok := members[p.Receiver]; !ok {
			return fmt.Errorf("%w: unknown receiver %q", ErrInvalidAssignment, p.Receiver)
		}
		if p.Giver == p.Receiver {
			return fmt.Errorf("%w: %q gives to themselves", ErrInvalidAssignment, p.Giver)
		}
		if _, dup := next[p.Giver]; dup {
			return fmt.Errorf("%w: %q gives more than once", ErrInvalidAssignment, p.Giver)
		}
		if _, dup := received[p.Receiver]; dup {
			return fmt.Errorf("%w: %q receives more than once", ErrInvalidAssignment, p.Receiver)
		}
		next[p.Giver] = p.Receiver
		received[p.Receiver] = struct{}{}
	}

	start := ids[0]
	current := start
	for steps := 1; ; steps++ {
		current = next[current]
		if current == start {
			if steps != len(ids) {
				return fmt.Errorf("%w: cycle of length %d does not cover %d participants", ErrInvalidAssignment, steps, len(ids))
			}
			return nil
		}
		if steps > len(ids) {
			return fmt.Errorf("%w: chain does not return to %q", ErrInvalidAssignment, start)
		}
	}
}
