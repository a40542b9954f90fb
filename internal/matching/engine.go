// Package matching turns a set of event attenders into a Secret Santa chain.
//
// The engine shuffles the participants and links each one to the next,
// wrapping around at the end, so the result is always a single cycle that
// spans every participant. Nobody draws themselves and no subgroup closes
// a loop on its own.
package matching

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

var (
	// ErrMatchingImpossible indicates fewer than two distinct participants were supplied.
	ErrMatchingImpossible = errors.New("matching: at least two participants are required")
	// ErrInvalidParticipant indicates an empty participant identity.
	ErrInvalidParticipant = errors.New("matching: participant identity must not be empty")
)

// Pair is a single giver to receiver edge of the gift chain.
type Pair struct {
	Giver    string
	Receiver string
}

// SourceFunc returns the random source used for one assignment.
type SourceFunc func() rand.Source

// Engine computes gift chains. It holds no mutable state and is safe for
// concurrent use as long as the SourceFunc is.
type Engine struct {
	newSource SourceFunc
}

// NewEngine constructs an Engine. When newSource is nil, EntropySource is used.
func NewEngine(newSource SourceFunc) *Engine {
	if newSource == nil {
		newSource = EntropySource
	}
	return &Engine{newSource: newSource}
}

// EntropySource seeds a PCG generator from the wall clock mixed with a
// crypto/rand salt. Every call yields an independent stream.
func EntropySource() rand.Source {
	var salt [16]byte
	// crypto/rand.Read does not return on failure since Go 1.24.
	_, _ = crand.Read(salt[:])
	now := uint64(time.Now().UnixNano())
	return rand.NewPCG(now^binary.LittleEndian.Uint64(salt[:8]), binary.LittleEndian.Uint64(salt[8:]))
}

// SeededSource returns a SourceFunc that always yields the same sequence.
func SeededSource(seed1, seed2 uint64) SourceFunc {
	return func() rand.Source {
		return rand.NewPCG(seed1, seed2)
	}
}

// Assign shuffles the participants and links position i to position i+1
// (mod n). Duplicate identities collapse to their first occurrence.
func (e *Engine) Assign(participants []string) ([]Pair, error) {
	ids, err := distinct(participants)
	if err != nil {
		return nil, err
	}
	if len(ids) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrMatchingImpossible, len(ids))
	}

	newSource := EntropySource
	if e != nil && e.newSource != nil {
		newSource = e.newSource
	}
	rng := rand.New(newSource())
	rng.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})

	pairs := make([]Pair, len(ids))
	for i := range ids {
		pairs[i] = Pair{Giver: ids[i], Receiver: ids[(i+1)%len(ids)]}
	}
	return pairs, nil
}

func distinct(participants []string) ([]string, error) {
	seen := make(map[string]struct{}, len(participants))
	out := make([]string, 0, len(participants))
	for _, id := range participants {
		if id == "" {
			return nil, ErrInvalidParticipant
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
