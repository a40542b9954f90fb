package matching

import (
	"errors"
	"fmt"
	"slices"
	"testing"
)

func participants(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("user-%02d", i+1)
	}
	return ids
}

func TestEngine_Assign(t *testing.T) {
	t.Parallel()

	t.Run("produces a single cycle for every size", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(nil)
		for n := 2; n <= 40; n++ {
			ids := participants(n)
			for round := 0; round < 10; round++ {
				pairs, err := engine.Assign(ids)
				if err != nil {
					t.Fatalf("n=%d: unexpected error: %v", n, err)
				}
				if len(pairs) != n {
					t.Fatalf("n=%d: expected %d pairs, got %d", n, n, len(pairs))
				}
				if err := VerifyCycle(ids, pairs); err != nil {
					t.Fatalf("n=%d: %v (pairs=%v)", n, err, pairs)
				}
			}
		}
	})

	t.Run("follows the chain through all attenders", func(t *testing.T) {
		t.Parallel()

		pairs, err := NewEngine(nil).Assign([]string{"A", "B", "C"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		next := make(map[string]string, len(pairs))
		for _, p := range pairs {
			if p.Giver == p.Receiver {
				t.Fatalf("self assignment for %q", p.Giver)
			}
			next[p.Giver] = p.Receiver
		}

		visited := map[string]bool{"A": true}
		current := next["A"]
		for current != "A" {
			if visited[current] {
				t.Fatalf("revisited %q before returning to start", current)
			}
			visited[current] = true
			current = next[current]
		}
		if len(visited) != 3 {
			t.Fatalf("expected chain to visit 3 attenders, visited %d", len(visited))
		}
	})

	t.Run("two participants swap", func(t *testing.T) {
		t.Parallel()

		pairs, err := NewEngine(nil).Assign([]string{"A", "B"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got := map[string]string{pairs[0].Giver: pairs[0].Receiver, pairs[1].Giver: pairs[1].Receiver}
		if got["A"] != "B" || got["B"] != "A" {
			t.Fatalf("expected A and B to swap, got %v", got)
		}
	})

	t.Run("rejects fewer than two participants", func(t *testing.T) {
		t.Parallel()

		for _, input := range [][]string{nil, {}, {"solo"}, {"solo", "solo"}} {
			pairs, err := NewEngine(nil).Assign(input)
			if !errors.Is(err, ErrMatchingImpossible) {
				t.Fatalf("input %v: expected ErrMatchingImpossible, got %v", input, err)
			}
			if pairs != nil {
				t.Fatalf("input %v: expected no pairs, got %v", input, pairs)
			}
		}
	})

	t.Run("rejects empty identities", func(t *testing.T) {
		t.Parallel()

		if _, err := NewEngine(nil).Assign([]string{"A", "", "B"}); !errors.Is(err, ErrInvalidParticipant) {
			t.Fatalf("expected ErrInvalidParticipant, got %v", err)
		}
	})

	t.Run("collapses duplicate identities", func(t *testing.T) {
		t.Parallel()

		pairs, err := NewEngine(nil).Assign([]string{"A", "B", "A", "C", "B"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := VerifyCycle([]string{"A", "B", "C"}, pairs); err != nil {
			t.Fatalf("expected cycle over distinct ids: %v", err)
		}
	})

	t.Run("seeded source is deterministic", func(t *testing.T) {
		t.Parallel()

		ids := participants(12)
		first, err := NewEngine(SeededSource(7, 11)).Assign(ids)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := NewEngine(SeededSource(7, 11)).Assign(ids)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(first, second) {
			t.Fatalf("expected identical assignments for identical seeds\nfirst:  %v\nsecond: %v", first, second)
		}
	})

	t.Run("does not mutate the caller's slice", func(t *testing.T) {
		t.Parallel()

		ids := participants(8)
		original := slices.Clone(ids)
		if _, err := NewEngine(SeededSource(1, 2)).Assign(ids); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(ids, original) {
			t.Fatalf("input slice was reordered: %v", ids)
		}
	})

	t.Run("entropy source varies between calls", func(t *testing.T) {
		t.Parallel()

		ids := participants(20)
		engine := NewEngine(nil)
		baseline, err := engine.Assign(ids)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i := 0; i < 20; i++ {
			next, err := engine.Assign(ids)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(baseline, next) {
				return
			}
		}
		t.Fatalf("expected back-to-back assignments to differ")
	})
}

func TestVerifyCycle(t *testing.T) {
	t.Parallel()

	ids := []string{"A", "B", "C", "D"}

	tests := []struct {
		name  string
		pairs []Pair
		want  error
	}{
		{
			name:  "single cycle",
			pairs: []Pair{{"A", "C"}, {"C", "B"}, {"B", "D"}, {"D", "A"}},
		},
		{
			name:  "two disjoint swaps",
			pairs: []Pair{{"A", "B"}, {"B", "A"}, {"C", "D"}, {"D", "C"}},
			want:  ErrInvalidAssignment,
		},
		{
			name:  "self assignment",
			pairs: []Pair{{"A", "A"}, {"B", "C"}, {"C", "D"}, {"D", "B"}},
			want:  ErrInvalidAssignment,
		},
		{
			name:  "missing pair",
			pairs: []Pair{{"A", "B"}, {"B", "C"}, {"C", "A"}},
			want:  ErrInvalidAssignment,
		},
		{
			name:  "receiver twice",
			pairs: []Pair{{"A", "B"}, {"B", "C"}, {"C", "B"}, {"D", "A"}},
			want:  ErrInvalidAssignment,
		},
		{
			name:  "stranger in the chain",
			pairs: []Pair{{"A", "B"}, {"B", "C"}, {"C", "Z"}, {"D", "A"}},
			want:  ErrInvalidAssignment,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := VerifyCycle(ids, tc.pairs)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected valid cycle, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	t.Run("single participant", func(t *testing.T) {
		t.Parallel()

		if err := VerifyCycle([]string{"A"}, []Pair{{"A", "A"}}); !errors.Is(err, ErrMatchingImpossible) {
			t.Fatalf("expected ErrMatchingImpossible, got %v", err)
		}
	})
}
