// internal/bingo/sequence.go
package bingo

import (
	"fmt"
	"math/rand"
)

// CallSequence hands out 1..MaxNumber in a random order without repeats.
// It is not safe for concurrent use; the owning room serializes access.
type CallSequence struct {
	rng       *rand.Rand
	remaining []int
	called    []int
}

// NewCallSequence returns a freshly shuffled sequence.
func NewCallSequence(r *rand.Rand) *CallSequence {
	s := &CallSequence{rng: newRand(r)}
	s.Reset()
	return s
}

// Reset restores all numbers, reshuffles and clears the call log.
func (s *CallSequence) Reset() {
	s.remaining = make([]int, MaxNumber)
	for i := range s.remaining {
		s.remaining[i] = i + 1
	}
	s.rng.Shuffle(len(s.remaining), func(i, j int) {
		s.remaining[i], s.remaining[j] = s.remaining[j], s.remaining[i]
	})
	s.called = s.called[:0]
}

// Next pops the next number. ok is false once every number has been called.
func (s *CallSequence) Next() (n int, ok bool) {
	if len(s.remaining) == 0 {
		return 0, false
	}
	last := len(s.remaining) - 1
	n = s.remaining[last]
	s.remaining = s.remaining[:last]
	s.called = append(s.called, n)
	return n, true
}

// Unread returns the most recently drawn number to the sequence. It is used
// to roll back a draw that could not be recorded.
func (s *CallSequence) Unread(n int) error {
	if len(s.called) == 0 || s.called[len(s.called)-1] != n {
		return fmt.Errorf("unread %d: not the last drawn number", n)
	}
	s.called = s.called[:len(s.called)-1]
	s.remaining = append(s.remaining, n)
	return nil
}

// Restore rebuilds the sequence from an existing call log, e.g. after a
// restart. Numbers not in called are reshuffled.
func (s *CallSequence) Restore(called []int) error {
	seen := make(map[int]bool, len(called))
	for _, n := range called {
		if n < 1 || n > MaxNumber {
			return fmt.Errorf("restore: number %d out of range", n)
		}
		if seen[n] {
			return fmt.Errorf("restore: number %d called twice", n)
		}
		seen[n] = true
	}
	s.remaining = s.remaining[:0]
	for n := 1; n <= MaxNumber; n++ {
		if !seen[n] {
			s.remaining = append(s.remaining, n)
		}
	}
	s.rng.Shuffle(len(s.remaining), func(i, j int) {
		s.remaining[i], s.remaining[j] = s.remaining[j], s.remaining[i]
	})
	s.called = append(s.called[:0], called...)
	return nil
}

// Script moves order to the front of the draw, so the next len(order) calls
// return exactly those numbers. Numbers already called are an error.
func (s *CallSequence) Script(order []int) error {
	pos := make(map[int]int, len(s.remaining))
	for i, n := range s.remaining {
		pos[n] = i
	}
	seen := make(map[int]bool, len(order))
	for _, n := range order {
		if _, ok := pos[n]; !ok || seen[n] {
			return fmt.Errorf("script: number %d is not available", n)
		}
		seen[n] = true
	}
	rest := make([]int, 0, len(s.remaining)-len(order))
	for _, n := range s.remaining {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	// Next pops from the tail
	for i := len(order) - 1; i >= 0; i-- {
		rest = append(rest, order[i])
	}
	s.remaining = rest
	return nil
}

// Remaining is how many numbers are still to be called.
func (s *CallSequence) Remaining() int {
	return len(s.remaining)
}

// Called returns a copy of the numbers drawn so far, in order.
func (s *CallSequence) Called() []int {
	out := make([]int, len(s.called))
	copy(out, s.called)
	return out
}

// CalledSet projects a call log into a set.
func CalledSet(calls []int) map[int]bool {
	set := make(map[int]bool, len(calls))
	for _, n := range calls {
		set[n] = true
	}
	return set
}
