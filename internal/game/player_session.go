// internal/game/player_session.go
package game

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/bingo"
	"github.com/jason-s-yu/bingo/internal/models"
)

// SnapshotFunc fetches authoritative room state for one player.
type SnapshotFunc func(ctx context.Context) (Snapshot, error)

// RoomSnapshotFunc serves snapshots straight from a live room.
func RoomSnapshotFunc(r *Room, playerID uuid.UUID) SnapshotFunc {
	return func(context.Context) (Snapshot, error) {
		return r.Snapshot(playerID), nil
	}
}

// PlayerSession is a player's local view of a room: their card, the numbers
// they have seen called and the cells they have daubed. It is driven by a
// single dispatch loop (Run) and is never trusted by arbitration; whenever
// it may have fallen behind it re-fetches a snapshot.
type PlayerSession struct {
	mu sync.Mutex

	playerID uuid.UUID
	fetch    SnapshotFunc

	epoch    int
	state    models.RoomState
	patterns []bingo.Pattern
	card     bingo.Card
	seated   bool
	calls    []int
	called   map[int]bool
	marks    bingo.Marks
	winners  []models.Winner
}

// NewPlayerSession loads the initial snapshot.
func NewPlayerSession(ctx context.Context, playerID uuid.UUID, fetch SnapshotFunc) (*PlayerSession, error) {
	s := &PlayerSession{
		playerID: playerID,
		fetch:    fetch,
		called:   map[int]bool{},
		marks:    bingo.Marks{},
	}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh replaces local state with a fresh snapshot. Marks survive only
// within the same epoch and only on cells that are still satisfiable.
func (s *PlayerSession) Refresh(ctx context.Context) error {
	snap, err := s.fetch(ctx)
	if err != nil {
		return fmt.Errorf("refresh snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sameEpoch := snap.Room.Epoch == s.epoch
	s.epoch = snap.Room.Epoch
	s.state = snap.Room.State
	s.patterns = append([]bingo.Pattern(nil), snap.Room.Patterns...)
	s.calls = append([]int(nil), snap.Calls...)
	s.called = bingo.CalledSet(snap.Calls)
	s.winners = append([]models.Winner(nil), snap.Winners...)

	s.seated = snap.You != nil
	if s.seated {
		if s.card != snap.You.Card {
			sameEpoch = false
		}
		s.card = snap.You.Card
	}

	kept := bingo.Marks{}
	if sameEpoch && s.seated {
		for p := range s.marks {
			if s.card.IsFree(p) || s.called[s.card.At(p)] {
				kept[p] = true
			}
		}
	}
	s.marks = kept
	return nil
}

// Apply folds one event into the session. Events from older epochs and
// numbers already seen are ignored; a reset or a newer epoch triggers a
// full refresh.
func (s *PlayerSession) Apply(ctx context.Context, ev Event) error {
	s.mu.Lock()
	if ev.Epoch < s.epoch {
		s.mu.Unlock()
		return nil
	}
	if ev.Type == EventGameReset || ev.Epoch > s.epoch {
		s.mu.Unlock()
		return s.Refresh(ctx)
	}
	defer s.mu.Unlock()

	switch ev.Type {
	case EventNumberCalled:
		if ev.Number < 1 || ev.Number > bingo.MaxNumber || s.called[ev.Number] {
			return nil
		}
		s.called[ev.Number] = true
		s.calls = append(s.calls, ev.Number)
	case EventGameStarted:
		s.state = models.RoomActive
		if len(ev.Patterns) > 0 {
			s.patterns = append([]bingo.Pattern(nil), ev.Patterns...)
		}
	case EventPatternsUpdated:
		s.patterns = append([]bingo.Pattern(nil), ev.Patterns...)
	case EventWinnerDeclared:
		s.state = models.RoomFinished
		s.winners = append([]models.Winner(nil), ev.Winners...)
	case EventGameOver:
		s.state = models.RoomFinished
	case EventPlayerLeft:
		if ev.Player != nil && ev.Player.ID == s.playerID {
			s.seated = false
			s.marks = bingo.Marks{}
		}
	}
	return nil
}

// Run is the session's dispatch loop. Each event is applied and then handed
// to forward (if set). It returns when ctx ends, events closes, or either
// step fails.
func (s *PlayerSession) Run(ctx context.Context, events <-chan Event, forward func(Event) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.Apply(ctx, ev); err != nil {
				return fmt.Errorf("apply %s: %w", ev.Type, err)
			}
			if forward != nil {
				if err := forward(ev); err != nil {
					return err
				}
			}
		}
	}
}

// Mark daubs a cell. Only FREE and called cells can be marked.
func (s *PlayerSession) Mark(p bingo.Pos) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkCellLocked(p); err != nil {
		return err
	}
	if !s.card.IsFree(p) {
		if n := s.card.At(p); !s.called[n] {
			return fmt.Errorf("%s has not been called: %w", bingo.Label(n), models.ErrInvalidInput)
		}
	}
	s.marks[p] = true
	return nil
}

// Unmark clears a daub. FREE stays marked.
func (s *PlayerSession) Unmark(p bingo.Pos) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkCellLocked(p); err != nil {
		return err
	}
	if !s.card.IsFree(p) {
		delete(s.marks, p)
	}
	return nil
}

func (s *PlayerSession) checkCellLocked(p bingo.Pos) error {
	if !s.seated {
		return fmt.Errorf("not seated in this room: %w", models.ErrForbidden)
	}
	if !p.Valid() {
		return fmt.Errorf("cell %s is off the card: %w", p, models.ErrInvalidInput)
	}
	return nil
}

// Marks lists daubed cells in row-major order, FREE included.
func (s *PlayerSession) Marks() []bingo.Pos {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := bingo.Marks{bingo.Center: true}
	for p := range s.marks {
		m[p] = true
	}
	return m.Positions()
}

// Called returns the numbers seen so far, in call order.
func (s *PlayerSession) Called() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.calls...)
}

func (s *PlayerSession) Epoch() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *PlayerSession) State() models.RoomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Card returns the player's card and whether they are seated.
func (s *PlayerSession) Card() (bingo.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.card, s.seated
}

// Ready lists the patterns the local marks complete. It is advisory only:
// the room re-checks everything when a claim arrives.
func (s *PlayerSession) Ready() []bingo.Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.seated {
		return nil
	}
	return bingo.Matches(s.card, s.marks, s.called, s.patterns)
}

// ClaimRequest builds a claim carrying the local marks as evidence.
func (s *PlayerSession) ClaimRequest(pattern bingo.Pattern) ClaimRequest {
	return ClaimRequest{PlayerID: s.playerID, Pattern: pattern, Marks: s.Marks()}
}
