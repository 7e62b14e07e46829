// internal/game/room_store.go
package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/bingo"
	"github.com/jason-s-yu/bingo/internal/models"
)

const (
	// CodeAlphabet leaves out 0/O and 1/I so codes can be read aloud.
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength   = 7
	// MaxCodeAttempts bounds retries on room code collisions.
	MaxCodeAttempts = 5
)

// NormalizeCode upper-cases a typed room code and checks it against the
// alphabet.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != CodeLength {
		return "", fmt.Errorf("room code must be %d characters: %w", CodeLength, models.ErrInvalidInput)
	}
	for _, c := range code {
		if !strings.ContainsRune(CodeAlphabet, c) {
			return "", fmt.Errorf("room code contains %q: %w", c, models.ErrInvalidInput)
		}
	}
	return code, nil
}

// RoomStore is the registry of live rooms. There is exactly one Room per
// code; rooms not in memory are rebuilt from the Store on first access.
type RoomStore struct {
	mu    sync.Mutex
	rooms map[string]*Room
	rng   *rand.Rand

	store       Store
	broadcaster Broadcaster
	opts        Options

	// NewCode produces candidate codes. Tests replace it to force collisions.
	NewCode func() string
}

func NewRoomStore(store Store, b Broadcaster, opts Options) *RoomStore {
	s := &RoomStore{
		rooms:       make(map[string]*Room),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		store:       store,
		broadcaster: b,
		opts:        opts.withDefaults(),
	}
	s.NewCode = s.randomCode
	return s
}

func (s *RoomStore) randomCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := make([]byte, CodeLength)
	for i := range b {
		b[i] = CodeAlphabet[s.rng.Intn(len(CodeAlphabet))]
	}
	return string(b)
}

// CreateRoom allocates a code and persists a new room in the lobby state.
// A collision is retried up to MaxCodeAttempts times before giving up with
// ErrConflict.
func (s *RoomStore) CreateRoom(ctx context.Context, hostID uuid.UUID, patterns []bingo.Pattern, announce bool) (*Room, error) {
	if hostID == uuid.Nil {
		return nil, fmt.Errorf("room needs a host: %w", models.ErrInvalidInput)
	}

	for attempt := 1; attempt <= MaxCodeAttempts; attempt++ {
		code := s.NewCode()

		s.mu.Lock()
		_, taken := s.rooms[code]
		s.mu.Unlock()
		if taken {
			continue
		}

		now := s.opts.Now()
		model := models.Room{
			Code:      code,
			State:     models.RoomLobby,
			Patterns:  bingo.Normalize(patterns),
			HostID:    hostID,
			Epoch:     1,
			Announce:  announce,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err := s.store.CreateRoom(ctx, &model)
		if errors.Is(err, models.ErrConflict) {
			s.opts.Logger.WithField("attempt", attempt).Debug("room code collision")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create room: %w", err)
		}

		r := newRoom(model, s.store, s.broadcaster, s.opts)
		s.mu.Lock()
		s.rooms[code] = r
		s.mu.Unlock()
		s.opts.Logger.WithField("room", code).Info("room created")
		return r, nil
	}
	return nil, fmt.Errorf("no free room code after %d attempts: %w", MaxCodeAttempts, models.ErrConflict)
}

// GetRoom looks a room up by code, loading it from the store if needed.
func (s *RoomStore) GetRoom(ctx context.Context, code string) (*Room, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	r, ok := s.rooms[code]
	s.mu.Unlock()
	if ok {
		return r, nil
	}

	loaded, err := s.loadRoom(ctx, code)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[code]; ok {
		// lost a race with another loader
		loaded.Close()
		return r, nil
	}
	s.rooms[code] = loaded
	return loaded, nil
}

// loadRoom rebuilds a Room from persisted state. A room that was active
// with winners already recorded had its claim window interrupted, so the
// window is reopened and finalizes straight away.
func (s *RoomStore) loadRoom(ctx context.Context, code string) (*Room, error) {
	model, err := s.store.GetRoom(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", code, err)
	}
	players, err := s.store.ListPlayers(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load players: %w", err)
	}
	calls, err := s.store.ListCalls(ctx, code, model.Epoch)
	if err != nil {
		return nil, fmt.Errorf("load calls: %w", err)
	}
	winners, err := s.store.ListWinners(ctx, code, model.Epoch)
	if err != nil {
		return nil, fmt.Errorf("load winners: %w", err)
	}

	r := newRoom(*model, s.store, s.broadcaster, s.opts)
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if err := r.seq.Restore(calls); err != nil {
		return nil, fmt.Errorf("restore call log: %w", err)
	}
	r.calls = calls
	r.winners = winners
	for _, p := range players {
		r.players[p.ID] = p
		r.order = append(r.order, p.ID)
	}
	if model.State == models.RoomActive && len(winners) > 0 {
		r.closing = true
		r.windowDeadline = s.opts.Now()
		r.scheduleFinalizeLocked(0)
	}
	r.logger().WithField("calls", len(calls)).Info("room restored")
	return r, nil
}

// Close stops the timers of every live room.
func (s *RoomStore) Close() {
	s.mu.Lock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.Unlock()
	for _, r := range rooms {
		r.Close()
	}
}

// Len is the number of rooms held in memory.
func (s *RoomStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// RoomDeleter is implemented by stores whose rows should go away with an
// evicted room. Stores without it keep the history, and the room can be
// restored from it later.
type RoomDeleter interface {
	DeleteRoom(ctx context.Context, code string) error
}

// RemoveRoom stops the room's timers and forgets it.
func (s *RoomStore) RemoveRoom(ctx context.Context, code string) error {
	s.mu.Lock()
	r, ok := s.rooms[code]
	delete(s.rooms, code)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("room %s: %w", code, models.ErrNotFound)
	}
	r.Close()

	if d, ok := s.store.(RoomDeleter); ok {
		if err := d.DeleteRoom(ctx, code); err != nil && !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("delete room %s: %w", code, err)
		}
	}
	s.opts.Logger.WithField("room", code).Info("room evicted")
	return nil
}

// Sweep evicts rooms that nobody is watching and that have not changed for
// at least idle. watched reports whether a room still has listeners; nil
// means none do. It returns the evicted codes.
func (s *RoomStore) Sweep(ctx context.Context, idle time.Duration, watched func(code string) bool) []string {
	s.mu.Lock()
	candidates := make(map[string]*Room, len(s.rooms))
	for code, r := range s.rooms {
		candidates[code] = r
	}
	s.mu.Unlock()

	now := s.opts.Now()
	var evicted []string
	for code, r := range candidates {
		since, ok := r.IdleSince()
		if !ok || now.Sub(since) < idle {
			continue
		}
		if watched != nil && watched(code) {
			continue
		}
		if err := s.RemoveRoom(ctx, code); err != nil {
			s.opts.Logger.WithError(err).WithField("room", code).Warn("could not evict room")
			continue
		}
		evicted = append(evicted, code)
	}
	return evicted
}

// RunJanitor sweeps every interval until ctx is done.
func (s *RoomStore) RunJanitor(ctx context.Context, interval, idle time.Duration, watched func(code string) bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := s.Sweep(ctx, idle, watched); len(evicted) > 0 {
				s.opts.Logger.WithField("rooms", len(evicted)).Debug("idle rooms evicted")
			}
		}
	}
}
