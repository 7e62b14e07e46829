package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/bingo"
	"github.com/jason-s-yu/bingo/internal/models"
)

type epochKey struct {
	code  string
	epoch int
}

// MemoryStore keeps everything in process memory. It enforces the same
// uniqueness and guarded-update rules as PostgresStore and is used for
// development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	rooms   map[string]models.Room
	calls   map[epochKey][]models.Call
	players map[string][]*models.Player
	claims  []models.Claim
	winners map[epochKey][]models.Winner
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:   make(map[string]models.Room),
		calls:   make(map[epochKey][]models.Call),
		players: make(map[string][]*models.Player),
		winners: make(map[epochKey][]models.Winner),
	}
}

func copyRoom(r models.Room) models.Room {
	r.Patterns = append([]bingo.Pattern(nil), r.Patterns...)
	return r
}

func (m *MemoryStore) CreateRoom(_ context.Context, room *models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room.Code]; ok {
		return fmt.Errorf("room %s exists: %w", room.Code, models.ErrConflict)
	}
	m.rooms[room.Code] = copyRoom(*room)
	return nil
}

func (m *MemoryStore) GetRoom(_ context.Context, code string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[code]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", code, models.ErrNotFound)
	}
	out := copyRoom(r)
	return &out, nil
}

func (m *MemoryStore) UpdateRoom(_ context.Context, room *models.Room, expect models.RoomState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rooms[room.Code]
	if !ok {
		return fmt.Errorf("room %s: %w", room.Code, models.ErrNotFound)
	}
	if cur.State != expect {
		return fmt.Errorf("room %s is %s, expected %s: %w", room.Code, cur.State, expect, models.ErrStaleState)
	}
	next := copyRoom(*room)
	next.CreatedAt = cur.CreatedAt
	next.HostID = cur.HostID
	m.rooms[room.Code] = next
	return nil
}

func (m *MemoryStore) AppendCall(_ context.Context, call models.Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[call.RoomCode]; !ok {
		return fmt.Errorf("room %s: %w", call.RoomCode, models.ErrNotFound)
	}
	k := epochKey{call.RoomCode, call.Epoch}
	for _, c := range m.calls[k] {
		if c.Number == call.Number {
			return fmt.Errorf("number %d already called: %w", call.Number, models.ErrConflict)
		}
	}
	m.calls[k] = append(m.calls[k], call)
	return nil
}

func (m *MemoryStore) ListCalls(_ context.Context, code string, epoch int) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := m.calls[epochKey{code, epoch}]
	out := make([]int, len(log))
	for i, c := range log {
		out[i] = c.Number
	}
	return out, nil
}

func (m *MemoryStore) AddPlayer(_ context.Context, p *models.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[p.RoomCode]; !ok {
		return fmt.Errorf("room %s: %w", p.RoomCode, models.ErrNotFound)
	}
	key := models.NameKey(p.Name)
	for _, q := range m.players[p.RoomCode] {
		if q.ID == p.ID {
			return fmt.Errorf("player %s already joined: %w", p.ID, models.ErrConflict)
		}
		if models.NameKey(q.Name) == key {
			return fmt.Errorf("name %q is taken: %w", p.Name, models.ErrConflict)
		}
	}
	cp := *p
	m.players[p.RoomCode] = append(m.players[p.RoomCode], &cp)
	return nil
}

func (m *MemoryStore) findPlayer(code string, id uuid.UUID) (int, *models.Player) {
	for i, p := range m.players[code] {
		if p.ID == id {
			return i, p
		}
	}
	return -1, nil
}

func (m *MemoryStore) GetPlayer(_ context.Context, code string, id uuid.UUID) (*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, p := m.findPlayer(code, id)
	if p == nil {
		return nil, fmt.Errorf("player %s in room %s: %w", id, code, models.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) ListPlayers(_ context.Context, code string) ([]*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Player, 0, len(m.players[code]))
	for _, p := range m.players[code] {
		cp := *p
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (m *MemoryStore) UpdatePlayerCard(_ context.Context, code string, id uuid.UUID, card bingo.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, p := m.findPlayer(code, id)
	if p == nil {
		return fmt.Errorf("player %s in room %s: %w", id, code, models.ErrNotFound)
	}
	p.Card = card
	return nil
}

func (m *MemoryStore) RemovePlayer(_ context.Context, code string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, p := m.findPlayer(code, id)
	if p == nil {
		return fmt.Errorf("player %s in room %s: %w", id, code, models.ErrNotFound)
	}
	list := m.players[code]
	m.players[code] = append(list[:i:i], list[i+1:]...)
	return nil
}

func (m *MemoryStore) AddClaim(_ context.Context, c *models.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	cp.Marks = append([]bingo.Pos(nil), c.Marks...)
	m.claims = append(m.claims, cp)
	return nil
}

// Claims returns every recorded claim for a room epoch, oldest first.
func (m *MemoryStore) Claims(code string, epoch int) []models.Claim {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Claim
	for _, c := range m.claims {
		if c.RoomCode == code && c.Epoch == epoch {
			out = append(out, c)
		}
	}
	return out
}

func (m *MemoryStore) RecordWin(_ context.Context, c *models.Claim, w *models.Winner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := epochKey{w.RoomCode, w.Epoch}
	for _, existing := range m.winners[k] {
		if existing.PlayerID == w.PlayerID {
			return fmt.Errorf("player %s already won: %w", w.PlayerID, models.ErrConflict)
		}
	}
	cp := *c
	cp.Marks = append([]bingo.Pos(nil), c.Marks...)
	m.claims = append(m.claims, cp)
	m.winners[k] = append(m.winners[k], *w)
	return nil
}

func (m *MemoryStore) ListWinners(_ context.Context, code string, epoch int) ([]models.Winner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Winner(nil), m.winners[epochKey{code, epoch}]...), nil
}

// DeleteRoom drops a room and everything recorded under it. Nothing else
// holds on to an evicted in-memory room, so keeping its rows would only
// grow the process.
func (m *MemoryStore) DeleteRoom(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[code]; !ok {
		return fmt.Errorf("room %s: %w", code, models.ErrNotFound)
	}
	delete(m.rooms, code)
	delete(m.players, code)
	for k := range m.calls {
		if k.code == code {
			delete(m.calls, k)
		}
	}
	for k := range m.winners {
		if k.code == code {
			delete(m.winners, k)
		}
	}
	kept := m.claims[:0]
	for _, c := range m.claims {
		if c.RoomCode != code {
			kept = append(kept, c)
		}
	}
	m.claims = kept
	return nil
}
