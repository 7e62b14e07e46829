// internal/game/store.go
package game

import (
	"context"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/bingo"
	"github.com/jason-s-yu/bingo/internal/models"
)

// Store is the persistent record of rooms, call logs, players, claims and
// winners. Implementations report uniqueness violations as models.ErrConflict,
// missing rows as models.ErrNotFound and failed guarded updates as
// models.ErrStaleState.
type Store interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, code string) (*models.Room, error)
	// UpdateRoom writes room only if the stored state still equals expect.
	UpdateRoom(ctx context.Context, room *models.Room, expect models.RoomState) error

	// AppendCall fails with ErrConflict if the number is already in the
	// log for that epoch.
	AppendCall(ctx context.Context, call models.Call) error
	ListCalls(ctx context.Context, code string, epoch int) ([]int, error)

	// AddPlayer fails with ErrConflict on a case-insensitive name clash.
	AddPlayer(ctx context.Context, p *models.Player) error
	GetPlayer(ctx context.Context, code string, id uuid.UUID) (*models.Player, error)
	ListPlayers(ctx context.Context, code string) ([]*models.Player, error)
	UpdatePlayerCard(ctx context.Context, code string, id uuid.UUID, card bingo.Card) error
	RemovePlayer(ctx context.Context, code string, id uuid.UUID) error

	AddClaim(ctx context.Context, c *models.Claim) error
	// RecordWin stores an accepted claim together with its winner row, or
	// neither. It fails with ErrConflict if the player already won this epoch.
	RecordWin(ctx context.Context, c *models.Claim, w *models.Winner) error
	ListWinners(ctx context.Context, code string, epoch int) ([]models.Winner, error)
}

// Broadcaster delivers room events to whoever is listening. Delivery is
// best effort and must not block: persisted state is the source of truth.
type Broadcaster interface {
	Broadcast(ev Event)
}

// BroadcastFunc adapts a plain function to Broadcaster.
type BroadcastFunc func(ev Event)

func (f BroadcastFunc) Broadcast(ev Event) { f(ev) }

// MultiBroadcaster fans each event out to several broadcasters in order.
type MultiBroadcaster []Broadcaster

func (m MultiBroadcaster) Broadcast(ev Event) {
	for _, b := range m {
		if b != nil {
			b.Broadcast(ev)
		}
	}
}
