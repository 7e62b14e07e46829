// internal/game/events.go
package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/bingo"
	"github.com/jason-s-yu/bingo/internal/models"
)

// EventType tags each Event in the room stream.
type EventType string

const (
	EventNumberCalled    EventType = "number_called"
	EventClaimSubmitted  EventType = "claim_submitted" // accepted claim, window still open
	EventWinnerDeclared  EventType = "winner_declared"
	EventGameReset       EventType = "game_reset"
	EventGameStarted     EventType = "game_started"
	EventGameOver        EventType = "game_over" // draw: sequence exhausted
	EventPlayerJoined    EventType = "player_joined"
	EventPlayerLeft      EventType = "player_left"
	EventPatternsUpdated EventType = "patterns_updated"
	EventAnnounceUpdated EventType = "announce_updated"
	EventAutoCallUpdated EventType = "autocall_updated"
)

// EventPlayer identifies a player inside an event payload.
type EventPlayer struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Event is a single notification on a room's stream. Fields beyond Type,
// Room and Epoch are populated according to Type.
type Event struct {
	Type  EventType `json:"type"`
	Room  string    `json:"room"`
	Epoch int       `json:"epoch"`

	Number int    `json:"number,omitempty"`
	Label  string `json:"label,omitempty"`
	Seq    int    `json:"seq,omitempty"`

	Player   *EventPlayer     `json:"player,omitempty"`
	Pattern  bingo.Pattern    `json:"pattern,omitempty"`
	Patterns []bingo.Pattern  `json:"patterns,omitempty"`
	Winners  []models.Winner  `json:"winners,omitempty"`
	State    models.RoomState `json:"state,omitempty"`
	Outcome  models.Outcome   `json:"outcome,omitempty"`
	Announce *bool            `json:"announce,omitempty"`

	// IntervalMs is the auto-call period, 0 when stopped.
	IntervalMs int64 `json:"interval_ms,omitempty"`

	At time.Time `json:"at"`
}
