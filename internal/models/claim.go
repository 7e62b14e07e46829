// internal/models/claim.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/bingo"
)

// Verdict is the arbitration result recorded against a claim.
type Verdict string

const (
	VerdictAccepted Verdict = "accepted"
	VerdictRejected Verdict = "rejected"
)

// Claim is a player's assertion of a completed pattern, as received.
// Marks is the optional evidence the client sent; it is only ever used
// intersected with the authoritative called-set.
type Claim struct {
	ID         uuid.UUID     `json:"id"`
	RoomCode   string        `json:"room_code"`
	Epoch      int           `json:"epoch"`
	PlayerID   uuid.UUID     `json:"player_id"`
	Pattern    bingo.Pattern `json:"pattern,omitempty"`
	Marks      []bingo.Pos   `json:"marks,omitempty"`
	Verdict    Verdict       `json:"verdict"`
	ReceivedAt time.Time     `json:"received_at"`
}

// Winner is the terminal record of a confirmed claim. There is at most one
// per (room, epoch, player).
type Winner struct {
	RoomCode   string        `json:"room_code"`
	Epoch      int           `json:"epoch"`
	PlayerID   uuid.UUID     `json:"player_id"`
	PlayerName string        `json:"player_name"`
	Pattern    bingo.Pattern `json:"pattern"`
	DeclaredAt time.Time     `json:"declared_at"`
}
