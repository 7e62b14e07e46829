// internal/models/room.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/bingo"
)

// RoomState is the lifecycle phase of a room.
type RoomState string

const (
	RoomLobby    RoomState = "lobby"    // configuring, no calls yet
	RoomActive   RoomState = "active"   // calling and claims allowed
	RoomFinished RoomState = "finished" // game over until the host starts a new one
)

// Outcome records how the most recent game in a room ended.
type Outcome string

const (
	OutcomeNone Outcome = ""
	OutcomeWon  Outcome = "won"
	OutcomeDraw Outcome = "draw"
)

// Room represents a row in the rooms table.
type Room struct {
	Code      string          `json:"code"`
	State     RoomState       `json:"state"`
	Patterns  []bingo.Pattern `json:"patterns"`
	HostID    uuid.UUID       `json:"host_id"`
	Epoch     int             `json:"epoch"`
	Outcome   Outcome         `json:"outcome,omitempty"`
	Announce  bool            `json:"announce"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Call is one entry in a room's append-only call log for a given epoch.
type Call struct {
	RoomCode string    `json:"room_code"`
	Epoch    int       `json:"epoch"`
	Seq      int       `json:"seq"`
	Number   int       `json:"number"`
	CalledAt time.Time `json:"called_at"`
}
