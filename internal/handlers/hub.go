// internal/handlers/hub.go
package handlers

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/game"
	"github.com/sirupsen/logrus"
)

// outBuffer is how many events a connection may fall behind before events
// are dropped for it.
const outBuffer = 64

// RoomConnection is one socket subscribed to a room.
type RoomConnection struct {
	Room     string
	PlayerID uuid.UUID
	OutChan  chan game.Event

	// lagged is set when an event was dropped; the writer re-syncs from a
	// snapshot before sending anything else.
	lagged atomic.Bool
}

// Lagged reports and clears the dropped-event flag.
func (c *RoomConnection) Lagged() bool {
	return c.lagged.Swap(false)
}

// Write queues an event without blocking. It reports false when the
// connection's buffer is full and the event was dropped.
func (c *RoomConnection) Write(ev game.Event) bool {
	select {
	case c.OutChan <- ev:
		return true
	default:
		c.lagged.Store(true)
		return false
	}
}

// Hub fans room events out to every connected socket. It implements
// game.Broadcaster and never blocks the caller, which holds the room lock.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*RoomConnection]struct{}
	log   *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{rooms: make(map[string]map[*RoomConnection]struct{}), log: logger}
}

// Register subscribes a new connection to a room.
func (h *Hub) Register(room string, playerID uuid.UUID) *RoomConnection {
	c := &RoomConnection{Room: room, PlayerID: playerID, OutChan: make(chan game.Event, outBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.rooms[room]
	if !ok {
		conns = make(map[*RoomConnection]struct{})
		h.rooms[room] = conns
	}
	conns[c] = struct{}{}
	return c
}

// Unregister removes a connection. Its OutChan is left open; the writer
// exits on its own context.
func (h *Hub) Unregister(c *RoomConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.rooms[c.Room]
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.rooms, c.Room)
	}
}

// Broadcast implements game.Broadcaster.
func (h *Hub) Broadcast(ev game.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[ev.Room] {
		if !c.Write(ev) {
			h.log.WithFields(logrus.Fields{
				"room":   ev.Room,
				"player": c.PlayerID,
				"type":   ev.Type,
			}).Warn("connection buffer full, dropping event")
		}
	}
}

// Count returns how many sockets are attached to a room.
func (h *Hub) Count(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
