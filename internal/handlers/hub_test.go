package handlers

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubRoutesByRoom(t *testing.T) {
	h := NewHub(quietLogger())
	a := h.Register("AAAAAAA", uuid.New())
	b := h.Register("BBBBBBB", uuid.New())

	h.Broadcast(game.Event{Type: game.EventNumberCalled, Room: "AAAAAAA", Number: 5})

	require.Len(t, a.OutChan, 1)
	assert.Equal(t, 5, (<-a.OutChan).Number)
	assert.Empty(t, b.OutChan)
}

func TestHubDropsWhenFull(t *testing.T) {
	h := NewHub(quietLogger())
	c := h.Register("AAAAAAA", uuid.New())

	for i := 0; i < outBuffer+5; i++ {
		h.Broadcast(game.Event{Type: game.EventNumberCalled, Room: "AAAAAAA", Number: i + 1})
	}
	assert.Len(t, c.OutChan, outBuffer)
	assert.True(t, c.Lagged())
	assert.False(t, c.Lagged(), "reading the flag clears it")
}

func TestHubUnregister(t *testing.T) {
	h := NewHub(quietLogger())
	c := h.Register("AAAAAAA", uuid.New())
	other := h.Register("AAAAAAA", uuid.New())
	assert.Equal(t, 2, h.Count("AAAAAAA"))

	h.Unregister(c)
	h.Broadcast(game.Event{Type: game.EventGameReset, Room: "AAAAAAA"})
	assert.Empty(t, c.OutChan)
	assert.Len(t, other.OutChan, 1)

	h.Unregister(other)
	assert.Zero(t, h.Count("AAAAAAA"))
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t,
		[]string{"*", "bingo.example", "localhost:3000"},
		originPatterns([]string{"*", "https://bingo.example", "http://localhost:3000"}))
}
