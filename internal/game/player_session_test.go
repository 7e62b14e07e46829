package game

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/bingo"
	"github.com/jason-s-yu/bingo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayerSessionMarking(t *testing.T) {
	r, store, _, host := setupTestRoom(t, 0)
	ctx := context.Background()
	p := joinWithCard(t, r, store, "Ada", bColumnCard())
	startScripted(t, r, host, 1)
	callN(t, r, host, 1)

	s, err := NewPlayerSession(ctx, p.ID, RoomSnapshotFunc(r, p.ID))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, s.Called())
	assert.Equal(t, models.RoomActive, s.State())

	require.NoError(t, s.Mark(bingo.Pos{Row: 0, Col: 0}))
	assert.ErrorIs(t, s.Mark(bingo.Pos{Row: 1, Col: 0}), models.ErrInvalidInput, "2 was not called")
	assert.ErrorIs(t, s.Mark(bingo.Pos{Row: 5, Col: 0}), models.ErrInvalidInput)
	require.NoError(t, s.Mark(bingo.Center))

	assert.Equal(t, []bingo.Pos{{Row: 0, Col: 0}, bingo.Center}, s.Marks())

	require.NoError(t, s.Unmark(bingo.Pos{Row: 0, Col: 0}))
	require.NoError(t, s.Unmark(bingo.Center))
	assert.Equal(t, []bingo.Pos{bingo.Center}, s.Marks(), "FREE cannot be unmarked")
}

func TestPlayerSessionIgnoresDuplicatesAndOldEpochs(t *testing.T) {
	r, store, _, host := setupTestRoom(t, 0)
	ctx := context.Background()
	p := joinWithCard(t, r, store, "Ada", bColumnCard())
	require.NoError(t, r.Start(ctx, host))

	s, err := NewPlayerSession(ctx, p.ID, RoomSnapshotFunc(r, p.ID))
	require.NoError(t, err)

	ev := Event{Type: EventNumberCalled, Room: r.Code, Epoch: 1, Number: 17}
	require.NoError(t, s.Apply(ctx, ev))
	require.NoError(t, s.Apply(ctx, ev))
	assert.Equal(t, []int{17}, s.Called(), "at-least-once delivery is idempotent")

	require.NoError(t, s.Apply(ctx, Event{Type: EventNumberCalled, Room: r.Code, Epoch: 0, Number: 30}))
	require.NoError(t, s.Apply(ctx, Event{Type: EventNumberCalled, Room: r.Code, Epoch: 1, Number: 99}))
	assert.Equal(t, []int{17}, s.Called())
}

func TestPlayerSessionRefreshesOnReset(t *testing.T) {
	r, store, mb, host := setupTestRoom(t, 0)
	ctx := context.Background()
	p := joinWithCard(t, r, store, "Ada", bColumnCard())
	startScripted(t, r, host, 1)
	callN(t, r, host, 1)

	s, err := NewPlayerSession(ctx, p.ID, RoomSnapshotFunc(r, p.ID))
	require.NoError(t, err)
	require.NoError(t, s.Mark(bingo.Pos{Row: 0, Col: 0}))

	require.NoError(t, r.NewGame(ctx, host))
	resets := mb.ofType(EventGameReset)
	require.Len(t, resets, 1)
	require.NoError(t, s.Apply(ctx, resets[0]))

	assert.Equal(t, 2, s.Epoch())
	assert.Equal(t, models.RoomLobby, s.State())
	assert.Empty(t, s.Called())
	assert.Equal(t, []bingo.Pos{bingo.Center}, s.Marks(), "marks do not survive a new game")
	card, seated := s.Card()
	assert.True(t, seated)
	assert.Equal(t, r.Snapshot(p.ID).You.Card, card)
}

func TestPlayerSessionRefreshesOnNewerEpoch(t *testing.T) {
	fetches := 0
	snap := Snapshot{Room: models.Room{Code: "ABCDEFG", State: models.RoomActive, Epoch: 1}}
	fetch := func(context.Context) (Snapshot, error) {
		fetches++
		return snap, nil
	}
	ctx := context.Background()
	s, err := NewPlayerSession(ctx, uuid.New(), fetch)
	require.NoError(t, err)
	require.Equal(t, 1, fetches)

	snap.Room.Epoch = 3
	snap.Calls = []int{8, 9}
	require.NoError(t, s.Apply(ctx, Event{Type: EventNumberCalled, Epoch: 3, Number: 9}))
	assert.Equal(t, 2, fetches)
	assert.Equal(t, 3, s.Epoch())
	assert.Equal(t, []int{8, 9}, s.Called())

	_, seated := s.Card()
	assert.False(t, seated)
	assert.ErrorIs(t, s.Mark(bingo.Center), models.ErrForbidden)
}

func TestPlayerSessionRun(t *testing.T) {
	r, store, _, host := setupTestRoom(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p := joinWithCard(t, r, store, "Ada", bColumnCard())
	require.NoError(t, r.Start(ctx, host))

	s, err := NewPlayerSession(ctx, p.ID, RoomSnapshotFunc(r, p.ID))
	require.NoError(t, err)

	events := make(chan Event, 4)
	events <- Event{Type: EventNumberCalled, Epoch: 1, Number: 3}
	events <- Event{Type: EventNumberCalled, Epoch: 1, Number: 3}
	events <- Event{Type: EventGameOver, Epoch: 1, Outcome: models.OutcomeDraw}
	close(events)

	var forwarded []EventType
	err = s.Run(ctx, events, func(ev Event) error {
		forwarded = append(forwarded, ev.Type)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventNumberCalled, EventNumberCalled, EventGameOver}, forwarded)
	assert.Equal(t, []int{3}, s.Called())
	assert.Equal(t, models.RoomFinished, s.State())

	boom := errors.New("socket closed")
	again := make(chan Event, 1)
	again <- Event{Type: EventNumberCalled, Epoch: 1, Number: 4}
	err = s.Run(ctx, again, func(Event) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestPlayerSessionKicked(t *testing.T) {
	r, store, mb, host := setupTestRoom(t, 0)
	ctx := context.Background()
	p := joinWithCard(t, r, store, "Ada", bColumnCard())

	s, err := NewPlayerSession(ctx, p.ID, RoomSnapshotFunc(r, p.ID))
	require.NoError(t, err)
	require.NoError(t, r.Kick(ctx, host, p.ID))
	require.NoError(t, s.Apply(ctx, *mb.getLastEvent()))

	_, seated := s.Card()
	assert.False(t, seated)
	assert.ErrorIs(t, s.Mark(bingo.Center), models.ErrForbidden)
}
