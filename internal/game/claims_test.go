package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/bingo"
	"github.com/jason-s-yu/bingo/internal/database"
	"github.com/jason-s-yu/bingo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEndToEndNormalWin: host calls 1..5, the player marks the B column,
// claims, and the room finishes. A later call changes nothing.
func TestEndToEndNormalWin(t *testing.T) {
	r, store, mb, host := setupTestRoom(t, 0)
	ctx := context.Background()
	p := joinWithCard(t, r, store, "Ada", bColumnCard())
	startScripted(t, r, host, 1, 2, 3, 4, 5)

	session, err := NewPlayerSession(ctx, p.ID, RoomSnapshotFunc(r, p.ID))
	require.NoError(t, err)

	nums := callN(t, r, host, 5)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, nums)
	for _, ev := range mb.ofType(EventNumberCalled) {
		require.NoError(t, session.Apply(ctx, ev))
	}
	for row := 0; row < bingo.Size; row++ {
		require.NoError(t, session.Mark(bingo.Pos{Row: row, Col: 0}))
	}
	assert.Equal(t, []bingo.Pattern{bingo.PatternNormal}, session.Ready())

	res, err := r.Claim(ctx, session.ClaimRequest(bingo.PatternNormal))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, bingo.PatternNormal, res.Pattern)

	m := r.Model()
	assert.Equal(t, models.RoomFinished, m.State)
	assert.Equal(t, models.OutcomeWon, m.Outcome)

	declared := mb.ofType(EventWinnerDeclared)
	require.Len(t, declared, 1)
	require.Len(t, declared[0].Winners, 1)
	assert.Equal(t, p.ID, declared[0].Winners[0].PlayerID)
	assert.Equal(t, "Ada", declared[0].Winners[0].PlayerName)

	_, err = r.CallNext(ctx, host)
	assert.ErrorIs(t, err, models.ErrStaleState)
	calls, err := store.ListCalls(ctx, r.Code, 1)
	require.NoError(t, err)
	assert.Len(t, calls, 5)
}

func TestClaimAfterFinishIsIdempotent(t *testing.T) {
	r, store, mb, host := setupTestRoom(t, 0)
	ctx := context.Background()
	p := joinWithCard(t, r, store, "Ada", bColumnCard())
	startScripted(t, r, host, 1, 2, 3, 4, 5)
	callN(t, r, host, 5)

	_, err := r.Claim(ctx, ClaimRequest{PlayerID: p.ID})
	require.NoError(t, err)
	claimsBefore := len(store.Claims(r.Code, 1))
	eventsBefore := len(mb.ofType(EventWinnerDeclared))

	for i := 0; i < 2; i++ {
		_, err = r.Claim(ctx, ClaimRequest{PlayerID: p.ID})
		assert.ErrorIs(t, err, models.ErrStaleState)
	}

	winners, err := store.ListWinners(ctx, r.Code, 1)
	require.NoError(t, err)
	assert.Len(t, winners, 1, "no second winner record")
	assert.Len(t, store.Claims(r.Code, 1), claimsBefore, "stale claims write nothing")
	assert.Len(t, mb.ofType(EventWinnerDeclared), eventsBefore)
}

func TestRejectedClaimChangesNothing(t *testing.T) {
	r, store, mb, host := setupTestRoom(t, 0)
	ctx := context.Background()
	p := joinWithCard(t, r, store, "Ada", bColumnCard())
	startScripted(t, r, host, 1, 2, 3, 4)
	callN(t, r, host, 4)

	res, err := r.Claim(ctx, ClaimRequest{PlayerID: p.ID})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, NoBingoMessage, res.Message)

	assert.Equal(t, models.RoomActive, r.Model().State)
	assert.Empty(t, mb.ofType(EventClaimSubmitted))
	claims := store.Claims(r.Code, 1)
	require.Len(t, claims, 1)
	assert.Equal(t, models.VerdictRejected, claims[0].Verdict)

	// calling carries on
	_, err = r.CallNext(ctx, host)
	assert.NoError(t, err)
}

func TestClaimEvidenceIsCheckedAgainstCalls(t *testing.T) {
	r, store, _, host := setupTestRoom(t, 0)
	ctx := context.Background()
	p := joinWithCard(t, r, store, "Ada", bColumnCard())
	startScripted(t, r, host, 1, 2, 3, 4)
	callN(t, r, host, 4)

	// 5 was never called, so marking it proves nothing
	column := []bingo.Pos{{Row: 0, Col: 0}, {Row: 1, Col: 0}, {Row: 2, Col: 0}, {Row: 3, Col: 0}, {Row: 4, Col: 0}}
	res, err := r.Claim(ctx, ClaimRequest{PlayerID: p.ID, Marks: column})
	require.NoError(t, err)
	assert.False(t, res.Accepted)

	callsOrder := []int{5}
	r.Mu.Lock()
	err = r.seq.Script(callsOrder)
	r.Mu.Unlock()
	require.NoError(t, err)
	callN(t, r, host, 1)

	// all called, but one cell left unmarked
	res, err = r.Claim(ctx, ClaimRequest{PlayerID: p.ID, Marks: column[:4]})
	require.NoError(t, err)
	assert.False(t, res.Accepted)

	res, err = r.Claim(ctx, ClaimRequest{PlayerID: p.ID, Marks: column})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestClaimHonoursEnabledPatterns(t *testing.T) {
	r, store, _, host := setupTestRoom(t, 0)
	ctx := context.Background()
	require.NoError(t, r.SetPatterns(ctx, host, []bingo.Pattern{bingo.PatternBlackout}))
	p := joinWithCard(t, r, store, "Ada", bColumnCard())
	startScripted(t, r, host, 1, 2, 3, 4, 5)
	callN(t, r, host, 5)

	res, err := r.Claim(ctx, ClaimRequest{PlayerID: p.ID, Pattern: bingo.PatternNormal})
	require.NoError(t, err)
	assert.False(t, res.Accepted, "a line is not a blackout")
}

func TestCoWinnersWithinGraceWindow(t *testing.T) {
	r, store, mb, host := setupTestRoom(t, 150*time.Millisecond)
	ctx := context.Background()
	a := joinWithCard(t, r, store, "A", bColumnCard())
	b := joinWithCard(t, r, store, "B", bColumnCard())
	late := joinWithCard(t, r, store, "Late", bColumnCard())
	startScripted(t, r, host, 1, 2, 3, 4, 5)
	callN(t, r, host, 5)

	var wg sync.WaitGroup
	results := make([]ClaimResult, 2)
	errs := make([]error, 2)
	for i, id := range []uuid.UUID{a.ID, b.ID} {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			results[i], errs[i] = r.Claim(ctx, ClaimRequest{PlayerID: id})
		}(i, id)
	}
	wg.Wait()
	for i := range results {
		require.NoError(t, errs[i])
		assert.True(t, results[i].Accepted)
	}

	// the window is open: calling is halted but the room is not finished yet
	snap := r.Snapshot(uuid.Nil)
	assert.True(t, snap.ClaimWindowOpen)
	assert.Equal(t, models.RoomActive, snap.Room.State)
	_, err := r.CallNext(ctx, host)
	assert.ErrorIs(t, err, models.ErrStaleState)
	assert.Len(t, mb.ofType(EventClaimSubmitted), 2)
	assert.Empty(t, mb.ofType(EventWinnerDeclared))

	require.Eventually(t, func() bool {
		return r.Model().State == models.RoomFinished
	}, 2*time.Second, 5*time.Millisecond)

	declared := mb.ofType(EventWinnerDeclared)
	require.Len(t, declared, 1)
	ids := []uuid.UUID{declared[0].Winners[0].PlayerID, declared[0].Winners[1].PlayerID}
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, ids)

	_, err = r.Claim(ctx, ClaimRequest{PlayerID: late.ID})
	assert.ErrorIs(t, err, models.ErrStaleState, "claims after the window closes are stale")

	winners, err := store.ListWinners(ctx, r.Code, 1)
	require.NoError(t, err)
	assert.Len(t, winners, 2)
}

func TestDuplicateClaimDuringWindow(t *testing.T) {
	r, store, mb, host := setupTestRoom(t, time.Minute)
	ctx := context.Background()
	p := joinWithCard(t, r, store, "Ada", bColumnCard())
	startScripted(t, r, host, 1, 2, 3, 4, 5)
	callN(t, r, host, 5)

	first, err := r.Claim(ctx, ClaimRequest{PlayerID: p.ID})
	require.NoError(t, err)
	require.True(t, first.Accepted)
	assert.False(t, first.Duplicate)

	second, err := r.Claim(ctx, ClaimRequest{PlayerID: p.ID})
	require.NoError(t, err)
	assert.True(t, second.Accepted)
	assert.True(t, second.Duplicate)

	assert.Len(t, mb.ofType(EventClaimSubmitted), 1)
	winners, err := store.ListWinners(ctx, r.Code, 1)
	require.NoError(t, err)
	assert.Len(t, winners, 1)
}

func TestClaimHaltsAutoCall(t *testing.T) {
	r, store, _, host := setupTestRoom(t, 0)
	ctx := context.Background()
	p := joinWithCard(t, r, store, "Ada", bColumnCard())
	startScripted(t, r, host, 1, 2, 3, 4, 5)
	require.NoError(t, r.StartAutoCall(host, 2*time.Millisecond))

	require.Eventually(t, func() bool {
		return len(r.Snapshot(uuid.Nil).Calls) >= 5
	}, time.Second, time.Millisecond)

	res, err := r.Claim(ctx, ClaimRequest{PlayerID: p.ID})
	require.NoError(t, err)
	require.True(t, res.Accepted)

	settled := len(r.Snapshot(uuid.Nil).Calls)
	time.Sleep(20 * time.Millisecond)
	calls, err := store.ListCalls(ctx, r.Code, 1)
	require.NoError(t, err)
	assert.Len(t, calls, settled, "no call after a winner is confirmed")
	assert.Equal(t, models.RoomFinished, r.Model().State)
}

func TestNewGameDuringWindowDropsPendingWinners(t *testing.T) {
	r, store, mb, host := setupTestRoom(t, 50*time.Millisecond)
	ctx := context.Background()
	p := joinWithCard(t, r, store, "Ada", bColumnCard())
	startScripted(t, r, host, 1, 2, 3, 4, 5)
	callN(t, r, host, 5)

	_, err := r.Claim(ctx, ClaimRequest{PlayerID: p.ID})
	require.NoError(t, err)
	require.NoError(t, r.NewGame(ctx, host))

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, mb.ofType(EventWinnerDeclared), "cancelled window never finalizes")
	assert.Equal(t, models.RoomLobby, r.Model().State)
}

func TestWinWriteFailureLeavesNoAcceptedClaim(t *testing.T) {
	ctx := context.Background()
	r, store, mb, host := setupFailingRoom(t)
	p := joinWithCard(t, r, store.MemoryStore, "Ada", bColumnCard())
	startScripted(t, r, host, 1, 2, 3, 4, 5)
	callN(t, r, host, 5)

	store.setFail("RecordWin", true)
	_, err := r.Claim(ctx, ClaimRequest{PlayerID: p.ID})
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrStaleState)
	assert.Empty(t, store.Claims(r.Code, 1))
	winners, err := store.ListWinners(ctx, r.Code, 1)
	require.NoError(t, err)
	assert.Empty(t, winners)
	assert.Empty(t, mb.ofType(EventClaimSubmitted))
	assert.False(t, r.Snapshot(uuid.Nil).ClaimWindowOpen)

	store.setFail("RecordWin", false)
	res, err := r.Claim(ctx, ClaimRequest{PlayerID: p.ID})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	claims := store.Claims(r.Code, 1)
	require.Len(t, claims, 1)
	assert.Equal(t, models.VerdictAccepted, claims[0].Verdict)
	winners, err = store.ListWinners(ctx, r.Code, 1)
	require.NoError(t, err)
	assert.Len(t, winners, 1)
}

func TestClaimAfterDeadlineIsLate(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := database.NewMemoryStore()
	mb := newMockBroadcaster()
	rs := NewRoomStore(store, BroadcastFunc(mb.broadcastFn), Options{
		GraceWindow: time.Hour,
		Seed:        1,
		Logger:      quietLogger(),
		Now:         clock.Now,
	})
	host := uuid.New()
	r, err := rs.CreateRoom(ctx, host, nil, false)
	require.NoError(t, err)
	t.Cleanup(r.Close)

	a := joinWithCard(t, r, store, "A", bColumnCard())
	b := joinWithCard(t, r, store, "B", bColumnCard())
	startScripted(t, r, host, 1, 2, 3, 4, 5)
	callN(t, r, host, 5)

	res, err := r.Claim(ctx, ClaimRequest{PlayerID: a.ID})
	require.NoError(t, err)
	require.True(t, res.Accepted)

	clock.advance(time.Hour + time.Millisecond)
	_, err = r.Claim(ctx, ClaimRequest{PlayerID: b.ID})
	assert.ErrorIs(t, err, models.ErrStaleState, "the deadline passed before the timer fired")
	assert.Equal(t, models.RoomActive, r.Model().State)

	winners, err := store.ListWinners(ctx, r.Code, 1)
	require.NoError(t, err)
	require.Len(t, winners, 1)
	assert.Equal(t, a.ID, winners[0].PlayerID)
	assert.Len(t, store.Claims(r.Code, 1), 1)
}
