// internal/game/claims.go
package game

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/bingo"
	"github.com/jason-s-yu/bingo/internal/models"
	"github.com/sirupsen/logrus"
)

// NoBingoMessage is all a player learns about a rejected claim.
const NoBingoMessage = "no bingo yet"

// ClaimRequest is a player's bingo call. Marks is optional evidence; when
// nil every called cell on the player's card counts. Pattern is the
// pattern the player believes they completed, used only for attribution.
type ClaimRequest struct {
	PlayerID uuid.UUID
	Pattern  bingo.Pattern
	Marks    []bingo.Pos
}

// ClaimResult is returned to the claiming player.
type ClaimResult struct {
	Accepted  bool          `json:"accepted"`
	Pattern   bingo.Pattern `json:"pattern,omitempty"`
	Duplicate bool          `json:"duplicate,omitempty"`
	Message   string        `json:"message"`
}

// Claim arbitrates a bingo claim. The card and the called numbers are always
// reloaded from the store; nothing the client remembers is trusted. The
// first accepted claim opens the co-winner window, and when it closes the
// room finishes with every winner recorded during it.
//
// Claims against a room that is not active, or that arrive after the
// co-winner window's deadline, return ErrStaleState and change nothing. A repeat claim from a player who already won is a no-op.
func (r *Room) Claim(ctx context.Context, req ClaimRequest) (ClaimResult, error) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.room.State != models.RoomActive {
		return ClaimResult{}, fmt.Errorf("claims are closed while the room is %s: %w", r.room.State, models.ErrStaleState)
	}
	for _, w := range r.winners {
		if w.PlayerID == req.PlayerID {
			return ClaimResult{Accepted: true, Pattern: w.Pattern, Duplicate: true, Message: "already a winner"}, nil
		}
	}
	if r.closing && r.opts.Now().After(r.windowDeadline) {
		return ClaimResult{}, fmt.Errorf("the co-winner window has closed: %w", models.ErrStaleState)
	}

	player, err := r.store.GetPlayer(ctx, r.Code, req.PlayerID)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("load card: %w", err)
	}
	calls, err := r.store.ListCalls(ctx, r.Code, r.room.Epoch)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("load calls: %w", err)
	}
	called := bingo.CalledSet(calls)

	marks := bingo.CalledMarks(player.Card, called)
	if req.Marks != nil {
		marks = bingo.NewMarks(req.Marks...)
	}
	matches := bingo.Matches(player.Card, marks, called, r.room.Patterns)

	claim := &models.Claim{
		ID:         uuid.New(),
		RoomCode:   r.Code,
		Epoch:      r.room.Epoch,
		PlayerID:   player.ID,
		Pattern:    req.Pattern,
		Marks:      req.Marks,
		Verdict:    models.VerdictRejected,
		ReceivedAt: r.opts.Now(),
	}
	log := r.logger().WithFields(logrus.Fields{"player": player.ID, "calls": len(calls)})

	if len(matches) == 0 {
		if err := r.store.AddClaim(ctx, claim); err != nil {
			log.WithError(err).Warn("could not record rejected claim")
		}
		log.Debug("claim rejected")
		return ClaimResult{Message: NoBingoMessage}, nil
	}

	pattern := matches[0]
	for _, m := range matches {
		if m == req.Pattern {
			pattern = m
		}
	}
	claim.Verdict = models.VerdictAccepted
	w := models.Winner{
		RoomCode:   r.Code,
		Epoch:      r.room.Epoch,
		PlayerID:   player.ID,
		PlayerName: player.Name,
		Pattern:    pattern,
		DeclaredAt: r.opts.Now(),
	}
	if err := r.store.RecordWin(ctx, claim, &w); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return ClaimResult{Accepted: true, Pattern: pattern, Duplicate: true, Message: "already a winner"}, nil
		}
		return ClaimResult{}, fmt.Errorf("record winner: %w", err)
	}
	r.winners = append(r.winners, w)
	r.emit(Event{
		Type:    EventClaimSubmitted,
		Player:  &EventPlayer{ID: player.ID, Name: player.Name},
		Pattern: pattern,
	})
	log.WithField("pattern", pattern).Info("claim accepted")

	if !r.closing {
		r.openWindowLocked(ctx)
	}
	return ClaimResult{Accepted: true, Pattern: pattern, Message: "bingo!"}, nil
}
