// internal/handlers/rooms.go
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/bingo"
	"github.com/jason-s-yu/bingo/internal/game"
	"github.com/jason-s-yu/bingo/internal/models"
)

type createRoomRequest struct {
	Patterns []string `json:"patterns"`
	Announce bool     `json:"announce"`
}

type roomResponse struct {
	game.Snapshot
	JoinURL string `json:"join_url"`
	IsHost  bool   `json:"is_host"`
}

type joinRequest struct {
	Name string `json:"name"`
}

type patternsRequest struct {
	Patterns []string `json:"patterns"`
}

type autoCallRequest struct {
	IntervalMs int64 `json:"interval_ms"`
	Stop       bool  `json:"stop"`
}

type announceRequest struct {
	Announce bool `json:"announce"`
}

type claimRequest struct {
	Pattern string      `json:"pattern"`
	Marks   []bingo.Pos `json:"marks"`
}

type callResponse struct {
	models.Call
	Label string `json:"label"`
}

func parsePatterns(names []string) ([]bingo.Pattern, error) {
	patterns, err := bingo.ParsePatterns(names)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, models.ErrInvalidInput)
	}
	return patterns, nil
}

// withRoom resolves the {code} path segment and the caller, then runs fn.
// Every room route goes through it.
func (s *Server) withRoom(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, room *game.Room, caller uuid.UUID) error) {
	caller, err := ensureIdentity(w, r)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	room, err := s.Rooms.GetRoom(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	if err := fn(r.Context(), room, caller); err != nil {
		writeError(w, s.Logger, err)
	}
}

func (s *Server) snapshotResponse(room *game.Room, viewer uuid.UUID) roomResponse {
	return roomResponse{
		Snapshot: room.Snapshot(viewer),
		JoinURL:  s.Settings.JoinURL(room.Code),
		IsHost:   room.IsHost(viewer),
	}
}

// createRoom makes the caller host of a new room.
func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	host, err := ensureIdentity(w, r)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	var req createRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.Logger, err)
		return
	}
	patterns, err := parsePatterns(req.Patterns)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}

	room, err := s.Rooms.CreateRoom(r.Context(), host, patterns, req.Announce)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.snapshotResponse(room, host))
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	s.withRoom(w, r, func(_ context.Context, room *game.Room, caller uuid.UUID) error {
		writeJSON(w, http.StatusOK, s.snapshotResponse(room, caller))
		return nil
	})
}

// joinRoom seats the caller and returns their card.
func (s *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	s.withRoom(w, r, func(ctx context.Context, room *game.Room, caller uuid.UUID) error {
		var req joinRequest
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		p, err := room.Join(ctx, caller, req.Name)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, p)
		return nil
	})
}

func (s *Server) leaveRoom(w http.ResponseWriter, r *http.Request) {
	s.withRoom(w, r, func(ctx context.Context, room *game.Room, caller uuid.UUID) error {
		if err := room.Leave(ctx, caller); err != nil {
			return err
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

func (s *Server) setPatterns(w http.ResponseWriter, r *http.Request) {
	s.withRoom(w, r, func(ctx context.Context, room *game.Room, caller uuid.UUID) error {
		var req patternsRequest
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		patterns, err := parsePatterns(req.Patterns)
		if err != nil {
			return err
		}
		if err := room.SetPatterns(ctx, caller, patterns); err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, room.Model())
		return nil
	})
}

func (s *Server) startGame(w http.ResponseWriter, r *http.Request) {
	s.withRoom(w, r, func(ctx context.Context, room *game.Room, caller uuid.UUID) error {
		if err := room.Start(ctx, caller); err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, room.Model())
		return nil
	})
}

func (s *Server) callNext(w http.ResponseWriter, r *http.Request) {
	s.withRoom(w, r, func(ctx context.Context, room *game.Room, caller uuid.UUID) error {
		call, err := room.CallNext(ctx, caller)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, callResponse{Call: call, Label: bingo.Label(call.Number)})
		return nil
	})
}

// autoCall starts auto-calling at interval_ms, or stops it when stop is set.
func (s *Server) autoCall(w http.ResponseWriter, r *http.Request) {
	s.withRoom(w, r, func(ctx context.Context, room *game.Room, caller uuid.UUID) error {
		var req autoCallRequest
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		if req.Stop {
			if err := room.StopAutoCall(caller); err != nil {
				return err
			}
			w.WriteHeader(http.StatusNoContent)
			return nil
		}

		interval := time.Duration(req.IntervalMs) * time.Millisecond
		if interval < s.Settings.MinAutoCall {
			return fmt.Errorf("interval must be at least %s: %w", s.Settings.MinAutoCall, models.ErrInvalidInput)
		}
		if err := room.StartAutoCall(caller, interval); err != nil {
			return err
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

func (s *Server) newGame(w http.ResponseWriter, r *http.Request) {
	s.withRoom(w, r, func(ctx context.Context, room *game.Room, caller uuid.UUID) error {
		if err := room.NewGame(ctx, caller); err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, room.Model())
		return nil
	})
}

func (s *Server) setAnnounce(w http.ResponseWriter, r *http.Request) {
	s.withRoom(w, r, func(ctx context.Context, room *game.Room, caller uuid.UUID) error {
		var req announceRequest
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		if err := room.SetAnnounce(ctx, caller, req.Announce); err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, room.Model())
		return nil
	})
}

func (s *Server) kickPlayer(w http.ResponseWriter, r *http.Request) {
	s.withRoom(w, r, func(ctx context.Context, room *game.Room, caller uuid.UUID) error {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			return fmt.Errorf("player id: %v: %w", err, models.ErrInvalidInput)
		}
		if err := room.Kick(ctx, caller, id); err != nil {
			return err
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

// claim submits a bingo claim for the caller. Marks are optional evidence.
func (s *Server) claim(w http.ResponseWriter, r *http.Request) {
	s.withRoom(w, r, func(ctx context.Context, room *game.Room, caller uuid.UUID) error {
		var req claimRequest
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		res, err := room.Claim(ctx, game.ClaimRequest{
			PlayerID: caller,
			Pattern:  bingo.Pattern(req.Pattern),
			Marks:    req.Marks,
		})
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, res)
		return nil
	})
}
