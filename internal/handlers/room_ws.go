// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/bingo/internal/bingo"
	"github.com/jason-s-yu/bingo/internal/game"
	"github.com/jason-s-yu/bingo/internal/middleware"
	"github.com/sirupsen/logrus"
)

// Subprotocol is the only WebSocket subprotocol the room socket speaks.
const Subprotocol = "bingo"

const writeTimeout = 5 * time.Second

// RoomMessage is an incoming message on the room socket.
type RoomMessage struct {
	Type string `json:"type"` // mark, unmark, claim, sync, ping

	Row int `json:"row,omitempty"`
	Col int `json:"col,omitempty"`

	Pattern string `json:"pattern,omitempty"`
	// Auto claims with every called cell instead of the daubed ones.
	Auto bool `json:"auto,omitempty"`
}

type snapshotMessage struct {
	Type     string        `json:"type"`
	Snapshot game.Snapshot `json:"snapshot"`
	Marks    []bingo.Pos   `json:"marks"`
}

type marksMessage struct {
	Type  string          `json:"type"`
	Marks []bingo.Pos     `json:"marks"`
	Ready []bingo.Pattern `json:"ready"`
}

type claimResultMessage struct {
	Type   string           `json:"type"`
	Result game.ClaimResult `json:"result"`
}

// originPatterns turns CORS origins into the host patterns the socket
// accepts.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}

// roomWS upgrades to a socket that streams room events. Seated players can
// also daub and claim over it. Identity is settled before the upgrade so
// the cookie rides on the handshake response.
func (s *Server) roomWS(w http.ResponseWriter, r *http.Request) {
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

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: originPatterns(s.Settings.AllowedOrigins),
	})
	if err != nil {
		s.Logger.WithError(err).WithField("room", room.Code).Warn("websocket accept error")
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != Subprotocol {
		c.Close(BadSubprotocolError, "client must speak the bingo subprotocol")
		return
	}

	// Subscribe before the first snapshot so nothing falls in between; the
	// session drops anything the snapshot already covered.
	conn := s.Hub.Register(room.Code, caller)
	defer s.Hub.Unregister(conn)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session, err := game.NewPlayerSession(ctx, caller, game.RoomSnapshotFunc(room, caller))
	if err != nil {
		c.Close(websocket.StatusInternalError, "could not load room")
		return
	}
	middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, room.Code, caller.String())

	if err := s.writeWS(ctx, c, s.snapshotFor(room, session, caller)); err != nil {
		return
	}

	writerDone := make(chan error, 1)
	go func() {
		writerDone <- session.Run(ctx, conn.OutChan, func(ev game.Event) error {
			if conn.Lagged() {
				if err := session.Refresh(ctx); err != nil {
					return err
				}
				return s.writeWS(ctx, c, s.snapshotFor(room, session, caller))
			}
			if err := s.writeWS(ctx, c, ev); err != nil {
				return err
			}
			if ev.Type == game.EventGameReset {
				return s.writeWS(ctx, c, s.snapshotFor(room, session, caller))
			}
			return nil
		})
		cancel()
	}()

	readErr := s.readRoomMessages(ctx, c, room, session, caller)
	cancel()
	<-writerDone

	middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, room.Code, caller.String(), readErr)
	c.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) snapshotFor(room *game.Room, session *game.PlayerSession, viewer uuid.UUID) snapshotMessage {
	return snapshotMessage{Type: "snapshot", Snapshot: room.Snapshot(viewer), Marks: session.Marks()}
}

// readRoomMessages handles client messages until the socket closes. A
// normal close returns nil.
func (s *Server) readRoomMessages(ctx context.Context, c *websocket.Conn, room *game.Room, session *game.PlayerSession, caller uuid.UUID) error {
	log := s.Logger.WithFields(logrus.Fields{"room": room.Code, "player": caller})
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			log.Debug("ignoring non-text message")
			continue
		}

		var msg RoomMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendWsError(ctx, c, "Invalid JSON format.", "invalid_input")
			continue
		}

		switch msg.Type {
		case "mark", "unmark":
			pos := bingo.Pos{Row: msg.Row, Col: msg.Col}
			if msg.Type == "mark" {
				err = session.Mark(pos)
			} else {
				err = session.Unmark(pos)
			}
			if err != nil {
				s.sendDomainError(ctx, c, err)
				continue
			}
			err = s.writeWS(ctx, c, marksMessage{Type: "marks", Marks: session.Marks(), Ready: session.Ready()})

		case "claim":
			req := session.ClaimRequest(bingo.Pattern(msg.Pattern))
			if msg.Auto {
				req.Marks = nil
			}
			res, cerr := room.Claim(ctx, req)
			if cerr != nil {
				s.sendDomainError(ctx, c, cerr)
				continue
			}
			log.WithField("accepted", res.Accepted).Debug("claim over socket")
			err = s.writeWS(ctx, c, claimResultMessage{Type: "claim_result", Result: res})

		case "sync":
			if err = session.Refresh(ctx); err == nil {
				err = s.writeWS(ctx, c, s.snapshotFor(room, session, caller))
			}

		case "ping":
			err = s.writeWS(ctx, c, map[string]string{"type": "pong"})

		default:
			s.sendWsError(ctx, c, fmt.Sprintf("Unknown message type: %s", msg.Type), "invalid_input")
		}
		if err != nil {
			return err
		}
	}
}

// writeWS marshals v and writes it with a bounded timeout. Writes from the
// reader and the event writer may interleave; the connection serializes
// them.
func (s *Server) writeWS(ctx context.Context, c *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal websocket message: %w", err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := c.Write(writeCtx, websocket.MessageText, data); err != nil {
		if !strings.Contains(err.Error(), "context canceled") {
			s.Logger.WithError(err).Debug("websocket write failed")
		}
		return err
	}
	return nil
}

func (s *Server) sendWsError(ctx context.Context, c *websocket.Conn, msg, code string) {
	_ = s.writeWS(ctx, c, map[string]string{"type": "error", "message": msg, "code": code})
}

func (s *Server) sendDomainError(ctx context.Context, c *websocket.Conn, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.Logger.WithError(err).Error("socket request failed")
		msg = "internal error"
	}
	s.sendWsError(ctx, c, msg, code)
}
