package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/bingo/internal/bingo"
	"github.com/jason-s-yu/bingo/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsFrame struct {
	Type string `json:"type"`
	raw  json.RawMessage
}

func dialRoom(t *testing.T, ctx context.Context, base, code, token string, subprotocols ...string) *websocket.Conn {
	t.Helper()
	if len(subprotocols) == 0 {
		subprotocols = []string{Subprotocol}
	}
	url := "ws" + strings.TrimPrefix(base, "http") + "/rooms/" + code + "/ws"
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: subprotocols,
		HTTPHeader:   http.Header{"Authorization": {"Bearer " + token}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

// readUntil skips frames until one of the wanted type arrives.
func readUntil(t *testing.T, ctx context.Context, c *websocket.Conn, want string) wsFrame {
	t.Helper()
	for {
		_, data, err := c.Read(ctx)
		require.NoError(t, err, "waiting for %s", want)
		var f wsFrame
		require.NoError(t, json.Unmarshal(data, &f))
		if f.Type == want {
			f.raw = data
			return f
		}
	}
}

func send(t *testing.T, ctx context.Context, c *websocket.Conn, msg RoomMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, c.Write(ctx, websocket.MessageText, data))
}

func TestRoomSocket(t *testing.T) {
	ts, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	host := &apiClient{t: t, base: ts.URL}
	player := &apiClient{t: t, base: ts.URL}
	room := createRoom(t, host, nil)
	code := room.Room.Code
	player.expect(http.StatusOK, http.MethodPost, "/rooms/"+code+"/join", joinRequest{Name: "Ada"})

	c := dialRoom(t, ctx, ts.URL, code, player.token)

	var snap snapshotMessage
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, c, "snapshot").raw, &snap))
	require.NotNil(t, snap.Snapshot.You)
	card := snap.Snapshot.You.Card
	assert.Equal(t, []bingo.Pos{bingo.Center}, snap.Marks)

	host.expect(http.StatusOK, http.MethodPost, "/rooms/"+code+"/start", nil)
	readUntil(t, ctx, c, string(game.EventGameStarted))

	// call until a number lands on the player's card
	called := map[int]bool{}
	var hit bingo.Pos
	for {
		host.expect(http.StatusOK, http.MethodPost, "/rooms/"+code+"/call", nil)
		var ev game.Event
		require.NoError(t, json.Unmarshal(readUntil(t, ctx, c, string(game.EventNumberCalled)).raw, &ev))
		called[ev.Number] = true
		if p, ok := card.Find(ev.Number); ok {
			hit = p
			break
		}
	}

	send(t, ctx, c, RoomMessage{Type: "mark", Row: hit.Row, Col: hit.Col})
	var marks marksMessage
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, c, "marks").raw, &marks))
	assert.Contains(t, marks.Marks, hit)

	var uncalled bingo.Pos
	for row := 0; row < bingo.Size; row++ {
		for col := 0; col < bingo.Size; col++ {
			p := bingo.Pos{Row: row, Col: col}
			if !card.IsFree(p) && !called[card.At(p)] {
				uncalled = p
			}
		}
	}
	send(t, ctx, c, RoomMessage{Type: "mark", Row: uncalled.Row, Col: uncalled.Col})
	var errMsg map[string]string
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, c, "error").raw, &errMsg))
	assert.Equal(t, "invalid_input", errMsg["code"])

	send(t, ctx, c, RoomMessage{Type: "claim"})
	var claim claimResultMessage
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, c, "claim_result").raw, &claim))
	assert.False(t, claim.Result.Accepted, "one daub is not a line")

	send(t, ctx, c, RoomMessage{Type: "ping"})
	readUntil(t, ctx, c, "pong")

	send(t, ctx, c, RoomMessage{Type: "sync"})
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, c, "snapshot").raw, &snap))
	assert.Len(t, snap.Snapshot.Calls, len(called))
	assert.Contains(t, snap.Marks, hit)

	host.expect(http.StatusOK, http.MethodPost, "/rooms/"+code+"/new-game", nil)
	readUntil(t, ctx, c, string(game.EventGameReset))
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, c, "snapshot").raw, &snap))
	assert.Equal(t, 2, snap.Snapshot.Room.Epoch)
	assert.Empty(t, snap.Snapshot.Calls)
	assert.Equal(t, []bingo.Pos{bingo.Center}, snap.Marks)
}

func TestRoomSocketSpectator(t *testing.T) {
	ts, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	host := &apiClient{t: t, base: ts.URL}
	room := createRoom(t, host, nil)

	c := dialRoom(t, ctx, ts.URL, room.Room.Code, host.token)
	var snap snapshotMessage
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, c, "snapshot").raw, &snap))
	assert.Nil(t, snap.Snapshot.You, "the host is not seated")

	send(t, ctx, c, RoomMessage{Type: "mark", Row: 0, Col: 0})
	var errMsg map[string]string
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, c, "error").raw, &errMsg))
	assert.Equal(t, "forbidden", errMsg["code"])

	player := &apiClient{t: t, base: ts.URL}
	player.expect(http.StatusOK, http.MethodPost, "/rooms/"+room.Room.Code+"/join", joinRequest{Name: "Ada"})
	var ev game.Event
	require.NoError(t, json.Unmarshal(readUntil(t, ctx, c, string(game.EventPlayerJoined)).raw, &ev))
	assert.Equal(t, "Ada", ev.Player.Name)
}

func TestRoomSocketRejectsWrongSubprotocol(t *testing.T) {
	ts, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	host := &apiClient{t: t, base: ts.URL}
	room := createRoom(t, host, nil)

	c := dialRoom(t, ctx, ts.URL, room.Room.Code, host.token, "lobby")
	_, _, err := c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusCode(BadSubprotocolError), websocket.CloseStatus(err))
}

func TestRoomSocketUnknownRoom(t *testing.T) {
	ts, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/rooms/ZZZZZZZ/ws"
	_, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{Subprotocols: []string{Subprotocol}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoomSocketRejectsForeignOrigin(t *testing.T) {
	ts, _ := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	host := &apiClient{t: t, base: ts.URL}
	room := createRoom(t, host, nil)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/rooms/" + room.Room.Code + "/ws"
	_, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
		HTTPHeader: http.Header{
			"Authorization": {"Bearer " + host.token},
			"Origin":        {"https://evil.example"},
		},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
