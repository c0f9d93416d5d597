package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/awesomboard/gamesync/pkg/events"
	"github.com/awesomboard/gamesync/pkg/gamelog"
	"github.com/awesomboard/gamesync/pkg/messages"
	"github.com/awesomboard/gamesync/pkg/repository"
	"github.com/awesomboard/gamesync/pkg/rules"
	"github.com/awesomboard/gamesync/pkg/session"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := zap.NewNop()
	pub := events.NewPublisher()
	repo := repository.NewInMemoryRepository(logger)
	sessions := session.NewManager(gamelog.NewMemoryLog(), rules.NewChessEngine(), repo, pub, logger)

	hub := NewHub(sessions, pub, logger)
	go hub.Run()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		conn := NewConnection(ws, hub, pub, logger)
		hub.Register(conn)
		go conn.WritePump()
		go conn.ReadPump()
	}))
	t.Cleanup(srv.Close)

	return srv
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialClient(t *testing.T, srv *httptest.Server) *wsClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(event string, payload any) {
	c.t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(c.t, err)

	msg, err := json.Marshal(messages.InboundMessage{Event: event, Payload: raw})
	require.NoError(c.t, err)

	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, msg))
}

// readUntil skips broadcasts until a message of the wanted event arrives.
func (c *wsClient) readUntil(event string) json.RawMessage {
	c.t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	require.NoError(c.t, c.conn.SetReadDeadline(deadline))

	for time.Now().Before(deadline) {
		_, raw, err := c.conn.ReadMessage()
		require.NoError(c.t, err, "waiting for %s", event)

		var msg struct {
			Event   string          `json:"event"`
			Payload json.RawMessage `json:"payload"`
		}
		require.NoError(c.t, json.Unmarshal(raw, &msg))

		if msg.Event == event {
			return msg.Payload
		}
	}

	c.t.Fatalf("never received %s", event)
	return nil
}

// waitState polls GET_STATE until the state satisfies pred.
func (c *wsClient) waitState(sessionID string, pred func(messages.SessionStatePayload) bool) messages.SessionStatePayload {
	c.t.Helper()

	var state messages.SessionStatePayload
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c.send("GET_STATE", messages.GetStatePayload{SessionID: sessionID})
		raw := c.readUntil("SESSION_STATE")
		require.NoError(c.t, json.Unmarshal(raw, &state))
		if pred(state) {
			return state
		}
		time.Sleep(20 * time.Millisecond)
	}

	c.t.Fatalf("session state never converged, last: %+v", state)
	return state
}

func createSession(c *wsClient) messages.SessionCreatedPayload {
	c.t.Helper()

	c.send("CREATE_SESSION", map[string]any{
		"players": [2]string{"alice", "bob"},
		"time_control": map[string]int{
			"maximal_move_duration_sec": 120,
			"total_part_duration_sec":   1800,
		},
	})

	var created messages.SessionCreatedPayload
	require.NoError(c.t, json.Unmarshal(c.readUntil("SESSION_CREATED"), &created))
	return created
}

func TestHub_ConnectHandshake(t *testing.T) {
	srv := newTestServer(t)
	c := dialClient(t, srv)

	var connected messages.ConnectedPayload
	require.NoError(t, json.Unmarshal(c.readUntil("CONNECTED"), &connected))

	_, err := uuid.Parse(connected.ConnectionId)
	assert.NoError(t, err)
}

func TestHub_CreateSession(t *testing.T) {
	srv := newTestServer(t)
	c := dialClient(t, srv)
	c.readUntil("CONNECTED")

	created := createSession(c)

	_, err := uuid.Parse(created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, [2]string{"alice", "bob"}, created.Players)
	assert.Equal(t, int64(120_000), created.TurnMs)
	assert.Equal(t, int64(1_800_000), created.GlobalMs)
}

func TestHub_MakeMove(t *testing.T) {
	srv := newTestServer(t)
	c := dialClient(t, srv)
	c.readUntil("CONNECTED")

	created := createSession(c)
	c.waitState(created.SessionID, func(s messages.SessionStatePayload) bool { return s.CanMove })

	c.send("MAKE_MOVE", map[string]any{
		"session_id": created.SessionID,
		"move":       map[string]string{"notation": "e4"},
	})

	state := c.waitState(created.SessionID, func(s messages.SessionStatePayload) bool { return s.Turn == 1 })
	assert.Equal(t, "playerOne", state.Current)
	assert.Contains(t, state.Board, " b ")
}

func TestHub_MoveOutOfTurnReturnsError(t *testing.T) {
	srv := newTestServer(t)
	c := dialClient(t, srv)
	c.readUntil("CONNECTED")

	created := createSession(c)
	c.waitState(created.SessionID, func(s messages.SessionStatePayload) bool { return s.CanMove })

	c.send("MAKE_MOVE", map[string]any{
		"session_id": created.SessionID,
		"move":       map[string]string{"notation": "e4"},
	})
	c.waitState(created.SessionID, func(s messages.SessionStatePayload) bool { return s.Turn == 1 })

	// The creator holds seat zero; it is bob's turn now.
	c.send("MAKE_MOVE", map[string]any{
		"session_id": created.SessionID,
		"move":       map[string]string{"notation": "e5"},
	})

	var errMsg messages.ErrorPayload
	require.NoError(t, json.Unmarshal(c.readUntil("ERROR"), &errMsg))
	assert.Contains(t, errMsg.Message, "not your turn")
}

func TestHub_JoinAndPlayBothSeats(t *testing.T) {
	srv := newTestServer(t)

	alice := dialClient(t, srv)
	alice.readUntil("CONNECTED")
	created := createSession(alice)
	alice.waitState(created.SessionID, func(s messages.SessionStatePayload) bool { return s.CanMove })

	alice.send("MAKE_MOVE", map[string]any{
		"session_id": created.SessionID,
		"move":       map[string]string{"notation": "e4"},
	})
	alice.waitState(created.SessionID, func(s messages.SessionStatePayload) bool { return s.Turn == 1 })

	bob := dialClient(t, srv)
	bob.readUntil("CONNECTED")
	bob.send("JOIN_SESSION", map[string]string{
		"session_id": created.SessionID,
		"user":       "bob",
	})
	bob.readUntil("SESSION_STATE")

	bob.waitState(created.SessionID, func(s messages.SessionStatePayload) bool {
		return s.Turn == 1 && s.CanMove
	})

	bob.send("MAKE_MOVE", map[string]any{
		"session_id": created.SessionID,
		"move":       map[string]string{"notation": "e5"},
	})

	bob.waitState(created.SessionID, func(s messages.SessionStatePayload) bool { return s.Turn == 2 })
	alice.waitState(created.SessionID, func(s messages.SessionStatePayload) bool { return s.Turn == 2 })
}

func TestHub_DrawNegotiationOverWebsocket(t *testing.T) {
	srv := newTestServer(t)

	alice := dialClient(t, srv)
	alice.readUntil("CONNECTED")
	created := createSession(alice)
	alice.waitState(created.SessionID, func(s messages.SessionStatePayload) bool { return s.CanResign })

	bob := dialClient(t, srv)
	bob.readUntil("CONNECTED")
	bob.send("JOIN_SESSION", map[string]string{
		"session_id": created.SessionID,
		"user":       "bob",
	})
	bob.readUntil("SESSION_STATE")

	alice.send("PROPOSE_REQUEST", map[string]string{
		"session_id":   created.SessionID,
		"request_type": "Draw",
	})
	state := alice.waitState(created.SessionID, func(s messages.SessionStatePayload) bool {
		return s.RequestFromMe != ""
	})
	assert.Equal(t, "Draw", state.RequestFromMe)

	bob.waitState(created.SessionID, func(s messages.SessionStatePayload) bool {
		return s.RequestForMe == "Draw"
	})
	bob.send("ANSWER_REQUEST", map[string]any{
		"session_id":   created.SessionID,
		"request_type": "Draw",
		"accept":       true,
	})

	final := bob.waitState(created.SessionID, func(s messages.SessionStatePayload) bool { return s.Over })
	assert.Contains(t, final.Result, "draw agreed")
}

func TestHub_Resign(t *testing.T) {
	srv := newTestServer(t)
	c := dialClient(t, srv)
	c.readUntil("CONNECTED")

	created := createSession(c)
	c.waitState(created.SessionID, func(s messages.SessionStatePayload) bool { return s.CanResign })

	c.send("RESIGN", map[string]string{"session_id": created.SessionID})

	state := c.waitState(created.SessionID, func(s messages.SessionStatePayload) bool { return s.Over })
	assert.Contains(t, state.Result, "resignation of playerZero")
}

func TestHub_AddTimeGrantsOpponent(t *testing.T) {
	srv := newTestServer(t)
	c := dialClient(t, srv)
	c.readUntil("CONNECTED")

	created := createSession(c)
	c.waitState(created.SessionID, func(s messages.SessionStatePayload) bool { return s.CanResign })

	c.send("ADD_TIME", map[string]string{
		"session_id": created.SessionID,
		"clock":      "global",
	})

	state := c.waitState(created.SessionID, func(s messages.SessionStatePayload) bool {
		return s.GlobalMs[1] > 1_800_000
	})
	assert.LessOrEqual(t, state.GlobalMs[0], int64(1_800_000))
}

func TestHub_UnknownMessageType(t *testing.T) {
	srv := newTestServer(t)
	c := dialClient(t, srv)
	c.readUntil("CONNECTED")

	c.send("TELEPORT", map[string]string{})

	var errMsg messages.ErrorPayload
	require.NoError(t, json.Unmarshal(c.readUntil("ERROR"), &errMsg))
	assert.Contains(t, errMsg.Message, "unknown message type")
}
