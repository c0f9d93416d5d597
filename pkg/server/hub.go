package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/awesomboard/gamesync/pkg/events"
	"github.com/awesomboard/gamesync/pkg/gamelog"
	"github.com/awesomboard/gamesync/pkg/messages"
	"github.com/awesomboard/gamesync/pkg/session"
)

// InboundHubMessage are the messages that the hub receives
type InboundHubMessage struct {
	Conn    *Connection             // who sent it
	Message messages.InboundMessage // decoded wrapper
}

// Hub keeps track of all active connections, routes their messages to the
// session manager, and pushes session notifications back out to every
// connection watching the session.
type Hub struct {
	mu          sync.RWMutex
	connections map[*Connection]bool
	watchers    map[string]map[uuid.UUID]*Connection // session id -> conn id

	register   chan *Connection
	unregister chan *Connection
	inbound    chan InboundHubMessage

	sessions  *session.Manager
	publisher *events.Publisher
	logger    *zap.Logger
}

const opTimeout = 10 * time.Second

// NewHub creates a new hub
func NewHub(sessions *session.Manager, publisher *events.Publisher, logger *zap.Logger) *Hub {
	h := &Hub{
		connections: make(map[*Connection]bool),
		watchers:    make(map[string]map[uuid.UUID]*Connection),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		inbound:     make(chan InboundHubMessage),
		sessions:    sessions,
		publisher:   publisher,
		logger:      logger,
	}

	h.setupEventHandlers()

	return h
}

// setupEventHandlers forwards session notifications to watching clients.
func (h *Hub) setupEventHandlers() {
	forward := []events.EventType{
		events.EventMoveApplied,
		events.EventClockUpdated,
		events.EventRequestPending,
		events.EventRequestResolved,
		events.EventGameOver,
		events.EventReplicaFailed,
	}

	for _, typ := range forward {
		typ := typ
		h.publisher.Subscribe(typ, func(event events.Event) {
			h.broadcastToSession(event.SessionID, messages.OutboundMessage{
				Event:   string(typ),
				Payload: event.Payload,
			})
		})
	}
}

// Run is the main execution of the hub
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.registerConnection(conn)

		case conn := <-h.unregister:
			h.unregisterConnection(conn)

		case msg := <-h.inbound:
			h.handleInbound(msg)
		}
	}
}

func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.connections {
		close(conn.send)
		delete(h.connections, conn)
	}
}

func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[conn] = true
	h.logger.Info("new connection registered", zap.Int("total", len(h.connections)))

	conn.SendJSON(messages.OutboundMessage{
		Event: "CONNECTED",
		Payload: messages.ConnectedPayload{
			ConnectionId: conn.ID.String(),
		},
	})
}

func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.connections[conn]; ok {
		delete(h.connections, conn)
		close(conn.send)
	}

	for id, conns := range h.watchers {
		delete(conns, conn.ID)
		if len(conns) == 0 {
			delete(h.watchers, id)
		}
	}

	h.logger.Info("connection unregistered", zap.Int("total", len(h.connections)))
}

// handleInbound decodes and routes one message from a client.
func (h *Hub) handleInbound(msg InboundHubMessage) {
	switch msg.Message.Event {
	case "CREATE_SESSION":
		h.handleCreateSession(msg)
	case "JOIN_SESSION":
		h.handleJoinSession(msg)
	case "MAKE_MOVE":
		h.handleMakeMove(msg)
	case "PROPOSE_REQUEST":
		h.handlePropose(msg)
	case "ANSWER_REQUEST":
		h.handleAnswer(msg)
	case "ADD_TIME":
		h.handleAddTime(msg)
	case "RESIGN":
		h.handleResign(msg)
	case "GET_STATE":
		h.handleGetState(msg)
	default:
		h.sendError(msg.Conn, "unknown message type")
	}
}

func (h *Hub) handleCreateSession(msg InboundHubMessage) {
	var payload messages.CreateSessionPayload
	if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
		h.sendError(msg.Conn, "invalid CREATE_SESSION payload")
		return
	}

	cfg := session.Config{Players: payload.Players}
	cfg.Clock.MaximalMoveDuration = time.Duration(payload.TimeControl.MaximalMoveDurationSec) * time.Second
	cfg.Clock.TotalPartDuration = time.Duration(payload.TimeControl.TotalPartDurationSec) * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	ctrl, err := h.sessions.CreateSession(ctx, msg.Conn.ID, cfg)
	if err != nil {
		h.sendError(msg.Conn, err.Error())
		return
	}

	h.watch(ctrl.ID().String(), msg.Conn)

	msg.Conn.SendJSON(messages.OutboundMessage{
		Event: "SESSION_CREATED",
		Payload: messages.SessionCreatedPayload{
			SessionID: ctrl.ID().String(),
			Players:   cfg.Players,
			TurnMs:    cfg.Clock.MaximalMoveDuration.Milliseconds(),
			GlobalMs:  cfg.Clock.TotalPartDuration.Milliseconds(),
		},
	})
}

func (h *Hub) handleJoinSession(msg InboundHubMessage) {
	var payload messages.JoinSessionPayload
	if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
		h.sendError(msg.Conn, "invalid JOIN_SESSION payload")
		return
	}

	id, err := uuid.Parse(payload.SessionID)
	if err != nil {
		h.sendError(msg.Conn, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	ctrl, err := h.sessions.JoinSession(ctx, msg.Conn.ID, id, payload.User)
	if err != nil {
		h.sendError(msg.Conn, err.Error())
		return
	}

	h.watch(payload.SessionID, msg.Conn)
	h.sendState(msg.Conn, ctrl)
}

func (h *Hub) handleMakeMove(msg InboundHubMessage) {
	var payload messages.MakeMovePayload
	if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
		h.sendError(msg.Conn, "invalid MAKE_MOVE payload")
		return
	}

	h.withReplica(msg.Conn, payload.SessionID, func(ctx context.Context, ctrl *session.Controller) error {
		return ctrl.SubmitMove(ctx, payload.Move)
	})
}

func (h *Hub) handlePropose(msg InboundHubMessage) {
	var payload messages.ProposeRequestPayload
	if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
		h.sendError(msg.Conn, "invalid PROPOSE_REQUEST payload")
		return
	}

	h.withReplica(msg.Conn, payload.SessionID, func(ctx context.Context, ctrl *session.Controller) error {
		return ctrl.Propose(ctx, gamelog.RequestKind(payload.RequestType))
	})
}

func (h *Hub) handleAnswer(msg InboundHubMessage) {
	var payload messages.AnswerRequestPayload
	if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
		h.sendError(msg.Conn, "invalid ANSWER_REQUEST payload")
		return
	}

	h.withReplica(msg.Conn, payload.SessionID, func(ctx context.Context, ctrl *session.Controller) error {
		kind := gamelog.RequestKind(payload.RequestType)
		if payload.Accept {
			return ctrl.Accept(ctx, kind)
		}
		return ctrl.Reject(ctx, kind)
	})
}

func (h *Hub) handleAddTime(msg InboundHubMessage) {
	var payload messages.AddTimePayload
	if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
		h.sendError(msg.Conn, "invalid ADD_TIME payload")
		return
	}

	h.withReplica(msg.Conn, payload.SessionID, func(ctx context.Context, ctrl *session.Controller) error {
		switch payload.Clock {
		case "turn":
			return ctrl.AddTurnTime(ctx)
		case "global":
			return ctrl.AddGlobalTime(ctx)
		default:
			return fmt.Errorf("unknown clock %q", payload.Clock)
		}
	})
}

func (h *Hub) handleResign(msg InboundHubMessage) {
	var payload messages.ResignPayload
	if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
		h.sendError(msg.Conn, "invalid RESIGN payload")
		return
	}

	h.withReplica(msg.Conn, payload.SessionID, func(ctx context.Context, ctrl *session.Controller) error {
		return ctrl.Resign(ctx)
	})
}

func (h *Hub) handleGetState(msg InboundHubMessage) {
	var payload messages.GetStatePayload
	if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
		h.sendError(msg.Conn, "invalid GET_STATE payload")
		return
	}

	h.withReplica(msg.Conn, payload.SessionID, func(context.Context, *session.Controller) error {
		return nil
	})
}

// withReplica resolves the caller's replica, runs op, and answers with
// either an error or the refreshed session state.
func (h *Hub) withReplica(conn *Connection, sessionID string, op func(context.Context, *session.Controller) error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		h.sendError(conn, err.Error())
		return
	}

	ctrl, ok := h.sessions.GetReplica(id, conn.ID)
	if !ok {
		h.sendError(conn, fmt.Sprintf("no replica of session %s for this connection", sessionID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := op(ctx, ctrl); err != nil {
		var verr *session.ValidationError
		if errors.As(err, &verr) {
			h.sendError(conn, verr.Reason)
		} else {
			h.logger.Error("session operation failed", zap.Error(err))
			h.sendError(conn, err.Error())
		}
		return
	}

	h.sendState(conn, ctrl)
}

func (h *Hub) sendState(conn *Connection, ctrl *session.Controller) {
	snap := ctrl.Snapshot()

	payload := messages.SessionStatePayload{
		SessionID: snap.ID.String(),
		Players:   snap.Players,
		Turn:      snap.Turn,
		Current:   snap.Current.String(),
		Board:     snap.Board,
		TurnMs:    snap.Clocks.TurnMs,
		GlobalMs:  snap.Clocks.GlobalMs,
		Result:    snap.Result.String(),
		Over:      snap.Result.Terminal(),
		CanMove:   snap.CanMove,
		CanResign: snap.CanResign,
		RematchID: snap.RematchID,
	}

	if snap.Outstanding != nil {
		if snap.RequestForMe {
			payload.RequestForMe = string(snap.Outstanding.Kind)
		} else {
			payload.RequestFromMe = string(snap.Outstanding.Kind)
		}
	}

	conn.SendJSON(messages.OutboundMessage{
		Event:   "SESSION_STATE",
		Payload: payload,
	})
}

func (h *Hub) watch(sessionID string, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.watchers[sessionID]
	if conns == nil {
		conns = make(map[uuid.UUID]*Connection)
		h.watchers[sessionID] = conns
	}
	conns[conn.ID] = conn
}

func (h *Hub) broadcastToSession(sessionID string, msg messages.OutboundMessage) {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.watchers[sessionID]))
	for _, conn := range h.watchers[sessionID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.SendJSON(msg)
	}
}

func (h *Hub) sendError(conn *Connection, msg string) {
	conn.SendJSON(messages.OutboundMessage{
		Event: "ERROR",
		Payload: messages.ErrorPayload{
			Message: msg,
		},
	})
}
