package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/awesomboard/gamesync/internal/player"
	"github.com/awesomboard/gamesync/pkg/events"
	"github.com/awesomboard/gamesync/pkg/gamelog"
	"github.com/awesomboard/gamesync/pkg/repository"
	"github.com/awesomboard/gamesync/pkg/rules"
)

// Manager creates sessions and tracks the replica each connection holds.
// Two connections attached to the same session run two independent
// replicas of the same log, exactly like two remote clients would.
type Manager struct {
	mu       sync.RWMutex
	replicas map[uuid.UUID]map[uuid.UUID]*Controller // session -> connection

	log       gamelog.Log
	engine    rules.Engine
	repo      *repository.InMemorySessionRepository
	publisher *events.Publisher
	logger    *zap.Logger
}

// NewManager creates a manager with in-memory replica tracking.
func NewManager(
	log gamelog.Log,
	engine rules.Engine,
	repo *repository.InMemorySessionRepository,
	publisher *events.Publisher,
	logger *zap.Logger,
) *Manager {
	m := &Manager{
		replicas:  make(map[uuid.UUID]map[uuid.UUID]*Controller),
		log:       log,
		engine:    engine,
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}

	m.setupEventHandlers()

	return m
}

func (m *Manager) setupEventHandlers() {
	m.publisher.Subscribe(events.EventConnectionClosed, func(event events.Event) {
		payload, ok := event.Payload.(map[string]string)
		if !ok {
			m.logger.Error("invalid connection closed payload type")
			return
		}

		connID, err := uuid.Parse(payload["connection_id"])
		if err != nil {
			m.logger.Error("invalid connection id in closed event", zap.Error(err))
			return
		}

		m.DropConnection(connID)
	})
}

// CreateSession registers a new session, writes its StartGame marker and
// attaches the creating connection as player zero.
func (m *Manager) CreateSession(ctx context.Context, connID uuid.UUID, cfg Config) (*Controller, error) {
	id := uuid.New()

	err := m.repo.SaveSession(repository.Record{
		ID:                  id,
		Players:             cfg.Players,
		MaximalMoveDuration: cfg.Clock.MaximalMoveDuration,
		TotalPartDuration:   cfg.Clock.TotalPartDuration,
	})
	if err != nil {
		return nil, err
	}

	start := gamelog.NewAction(cfg.Players[player.Zero], gamelog.ActionStartGame)
	if _, err := m.log.Append(ctx, id, start); err != nil {
		return nil, fmt.Errorf("append start: %w", err)
	}

	ctrl, err := m.attach(ctx, connID, id, cfg, player.Zero)
	if err != nil {
		return nil, err
	}

	m.logger.Info("created new game session",
		zap.String("session_id", id.String()),
		zap.String("player_zero", cfg.Players[player.Zero]),
		zap.String("player_one", cfg.Players[player.One]))

	m.publisher.Publish(events.Event{
		Type:      events.EventSessionCreated,
		SessionID: id.String(),
		Payload: map[string]string{
			"session_id": id.String(),
		},
	})

	return ctrl, nil
}

// JoinSession attaches a connection to an existing session as the given
// user, replaying the history so far (the catch-up path).
func (m *Manager) JoinSession(ctx context.Context, connID, sessionID uuid.UUID, user string) (*Controller, error) {
	rec, err := m.repo.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	cfg := Config{Players: rec.Players}
	cfg.Clock.MaximalMoveDuration = rec.MaximalMoveDuration
	cfg.Clock.TotalPartDuration = rec.TotalPartDuration

	seat, ok := cfg.IndexOf(user)
	if !ok {
		return nil, fmt.Errorf("user %q is not a player of session %s", user, sessionID)
	}

	return m.attach(ctx, connID, sessionID, cfg, seat)
}

// GetReplica returns the replica a connection holds on a session.
func (m *Manager) GetReplica(sessionID, connID uuid.UUID) (*Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns, ok := m.replicas[sessionID]
	if !ok {
		return nil, false
	}

	ctrl, ok := conns[connID]
	return ctrl, ok
}

// DropConnection stops and forgets every replica a connection holds.
func (m *Manager) DropConnection(connID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sessionID, conns := range m.replicas {
		if ctrl, ok := conns[connID]; ok {
			ctrl.Stop()
			delete(conns, connID)
			if len(conns) == 0 {
				delete(m.replicas, sessionID)
			}

			m.logger.Info("detached replica",
				zap.String("session_id", sessionID.String()),
				zap.String("connection_id", connID.String()))
		}
	}
}

func (m *Manager) attach(ctx context.Context, connID, sessionID uuid.UUID, cfg Config, seat player.Index) (*Controller, error) {
	ctrl, err := NewController(ControllerParams{
		SessionID: sessionID,
		Config:    cfg,
		Seat:      seat,
		Engine:    m.engine,
		Log:       m.log,
		Publisher: m.publisher,
		Logger:    m.logger,
		OnResult: func(r Result) {
			if err := m.repo.SetResult(sessionID, r.String()); err != nil {
				m.logger.Error("failed to persist result",
					zap.String("session_id", sessionID.String()),
					zap.Error(err))
			}
		},
	})
	if err != nil {
		return nil, err
	}

	// The replica's subscription outlives the request that created it; it
	// ends when the connection drops.
	if err := ctrl.Start(context.Background()); err != nil {
		return nil, err
	}

	m.mu.Lock()
	conns := m.replicas[sessionID]
	if conns == nil {
		conns = make(map[uuid.UUID]*Controller)
		m.replicas[sessionID] = conns
	}
	conns[connID] = ctrl
	m.mu.Unlock()

	return ctrl, nil
}
