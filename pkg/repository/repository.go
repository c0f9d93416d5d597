// Package repository keeps the server's view of known sessions and their
// derived results.
package repository

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Record is one known session: its participants, time control and, once
// the game ends, the derived result.
type Record struct {
	ID                  uuid.UUID
	Players             [2]string
	MaximalMoveDuration time.Duration
	TotalPartDuration   time.Duration
	Result              string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("repository: session not found")

// InMemorySessionRepository is an in-memory session record store.
type InMemorySessionRepository struct {
	sessions map[uuid.UUID]Record
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository(logger *zap.Logger) *InMemorySessionRepository {
	return &InMemorySessionRepository{
		sessions: make(map[uuid.UUID]Record),
		logger:   logger,
	}
}

// SaveSession stores or replaces a session record.
func (r *InMemorySessionRepository) SaveSession(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	r.sessions[rec.ID] = rec
	return nil
}

// SetResult records a session's derived terminal result. The first write
// wins; a session becomes terminal exactly once.
func (r *InMemorySessionRepository) SetResult(id uuid.UUID, result string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}

	if rec.Result != "" {
		r.logger.Warn("ignoring second terminal result",
			zap.String("session_id", id.String()),
			zap.String("result", result))
		return nil
	}

	rec.Result = result
	rec.UpdatedAt = time.Now()
	r.sessions[id] = rec

	return nil
}

// GetSession retrieves a session record by ID.
func (r *InMemorySessionRepository) GetSession(id uuid.UUID) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.sessions[id]
	if !ok {
		return Record{}, ErrNotFound
	}

	return rec, nil
}

// ListActiveSessions returns all sessions without a recorded result.
func (r *InMemorySessionRepository) ListActiveSessions() ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []Record
	for _, rec := range r.sessions {
		if rec.Result == "" {
			active = append(active, rec)
		}
	}

	return active, nil
}
