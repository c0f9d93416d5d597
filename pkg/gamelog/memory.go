package gamelog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLog is an in-process Log used for local play and tests. It keeps
// every session's events in memory and fan-outs appends to live
// subscribers, coalescing deliveries into multi-event batches whenever a
// subscriber is slower than the appenders.
type MemoryLog struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*memSession

	now func() time.Time
}

type memSession struct {
	events []Event
	subs   []*memSub
}

type memSub struct {
	mu      sync.Mutex
	pending []Event
	wake    chan struct{}
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		sessions: make(map[uuid.UUID]*memSession),
		now:      time.Now,
	}
}

// Append implements Log. Seq is assigned under the log lock; Time is
// stamped with server time unless the caller already set it.
func (l *MemoryLog) Append(_ context.Context, sessionID uuid.UUID, ev Event) (Event, error) {
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	sess := l.sessions[sessionID]
	if sess == nil {
		sess = &memSession{}
		l.sessions[sessionID] = sess
	}

	ev.Seq = int64(len(sess.events)) + 1
	if ev.Time == 0 {
		ev.Time = l.now().UnixMilli()
	}

	sess.events = append(sess.events, ev)

	for _, sub := range sess.subs {
		sub.enqueue(ev)
	}

	return ev, nil
}

// Subscribe implements Log.
func (l *MemoryLog) Subscribe(ctx context.Context, sessionID uuid.UUID, fromSeq int64) (<-chan Batch, error) {
	l.mu.Lock()

	sess := l.sessions[sessionID]
	if sess == nil {
		sess = &memSession{}
		l.sessions[sessionID] = sess
	}

	var backlog Batch
	for _, ev := range sess.events {
		if ev.Seq > fromSeq {
			backlog = append(backlog, ev)
		}
	}

	sub := &memSub{wake: make(chan struct{}, 1)}
	sess.subs = append(sess.subs, sub)

	l.mu.Unlock()

	out := make(chan Batch)

	go func() {
		defer func() {
			l.dropSub(sessionID, sub)
			close(out)
		}()

		if len(backlog) > 0 {
			select {
			case out <- backlog:
			case <-ctx.Done():
				return
			}
		}

		sync := Batch{{Type: TypeAction, Action: ActionSync, Time: l.now().UnixMilli()}}
		select {
		case out <- sync:
		case <-ctx.Done():
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.wake:
			}

			batch := sub.drain()
			if len(batch) == 0 {
				continue
			}

			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Events returns a copy of the session's full event list.
func (l *MemoryLog) Events(sessionID uuid.UUID) Batch {
	l.mu.Lock()
	defer l.mu.Unlock()

	sess := l.sessions[sessionID]
	if sess == nil {
		return nil
	}

	out := make(Batch, len(sess.events))
	copy(out, sess.events)

	return out
}

func (l *MemoryLog) dropSub(sessionID uuid.UUID, sub *memSub) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sess := l.sessions[sessionID]
	if sess == nil {
		return
	}

	for i, s := range sess.subs {
		if s == sub {
			sess.subs = append(sess.subs[:i], sess.subs[i+1:]...)
			return
		}
	}
}

func (s *memSub) enqueue(ev Event) {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *memSub) drain() Batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := Batch(s.pending)
	s.pending = nil

	return batch
}
