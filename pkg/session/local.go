package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/awesomboard/gamesync/internal/player"
	"github.com/awesomboard/gamesync/pkg/events"
	"github.com/awesomboard/gamesync/pkg/gamelog"
	"github.com/awesomboard/gamesync/pkg/rules"
)

// LocalSession is the offline session variant: both seats live in the same
// process and moves come from an in-process source instead of a log
// subscription. It shares the clock manager, negotiator and fold with the
// online controller by composition: operations are translated into the
// same events and pushed through the same batch path, so the two variants
// cannot drift apart semantically.
type LocalSession struct {
	id   uuid.UUID
	core *core
	proc *processor

	mu  sync.Mutex
	now func() time.Time
}

// NewLocalSession creates an offline session for the two players in cfg.
func NewLocalSession(
	cfg Config,
	engine rules.Engine,
	publisher *events.Publisher,
	logger *zap.Logger,
) (*LocalSession, error) {
	l := &LocalSession{
		id:  uuid.New(),
		now: time.Now,
	}

	co, err := newCore(l.id, cfg, engine, publisher, logger, l.handleTimeout)
	if err != nil {
		return nil, err
	}

	l.core = co
	l.proc = newProcessor(co, logger)

	return l, nil
}

// ID returns the session id.
func (l *LocalSession) ID() uuid.UUID { return l.id }

// Start seeds the game: the start marker and an immediate sync, since a
// local session has no history to catch up on.
func (l *LocalSession) Start() error {
	start := gamelog.NewAction(l.core.cfg.Players[player.Zero], gamelog.ActionStartGame)
	if err := l.dispatch(start); err != nil {
		return err
	}

	return l.dispatch(gamelog.Event{Type: gamelog.TypeAction, Action: gamelog.ActionSync})
}

// Seat returns the Session capability for one side.
func (l *LocalSession) Seat(p player.Index) Session {
	return &localSeat{session: l, seat: p}
}

// Snapshot returns the state as seen by the given seat.
func (l *LocalSession) Snapshot(viewer player.Index) Snapshot {
	return l.core.snapshot(viewer)
}

// dispatch pushes one synthetic event through the same batch path the
// online processor uses.
func (l *LocalSession) dispatch(ev gamelog.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.Time == 0 {
		ev.Time = l.now().UnixMilli()
	}

	if err := l.proc.processBatch(gamelog.Batch{ev}); err != nil {
		l.core.fail(err)
		return err
	}

	return nil
}

// handleTimeout ends the game directly: with both seats local there is no
// opponent replica to report the flag fall.
func (l *LocalSession) handleTimeout(flagged player.Index) {
	go func() {
		l.core.mu.Lock()
		terminal := l.core.result.Terminal() || l.core.failure != nil
		reporter := l.core.cfg.Players[flagged.Opp()]
		l.core.mu.Unlock()
		if terminal {
			return
		}

		end := gamelog.NewAction(reporter, gamelog.ActionEndGame)
		end.Data = encodeResult(Result{Kind: Timeout, Player: flagged})

		if err := l.dispatch(end); err != nil && l.core.logger != nil {
			l.core.logger.Error("failed to record timeout", zap.Error(err))
		}
	}()
}

// localSeat adapts one side of a LocalSession to the Session interface.
type localSeat struct {
	session *LocalSession
	seat    player.Index
}

var _ Session = (*localSeat)(nil)

func (s *localSeat) ID() uuid.UUID { return s.session.id }

func (s *localSeat) Snapshot() Snapshot {
	return s.session.core.snapshot(s.seat)
}

func (s *localSeat) user() string {
	return s.session.core.cfg.Players[s.seat]
}

func (s *localSeat) SubmitMove(_ context.Context, payload json.RawMessage) error {
	co := s.session.core

	co.mu.Lock()
	if err := s.playableLocked(); err != nil {
		co.mu.Unlock()
		return err
	}
	if player.ForTurn(co.turn) != s.seat {
		co.mu.Unlock()
		return reject("it is not your turn")
	}

	mv, err := co.engine.DecodeMove(payload)
	if err != nil {
		co.mu.Unlock()
		return reject("unreadable move: %v", err)
	}

	st := co.history[len(co.history)-1]
	if err := co.engine.Validate(st, mv); err != nil {
		co.mu.Unlock()
		return reject("%v", err)
	}

	next, err := co.engine.Apply(st, mv)
	if err != nil {
		co.mu.Unlock()
		return reject("%v", err)
	}

	status := co.engine.Status(next)
	co.mu.Unlock()

	if err := s.session.dispatch(gamelog.NewMove(s.user(), payload)); err != nil {
		return err
	}

	if status.Outcome != rules.Ongoing {
		result := Result{Kind: HardDraw}
		if status.Outcome == rules.Win {
			result = Result{Kind: Victory, Player: status.Winner}
		}

		end := gamelog.NewAction(s.user(), gamelog.ActionEndGame)
		end.Data = encodeResult(result)
		return s.session.dispatch(end)
	}

	return nil
}

func (s *localSeat) Resign(_ context.Context) error {
	co := s.session.core

	co.mu.Lock()
	err := s.playableLocked()
	co.mu.Unlock()
	if err != nil {
		return err
	}

	end := gamelog.NewAction(s.user(), gamelog.ActionEndGame)
	end.Data = encodeResult(Result{Kind: Resignation, Player: s.seat})

	return s.session.dispatch(end)
}

func (s *localSeat) Propose(_ context.Context, kind gamelog.RequestKind) error {
	co := s.session.core

	co.mu.Lock()
	if co.failure != nil {
		co.mu.Unlock()
		return reject("session replica failed: %v", co.failure)
	}
	err := co.negotiator.CanRequest(kind, s.seat, co.result.Terminal(), co.turn)
	co.mu.Unlock()
	if err != nil {
		return reject("%v", err)
	}

	return s.session.dispatch(gamelog.NewRequest(s.user(), kind))
}

func (s *localSeat) Accept(_ context.Context, kind gamelog.RequestKind) error {
	if err := s.answerable(kind); err != nil {
		return err
	}

	data := ""
	if kind == gamelog.RequestRematch {
		data = uuid.New().String()
	}

	return s.session.dispatch(gamelog.NewReply(s.user(), kind, gamelog.VerdictAccept, data))
}

func (s *localSeat) Reject(_ context.Context, kind gamelog.RequestKind) error {
	if err := s.answerable(kind); err != nil {
		return err
	}

	return s.session.dispatch(gamelog.NewReply(s.user(), kind, gamelog.VerdictReject, ""))
}

func (s *localSeat) AddTurnTime(_ context.Context) error {
	return s.grant(gamelog.ActionAddTurnTime)
}

func (s *localSeat) AddGlobalTime(_ context.Context) error {
	return s.grant(gamelog.ActionAddGlobalTime)
}

func (s *localSeat) grant(kind gamelog.ActionKind) error {
	co := s.session.core

	co.mu.Lock()
	err := s.playableLocked()
	co.mu.Unlock()
	if err != nil {
		return err
	}

	return s.session.dispatch(gamelog.NewAction(s.user(), kind))
}

func (s *localSeat) playableLocked() error {
	co := s.session.core
	if co.failure != nil {
		return reject("session replica failed: %v", co.failure)
	}
	if !co.started {
		return reject("the game has not started")
	}
	if co.result.Terminal() {
		return reject("the game is already over")
	}
	return nil
}

func (s *localSeat) answerable(kind gamelog.RequestKind) error {
	co := s.session.core

	co.mu.Lock()
	defer co.mu.Unlock()

	if co.failure != nil {
		return reject("session replica failed: %v", co.failure)
	}

	outstanding := co.negotiator.Outstanding()
	if outstanding == nil {
		return reject("there is no request to answer")
	}
	if outstanding.Kind != kind {
		return reject("the outstanding request is %s, not %s", outstanding.Kind, kind)
	}
	if outstanding.Issuer == s.seat {
		return reject("you cannot answer your own request")
	}

	return nil
}
