package session

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/awesomboard/gamesync/internal/player"
	"github.com/awesomboard/gamesync/pkg/clock"
	"github.com/awesomboard/gamesync/pkg/events"
	"github.com/awesomboard/gamesync/pkg/gamelog"
	"github.com/awesomboard/gamesync/pkg/messages"
	"github.com/awesomboard/gamesync/pkg/negotiation"
	"github.com/awesomboard/gamesync/pkg/rules"
)

// core is one replica's deterministic fold over the event log: board
// history, turn counter, clocks, negotiation state and terminal result.
// Both session variants (online controller, local session) share it by
// composition. Mutation happens only through apply, which the serialized
// processor drives, so two replicas fed the same prefix always agree.
type core struct {
	id         uuid.UUID
	cfg        Config
	engine     rules.Engine
	clocks     *clock.Manager
	negotiator *negotiation.Negotiator
	publisher  *events.Publisher
	logger     *zap.Logger

	// onResult runs inside the processing gate when a terminal result is
	// first derived, so persistence completes in event order.
	onResult func(Result)

	mu        sync.Mutex
	history   []rules.State
	turn      int
	result    Result
	started   bool
	failure   error
	rematchID string
}

func newCore(
	id uuid.UUID,
	cfg Config,
	engine rules.Engine,
	publisher *events.Publisher,
	logger *zap.Logger,
	onTimeout clock.TimeoutFn,
) (*core, error) {
	initial, err := engine.InitialState()
	if err != nil {
		return nil, err
	}

	c := &core{
		id:         id,
		cfg:        cfg,
		engine:     engine,
		negotiator: negotiation.NewNegotiator(),
		publisher:  publisher,
		logger:     logger,
		history:    []rules.State{initial},
	}
	c.clocks = clock.NewManager(logger, onTimeout)

	return c, nil
}

// apply folds one event into the replica. Any returned error is a
// protocol violation: the caller must stop processing.
func (c *core) apply(ev gamelog.Event, animate bool) error {
	if err := ev.Validate(); err != nil {
		return violation("malformed event: %v", err)
	}

	switch ev.Type {
	case gamelog.TypeMove:
		return c.applyMove(ev, animate)
	case gamelog.TypeAction:
		return c.applyAction(ev)
	case gamelog.TypeRequest:
		return c.applyRequest(ev)
	case gamelog.TypeReply:
		return c.applyReply(ev)
	default:
		return violation("unhandled event type %q", ev.Type)
	}
}

func (c *core) applyMove(ev gamelog.Event, animate bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return violation("move before game start")
	}
	if c.result.Terminal() {
		return violation("move after game end")
	}

	mover, ok := c.cfg.IndexOf(ev.User)
	if !ok {
		return violation("move from unknown user %q", ev.User)
	}
	if mover != player.ForTurn(c.turn) {
		return violation("move out of turn by %s at turn %d", mover, c.turn)
	}

	mv, err := c.engine.DecodeMove(ev.Move)
	if err != nil {
		return violation("undecodable move at turn %d: %v", c.turn, err)
	}

	// Defense in depth: an illegal move coming back from the log means the
	// replicas have diverged already, not that this one should skip it.
	st := c.history[len(c.history)-1]
	if err := c.engine.Validate(st, mv); err != nil {
		return violation("illegal move in log at turn %d: %v", c.turn, err)
	}

	next, err := c.engine.Apply(st, mv)
	if err != nil {
		return violation("apply move at turn %d: %v", c.turn, err)
	}

	c.history = append(c.history, next)
	c.turn++

	c.negotiator.OnReceivedMove(mover)
	c.clocks.OnReceivedMove(mover, ev.Time)

	// A decisive move ends the game on its own; freeze the clocks here
	// rather than waiting for the trailing EndGame marker.
	switch status := c.engine.Status(next); status.Outcome {
	case rules.Win:
		c.clocks.OnGameEnd(player.ForTurn(c.turn), ev.Time)
		c.setResultLocked(Result{Kind: Victory, Player: status.Winner})
	case rules.Draw:
		c.clocks.OnGameEnd(player.ForTurn(c.turn), ev.Time)
		c.setResultLocked(Result{Kind: HardDraw})
	}

	c.publish(events.EventMoveApplied, messages.MoveAppliedPayload{
		SessionID: c.id.String(),
		Move:      ev.Move,
		Turn:      c.turn,
		Current:   player.ForTurn(c.turn).String(),
		Board:     c.describe(next),
		Animate:   animate,
	})

	return nil
}

func (c *core) applyAction(ev gamelog.Event) error {
	switch ev.Action {
	case gamelog.ActionStartGame:
		return c.applyStart(ev)
	case gamelog.ActionEndGame:
		return c.applyEnd(ev)
	case gamelog.ActionSync:
		c.clocks.MarkSynced()
		return nil
	case gamelog.ActionAddTurnTime, gamelog.ActionAddGlobalTime:
		return c.applyGrant(ev)
	default:
		return violation("unhandled action %q", ev.Action)
	}
}

func (c *core) applyStart(ev gamelog.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return violation("second StartGame")
	}
	if c.turn != 0 {
		return violation("StartGame at turn %d", c.turn)
	}

	c.started = true
	c.clocks.OnGameStart(c.cfg.Clock, ev.Time)

	return nil
}

func (c *core) applyEnd(ev gamelog.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return violation("EndGame before game start")
	}

	c.clocks.OnGameEnd(player.ForTurn(c.turn), ev.Time)

	if ev.Data != "" {
		r, err := decodeResult(ev.Data)
		if err != nil {
			return violation("EndGame with bad result: %v", err)
		}
		c.setResultLocked(r)
		return nil
	}

	// A bare EndGame is only meaningful when the result was already
	// derived from the final move.
	if !c.result.Terminal() {
		return violation("EndGame without a result")
	}

	return nil
}

func (c *core) applyGrant(ev gamelog.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return violation("time grant before game start")
	}

	issuer, ok := c.cfg.IndexOf(ev.User)
	if !ok {
		return violation("time grant from unknown user %q", ev.User)
	}

	// Grants always go to the issuer's opponent, never to self.
	beneficiary := issuer.Opp()
	if ev.Action == gamelog.ActionAddTurnTime {
		c.clocks.AddTurnTime(beneficiary)
	} else {
		c.clocks.AddGlobalTime(beneficiary)
	}

	return nil
}

func (c *core) applyRequest(ev gamelog.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return violation("request before game start")
	}

	issuer, ok := c.cfg.IndexOf(ev.User)
	if !ok {
		return violation("request from unknown user %q", ev.User)
	}

	if err := c.negotiator.OnReceivedRequest(ev.RequestType, issuer); err != nil {
		return err
	}

	c.publish(events.EventRequestPending, messages.RequestPendingPayload{
		SessionID:   c.id.String(),
		RequestType: string(ev.RequestType),
		Issuer:      issuer.String(),
	})

	return nil
}

func (c *core) applyReply(ev gamelog.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	replier, ok := c.cfg.IndexOf(ev.User)
	if !ok {
		return violation("reply from unknown user %q", ev.User)
	}

	outcome, err := c.negotiator.OnReceivedReply(ev.RequestType, ev.Reply, ev.Data)
	if err != nil {
		return err
	}
	if replier == outcome.Issuer {
		return violation("%s replied to their own %s request", replier, outcome.Kind)
	}

	if outcome.Accepted {
		switch outcome.Kind {
		case gamelog.RequestTakeBack:
			if err := c.rewindLocked(outcome.Issuer); err != nil {
				return err
			}
		case gamelog.RequestDraw:
			c.clocks.OnGameEnd(player.ForTurn(c.turn), ev.Time)
			c.setResultLocked(Result{Kind: AgreedDraw, Player: outcome.Issuer})
		case gamelog.RequestRematch:
			c.rematchID = outcome.Data
		}
	}

	c.publish(events.EventRequestResolved, messages.RequestResolvedPayload{
		SessionID:   c.id.String(),
		RequestType: string(outcome.Kind),
		Accepted:    outcome.Accepted,
		Board:       c.describe(c.history[len(c.history)-1]),
		Data:        outcome.Data,
	})

	return nil
}

// rewindLocked undoes moves until it is the requester's turn again: one
// ply when the requester's opponent was to move, two when the opponent had
// already answered the requester's move.
func (c *core) rewindLocked(requester player.Index) error {
	plies := 1
	if player.ForTurn(c.turn) == requester {
		plies = 2
	}

	if c.turn < plies || len(c.history) <= plies {
		return violation("take-back of %d plies at turn %d", plies, c.turn)
	}

	c.history = c.history[:len(c.history)-plies]
	c.turn -= plies

	return nil
}

func (c *core) setResultLocked(r Result) {
	if c.result.Terminal() {
		return
	}
	c.result = r

	if c.onResult != nil {
		c.onResult(r)
	}

	c.publish(events.EventGameOver, messages.GameOverPayload{
		SessionID: c.id.String(),
		Result:    r.String(),
	})
}

func (c *core) fail(err error) {
	c.mu.Lock()
	if c.failure == nil {
		c.failure = err
	}
	c.mu.Unlock()

	c.publish(events.EventReplicaFailed, messages.ReplicaFailedPayload{
		SessionID: c.id.String(),
		Reason:    err.Error(),
	})
}

func (c *core) current() player.Index {
	c.mu.Lock()
	defer c.mu.Unlock()
	return player.ForTurn(c.turn)
}

func (c *core) snapshot(viewer player.Index) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := player.ForTurn(c.turn)
	outstanding := c.negotiator.Outstanding()
	terminal := c.result.Terminal()

	snap := Snapshot{
		ID:          c.id,
		Players:     c.cfg.Players,
		Turn:        c.turn,
		Current:     current,
		Board:       c.describe(c.history[len(c.history)-1]),
		Clocks:      c.clocks.Snapshot(),
		Result:      c.result,
		Outstanding: outstanding,
		RematchID:   c.rematchID,
		CanPropose:  make(map[gamelog.RequestKind]bool, 3),
	}

	if c.failure != nil {
		snap.Failed = c.failure.Error()
	}

	if outstanding != nil {
		snap.RequestFromMe = outstanding.Issuer == viewer
		snap.RequestForMe = outstanding.Issuer != viewer
	}

	snap.CanMove = c.started && !terminal && c.failure == nil &&
		current == viewer && c.clocks.Synced()
	snap.CanResign = c.started && !terminal && c.failure == nil

	for _, kind := range []gamelog.RequestKind{
		gamelog.RequestTakeBack, gamelog.RequestDraw, gamelog.RequestRematch,
	} {
		err := c.negotiator.CanRequest(kind, viewer, terminal, c.turn)
		snap.CanPropose[kind] = c.started && c.failure == nil && err == nil
	}

	return snap
}

func (c *core) describe(st rules.State) string {
	if d, ok := c.engine.(rules.Describer); ok {
		return d.Describe(st)
	}
	return ""
}

func (c *core) publish(typ events.EventType, payload interface{}) {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(events.Event{
		Type:      typ,
		SessionID: c.id.String(),
		Payload:   payload,
	})
}
