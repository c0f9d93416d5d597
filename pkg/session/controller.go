package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/awesomboard/gamesync/internal/player"
	"github.com/awesomboard/gamesync/pkg/events"
	"github.com/awesomboard/gamesync/pkg/gamelog"
	"github.com/awesomboard/gamesync/pkg/negotiation"
	"github.com/awesomboard/gamesync/pkg/rules"
)

// ControllerParams configures one online session replica.
type ControllerParams struct {
	SessionID uuid.UUID
	Config    Config
	Seat      player.Index
	Engine    rules.Engine
	Log       gamelog.Log
	Publisher *events.Publisher
	Logger    *zap.Logger

	// OnResult, when set, persists a derived terminal result. It runs
	// inside the batch-processing gate so persistence tracks event order.
	OnResult func(Result)
}

// Controller is the online session variant: one player's replica of a
// game, fed by a log subscription and exposing the player operations. The
// board advances optimistically on the player's own legal move, but clocks
// and negotiation only change when events come back through the log. The
// round trip, not local optimism, is the source of truth.
type Controller struct {
	id     uuid.UUID
	seat   player.Index
	user   string
	core   *core
	proc   *processor
	log    gamelog.Log
	logger *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}

	// previewTurn > core.turn marks an own move still in flight; further
	// moves are rejected until the echo folds, so a fast double-submit can
	// never reach the log as an out-of-turn move.
	mu           sync.Mutex
	previewBoard string
	previewTurn  int
	runErr       error
}

var _ Session = (*Controller)(nil)

// NewController builds a replica; Start attaches it to the log.
func NewController(params ControllerParams) (*Controller, error) {
	if !params.Seat.Valid() {
		return nil, fmt.Errorf("invalid seat %d", int(params.Seat))
	}

	c := &Controller{
		id:     params.SessionID,
		seat:   params.Seat,
		user:   params.Config.Players[params.Seat],
		log:    params.Log,
		logger: params.Logger,
		done:   make(chan struct{}),
	}

	co, err := newCore(
		params.SessionID,
		params.Config,
		params.Engine,
		params.Publisher,
		params.Logger,
		c.handleTimeout,
	)
	if err != nil {
		return nil, err
	}
	co.onResult = params.OnResult

	c.core = co
	c.proc = newProcessor(co, params.Logger)

	return c, nil
}

// Start subscribes to the session log from the beginning and begins
// replaying. Catch-up batches and live events flow through the same path.
func (c *Controller) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	batches, err := c.log.Subscribe(ctx, c.id, 0)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe: %w", err)
	}

	go func() {
		defer close(c.done)

		err := c.proc.run(ctx, batches)
		if err != nil && ctx.Err() == nil {
			c.mu.Lock()
			c.runErr = err
			c.mu.Unlock()
		}
	}()

	return nil
}

// Stop detaches the replica from the log.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Done closes when the replica stops replaying.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Err returns the protocol violation that stopped the replica, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runErr
}

// ID implements Session.
func (c *Controller) ID() uuid.UUID { return c.id }

// Seat returns the player index this replica acts for.
func (c *Controller) Seat() player.Index { return c.seat }

// Snapshot implements Session. The board shows the optimistic preview
// while the player's own move is still in flight.
func (c *Controller) Snapshot() Snapshot {
	snap := c.core.snapshot(c.seat)

	c.mu.Lock()
	if c.previewBoard != "" && c.previewTurn == snap.Turn+1 {
		snap.Board = c.previewBoard
	}
	c.mu.Unlock()

	return snap
}

// SubmitMove implements Session. The move is validated locally, previewed
// optimistically, and appended to the log; its clock and negotiation
// effects apply when it returns through the subscription.
func (c *Controller) SubmitMove(ctx context.Context, payload json.RawMessage) error {
	co := c.core

	co.mu.Lock()
	if err := c.playableLocked(); err != nil {
		co.mu.Unlock()
		return err
	}
	if player.ForTurn(co.turn) != c.seat {
		co.mu.Unlock()
		return reject("it is not your turn")
	}

	c.mu.Lock()
	inFlight := c.previewTurn > co.turn
	c.mu.Unlock()
	if inFlight {
		co.mu.Unlock()
		return reject("your previous move has not been confirmed yet")
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
	previewTurn := co.turn + 1
	co.mu.Unlock()

	c.mu.Lock()
	c.previewBoard = co.describe(next)
	c.previewTurn = previewTurn
	c.mu.Unlock()

	if _, err := c.log.Append(ctx, c.id, gamelog.NewMove(c.user, payload)); err != nil {
		c.mu.Lock()
		c.previewBoard = ""
		c.previewTurn = 0
		c.mu.Unlock()
		return fmt.Errorf("append move: %w", err)
	}

	// If the move decided the game, record the derived status: the acting
	// client is the one that writes it.
	if status.Outcome != rules.Ongoing {
		result := Result{Kind: HardDraw}
		if status.Outcome == rules.Win {
			result = Result{Kind: Victory, Player: status.Winner}
		}

		end := gamelog.NewAction(c.user, gamelog.ActionEndGame)
		end.Data = encodeResult(result)
		if _, err := c.log.Append(ctx, c.id, end); err != nil {
			return fmt.Errorf("append end of game: %w", err)
		}
	}

	return nil
}

// Resign implements Session.
func (c *Controller) Resign(ctx context.Context) error {
	co := c.core

	co.mu.Lock()
	err := c.playableLocked()
	co.mu.Unlock()
	if err != nil {
		return err
	}

	end := gamelog.NewAction(c.user, gamelog.ActionEndGame)
	end.Data = encodeResult(Result{Kind: Resignation, Player: c.seat})
	if _, err := c.log.Append(ctx, c.id, end); err != nil {
		return fmt.Errorf("append resignation: %w", err)
	}

	return nil
}

// Propose implements Session.
func (c *Controller) Propose(ctx context.Context, kind gamelog.RequestKind) error {
	co := c.core

	co.mu.Lock()
	if co.failure != nil {
		co.mu.Unlock()
		return reject("session replica failed: %v", co.failure)
	}
	err := co.negotiator.CanRequest(kind, c.seat, co.result.Terminal(), co.turn)
	co.mu.Unlock()
	if err != nil {
		return reject("%v", err)
	}

	if _, err := c.log.Append(ctx, c.id, gamelog.NewRequest(c.user, kind)); err != nil {
		return fmt.Errorf("append request: %w", err)
	}

	return nil
}

// Accept implements Session. Accepting a rematch allocates the follow-up
// session id and carries it in the reply's data.
func (c *Controller) Accept(ctx context.Context, kind gamelog.RequestKind) error {
	if err := c.answerable(kind); err != nil {
		return err
	}

	data := ""
	if kind == gamelog.RequestRematch {
		data = uuid.New().String()
	}

	reply := gamelog.NewReply(c.user, kind, gamelog.VerdictAccept, data)
	if _, err := c.log.Append(ctx, c.id, reply); err != nil {
		return fmt.Errorf("append reply: %w", err)
	}

	return nil
}

// Reject implements Session.
func (c *Controller) Reject(ctx context.Context, kind gamelog.RequestKind) error {
	if err := c.answerable(kind); err != nil {
		return err
	}

	reply := gamelog.NewReply(c.user, kind, gamelog.VerdictReject, "")
	if _, err := c.log.Append(ctx, c.id, reply); err != nil {
		return fmt.Errorf("append reply: %w", err)
	}

	return nil
}

// AddTurnTime implements Session: grants the opponent 30 seconds of turn
// time.
func (c *Controller) AddTurnTime(ctx context.Context) error {
	return c.appendGrant(ctx, gamelog.ActionAddTurnTime)
}

// AddGlobalTime implements Session: grants the opponent 5 minutes of
// global time.
func (c *Controller) AddGlobalTime(ctx context.Context) error {
	return c.appendGrant(ctx, gamelog.ActionAddGlobalTime)
}

// RematchID returns the follow-up session id once a rematch was accepted.
func (c *Controller) RematchID() string {
	c.core.mu.Lock()
	defer c.core.mu.Unlock()
	return c.core.rematchID
}

func (c *Controller) appendGrant(ctx context.Context, kind gamelog.ActionKind) error {
	co := c.core

	co.mu.Lock()
	err := c.playableLocked()
	co.mu.Unlock()
	if err != nil {
		return err
	}

	if _, err := c.log.Append(ctx, c.id, gamelog.NewAction(c.user, kind)); err != nil {
		return fmt.Errorf("append time grant: %w", err)
	}

	return nil
}

func (c *Controller) playableLocked() error {
	co := c.core
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

func (c *Controller) answerable(kind gamelog.RequestKind) error {
	co := c.core

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
	if outstanding.Issuer == c.seat {
		return reject("you cannot answer your own request")
	}

	return nil
}

// handleTimeout is the clock manager's zero-crossing callback. Only the
// player observing the opponent's timeout reports it; the flagged player
// and spectators stay silent, so exactly one EndGame reaches the log.
func (c *Controller) handleTimeout(flagged player.Index) {
	if flagged == c.seat {
		return
	}

	go c.reportTimeout(flagged)
}

func (c *Controller) reportTimeout(flagged player.Index) {
	co := c.core

	co.mu.Lock()
	terminal := co.result.Terminal() || co.failure != nil
	co.mu.Unlock()
	if terminal {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	end := gamelog.NewAction(c.user, gamelog.ActionEndGame)
	end.Data = encodeResult(Result{Kind: Timeout, Player: flagged})

	if _, err := c.log.Append(ctx, c.id, end); err != nil {
		c.logger.Error("failed to report timeout",
			zap.String("session_id", c.id.String()),
			zap.Stringer("flagged", flagged),
			zap.Error(err))
	}
}

// Negotiation re-exported for observers that inspect outstanding state.
func (c *Controller) Outstanding() *negotiation.Outstanding {
	c.core.mu.Lock()
	defer c.core.mu.Unlock()
	return c.core.negotiator.Outstanding()
}
