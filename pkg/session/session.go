// Package session implements the event-synchronization engine: the
// serialized batch processor that folds a session's event log into local
// state, the controller exposing player operations over that fold, and a
// local in-process variant of the same capability.
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/awesomboard/gamesync/internal/player"
	"github.com/awesomboard/gamesync/pkg/clock"
	"github.com/awesomboard/gamesync/pkg/gamelog"
	"github.com/awesomboard/gamesync/pkg/negotiation"
)

// Config is everything needed to instantiate a session replica: the two
// player identities (index = seat) and the time control.
type Config struct {
	Players [2]string
	Clock   clock.Config
}

// IndexOf resolves a user id to its seat.
func (c Config) IndexOf(user string) (player.Index, bool) {
	switch user {
	case c.Players[player.Zero]:
		return player.Zero, true
	case c.Players[player.One]:
		return player.One, true
	default:
		return 0, false
	}
}

// ResultKind classifies how a session ended.
type ResultKind int

// Session results. InProgress is the only non-terminal kind.
const (
	InProgress ResultKind = iota
	Victory
	Resignation
	Timeout
	HardDraw
	AgreedDraw
)

// Result is a session's terminal state. Player is the winner for Victory,
// the resigner for Resignation, the flagged player for Timeout, and the
// proposer for AgreedDraw.
type Result struct {
	Kind   ResultKind
	Player player.Index
}

// Terminal reports whether the session has ended.
func (r Result) Terminal() bool { return r.Kind != InProgress }

func (r Result) String() string {
	switch r.Kind {
	case InProgress:
		return "in progress"
	case Victory:
		return fmt.Sprintf("victory of %s", r.Player)
	case Resignation:
		return fmt.Sprintf("resignation of %s", r.Player)
	case Timeout:
		return fmt.Sprintf("timeout of %s", r.Player)
	case HardDraw:
		return "draw"
	case AgreedDraw:
		return fmt.Sprintf("draw agreed, proposed by %s", r.Player)
	default:
		return "unknown"
	}
}

// Snapshot is the session state observable by one seat: board and turn,
// both players' clocks, the negotiation situation relative to the viewer,
// and which operations the viewer may currently perform.
type Snapshot struct {
	ID      uuid.UUID
	Players [2]string
	Turn    int
	Current player.Index
	Board   string
	Clocks  clock.Snapshot
	Result  Result

	Outstanding   *negotiation.Outstanding
	RequestForMe  bool
	RequestFromMe bool

	CanMove    bool
	CanResign  bool
	CanPropose map[gamelog.RequestKind]bool

	// RematchID is set once a rematch proposal was accepted; it names the
	// fresh session to move to.
	RematchID string

	// Failed carries the protocol-violation description if this replica
	// stopped replaying.
	Failed string
}

// Session is the capability set a seat holds on a game: submit moves,
// resign, negotiate, grant time, observe state. Two concrete variants
// exist: Controller (online, backed by a log) and the seats of a
// LocalSession (offline, backed by an in-process move source).
type Session interface {
	ID() uuid.UUID
	Snapshot() Snapshot

	SubmitMove(ctx context.Context, payload json.RawMessage) error
	Resign(ctx context.Context) error

	Propose(ctx context.Context, kind gamelog.RequestKind) error
	Accept(ctx context.Context, kind gamelog.RequestKind) error
	Reject(ctx context.Context, kind gamelog.RequestKind) error

	AddTurnTime(ctx context.Context) error
	AddGlobalTime(ctx context.Context) error
}
