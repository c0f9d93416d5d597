// Package negotiation tracks the take-back / draw / rematch exchange of a
// session. At most one request is ever outstanding, and a rejection blocks
// the same issuer from re-raising the same kind.
package negotiation

import (
	"errors"
	"fmt"

	"github.com/awesomboard/gamesync/internal/player"
	"github.com/awesomboard/gamesync/pkg/gamelog"
)

// Outstanding describes the single request currently awaiting a reply.
type Outstanding struct {
	Kind   gamelog.RequestKind
	Issuer player.Index
}

// ReplyOutcome tells the caller what an applied reply requires of it: a
// board rewind for an accepted take-back, session termination for an
// accepted draw, or a redirect to the session named in Data for an
// accepted rematch. Rejections require nothing.
type ReplyOutcome struct {
	Kind     gamelog.RequestKind
	Issuer   player.Index
	Accepted bool
	Data     string
}

// ErrProtocolViolation marks an event no well-behaved peer could have
// produced; the session replica must not continue past it.
var ErrProtocolViolation = errors.New("negotiation: protocol violation")

// Denial reasons returned by CanRequest.
var (
	ErrRequestOutstanding = errors.New("another request is already outstanding")
	ErrSessionOver        = errors.New("the game is already over")
	ErrSessionNotOver     = errors.New("the game is still in progress")
	ErrAlreadyDenied      = errors.New("this request was already denied")
	ErrNothingToTakeBack  = errors.New("no move of yours can be taken back yet")
)

type deniedKey struct {
	kind   gamelog.RequestKind
	issuer player.Index
}

// Negotiator is the request state machine of one session replica. It is
// driven exclusively by the serialized event processor, so it carries no
// lock of its own.
type Negotiator struct {
	outstanding *Outstanding
	denied      map[deniedKey]struct{}
}

// NewNegotiator creates an empty negotiator.
func NewNegotiator() *Negotiator {
	return &Negotiator{denied: make(map[deniedKey]struct{})}
}

// Outstanding returns a copy of the pending request, or nil.
func (n *Negotiator) Outstanding() *Outstanding {
	if n.outstanding == nil {
		return nil
	}
	out := *n.outstanding
	return &out
}

// CanRequest reports whether issuer may raise kind right now. terminal is
// whether the session has a recorded result; turn is the current turn
// number. A nil return means the request is legal.
func (n *Negotiator) CanRequest(kind gamelog.RequestKind, issuer player.Index, terminal bool, turn int) error {
	if n.outstanding != nil {
		return ErrRequestOutstanding
	}

	if _, ok := n.denied[deniedKey{kind, issuer}]; ok {
		return ErrAlreadyDenied
	}

	switch kind {
	case gamelog.RequestRematch:
		// Only proposable once a result is on record.
		if !terminal {
			return ErrSessionNotOver
		}
	case gamelog.RequestTakeBack:
		if terminal {
			return ErrSessionOver
		}
		// The requester must have completed at least one move.
		if turn <= int(issuer) {
			return ErrNothingToTakeBack
		}
	case gamelog.RequestDraw:
		if terminal {
			return ErrSessionOver
		}
	default:
		return fmt.Errorf("unknown request kind %q", kind)
	}

	return nil
}

// OnReceivedRequest records an incoming request. A second outstanding
// request is a protocol violation: the log can only contain one because
// every well-behaved client checks CanRequest before appending.
func (n *Negotiator) OnReceivedRequest(kind gamelog.RequestKind, issuer player.Index) error {
	if n.outstanding != nil {
		return fmt.Errorf("%w: request %s while %s is outstanding",
			ErrProtocolViolation, kind, n.outstanding.Kind)
	}

	n.outstanding = &Outstanding{Kind: kind, Issuer: issuer}
	return nil
}

// OnReceivedReply resolves the outstanding request. On rejection the
// issuer is blocked from re-raising the kind; on acceptance the returned
// outcome tells the caller what to perform.
func (n *Negotiator) OnReceivedReply(kind gamelog.RequestKind, verdict gamelog.Verdict, data string) (ReplyOutcome, error) {
	if n.outstanding == nil {
		return ReplyOutcome{}, fmt.Errorf("%w: reply to %s with nothing outstanding",
			ErrProtocolViolation, kind)
	}
	if n.outstanding.Kind != kind {
		return ReplyOutcome{}, fmt.Errorf("%w: reply to %s while %s is outstanding",
			ErrProtocolViolation, kind, n.outstanding.Kind)
	}

	outcome := ReplyOutcome{
		Kind:     kind,
		Issuer:   n.outstanding.Issuer,
		Accepted: verdict == gamelog.VerdictAccept,
		Data:     data,
	}

	if !outcome.Accepted {
		n.denied[deniedKey{kind, outcome.Issuer}] = struct{}{}
	}

	n.outstanding = nil
	return outcome, nil
}

// OnReceivedMove clears an outstanding take-back or draw raised by the
// mover: submitting a move is an implicit withdrawal. This is local
// cleanup only. No cancellation event exists, because the history itself
// (a move after the request) lets every replica derive the same thing.
func (n *Negotiator) OnReceivedMove(mover player.Index) {
	if n.outstanding == nil {
		return
	}
	if n.outstanding.Kind == gamelog.RequestRematch {
		return
	}
	if n.outstanding.Issuer == mover {
		n.outstanding = nil
	}
}
