// Package gamelog defines the append-only session event log: the event
// model, the wire shape, and the Log implementations clients subscribe to.
package gamelog

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType discriminates the four event variants.
type EventType string

// The event variants a session log may contain.
const (
	TypeMove    EventType = "Move"
	TypeAction  EventType = "Action"
	TypeRequest EventType = "Request"
	TypeReply   EventType = "Reply"
)

// ActionKind is the sub-kind of an Action event.
type ActionKind string

// All action kinds. StartGame and Sync are synthetic markers: StartGame
// guarantees at least one event exists at game start, Sync tells a
// late-joining subscriber that no more catch-up events remain.
const (
	ActionAddTurnTime   ActionKind = "AddTurnTime"
	ActionAddGlobalTime ActionKind = "AddGlobalTime"
	ActionStartGame     ActionKind = "StartGame"
	ActionEndGame       ActionKind = "EndGame"
	ActionSync          ActionKind = "Sync"
)

// RequestKind is the negotiation flavor of a Request or Reply event.
type RequestKind string

// The negotiable request kinds.
const (
	RequestTakeBack RequestKind = "TakeBack"
	RequestDraw     RequestKind = "Draw"
	RequestRematch  RequestKind = "Rematch"
)

// Verdict is the answer carried by a Reply event.
type Verdict string

// Possible reply verdicts.
const (
	VerdictAccept Verdict = "Accept"
	VerdictReject Verdict = "Reject"
)

// Event is one immutable entry of a session log. Events are totally
// ordered by the log-assigned Seq; Time is the log-confirmed timestamp in
// Unix milliseconds. Exactly one variant field group is populated,
// selected by Type.
type Event struct {
	Seq  int64     `json:"seq,omitempty"`
	Type EventType `json:"eventType"`
	User string    `json:"user"`
	Time int64     `json:"time"`

	// Move variant: an opaque payload the rules engine decodes.
	Move json.RawMessage `json:"move,omitempty"`

	// Action variant.
	Action ActionKind `json:"action,omitempty"`

	// Request and Reply variants.
	RequestType RequestKind `json:"requestType,omitempty"`
	Reply       Verdict     `json:"reply,omitempty"`
	Data        string      `json:"data,omitempty"`
}

// ErrMalformedEvent indicates an event whose variant fields do not match
// its declared type.
var ErrMalformedEvent = errors.New("gamelog: malformed event")

// NewMove builds a Move event. Time is assigned by the log on append.
func NewMove(user string, payload json.RawMessage) Event {
	return Event{Type: TypeMove, User: user, Move: payload}
}

// NewAction builds an Action event.
func NewAction(user string, kind ActionKind) Event {
	return Event{Type: TypeAction, User: user, Action: kind}
}

// NewRequest builds a Request event.
func NewRequest(user string, kind RequestKind) Event {
	return Event{Type: TypeRequest, User: user, RequestType: kind}
}

// NewReply builds a Reply event answering a request of the given kind.
// Data carries kind-specific payload, e.g. the new session id for an
// accepted rematch.
func NewReply(user string, kind RequestKind, verdict Verdict, data string) Event {
	return Event{Type: TypeReply, User: user, RequestType: kind, Reply: verdict, Data: data}
}

// Validate checks the variant fields against the declared type.
func (e Event) Validate() error {
	switch e.Type {
	case TypeMove:
		if len(e.Move) == 0 {
			return fmt.Errorf("%w: move event without payload", ErrMalformedEvent)
		}
	case TypeAction:
		switch e.Action {
		case ActionAddTurnTime, ActionAddGlobalTime, ActionStartGame, ActionEndGame, ActionSync:
		default:
			return fmt.Errorf("%w: unknown action %q", ErrMalformedEvent, e.Action)
		}
	case TypeRequest:
		if err := validRequestKind(e.RequestType); err != nil {
			return err
		}
	case TypeReply:
		if err := validRequestKind(e.RequestType); err != nil {
			return err
		}
		if e.Reply != VerdictAccept && e.Reply != VerdictReject {
			return fmt.Errorf("%w: unknown verdict %q", ErrMalformedEvent, e.Reply)
		}
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrMalformedEvent, e.Type)
	}

	return nil
}

func validRequestKind(k RequestKind) error {
	switch k {
	case RequestTakeBack, RequestDraw, RequestRematch:
		return nil
	default:
		return fmt.Errorf("%w: unknown request kind %q", ErrMalformedEvent, k)
	}
}

// Batch is an ordered group of events delivered together by a
// subscription. A catch-up batch may span many turns; live batches are
// usually one event long.
type Batch []Event
