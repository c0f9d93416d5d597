package messages

import "encoding/json"

// OutboundMessage is how we wrap responses before sending
// them to the client
type OutboundMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

type ConnectedPayload struct {
	ConnectionId string `json:"connection_id"`
}

// SessionCreatedPayload represents the payload after a create session event
type SessionCreatedPayload struct {
	SessionID string    `json:"session_id"`
	Players   [2]string `json:"players"`
	TurnMs    int64     `json:"turn_ms"`
	GlobalMs  int64     `json:"global_ms"`
}

// SessionStatePayload is the full observable state for one seat.
type SessionStatePayload struct {
	SessionID     string    `json:"session_id"`
	Players       [2]string `json:"players"`
	Turn          int       `json:"turn"`
	Current       string    `json:"current"`
	Board         string    `json:"board"`
	TurnMs        [2]int64  `json:"turn_ms"`
	GlobalMs      [2]int64  `json:"global_ms"`
	Result        string    `json:"result"`
	Over          bool      `json:"over"`
	RequestForMe  string    `json:"request_for_me,omitempty"`
	RequestFromMe string    `json:"request_from_me,omitempty"`
	CanMove       bool      `json:"can_move"`
	CanResign     bool      `json:"can_resign"`
	RematchID     string    `json:"rematch_id,omitempty"`
}

// MoveAppliedPayload reports a move folded into the session state. Animate
// distinguishes a fresh move from one replayed during catch-up.
type MoveAppliedPayload struct {
	SessionID string          `json:"session_id"`
	Move      json.RawMessage `json:"move"`
	Turn      int             `json:"turn"`
	Current   string          `json:"current"`
	Board     string          `json:"board"`
	Animate   bool            `json:"animate"`
}

// ClockUpdatePayload contains the remaining time of every clock. Display
// holds the user-facing rendering of the turn clocks.
type ClockUpdatePayload struct {
	SessionID string    `json:"session_id"`
	TurnMs    [2]int64  `json:"turn_ms"`
	GlobalMs  [2]int64  `json:"global_ms"`
	Current   string    `json:"current"`
	Display   [2]string `json:"display"`
}

// RequestPendingPayload announces a newly outstanding proposal.
type RequestPendingPayload struct {
	SessionID   string `json:"session_id"`
	RequestType string `json:"request_type"`
	Issuer      string `json:"issuer"`
}

// RequestResolvedPayload reports the reply to a proposal. Data carries the
// new session id for an accepted rematch.
type RequestResolvedPayload struct {
	SessionID   string `json:"session_id"`
	RequestType string `json:"request_type"`
	Accepted    bool   `json:"accepted"`
	Board       string `json:"board,omitempty"`
	Data        string `json:"data,omitempty"`
}

// GameOverPayload reports the terminal result of a session.
type GameOverPayload struct {
	SessionID string `json:"session_id"`
	Result    string `json:"result"`
}

// ReplicaFailedPayload reports that the local replica stopped replaying
// because of a protocol violation.
type ReplicaFailedPayload struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
