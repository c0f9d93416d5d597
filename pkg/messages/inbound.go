package messages

import "encoding/json"

// InboundMessage is the generic wrapper for messages coming from the client.
// The "event" field tells us the action; "payload" is the data we parse further.
type InboundMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// CreateSessionPayload represents the payload for creating a new session
type CreateSessionPayload struct {
	Players     [2]string `json:"players"`
	TimeControl struct {
		MaximalMoveDurationSec int `json:"maximal_move_duration_sec"`
		TotalPartDurationSec   int `json:"total_part_duration_sec"`
	} `json:"time_control"`
}

// JoinSessionPayload attaches this connection to an existing session as
// one of its players, replaying the history so far.
type JoinSessionPayload struct {
	SessionID string `json:"session_id"`
	User      string `json:"user"`
}

// MakeMovePayload represents the payload for making a move during a game
type MakeMovePayload struct {
	SessionID string          `json:"session_id"`
	Move      json.RawMessage `json:"move"`
}

// ProposeRequestPayload raises a take-back, draw or rematch proposal.
type ProposeRequestPayload struct {
	SessionID   string `json:"session_id"`
	RequestType string `json:"request_type"`
}

// AnswerRequestPayload accepts or rejects the outstanding proposal.
type AnswerRequestPayload struct {
	SessionID   string `json:"session_id"`
	RequestType string `json:"request_type"`
	Accept      bool   `json:"accept"`
}

// AddTimePayload grants extra time to the opponent. Clock is "turn" or
// "global".
type AddTimePayload struct {
	SessionID string `json:"session_id"`
	Clock     string `json:"clock"`
}

// ResignPayload concedes the game.
type ResignPayload struct {
	SessionID string `json:"session_id"`
}

// GetStatePayload asks for a fresh snapshot of the session.
type GetStatePayload struct {
	SessionID string `json:"session_id"`
}
