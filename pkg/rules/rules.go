// Package rules declares the per-game rules capability the session engine
// consumes. The engine is opaque to synchronization: it decodes move
// payloads, judges legality, advances the board, and reports the game
// status. Anything that satisfies Engine can be plugged into a session.
package rules

import (
	"encoding/json"

	"github.com/awesomboard/gamesync/internal/player"
)

// State is an opaque board position owned by the engine. Implementations
// must treat states as immutable: Apply returns a new state and leaves its
// input untouched, which is what makes take-back rewinds a plain history
// truncation.
type State any

// Move is an engine-decoded move.
type Move any

// Outcome classifies a position.
type Outcome int

// Possible game outcomes.
const (
	Ongoing Outcome = iota
	Win
	Draw
)

// Status is the result of judging a position.
type Status struct {
	Outcome Outcome
	// Winner is meaningful only when Outcome is Win.
	Winner player.Index
}

// Engine is the consumed rules capability.
type Engine interface {
	// InitialState returns the starting position.
	InitialState() (State, error)

	// DecodeMove parses an opaque wire payload into a move.
	DecodeMove(payload json.RawMessage) (Move, error)

	// EncodeMove renders a move back into its wire payload.
	EncodeMove(mv Move) (json.RawMessage, error)

	// Validate reports why mv is illegal in st, or nil if it is legal.
	Validate(st State, mv Move) error

	// Apply advances st by the legal move mv, returning the new state.
	Apply(st State, mv Move) (State, error)

	// Status judges st.
	Status(st State) Status
}

// Describer is an optional extension engines may implement to expose a
// printable board description for session snapshots.
type Describer interface {
	Describe(st State) string
}
