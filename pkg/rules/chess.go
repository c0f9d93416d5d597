package rules

import (
	"encoding/json"
	"fmt"

	"github.com/corentings/chess/v2"

	"github.com/awesomboard/gamesync/internal/player"
)

// ChessMovePayload is the wire shape of a chess move: algebraic notation.
type ChessMovePayload struct {
	Notation string `json:"notation"`
}

// ChessEngine adapts corentings/chess to the Engine capability. Player
// zero plays white.
type ChessEngine struct{}

// NewChessEngine returns the chess rules adapter.
func NewChessEngine() *ChessEngine { return &ChessEngine{} }

// InitialState implements Engine.
func (e *ChessEngine) InitialState() (State, error) {
	return chess.NewGame(), nil
}

// DecodeMove implements Engine.
func (e *ChessEngine) DecodeMove(payload json.RawMessage) (Move, error) {
	var mv ChessMovePayload
	if err := json.Unmarshal(payload, &mv); err != nil {
		return nil, fmt.Errorf("decode chess move: %w", err)
	}
	if mv.Notation == "" {
		return nil, fmt.Errorf("decode chess move: empty notation")
	}

	return mv.Notation, nil
}

// EncodeMove implements Engine.
func (e *ChessEngine) EncodeMove(mv Move) (json.RawMessage, error) {
	notation, ok := mv.(string)
	if !ok {
		return nil, fmt.Errorf("encode chess move: unexpected move type %T", mv)
	}

	return json.Marshal(ChessMovePayload{Notation: notation})
}

// Validate implements Engine by attempting the move on a copy of the game.
func (e *ChessEngine) Validate(st State, mv Move) error {
	game, notation, err := e.unpack(st, mv)
	if err != nil {
		return err
	}

	if err := game.Clone().PushMove(notation, nil); err != nil {
		return fmt.Errorf("illegal move %q: %w", notation, err)
	}

	return nil
}

// Apply implements Engine. The input state is left untouched.
func (e *ChessEngine) Apply(st State, mv Move) (State, error) {
	game, notation, err := e.unpack(st, mv)
	if err != nil {
		return nil, err
	}

	next := game.Clone()
	if err := next.PushMove(notation, nil); err != nil {
		return nil, fmt.Errorf("illegal move %q: %w", notation, err)
	}

	return next, nil
}

// Status implements Engine.
func (e *ChessEngine) Status(st State) Status {
	game, ok := st.(*chess.Game)
	if !ok {
		return Status{Outcome: Ongoing}
	}

	switch game.Outcome() {
	case chess.WhiteWon:
		return Status{Outcome: Win, Winner: player.Zero}
	case chess.BlackWon:
		return Status{Outcome: Win, Winner: player.One}
	case chess.Draw:
		return Status{Outcome: Draw}
	default:
		return Status{Outcome: Ongoing}
	}
}

// Describe implements Describer, exposing the position as FEN.
func (e *ChessEngine) Describe(st State) string {
	game, ok := st.(*chess.Game)
	if !ok {
		return ""
	}

	return game.FEN()
}

func (e *ChessEngine) unpack(st State, mv Move) (*chess.Game, string, error) {
	game, ok := st.(*chess.Game)
	if !ok {
		return nil, "", fmt.Errorf("unexpected state type %T", st)
	}

	notation, ok := mv.(string)
	if !ok {
		return nil, "", fmt.Errorf("unexpected move type %T", mv)
	}

	return game, notation, nil
}
