// Package player identifies the two sides of a game session.
package player

import "fmt"

// Index designates one of the two participants of a session. Player zero
// always owns the first move.
type Index int

// The two sides of every session.
const (
	Zero Index = 0
	One  Index = 1
)

// Opp returns the other side.
func (p Index) Opp() Index {
	if p == Zero {
		return One
	}

	return Zero
}

// Valid reports whether p designates an actual side.
func (p Index) Valid() bool {
	return p == Zero || p == One
}

func (p Index) String() string {
	switch p {
	case Zero:
		return "playerZero"
	case One:
		return "playerOne"
	default:
		return fmt.Sprintf("player(%d)", int(p))
	}
}

// ForTurn returns the side to move at the given turn number. Turns are
// zero-based and alternate starting with player zero.
func ForTurn(turn int) Index {
	if turn%2 == 0 {
		return Zero
	}

	return One
}
