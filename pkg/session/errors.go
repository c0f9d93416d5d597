package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/awesomboard/gamesync/internal/player"
)

// ErrProtocolViolation marks an event that cannot have been produced by a
// well-behaved peer. A replica that encounters one stops replaying loudly
// rather than continue from a corrupted premise.
var ErrProtocolViolation = errors.New("session: protocol violation")

// ValidationError is returned synchronously when the caller asks for an
// operation the state machine forbids. Nothing is written to the log and
// no state changes; the reason is meant to be rendered to the player.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func reject(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...))
}

// resultData is the wire encoding of a terminal result carried in an
// EndGame event's data field.
type resultData struct {
	Kind   string `json:"kind"`
	Player *int   `json:"player,omitempty"`
}

var resultKindNames = map[ResultKind]string{
	Victory:     "Victory",
	Resignation: "Resignation",
	Timeout:     "Timeout",
	HardDraw:    "HardDraw",
	AgreedDraw:  "AgreedDraw",
}

func encodeResult(r Result) string {
	name := resultKindNames[r.Kind]
	data := resultData{Kind: name}
	switch r.Kind {
	case Victory, Resignation, Timeout, AgreedDraw:
		p := int(r.Player)
		data.Player = &p
	}

	raw, _ := json.Marshal(data)
	return string(raw)
}

func decodeResult(s string) (Result, error) {
	var data resultData
	if err := json.Unmarshal([]byte(s), &data); err != nil {
		return Result{}, fmt.Errorf("decode result: %w", err)
	}

	var kind ResultKind
	found := false
	for k, name := range resultKindNames {
		if name == data.Kind {
			kind, found = k, true
			break
		}
	}
	if !found {
		return Result{}, fmt.Errorf("decode result: unknown kind %q", data.Kind)
	}

	r := Result{Kind: kind}
	if data.Player != nil {
		p := player.Index(*data.Player)
		if !p.Valid() {
			return Result{}, fmt.Errorf("decode result: invalid player %d", *data.Player)
		}
		r.Player = p
	}

	return r, nil
}
