package gamelog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		ev      Event
		wantErr bool
	}{
		{name: "move", ev: NewMove("alice", json.RawMessage(`{"notation":"e4"}`))},
		{name: "move without payload", ev: Event{Type: TypeMove, User: "alice"}, wantErr: true},
		{name: "start game", ev: NewAction("alice", ActionStartGame)},
		{name: "sync", ev: Event{Type: TypeAction, Action: ActionSync}},
		{name: "unknown action", ev: Event{Type: TypeAction, Action: "Teleport"}, wantErr: true},
		{name: "request", ev: NewRequest("bob", RequestDraw)},
		{name: "unknown request kind", ev: Event{Type: TypeRequest, RequestType: "Undo"}, wantErr: true},
		{name: "reply", ev: NewReply("alice", RequestDraw, VerdictAccept, "")},
		{name: "reply without verdict", ev: Event{Type: TypeReply, RequestType: RequestDraw}, wantErr: true},
		{name: "unknown type", ev: Event{Type: "Chat", User: "alice"}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.ev.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrMalformedEvent)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEventWireShape(t *testing.T) {
	ev := NewReply("bob", RequestRematch, VerdictAccept, "next-id")
	ev.Seq = 7
	ev.Time = 1_700_000_000_000

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))

	assert.Equal(t, "Reply", fields["eventType"])
	assert.Equal(t, "bob", fields["user"])
	assert.Equal(t, "Rematch", fields["requestType"])
	assert.Equal(t, "Accept", fields["reply"])
	assert.Equal(t, "next-id", fields["data"])
	assert.NotContains(t, fields, "move")
	assert.NotContains(t, fields, "action")
}
