package negotiation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awesomboard/gamesync/internal/player"
	"github.com/awesomboard/gamesync/pkg/gamelog"
)

func TestCanRequest_AtMostOneOutstanding(t *testing.T) {
	n := NewNegotiator()

	require.NoError(t, n.CanRequest(gamelog.RequestDraw, player.Zero, false, 4))
	require.NoError(t, n.OnReceivedRequest(gamelog.RequestDraw, player.Zero))

	// Nobody can raise anything while a request is pending, the issuer
	// included.
	assert.ErrorIs(t, n.CanRequest(gamelog.RequestDraw, player.One, false, 4), ErrRequestOutstanding)
	assert.ErrorIs(t, n.CanRequest(gamelog.RequestTakeBack, player.Zero, false, 4), ErrRequestOutstanding)
}

func TestCanRequest_RematchNeedsFinishedGame(t *testing.T) {
	n := NewNegotiator()

	assert.ErrorIs(t, n.CanRequest(gamelog.RequestRematch, player.Zero, false, 10), ErrSessionNotOver)
	assert.NoError(t, n.CanRequest(gamelog.RequestRematch, player.Zero, true, 10))
}

func TestCanRequest_TakeBackAndDrawNeedRunningGame(t *testing.T) {
	n := NewNegotiator()

	assert.ErrorIs(t, n.CanRequest(gamelog.RequestTakeBack, player.Zero, true, 10), ErrSessionOver)
	assert.ErrorIs(t, n.CanRequest(gamelog.RequestDraw, player.Zero, true, 10), ErrSessionOver)
}

func TestCanRequest_TakeBackNeedsOwnMove(t *testing.T) {
	n := NewNegotiator()

	// Before either side moved there is nothing to take back.
	assert.ErrorIs(t, n.CanRequest(gamelog.RequestTakeBack, player.Zero, false, 0), ErrNothingToTakeBack)
	assert.ErrorIs(t, n.CanRequest(gamelog.RequestTakeBack, player.One, false, 0), ErrNothingToTakeBack)

	// After the first move only its author can retract.
	assert.NoError(t, n.CanRequest(gamelog.RequestTakeBack, player.Zero, false, 1))
	assert.ErrorIs(t, n.CanRequest(gamelog.RequestTakeBack, player.One, false, 1), ErrNothingToTakeBack)

	assert.NoError(t, n.CanRequest(gamelog.RequestTakeBack, player.One, false, 2))
}

func TestReply_RejectionBlocksReRaise(t *testing.T) {
	n := NewNegotiator()

	require.NoError(t, n.OnReceivedRequest(gamelog.RequestDraw, player.Zero))
	outcome, err := n.OnReceivedReply(gamelog.RequestDraw, gamelog.VerdictReject, "")
	require.NoError(t, err)
	assert.False(t, outcome.Accepted)

	// The denial binds the same kind and issuer only.
	assert.ErrorIs(t, n.CanRequest(gamelog.RequestDraw, player.Zero, false, 4), ErrAlreadyDenied)
	assert.NoError(t, n.CanRequest(gamelog.RequestDraw, player.One, false, 4))
	assert.NoError(t, n.CanRequest(gamelog.RequestTakeBack, player.Zero, false, 4))
}

func TestReply_AcceptanceCarriesOutcome(t *testing.T) {
	n := NewNegotiator()

	require.NoError(t, n.OnReceivedRequest(gamelog.RequestRematch, player.One))
	outcome, err := n.OnReceivedReply(gamelog.RequestRematch, gamelog.VerdictAccept, "next-session")
	require.NoError(t, err)

	assert.True(t, outcome.Accepted)
	assert.Equal(t, gamelog.RequestRematch, outcome.Kind)
	assert.Equal(t, player.One, outcome.Issuer)
	assert.Equal(t, "next-session", outcome.Data)
	assert.Nil(t, n.Outstanding())
}

func TestReply_WithoutRequestIsViolation(t *testing.T) {
	n := NewNegotiator()

	_, err := n.OnReceivedReply(gamelog.RequestDraw, gamelog.VerdictAccept, "")
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestReply_KindMismatchIsViolation(t *testing.T) {
	n := NewNegotiator()

	require.NoError(t, n.OnReceivedRequest(gamelog.RequestDraw, player.Zero))
	_, err := n.OnReceivedReply(gamelog.RequestTakeBack, gamelog.VerdictAccept, "")
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestSecondRequestIsViolation(t *testing.T) {
	n := NewNegotiator()

	require.NoError(t, n.OnReceivedRequest(gamelog.RequestDraw, player.Zero))
	assert.ErrorIs(t, n.OnReceivedRequest(gamelog.RequestTakeBack, player.One), ErrProtocolViolation)
}

func TestMove_WithdrawsIssuersRequest(t *testing.T) {
	n := NewNegotiator()

	require.NoError(t, n.OnReceivedRequest(gamelog.RequestDraw, player.Zero))

	// The opponent moving changes nothing.
	n.OnReceivedMove(player.One)
	require.NotNil(t, n.Outstanding())

	// The issuer moving withdraws the proposal.
	n.OnReceivedMove(player.Zero)
	assert.Nil(t, n.Outstanding())
}

func TestMove_NeverWithdrawsRematch(t *testing.T) {
	n := NewNegotiator()

	require.NoError(t, n.OnReceivedRequest(gamelog.RequestRematch, player.Zero))
	n.OnReceivedMove(player.Zero)

	assert.NotNil(t, n.Outstanding())
}
