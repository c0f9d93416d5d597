package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRecord() Record {
	return Record{
		ID:                  uuid.New(),
		Players:             [2]string{"alice", "bob"},
		MaximalMoveDuration: 2 * time.Minute,
		TotalPartDuration:   30 * time.Minute,
	}
}

func TestSaveAndGetSession(t *testing.T) {
	repo := NewInMemoryRepository(zap.NewNop())
	rec := testRecord()

	require.NoError(t, repo.SaveSession(rec))

	got, err := repo.GetSession(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Players, got.Players)
	assert.Equal(t, rec.MaximalMoveDuration, got.MaximalMoveDuration)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestGetSession_Unknown(t *testing.T) {
	repo := NewInMemoryRepository(zap.NewNop())

	_, err := repo.GetSession(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetResult_FirstWriteWins(t *testing.T) {
	repo := NewInMemoryRepository(zap.NewNop())
	rec := testRecord()
	require.NoError(t, repo.SaveSession(rec))

	require.NoError(t, repo.SetResult(rec.ID, "victory of playerZero"))
	require.NoError(t, repo.SetResult(rec.ID, "timeout of playerOne"))

	got, err := repo.GetSession(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "victory of playerZero", got.Result)
}

func TestSetResult_UnknownSession(t *testing.T) {
	repo := NewInMemoryRepository(zap.NewNop())

	assert.ErrorIs(t, repo.SetResult(uuid.New(), "draw"), ErrNotFound)
}

func TestListActiveSessions(t *testing.T) {
	repo := NewInMemoryRepository(zap.NewNop())

	running := testRecord()
	finished := testRecord()
	require.NoError(t, repo.SaveSession(running))
	require.NoError(t, repo.SaveSession(finished))
	require.NoError(t, repo.SetResult(finished.ID, "draw"))

	active, err := repo.ListActiveSessions()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, running.ID, active[0].ID)
}
