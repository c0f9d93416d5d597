package gamelog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSQLiteLog(t *testing.T) *SQLiteLog {
	t.Helper()

	l, err := OpenSQLite(filepath.Join(t.TempDir(), "gamelog.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	l.pollInterval = 10 * time.Millisecond
	return l
}

func TestSQLiteLog_AppendAssignsSequentialSeq(t *testing.T) {
	l := newTestSQLiteLog(t)
	sid := uuid.New()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		ev, err := l.Append(ctx, sid, moveEv("alice", "e4"))
		require.NoError(t, err)
		assert.Equal(t, int64(i), ev.Seq)
		assert.NotZero(t, ev.Time)
	}
}

func TestSQLiteLog_SequencesAreIndependentPerSession(t *testing.T) {
	l := newTestSQLiteLog(t)
	ctx := context.Background()

	a, err := l.Append(ctx, uuid.New(), NewAction("alice", ActionStartGame))
	require.NoError(t, err)
	b, err := l.Append(ctx, uuid.New(), NewAction("carol", ActionStartGame))
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.Seq)
	assert.Equal(t, int64(1), b.Seq)
}

func TestSQLiteLog_SubscribeBacklogThenSyncThenLive(t *testing.T) {
	l := newTestSQLiteLog(t)
	sid := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := l.Append(ctx, sid, NewAction("alice", ActionStartGame))
	require.NoError(t, err)
	_, err = l.Append(ctx, sid, moveEv("alice", "e4"))
	require.NoError(t, err)

	ch, err := l.Subscribe(ctx, sid, 0)
	require.NoError(t, err)

	backlog := recvBatch(t, ch)
	require.Len(t, backlog, 2)
	assert.Equal(t, ActionStartGame, backlog[0].Action)
	assert.Equal(t, "alice", backlog[0].User)

	sync := recvBatch(t, ch)
	require.Len(t, sync, 1)
	assert.Equal(t, ActionSync, sync[0].Action)

	_, err = l.Append(ctx, sid, moveEv("bob", "e5"))
	require.NoError(t, err)

	live := recvBatch(t, ch)
	require.NotEmpty(t, live)
	assert.Equal(t, int64(3), live[0].Seq)
	assert.Equal(t, "bob", live[0].User)
}

func TestSQLiteLog_NoSyncWhileBacklogUnreadable(t *testing.T) {
	l := newTestSQLiteLog(t)
	sid := uuid.New()

	_, err := l.Append(context.Background(), sid, NewAction("alice", ActionStartGame))
	require.NoError(t, err)

	// With the database gone the backlog cannot be read; the subscription
	// must keep retrying instead of claiming an empty history with a Sync.
	require.NoError(t, l.db.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	ch, err := l.Subscribe(ctx, sid, 0)
	require.NoError(t, err)

	for batch := range ch {
		t.Fatalf("received batch %v before backlog was readable", batch)
	}
}

func TestSQLiteLog_EventsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gamelog.db")
	sid := uuid.New()
	ctx := context.Background()

	l, err := OpenSQLite(path, zap.NewNop())
	require.NoError(t, err)
	_, err = l.Append(ctx, sid, NewAction("alice", ActionStartGame))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	reopened, err := OpenSQLite(path, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	ev, err := reopened.Append(ctx, sid, moveEv("alice", "e4"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), ev.Seq)

	batch, err := reopened.eventsAfter(ctx, sid, 0)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, ActionStartGame, batch[0].Action)
	assert.Equal(t, TypeMove, batch[1].Type)
}
