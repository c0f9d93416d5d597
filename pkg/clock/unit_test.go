package clock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnit_ArmLeavesPaused(t *testing.T) {
	u := NewUnit(nil)
	require.Equal(t, StateIdle, u.State())

	u.Arm(5_000)

	assert.Equal(t, StatePaused, u.State())
	assert.Equal(t, int64(5_000), u.Remaining())
}

func TestUnit_PauseFoldsElapsedTime(t *testing.T) {
	u := NewUnit(nil)
	u.Arm(60_000)
	u.Resume()
	require.Equal(t, StateRunning, u.State())

	time.Sleep(50 * time.Millisecond)
	u.Pause()

	require.Equal(t, StatePaused, u.State())
	remaining := u.Remaining()
	assert.Less(t, remaining, int64(60_000))
	assert.Greater(t, remaining, int64(59_000))
}

func TestUnit_SetOverwritesWhilePaused(t *testing.T) {
	u := NewUnit(nil)
	u.Arm(60_000)

	u.Set(42_000)

	assert.Equal(t, int64(42_000), u.Remaining())
	assert.Equal(t, StatePaused, u.State())
}

func TestUnit_SetIgnoredWhileIdle(t *testing.T) {
	u := NewUnit(nil)

	u.Set(42_000)

	assert.Equal(t, StateIdle, u.State())
	assert.Equal(t, int64(0), u.Remaining())
}

func TestUnit_AddCreditsTime(t *testing.T) {
	u := NewUnit(nil)
	u.Arm(10_000)

	u.Add(30_000)

	assert.Equal(t, int64(40_000), u.Remaining())
}

func TestUnit_ResumeWithNoTimeExpiresImmediately(t *testing.T) {
	var fired atomic.Int32
	u := NewUnit(func() { fired.Add(1) })
	u.Arm(0)

	u.Resume()

	assert.Equal(t, StateExpired, u.State())
	assert.Equal(t, int32(1), fired.Load())
}

func TestUnit_ExpiryFiresExactlyOnce(t *testing.T) {
	var fired atomic.Int32
	u := NewUnit(func() { fired.Add(1) })
	u.Arm(20)
	u.Resume()

	require.Eventually(t, func() bool {
		return u.State() == StateExpired
	}, time.Second, 5*time.Millisecond)

	// Further transitions on an expired unit must not refire.
	u.Resume()
	u.Set(0)
	u.Arm(1_000)

	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, StateExpired, u.State())
	assert.Equal(t, int64(0), u.Remaining())
}

func TestUnit_SetToZeroWhileRunningExpires(t *testing.T) {
	var fired atomic.Int32
	u := NewUnit(func() { fired.Add(1) })
	u.Arm(60_000)
	u.Resume()

	u.Set(0)

	assert.Equal(t, StateExpired, u.State())
	assert.Equal(t, int32(1), fired.Load())
}

func TestUnit_PauseClampsAtZero(t *testing.T) {
	u := NewUnit(nil)
	u.Arm(60_000)
	u.Resume()
	u.Pause()

	assert.GreaterOrEqual(t, u.Remaining(), int64(0))
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{ms: 1_785_000, want: "29:45"},
		{ms: 120_000, want: "2:00"},
		{ms: 61_000, want: "1:01"},
		{ms: 10_000, want: "0:10"},
		{ms: 9_300, want: "9.3"},
		{ms: 500, want: "0.5"},
		{ms: 0, want: "0.0"},
		{ms: -100, want: "0.0"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, FormatRemaining(tc.ms))
	}
}
