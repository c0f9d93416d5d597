// Package clock implements the pausable countdowns backing a session's
// time control: a single millisecond-resolution Unit and the Manager that
// owns the four units of a two-player game.
package clock

import (
	"sync"
	"time"
)

// UnitState is the lifecycle of a single countdown.
type UnitState int

// Unit lifecycle: Idle until armed, then Paused and Running alternate,
// Expired is terminal.
const (
	StateIdle UnitState = iota
	StatePaused
	StateRunning
	StateExpired
)

func (s UnitState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePaused:
		return "paused"
	case StateRunning:
		return "running"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Unit is one pausable countdown with millisecond resolution. Reaching
// zero while running fires the expiry callback exactly once and moves the
// unit to Expired; an expired unit never resumes. Remaining time while
// running is derived from a start instant rather than decremented by a
// ticker, so reads never accumulate rounding error.
type Unit struct {
	mu sync.Mutex

	state       UnitState
	remainingMs int64
	startedAt   time.Time

	timer    *time.Timer
	onExpire func()
}

// NewUnit creates an idle unit. onExpire may be nil.
func NewUnit(onExpire func()) *Unit {
	return &Unit{state: StateIdle, onExpire: onExpire}
}

// Arm seeds the countdown and leaves it paused. Arming an expired unit is
// a no-op.
func (u *Unit) Arm(ms int64) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state == StateExpired {
		return
	}

	u.stopTimerLocked()
	u.remainingMs = ms
	u.state = StatePaused
}

// Set overwrites the remaining time, keeping the current run state. Used
// for the authoritative recompute after each processed batch.
func (u *Unit) Set(ms int64) {
	var fire bool

	u.mu.Lock()
	switch u.state {
	case StateIdle, StateExpired:
		u.mu.Unlock()
		return
	case StateRunning:
		u.stopTimerLocked()
		u.remainingMs = ms
		if ms <= 0 {
			fire = u.expireLocked()
		} else {
			u.startedAt = time.Now()
			u.startTimerLocked()
		}
	case StatePaused:
		u.remainingMs = ms
	}
	u.mu.Unlock()

	if fire && u.onExpire != nil {
		u.onExpire()
	}
}

// Add credits extra time. Negative amounts are allowed while paused; the
// value is clamped at resume time.
func (u *Unit) Add(ms int64) {
	u.Set(u.snapshotRemaining() + ms)
}

// Resume starts the countdown. Resuming with no time left expires the
// unit immediately.
func (u *Unit) Resume() {
	var fire bool

	u.mu.Lock()
	if u.state != StatePaused {
		u.mu.Unlock()
		return
	}

	if u.remainingMs <= 0 {
		fire = u.expireLocked()
	} else {
		u.state = StateRunning
		u.startedAt = time.Now()
		u.startTimerLocked()
	}
	u.mu.Unlock()

	if fire && u.onExpire != nil {
		u.onExpire()
	}
}

// Pause freezes the countdown, folding the elapsed running time into the
// stored remainder.
func (u *Unit) Pause() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state != StateRunning {
		return
	}

	u.stopTimerLocked()
	u.remainingMs -= time.Since(u.startedAt).Milliseconds()
	if u.remainingMs < 0 {
		u.remainingMs = 0
	}
	u.state = StatePaused
}

// Remaining returns the current remaining time in milliseconds, never
// negative.
func (u *Unit) Remaining() int64 {
	ms := u.snapshotRemaining()
	if ms < 0 {
		return 0
	}
	return ms
}

// State returns the unit's current lifecycle state.
func (u *Unit) State() UnitState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

func (u *Unit) snapshotRemaining() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	ms := u.remainingMs
	if u.state == StateRunning {
		ms -= time.Since(u.startedAt).Milliseconds()
	}
	return ms
}

// expireLocked transitions to Expired and reports whether the callback
// should fire. Callers invoke the callback outside the lock.
func (u *Unit) expireLocked() bool {
	u.stopTimerLocked()
	u.remainingMs = 0
	u.state = StateExpired
	return true
}

func (u *Unit) startTimerLocked() {
	d := time.Duration(u.remainingMs) * time.Millisecond
	u.timer = time.AfterFunc(d, u.onTimer)
}

func (u *Unit) stopTimerLocked() {
	if u.timer != nil {
		u.timer.Stop()
		u.timer = nil
	}
}

func (u *Unit) onTimer() {
	var fire bool

	u.mu.Lock()
	if u.state == StateRunning && time.Since(u.startedAt).Milliseconds() >= u.remainingMs {
		fire = u.expireLocked()
	}
	u.mu.Unlock()

	if fire && u.onExpire != nil {
		u.onExpire()
	}
}
