package clock

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/awesomboard/gamesync/internal/player"
)

// Fixed goodwill grants a player may credit to their opponent.
const (
	TurnGrantMs   int64 = 30_000
	GlobalGrantMs int64 = 300_000
)

// Config is the time-control surface consumed at game start.
type Config struct {
	// MaximalMoveDuration is the per-turn allowance; unused turn time is
	// forfeited every move.
	MaximalMoveDuration time.Duration

	// TotalPartDuration is each player's budget for the whole session.
	TotalPartDuration time.Duration
}

// TimeoutFn is invoked exactly once per player whose clock expires.
type TimeoutFn func(p player.Index)

// Snapshot is the externally visible clock state of both players.
type Snapshot struct {
	TurnMs   [2]int64
	GlobalMs [2]int64
	Running  [2]bool
}

// Manager owns the four countdowns of a session (two players, turn and
// global) and derives authoritative remaining time from the replayed event
// history. The wall-clock ticking of the units is only a local display
// approximation between events; every processed batch overwrites it with
// values computed from event timestamps, which is what keeps two clients
// that attached at different times in agreement.
type Manager struct {
	mu sync.Mutex

	logger    *zap.Logger
	onTimeout TimeoutFn

	turn   [2]*Unit
	global [2]*Unit

	turnBudgetMs  int64
	totalBudgetMs int64

	consumedGlobalMs [2]int64
	extraGlobalMs    [2]int64
	extraTurnMs      [2]int64

	// lastMoveStartMs is the event-time at which the current turn began.
	lastMoveStartMs int64

	synced  bool
	started bool
	ended   bool

	timeoutFired [2]bool
}

// NewManager creates a manager whose units are idle until OnGameStart.
func NewManager(logger *zap.Logger, onTimeout TimeoutFn) *Manager {
	m := &Manager{
		logger:    logger,
		onTimeout: onTimeout,
	}

	for _, p := range []player.Index{player.Zero, player.One} {
		p := p
		m.turn[p] = NewUnit(func() { m.handleExpiry(p) })
		m.global[p] = NewUnit(func() { m.handleExpiry(p) })
	}

	return m
}

// OnGameStart seeds every unit from the session config and leaves them all
// paused: a deterministic baseline before any event-driven resume.
func (m *Manager) OnGameStart(cfg Config, startMs int64) {
	m.mu.Lock()
	m.turnBudgetMs = cfg.MaximalMoveDuration.Milliseconds()
	m.totalBudgetMs = cfg.TotalPartDuration.Milliseconds()
	m.lastMoveStartMs = startMs
	m.started = true
	turnBudget, totalBudget := m.turnBudgetMs, m.totalBudgetMs
	m.mu.Unlock()

	for _, p := range []player.Index{player.Zero, player.One} {
		m.turn[p].Arm(turnBudget)
		m.global[p].Arm(totalBudget)
	}
}

// MarkSynced opens the resume gate. Until the subscription's Sync marker
// has been processed no clock resumes, which prevents a catching-up client
// from flashing stale countdowns.
func (m *Manager) MarkSynced() {
	m.mu.Lock()
	m.synced = true
	m.mu.Unlock()
}

// Synced reports whether the Sync marker has been observed.
func (m *Manager) Synced() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.synced
}

// OnReceivedMove books the mover's spent time against their budgets and
// resets the next mover's turn allowance. Elapsed time comes from event
// timestamps, never from the local wall clock, so every replica computes
// the same values.
func (m *Manager) OnReceivedMove(mover player.Index, tsMs int64) {
	next := mover.Opp()

	m.mu.Lock()
	elapsed := tsMs - m.lastMoveStartMs
	if elapsed < 0 {
		elapsed = 0
	}

	m.consumedGlobalMs[mover] += elapsed
	m.extraTurnMs[next] = 0
	m.lastMoveStartMs = tsMs

	moverTurn := m.turnBudgetMs + m.extraTurnMs[mover] - elapsed
	if moverTurn < 0 {
		moverTurn = 0
	}
	moverGlobal := m.globalRemainingLocked(mover)
	nextGlobal := m.globalRemainingLocked(next)
	turnBudget := m.turnBudgetMs
	m.mu.Unlock()

	m.turn[mover].Set(moverTurn)
	m.turn[next].Set(turnBudget)
	m.global[mover].Set(moverGlobal)
	m.global[next].Set(nextGlobal)
}

// BeforeEvent pauses everything; called once before a batch is applied.
func (m *Manager) BeforeEvent() {
	for _, p := range []player.Index{player.Zero, player.One} {
		m.turn[p].Pause()
		m.global[p].Pause()
	}
}

// AfterEvent is called once after a whole batch, with the timestamp of the
// batch's last event. It recomputes the current mover's clocks from the
// event history, subtracting the drift between the turn's start and the
// event time, then resumes exactly the current mover's two clocks. The
// drift subtraction is how a client attaching mid-game ends up with
// accurate rather than stale remaining time.
func (m *Manager) AfterEvent(current player.Index, tsMs int64) {
	m.mu.Lock()
	if m.ended || !m.synced || !m.started {
		m.mu.Unlock()
		return
	}

	drift := tsMs - m.lastMoveStartMs
	if drift < 0 {
		drift = 0
	}

	opp := current.Opp()
	curTurn := m.turnBudgetMs + m.extraTurnMs[current] - drift
	curGlobal := m.globalRemainingLocked(current) - drift
	oppGlobal := m.globalRemainingLocked(opp)
	m.mu.Unlock()

	m.turn[current].Set(curTurn)
	m.global[current].Set(curGlobal)
	m.global[opp].Set(oppGlobal)

	m.turn[current].Resume()
	m.global[current].Resume()
}

// AddTurnTime credits the fixed turn grant to the beneficiary.
func (m *Manager) AddTurnTime(beneficiary player.Index) {
	m.mu.Lock()
	m.extraTurnMs[beneficiary] += TurnGrantMs
	m.mu.Unlock()

	m.turn[beneficiary].Add(TurnGrantMs)
}

// AddGlobalTime credits the fixed global grant to the beneficiary.
func (m *Manager) AddGlobalTime(beneficiary player.Index) {
	m.mu.Lock()
	m.extraGlobalMs[beneficiary] += GlobalGrantMs
	m.mu.Unlock()

	m.global[beneficiary].Add(GlobalGrantMs)
}

// OnGameEnd stops every clock with a final authoritative recompute, so the
// end-of-game snapshot shows true consumed time rather than whatever the
// last display tick happened to hold.
func (m *Manager) OnGameEnd(current player.Index, tsMs int64) {
	m.mu.Lock()
	if m.ended {
		m.mu.Unlock()
		return
	}
	m.ended = true

	drift := tsMs - m.lastMoveStartMs
	if drift < 0 {
		drift = 0
	}

	opp := current.Opp()
	curTurn := m.turnBudgetMs + m.extraTurnMs[current] - drift
	if curTurn < 0 {
		curTurn = 0
	}
	curGlobal := m.globalRemainingLocked(current) - drift
	if curGlobal < 0 {
		curGlobal = 0
	}
	oppGlobal := m.globalRemainingLocked(opp)
	m.mu.Unlock()

	for _, p := range []player.Index{player.Zero, player.One} {
		m.turn[p].Pause()
		m.global[p].Pause()
	}

	m.turn[current].Set(curTurn)
	m.global[current].Set(curGlobal)
	m.global[opp].Set(oppGlobal)
}

// TurnRemaining returns the player's remaining turn time in milliseconds.
func (m *Manager) TurnRemaining(p player.Index) int64 {
	return m.turn[p].Remaining()
}

// GlobalRemaining returns the player's remaining global time in
// milliseconds.
func (m *Manager) GlobalRemaining(p player.Index) int64 {
	return m.global[p].Remaining()
}

// Snapshot returns the current clock state of both players.
func (m *Manager) Snapshot() Snapshot {
	var s Snapshot
	for _, p := range []player.Index{player.Zero, player.One} {
		s.TurnMs[p] = m.turn[p].Remaining()
		s.GlobalMs[p] = m.global[p].Remaining()
		s.Running[p] = m.turn[p].State() == StateRunning || m.global[p].State() == StateRunning
	}
	return s
}

func (m *Manager) globalRemainingLocked(p player.Index) int64 {
	return m.totalBudgetMs + m.extraGlobalMs[p] - m.consumedGlobalMs[p]
}

func (m *Manager) handleExpiry(p player.Index) {
	m.mu.Lock()
	if m.ended || m.timeoutFired[p] {
		m.mu.Unlock()
		return
	}
	m.timeoutFired[p] = true
	cb := m.onTimeout
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Info("player clock expired", zap.Stringer("player", p))
	}

	if cb != nil {
		cb(p)
	}
}
