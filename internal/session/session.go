package session

import (
	"sync"
	"time"

	"asian-sweep-bot/internal/asianrange"
	"asian-sweep-bot/internal/events"
	"asian-sweep-bot/internal/market"
	"asian-sweep-bot/internal/reversal"
	"asian-sweep-bot/internal/sweep"
)

// Config holds the session lifecycle settings
type Config struct {
	Cooldown          time.Duration // quiescent period after a closed trade
	ConfluenceMaxWait time.Duration // how long CONFIRMED may wait for confluence
	Retention         time.Duration // keep finished sessions this long before eviction
	Reversal          reversal.Config
}

// DefaultConfig returns the standard lifecycle settings
func DefaultConfig() Config {
	return Config{
		Cooldown:          60 * time.Minute,
		ConfluenceMaxWait: 15 * time.Minute,
		Retention:         4 * time.Hour,
		Reversal:          reversal.DefaultConfig(),
	}
}

// Session is the single logical owner of one (symbol, trading day) lifecycle.
// All mutation goes through Apply, which serializes on the session mutex, so
// concurrent feeds can deliver bars without racing the state machine.
type Session struct {
	mu sync.Mutex

	window market.SessionWindow
	cfg    Config
	bus    *events.Bus

	state        State
	rng          *asianrange.Range
	activeSweep  *sweep.Event
	confirmation *reversal.Confirmation

	// lastSweepDirection survives confirmation expiry: an opposite-side
	// sweep later in the same session is a whipsaw, not a fresh setup.
	lastSweepDirection sweep.Direction

	confirmedAt    time.Time
	armedAt        time.Time
	enteredAt      time.Time
	entryPrice     float64
	cooldownUntil  time.Time
	cooldownReason string
	resetAt        time.Time // when COOLDOWN returned to IDLE, for eviction
	updatedAt      time.Time

	applied map[string]struct{}
}

// New creates a session in IDLE for the given window
func New(window market.SessionWindow, cfg Config, bus *events.Bus) *Session {
	return &Session{
		window:  window,
		cfg:     cfg,
		bus:     bus,
		state:   StateIdle,
		applied: make(map[string]struct{}),
	}
}

// Window returns the session's immutable window
func (s *Session) Window() market.SessionWindow {
	return s.window
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Range returns the attached range, or nil before the window closed
func (s *Session) Range() *asianrange.Range {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng
}

// ActiveSweep returns the sweep currently driving the session, if any
func (s *Session) ActiveSweep() *sweep.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSweep
}

// Confirmation returns the active confirmation attempt, if any
func (s *Session) Confirmation() *reversal.Confirmation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmation
}

// ConfirmedAt returns when the session reached CONFIRMED
func (s *Session) ConfirmedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmedAt
}

// CooldownUntil returns the cooldown deadline, zero outside COOLDOWN
func (s *Session) CooldownUntil() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cooldownUntil
}

// Apply feeds one event through the transition table. It returns whether
// the event was applied; a duplicate delivery (same kind and timestamp) is
// ignored with applied=false and no error. A guard violation returns
// *market.InvalidTransitionError and leaves the session untouched.
func (s *Session) Apply(ev Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := ev.identity()
	if _, seen := s.applied[id]; seen {
		return false, nil
	}

	from := s.state
	var err error
	switch ev.Kind {
	case EventRangeReady:
		err = s.applyRangeReady(ev)
	case EventSweepDetected:
		err = s.applySweepDetected(ev)
	case EventReversalConfirmed:
		err = s.applyReversalConfirmed(ev)
	case EventConfirmationExpired:
		err = s.applyConfirmationExpired(ev)
	case EventAcceptanceOutside:
		err = s.applyAcceptanceOutside(ev)
	case EventConfluencePassed:
		err = s.applyConfluencePassed(ev)
	case EventConfluenceExpired:
		err = s.applyConfluenceExpired(ev)
	case EventEntryExecuted:
		err = s.applyEntryExecuted(ev)
	case EventPositionClosed:
		err = s.applyPositionClosed(ev)
	case EventCooldownElapsed:
		err = s.applyCooldownElapsed(ev)
	case EventReset:
		s.reset(ev)
	default:
		err = &market.InvalidTransitionError{From: string(from), Event: string(ev.Kind), Reason: "unknown event kind"}
	}
	if err != nil {
		return false, err
	}

	s.applied[id] = struct{}{}
	s.updatedAt = ev.At
	s.emit(from, ev)
	return true, nil
}

func (s *Session) applyRangeReady(ev Event) error {
	if s.state != StateIdle {
		return &market.InvalidTransitionError{From: string(s.state), Event: string(ev.Kind)}
	}
	if ev.Range == nil {
		return &market.InvalidTransitionError{From: string(s.state), Event: string(ev.Kind), Reason: "no range attached"}
	}
	s.rng = ev.Range
	return nil
}

func (s *Session) applySweepDetected(ev Event) error {
	if s.state != StateIdle {
		return &market.InvalidTransitionError{From: string(s.state), Event: string(ev.Kind)}
	}
	if s.rng == nil || !s.rng.Valid {
		return &market.InvalidTransitionError{From: string(s.state), Event: string(ev.Kind), Reason: "range missing or invalid"}
	}
	if ev.Sweep == nil {
		return &market.InvalidTransitionError{From: string(s.state), Event: string(ev.Kind), Reason: "no sweep attached"}
	}

	// Whipsaw rule: both sides swept in one session vetoes the day
	if s.lastSweepDirection != "" && s.lastSweepDirection != ev.Sweep.Direction {
		s.state = StateCooldown
		s.cooldownReason = "both sides swept"
		s.cooldownUntil = ev.At.Add(s.cfg.Cooldown)
		s.lastSweepDirection = ev.Sweep.Direction
		return nil
	}

	s.state = StateSwept
	s.activeSweep = ev.Sweep
	s.lastSweepDirection = ev.Sweep.Direction
	s.confirmation = reversal.New(ev.Sweep, s.cfg.Reversal)
	return nil
}

func (s *Session) applyReversalConfirmed(ev Event) error {
	if s.state != StateSwept {
		return &market.InvalidTransitionError{From: string(s.state), Event: string(ev.Kind)}
	}
	if s.confirmation == nil || s.confirmation.Status() != reversal.StatusConfirmed {
		return &market.InvalidTransitionError{From: string(s.state), Event: string(ev.Kind), Reason: "confirmation not in confirmed status"}
	}
	s.state = StateConfirmed
	s.confirmedAt = ev.At
	return nil
}

func (s *Session) applyConfirmationExpired(ev Event) error {
	if s.state != StateSwept {
		return &market.InvalidTransitionError{From: string(s.state), Event: string(ev.Kind)}
	}
	s.state = StateIdle
	s.activeSweep = nil
	s.confirmation = nil
	return nil
}

func (s *Session) applyAcceptanceOutside(ev Event) error {
	if s.state != StateSwept {
		return &market.InvalidTransitionError{From: string(s.state), Event: string(ev.Kind)}
	}
	s.state = StateCooldown
	s.cooldownReason = ev.Reason
	if s.cooldownReason == "" {
		s.cooldownReason = "acceptance outside"
	}
	s.cooldownUntil = ev.At.Add(s.cfg.Cooldown)
	s.activeSweep = nil
	s.confirmation = nil
	return nil
}

func (s *Session) applyConfluencePassed(ev Event) error {
	if s.state != StateConfirmed {
		return &market.InvalidTransitionError{From: string(s.state), Event: string(ev.Kind)}
	}
	s.state = StateArmed
	s.armedAt = ev.At
	return nil
}

func (s *Session) applyConfluenceExpired(ev Event) error {
	if s.state != StateConfirmed {
		return &market.InvalidTransitionError{From: string(s.state), Event: string(ev.Kind)}
	}
	if s.confirmedAt.IsZero() || ev.At.Sub(s.confirmedAt) < s.cfg.ConfluenceMaxWait {
		return &market.InvalidTransitionError{From: string(s.state), Event: string(ev.Kind), Reason: "confluence wait not exceeded"}
	}
	s.state = StateIdle
	s.activeSweep = nil
	s.confirmation = nil
	s.confirmedAt = time.Time{}
	return nil
}

func (s *Session) applyEntryExecuted(ev Event) error {
	if s.state != StateArmed {
		return &market.InvalidTransitionError{From: string(s.state), Event: string(ev.Kind)}
	}
	s.state = StateInTrade
	s.enteredAt = ev.At
	s.entryPrice = ev.Price
	return nil
}

func (s *Session) applyPositionClosed(ev Event) error {
	if s.state != StateInTrade {
		return &market.InvalidTransitionError{From: string(s.state), Event: string(ev.Kind)}
	}
	s.state = StateCooldown
	s.cooldownReason = ev.Reason
	if s.cooldownReason == "" {
		s.cooldownReason = "position closed"
	}
	s.cooldownUntil = ev.At.Add(s.cfg.Cooldown)
	return nil
}

func (s *Session) applyCooldownElapsed(ev Event) error {
	if s.state != StateCooldown {
		return &market.InvalidTransitionError{From: string(s.state), Event: string(ev.Kind)}
	}
	if ev.At.Before(s.cooldownUntil) {
		return &market.InvalidTransitionError{From: string(s.state), Event: string(ev.Kind), Reason: "cooldown not elapsed"}
	}
	s.state = StateIdle
	s.activeSweep = nil
	s.confirmation = nil
	s.cooldownUntil = time.Time{}
	s.cooldownReason = ""
	s.resetAt = ev.At
	return nil
}

func (s *Session) reset(ev Event) {
	s.state = StateIdle
	s.activeSweep = nil
	s.confirmation = nil
	s.confirmedAt = time.Time{}
	s.armedAt = time.Time{}
	s.enteredAt = time.Time{}
	s.entryPrice = 0
	s.cooldownUntil = time.Time{}
	s.cooldownReason = ""
	s.resetAt = ev.At
}

func (s *Session) emit(from State, ev Event) {
	if s.bus == nil {
		return
	}
	payload := ev.Payload
	if payload == nil {
		payload = make(map[string]interface{})
	}
	if ev.Sweep != nil {
		payload["sweep_id"] = ev.Sweep.ID
		payload["sweep_direction"] = string(ev.Sweep.Direction)
		payload["breach_price"] = ev.Sweep.BreachPrice
	}
	if s.cooldownReason != "" && s.state == StateCooldown {
		payload["cooldown_reason"] = s.cooldownReason
	}
	s.bus.Publish(events.Transition{
		Symbol:     s.window.Symbol,
		TradingDay: s.window.TradingDay(),
		From:       string(from),
		To:         string(s.state),
		At:         ev.At,
		Reason:     ev.Reason,
		Payload:    payload,
	})
}

// Snapshot is a read-only view of a session for the API and persistence
type Snapshot struct {
	Symbol         string            `json:"symbol"`
	TradingDay     string            `json:"trading_day"`
	State          State             `json:"state"`
	Range          *asianrange.Range `json:"range,omitempty"`
	SweepDirection string            `json:"sweep_direction,omitempty"`
	ConfirmedAt    *time.Time        `json:"confirmed_at,omitempty"`
	EntryPrice     float64           `json:"entry_price,omitempty"`
	CooldownUntil  *time.Time        `json:"cooldown_until,omitempty"`
	CooldownReason string            `json:"cooldown_reason,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Snapshot returns a consistent copy of the session's observable state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Symbol:         s.window.Symbol,
		TradingDay:     s.window.TradingDay(),
		State:          s.state,
		Range:          s.rng,
		EntryPrice:     s.entryPrice,
		CooldownReason: s.cooldownReason,
		UpdatedAt:      s.updatedAt,
	}
	if s.activeSweep != nil {
		snap.SweepDirection = string(s.activeSweep.Direction)
	} else if s.lastSweepDirection != "" {
		snap.SweepDirection = string(s.lastSweepDirection)
	}
	if !s.confirmedAt.IsZero() {
		t := s.confirmedAt
		snap.ConfirmedAt = &t
	}
	if !s.cooldownUntil.IsZero() {
		t := s.cooldownUntil
		snap.CooldownUntil = &t
	}
	return snap
}

// evictable reports whether the session finished long enough ago
func (s *Session) evictable(now time.Time, retention time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.resetAt.IsZero() && now.Sub(s.resetAt) > retention {
		return true
	}
	// Stale sessions from previous days go regardless of state
	return now.Sub(s.window.End) > 24*time.Hour+retention
}
