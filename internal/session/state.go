// Package session owns the authoritative lifecycle state for each
// (symbol, trading day) pair and sequences the detectors around it.
// Transitions are the only mutation path.
package session

import (
	"fmt"
	"time"

	"asian-sweep-bot/internal/asianrange"
	"asian-sweep-bot/internal/sweep"
)

// State is the authoritative lifecycle state of a trading session
type State string

const (
	StateIdle      State = "IDLE"
	StateSwept     State = "SWEPT"
	StateConfirmed State = "CONFIRMED"
	StateArmed     State = "ARMED"
	StateInTrade   State = "IN_TRADE"
	StateCooldown  State = "COOLDOWN"
)

// EventKind identifies the input events the state machine recognizes
type EventKind string

const (
	// EventRangeReady attaches the computed session range (IDLE, range attached)
	EventRangeReady EventKind = "RANGE_READY"
	// EventSweepDetected moves IDLE -> SWEPT when the range is valid
	EventSweepDetected EventKind = "SWEEP_DETECTED"
	// EventReversalConfirmed moves SWEPT -> CONFIRMED
	EventReversalConfirmed EventKind = "REVERSAL_CONFIRMED"
	// EventConfirmationExpired returns SWEPT -> IDLE and clears the sweep
	EventConfirmationExpired EventKind = "CONFIRMATION_EXPIRED"
	// EventAcceptanceOutside moves SWEPT -> COOLDOWN when price accepts
	// outside the range (a breakout rather than a sweep)
	EventAcceptanceOutside EventKind = "ACCEPTANCE_OUTSIDE"
	// EventConfluencePassed moves CONFIRMED -> ARMED
	EventConfluencePassed EventKind = "CONFLUENCE_PASSED"
	// EventConfluenceExpired returns CONFIRMED -> IDLE after the max wait
	EventConfluenceExpired EventKind = "CONFLUENCE_EXPIRED"
	// EventEntryExecuted moves ARMED -> IN_TRADE (reported by the executor)
	EventEntryExecuted EventKind = "ENTRY_EXECUTED"
	// EventPositionClosed moves IN_TRADE -> COOLDOWN (reported by the executor)
	EventPositionClosed EventKind = "POSITION_CLOSED"
	// EventCooldownElapsed returns COOLDOWN -> IDLE once the deadline passed
	EventCooldownElapsed EventKind = "COOLDOWN_ELAPSED"
	// EventReset forces the session back to IDLE from any state
	EventReset EventKind = "RESET"
)

// Event is one input to the state machine. At is the bar or event timestamp
// and, together with Kind, forms the idempotency identity: re-delivering
// the same event is a silent no-op.
type Event struct {
	Kind    EventKind
	At      time.Time
	Range   *asianrange.Range
	Sweep   *sweep.Event
	Price   float64
	Reason  string
	Payload map[string]interface{}
}

func (e Event) identity() string {
	return fmt.Sprintf("%s@%d", e.Kind, e.At.UnixNano())
}
