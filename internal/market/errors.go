package market

import (
	"fmt"
	"time"
)

// InsufficientDataError signals that a computation does not yet have enough
// bars to be trusted. Recoverable; the caller should retry on later data.
type InsufficientDataError struct {
	Needed int
	Got    int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: need %d bars, got %d", e.Needed, e.Got)
}

// AmbiguousSweepError is returned when a single bar breaches both sides of
// the range and the configured tie-break policy is to reject.
type AmbiguousSweepError struct {
	BarTime time.Time
}

func (e *AmbiguousSweepError) Error() string {
	return fmt.Sprintf("ambiguous sweep: bar at %s breached both sides of the range", e.BarTime.Format(time.RFC3339))
}

// InvalidTransitionError is returned when a state machine guard is violated.
// The session is left exactly as it was; this is a caller bug or stale event.
type InvalidTransitionError struct {
	From   string
	Event  string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid transition: event %s in state %s: %s", e.Event, e.From, e.Reason)
	}
	return fmt.Sprintf("invalid transition: event %s in state %s", e.Event, e.From)
}

// ConfigurationError signals missing or invalid configuration. Fatal at
// startup; never produced mid-session.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}
