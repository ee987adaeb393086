// Package sweep classifies post-window bars as liquidity sweeps of the
// session reference range.
package sweep

import (
	"time"

	"github.com/google/uuid"

	"asian-sweep-bot/internal/asianrange"
	"asian-sweep-bot/internal/market"
)

// Direction of a sweep relative to the range
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// Opposite returns the other sweep direction
func (d Direction) Opposite() Direction {
	if d == DirectionUp {
		return DirectionDown
	}
	return DirectionUp
}

// TieBreak selects the policy for a single bar that breaches both sides
// of the range (a wide wick).
type TieBreak string

const (
	// TieBreakMidpoint prefers the direction matching the bar's close
	// relative to the range midpoint. This is the default.
	TieBreakMidpoint TieBreak = "midpoint"
	// TieBreakExcursion prefers the side with the larger overshoot
	TieBreakExcursion TieBreak = "excursion"
	// TieBreakReject surfaces an AmbiguousSweepError instead of deciding
	TieBreakReject TieBreak = "reject"
)

// Event records a detected sweep. At most one active event per session per
// direction; lifecycle is owned by the session state machine.
type Event struct {
	ID          string           `json:"id"`
	Symbol      string           `json:"symbol"`
	Direction   Direction        `json:"direction"`
	BreachPrice float64          `json:"breach_price"`
	BreachTime  time.Time        `json:"breach_time"`
	Threshold   float64          `json:"threshold"` // price units
	Range       asianrange.Range `json:"range"`
}

// Detector evaluates bars against a computed range. Stateless and pure:
// repeated calls with the same inputs classify identically (the event ID is
// the only field that differs between calls).
type Detector struct {
	tieBreak TieBreak
}

// NewDetector creates a detector with the given tie-break policy
func NewDetector(tieBreak TieBreak) *Detector {
	if tieBreak == "" {
		tieBreak = TieBreakMidpoint
	}
	return &Detector{tieBreak: tieBreak}
}

// Detect returns a sweep event when the bar's extreme exceeds the range by
// at least threshold (boundary inclusive), nil when there is no breach.
// Bars inside the session window never classify; the range must be valid.
// threshold is in price units, already converted from pips by the caller.
func (d *Detector) Detect(rng asianrange.Range, bar market.Bar, threshold float64) (*Event, error) {
	if !rng.Valid || !rng.Window.Closed(bar.OpenTime) {
		return nil, nil
	}

	up := bar.High >= rng.High+threshold
	down := bar.Low <= rng.Low-threshold

	var dir Direction
	switch {
	case up && down:
		var err error
		dir, err = d.resolveBothSides(rng, bar, threshold)
		if err != nil {
			return nil, err
		}
	case up:
		dir = DirectionUp
	case down:
		dir = DirectionDown
	default:
		return nil, nil
	}

	ev := &Event{
		ID:        uuid.New().String(),
		Symbol:    bar.Symbol,
		Direction: dir,
		Threshold: threshold,
		Range:     rng,
	}
	if dir == DirectionUp {
		ev.BreachPrice = bar.High
	} else {
		ev.BreachPrice = bar.Low
	}
	ev.BreachTime = bar.OpenTime
	return ev, nil
}

// resolveBothSides applies the configured tie-break for a wide wick that
// clears both thresholds in a single bar.
func (d *Detector) resolveBothSides(rng asianrange.Range, bar market.Bar, threshold float64) (Direction, error) {
	switch d.tieBreak {
	case TieBreakReject:
		return "", &market.AmbiguousSweepError{BarTime: bar.OpenTime}
	case TieBreakExcursion:
		upExcursion := bar.High - (rng.High + threshold)
		downExcursion := (rng.Low - threshold) - bar.Low
		if upExcursion > downExcursion {
			return DirectionUp, nil
		}
		if downExcursion > upExcursion {
			return DirectionDown, nil
		}
		// Equal overshoot falls through to the close rule
		fallthrough
	default: // TieBreakMidpoint
		if bar.Close >= rng.Midpoint {
			return DirectionUp, nil
		}
		return DirectionDown, nil
	}
}
