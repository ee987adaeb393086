// Package reversal runs the multi-stage confirmation sequence after a
// liquidity sweep: close back inside the range, displacement strength, and
// a micro-timeframe structural break.
package reversal

import (
	"time"

	"asian-sweep-bot/internal/analysis"
	"asian-sweep-bot/internal/market"
	"asian-sweep-bot/internal/sweep"
)

// Status of a confirmation attempt
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusExpired   Status = "EXPIRED"
	// StatusInvalidated means price accepted outside the range: the move
	// was a breakout, not a sweep to fade.
	StatusInvalidated Status = "INVALIDATED"
)

// Config holds confirmation settings
type Config struct {
	// Lookahead budget after the sweep bar. Either may be zero (unused);
	// when both are set, whichever elapses first expires the attempt.
	LookaheadBars    int
	LookaheadElapsed time.Duration

	// Displacement test
	DisplacementATRPeriod   int     // ATR period on the primary timeframe
	DisplacementK           float64 // confirming bar body must be >= K x ATR
	DisplacementMinFraction float64 // retrace must cover this fraction of the excursion
	DisplacementMaxBars     int     // within this many bars of the sweep

	// Micro structural break
	SwingLookback int

	// AcceptanceOutsideCloses invalidates the attempt once this many
	// consecutive primary bars close outside the range. Zero disables
	// the filter.
	AcceptanceOutsideCloses int
}

// DefaultConfig mirrors the strategy defaults
func DefaultConfig() Config {
	return Config{
		LookaheadBars:           6,
		LookaheadElapsed:        30 * time.Minute,
		DisplacementATRPeriod:   14,
		DisplacementK:           1.3,
		DisplacementMinFraction: 0.5,
		DisplacementMaxBars:     3,
		SwingLookback:           2,
		AcceptanceOutsideCloses: 2,
	}
}

// Confirmation tracks a single sweep's confirmation attempt. Sub-check
// results are monotonic for the lifetime of the sweep: once a check passes
// it is never re-evaluated, so later data cannot un-pass it.
type Confirmation struct {
	Sweep *sweep.Event `json:"sweep"`

	CloseBackInside bool      `json:"close_back_inside"`
	CloseBackAt     time.Time `json:"close_back_at,omitempty"`

	DisplacementOK    bool      `json:"displacement_ok"`
	DisplacementAt    time.Time `json:"displacement_at,omitempty"`
	DisplacementRatio float64   `json:"displacement_ratio,omitempty"` // body / ATR

	StructuralBreak   bool      `json:"structural_break"`
	StructuralBreakAt time.Time `json:"structural_break_at,omitempty"`
	BrokenLevel       float64   `json:"broken_level,omitempty"`

	ConfirmedAt time.Time `json:"confirmed_at,omitempty"`

	cfg           Config
	status        Status
	barsSeen      int       // post-sweep primary bars processed so far
	lastProcessed time.Time // OpenTime of the newest primary bar processed
	outsideCloses int       // consecutive post-sweep closes outside the range
}

// New starts a confirmation attempt for a sweep
func New(ev *sweep.Event, cfg Config) *Confirmation {
	return &Confirmation{
		Sweep:         ev,
		cfg:           cfg,
		status:        StatusPending,
		lastProcessed: ev.BreachTime,
	}
}

// Status returns the current confirmation status without re-evaluating
func (c *Confirmation) Status() Status {
	return c.status
}

// Evaluate advances the attempt with primary-timeframe bars and
// micro-timeframe bars, both sorted ascending and including history from
// before the sweep (the displacement ATR needs it). Bars already processed
// by an earlier call are skipped, so re-delivery of the same data is a
// no-op. now is the caller-supplied clock used for the elapsed-time budget;
// no wall clock is read here. Consecutive closes outside the range move the
// attempt to INVALIDATED before any expiry check.
func (c *Confirmation) Evaluate(primary, micro []market.Bar, now time.Time) Status {
	if c.status != StatusPending {
		return c.status
	}

	deadline := c.budgetDeadline()
	for i, b := range primary {
		if !b.OpenTime.After(c.lastProcessed) {
			continue
		}
		if c.cfg.LookaheadBars > 0 && c.barsSeen >= c.cfg.LookaheadBars {
			break
		}
		if !deadline.IsZero() && b.OpenTime.After(deadline) {
			break
		}
		c.lastProcessed = b.OpenTime
		c.barsSeen++

		if c.insideRange(b.Close) {
			c.outsideCloses = 0
			if !c.CloseBackInside {
				c.CloseBackInside = true
				c.CloseBackAt = b.OpenTime
			}
		} else {
			// Consecutive closes outside mean acceptance: the breach is
			// a breakout, not liquidity taken before a reversal.
			c.outsideCloses++
			if c.cfg.AcceptanceOutsideCloses > 0 && c.outsideCloses >= c.cfg.AcceptanceOutsideCloses {
				c.status = StatusInvalidated
				return c.status
			}
		}
		if !c.DisplacementOK {
			c.checkDisplacement(primary[:i+1], b)
		}
	}

	if !c.StructuralBreak {
		c.checkStructure(micro, deadline)
	}

	if c.CloseBackInside && c.DisplacementOK && c.StructuralBreak {
		c.status = StatusConfirmed
		c.ConfirmedAt = c.latestCheckTime()
		return c.status
	}

	if c.expired(now) {
		c.status = StatusExpired
	}
	return c.status
}

func (c *Confirmation) insideRange(price float64) bool {
	rng := c.Sweep.Range
	return price >= rng.Low && price <= rng.High
}

// checkDisplacement tests the bar that moved price back toward the range:
// its body must be at least K x ATR and the retrace from the breach extreme
// must cover the minimum fraction of the sweep excursion, within the first
// DisplacementMaxBars bars after the sweep.
func (c *Confirmation) checkDisplacement(history []market.Bar, b market.Bar) {
	if c.cfg.DisplacementMaxBars > 0 && c.barsSeen > c.cfg.DisplacementMaxBars {
		return
	}

	atr := analysis.ATR(history, c.cfg.DisplacementATRPeriod)
	if atr <= 0 || b.Body() < c.cfg.DisplacementK*atr {
		return
	}

	rng := c.Sweep.Range
	var excursion, retrace float64
	if c.Sweep.Direction == sweep.DirectionUp {
		excursion = c.Sweep.BreachPrice - rng.High
		retrace = c.Sweep.BreachPrice - b.Close
	} else {
		excursion = rng.Low - c.Sweep.BreachPrice
		retrace = b.Close - c.Sweep.BreachPrice
	}
	if excursion > 0 && retrace < c.cfg.DisplacementMinFraction*excursion {
		return
	}

	c.DisplacementOK = true
	c.DisplacementAt = b.OpenTime
	c.DisplacementRatio = b.Body() / atr
}

// checkStructure looks for a micro-timeframe break of structure in the
// reversal direction: bearish after an upside sweep, bullish after a
// downside sweep. Bars past the lookahead deadline carry no weight.
func (c *Confirmation) checkStructure(micro []market.Bar, deadline time.Time) {
	bullish := c.Sweep.Direction == sweep.DirectionDown
	for i := range micro {
		if !micro[i].OpenTime.After(c.Sweep.BreachTime) {
			continue
		}
		if !deadline.IsZero() && micro[i].OpenTime.After(deadline) {
			return
		}
		if br, ok := analysis.BreaksStructure(micro[:i+1], bullish, c.cfg.SwingLookback); ok {
			c.StructuralBreak = true
			c.StructuralBreakAt = br.Time
			c.BrokenLevel = br.BrokenLevel
			return
		}
	}
}

// budgetDeadline is the last instant the elapsed budget allows evidence
// from, zero when no elapsed budget is configured.
func (c *Confirmation) budgetDeadline() time.Time {
	if c.cfg.LookaheadElapsed <= 0 {
		return time.Time{}
	}
	return c.Sweep.BreachTime.Add(c.cfg.LookaheadElapsed)
}

func (c *Confirmation) expired(now time.Time) bool {
	if c.cfg.LookaheadBars > 0 && c.barsSeen >= c.cfg.LookaheadBars {
		return true
	}
	if c.cfg.LookaheadElapsed > 0 && now.Sub(c.Sweep.BreachTime) > c.cfg.LookaheadElapsed {
		return true
	}
	return false
}

func (c *Confirmation) latestCheckTime() time.Time {
	t := c.CloseBackAt
	if c.DisplacementAt.After(t) {
		t = c.DisplacementAt
	}
	if c.StructuralBreakAt.After(t) {
		t = c.StructuralBreakAt
	}
	return t
}
