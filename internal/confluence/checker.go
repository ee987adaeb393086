// Package confluence applies the additional technical agreement gates that
// must pass before a confirmed reversal is armed for entry. Every failed
// gate contributes a reason, so a blocked trade is always explainable.
package confluence

import (
	"fmt"
	"time"

	"asian-sweep-bot/internal/market"
	"asian-sweep-bot/internal/sweep"
)

// NewsEvent is a scheduled economic event the caller has already loaded.
// The checker itself never fetches anything.
type NewsEvent struct {
	Time  time.Time `json:"time"`
	Tier  string    `json:"tier"` // "TIER1" or "OTHER"
	Title string    `json:"title"`
}

// Context carries the market snapshot a check runs against
type Context struct {
	Symbol     string
	Now        time.Time
	Direction  sweep.Direction
	SpreadPips float64
	Bars       map[market.Timeframe][]market.Bar
	News       []NewsEvent
}

// Result of a confluence check. Failure never regresses the session state;
// it only blocks arming until a fresh bar retries or the wait expires.
type Result struct {
	Passed         bool            `json:"passed"`
	FailureReasons []string        `json:"failure_reasons,omitempty"`
	Gates          map[string]bool `json:"gates"`
}

// Gate is a single confluence condition. Gates are side-effect free and may
// be evaluated in any order; all must pass.
type Gate interface {
	Name() string
	Check(ctx *Context) (ok bool, reason string)
}

// Config holds the gate thresholds
type Config struct {
	MaxSpreadPips         float64
	SMAPeriod             int
	ADXPeriod             int
	ADXTrendThreshold     float64
	BandWalkBars          int
	VelocitySpikeMultiple float64
	VelocityBaselineBars  int
	NewsBufferTier1       time.Duration
	NewsBufferOther       time.Duration
}

// DefaultConfig returns the standard gate thresholds
func DefaultConfig() Config {
	return Config{
		MaxSpreadPips:         2.0,
		SMAPeriod:             20,
		ADXPeriod:             14,
		ADXTrendThreshold:     25,
		BandWalkBars:          3,
		VelocitySpikeMultiple: 2.0,
		VelocityBaselineBars:  5,
		NewsBufferTier1:       60 * time.Minute,
		NewsBufferOther:       30 * time.Minute,
	}
}

// Checker runs a fixed gate pipeline
type Checker struct {
	gates []Gate
}

// NewChecker builds the standard pipeline for the given thresholds
func NewChecker(cfg Config) *Checker {
	return &Checker{gates: []Gate{
		&SpreadGate{MaxPips: cfg.MaxSpreadPips},
		&BiasGate{SMAPeriod: cfg.SMAPeriod},
		&TrendDayGate{
			SMAPeriod:    cfg.SMAPeriod,
			ADXPeriod:    cfg.ADXPeriod,
			ADXThreshold: cfg.ADXTrendThreshold,
			BandWalkBars: cfg.BandWalkBars,
		},
		&VelocityGate{SpikeMultiple: cfg.VelocitySpikeMultiple, BaselineBars: cfg.VelocityBaselineBars},
		&NewsGate{Tier1Buffer: cfg.NewsBufferTier1, OtherBuffer: cfg.NewsBufferOther},
	}}
}

// NewCheckerWithGates builds a checker from a custom gate set
func NewCheckerWithGates(gates ...Gate) *Checker {
	return &Checker{gates: gates}
}

// Check evaluates every gate and aggregates the outcome. Side-effect free;
// safe to call repeatedly on fresh bars.
func (c *Checker) Check(ctx *Context) Result {
	res := Result{Passed: true, Gates: make(map[string]bool, len(c.gates))}
	for _, g := range c.gates {
		ok, reason := g.Check(ctx)
		res.Gates[g.Name()] = ok
		if !ok {
			res.Passed = false
			if reason == "" {
				reason = fmt.Sprintf("%s gate failed", g.Name())
			}
			res.FailureReasons = append(res.FailureReasons, reason)
		}
	}
	return res
}
