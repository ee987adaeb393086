// Package asianrange computes the reference liquidity range formed during
// the Asian session window and grades it for tradability.
package asianrange

import (
	"fmt"

	"asian-sweep-bot/internal/market"
)

// Grade classifies the session range width in pips
type Grade string

const (
	GradeNoTrade Grade = "NO_TRADE"
	GradeTight   Grade = "TIGHT"
	GradeNormal  Grade = "NORMAL"
	GradeWide    Grade = "WIDE"
)

// Range holds the computed session reference range. Degenerate or
// untradeable ranges keep their numbers but carry Valid=false so downstream
// logic can react without losing the data.
type Range struct {
	Window         market.SessionWindow `json:"window"`
	High           float64              `json:"high"`
	Low            float64              `json:"low"`
	Midpoint       float64              `json:"midpoint"`
	RangePips      float64              `json:"range_pips"`
	BarCount       int                  `json:"bar_count"`
	Grade          Grade                `json:"grade"`
	RiskMultiplier float64              `json:"risk_multiplier"`
	Valid          bool                 `json:"valid"`
}

// Config holds range computation settings
type Config struct {
	MinBars int // minimum in-window bars before the range is trusted

	// Grading thresholds in pips: below NoTradeBelow or above WideMax the
	// session is ungraded (NO_TRADE)
	NoTradeBelowPips float64
	TightMaxPips     float64
	NormalMaxPips    float64
	WideMaxPips      float64
}

// DefaultConfig returns the standard grading thresholds:
// <30 NO_TRADE, 30-49 TIGHT, 50-150 NORMAL, 151-180 WIDE, >180 NO_TRADE.
func DefaultConfig() Config {
	return Config{
		MinBars:          12,
		NoTradeBelowPips: 30,
		TightMaxPips:     49,
		NormalMaxPips:    150,
		WideMaxPips:      180,
	}
}

// Compute derives the session range from bars. Bars must be sorted ascending
// and pre-filtered to the window's symbol; bars outside [Start, End) are
// ignored. Pure and deterministic: identical input yields an identical Range.
//
// Returns *market.InsufficientDataError when fewer than cfg.MinBars bars fall
// inside the window. A degenerate range (high <= low) or an untradeable grade
// does not error; it sets Valid=false instead.
func Compute(bars []market.Bar, window market.SessionWindow, cfg Config) (Range, error) {
	if !market.SortedByTime(bars) {
		return Range{}, fmt.Errorf("bars not sorted ascending by time")
	}

	rng := Range{Window: window}
	first := true
	for _, b := range bars {
		if !window.Contains(b.OpenTime) {
			continue
		}
		if first {
			rng.High, rng.Low = b.High, b.Low
			first = false
		} else {
			if b.High > rng.High {
				rng.High = b.High
			}
			if b.Low < rng.Low {
				rng.Low = b.Low
			}
		}
		rng.BarCount++
	}

	if rng.BarCount < cfg.MinBars {
		return Range{}, &market.InsufficientDataError{Needed: cfg.MinBars, Got: rng.BarCount}
	}

	rng.Midpoint = (rng.High + rng.Low) / 2
	rng.RangePips = market.PriceToPips(window.Symbol, rng.High-rng.Low)
	rng.Grade, rng.RiskMultiplier = gradeRange(rng.RangePips, cfg)
	rng.Valid = rng.High > rng.Low && rng.Grade != GradeNoTrade

	return rng, nil
}

// gradeRange maps the range width to a grade and its risk multiplier
func gradeRange(rangePips float64, cfg Config) (Grade, float64) {
	switch {
	case rangePips < cfg.NoTradeBelowPips:
		return GradeNoTrade, 0
	case rangePips <= cfg.TightMaxPips:
		return GradeTight, 0.5 // half risk on tight ranges
	case rangePips <= cfg.NormalMaxPips:
		return GradeNormal, 1.0
	case rangePips <= cfg.WideMaxPips:
		return GradeWide, 1.0
	default:
		return GradeNoTrade, 0
	}
}
