package sweep

import (
	"asian-sweep-bot/internal/analysis"
	"asian-sweep-bot/internal/asianrange"
	"asian-sweep-bot/internal/market"
)

// ThresholdConfig holds the dynamic sweep threshold formula settings:
// max(floor pips, pct of range, multiple of hourly ATR).
type ThresholdConfig struct {
	FloorPips   float64 // minimum threshold in pips
	RangePct    float64 // fraction of the session range, e.g. 0.09
	ATRMultiple float64 // multiple of ATR(H1), e.g. 0.5
	ATRPeriod   int
}

// DefaultThresholdConfig mirrors the strategy defaults
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		FloorPips:   10,
		RangePct:    0.09,
		ATRMultiple: 0.5,
		ATRPeriod:   14,
	}
}

// Threshold is a resolved sweep threshold with its components kept for audit
type Threshold struct {
	Pips  float64 `json:"pips"`
	Price float64 `json:"price"` // pips converted to price units

	FloorPips    float64 `json:"floor_pips"`
	RangePctPips float64 `json:"range_pct_pips"`
	ATRPips      float64 `json:"atr_pips"`
	Chosen       string  `json:"chosen"` // "floor", "range" or "atr"
}

// ComputeThreshold resolves the dynamic threshold for a range. hourlyBars
// feed the ATR component and may be nil, in which case that component is 0.
func ComputeThreshold(rng asianrange.Range, hourlyBars []market.Bar, cfg ThresholdConfig) Threshold {
	t := Threshold{
		FloorPips:    cfg.FloorPips,
		RangePctPips: rng.RangePips * cfg.RangePct,
	}
	if len(hourlyBars) > cfg.ATRPeriod {
		atr := analysis.ATR(hourlyBars, cfg.ATRPeriod)
		t.ATRPips = market.PriceToPips(rng.Window.Symbol, atr) * cfg.ATRMultiple
	}

	t.Pips, t.Chosen = t.FloorPips, "floor"
	if t.RangePctPips > t.Pips {
		t.Pips, t.Chosen = t.RangePctPips, "range"
	}
	if t.ATRPips > t.Pips {
		t.Pips, t.Chosen = t.ATRPips, "atr"
	}
	t.Price = market.PipsToPrice(rng.Window.Symbol, t.Pips)
	return t
}
