package confluence

import (
	"fmt"
	"time"

	"asian-sweep-bot/internal/analysis"
	"asian-sweep-bot/internal/market"
	"asian-sweep-bot/internal/sweep"
)

// Bias classifies a timeframe's trend from close versus SMA
type Bias string

const (
	BiasBull  Bias = "BULL"
	BiasBear  Bias = "BEAR"
	BiasRange Bias = "RANGE"
)

// biasOf compares the latest close to the SMA with a small dead band
func biasOf(bars []market.Bar, period int) Bias {
	sma := analysis.SMA(bars, period)
	if sma == 0 || len(bars) == 0 {
		return BiasRange
	}
	close := bars[len(bars)-1].Close
	switch {
	case close > sma*1.001:
		return BiasBull
	case close < sma*0.999:
		return BiasBear
	default:
		return BiasRange
	}
}

// SpreadGate fails when the current spread is too wide for a clean fill
type SpreadGate struct {
	MaxPips float64
}

func (g *SpreadGate) Name() string { return "spread" }

func (g *SpreadGate) Check(ctx *Context) (bool, string) {
	if ctx.SpreadPips > g.MaxPips {
		return false, fmt.Sprintf("spread too wide: %.1f > %.1f pips", ctx.SpreadPips, g.MaxPips)
	}
	return true, ""
}

// BiasGate blocks fading a strong higher-timeframe trend: an upside sweep
// is a short setup, so bullish bias on both D1 and H4 vetoes it (and the
// mirror case for downside sweeps).
type BiasGate struct {
	SMAPeriod int
}

func (g *BiasGate) Name() string { return "bias" }

func (g *BiasGate) Check(ctx *Context) (bool, string) {
	d1 := biasOf(ctx.Bars[market.TF1d], g.SMAPeriod)
	h4 := biasOf(ctx.Bars[market.TF4h], g.SMAPeriod)

	if ctx.Direction == sweep.DirectionUp && d1 == BiasBull && h4 == BiasBull {
		return false, "bias gate: fading strong uptrend not allowed"
	}
	if ctx.Direction == sweep.DirectionDown && d1 == BiasBear && h4 == BiasBear {
		return false, "bias gate: fading strong downtrend not allowed"
	}
	return true, ""
}

// TrendDayGate vetoes counter-trend fades on trend days: high ADX on M15
// plus a directional H1 band walk aligned with the sweep side.
type TrendDayGate struct {
	SMAPeriod    int
	ADXPeriod    int
	ADXThreshold float64
	BandWalkBars int
}

func (g *TrendDayGate) Name() string { return "trend_day" }

func (g *TrendDayGate) Check(ctx *Context) (bool, string) {
	adx := analysis.ADX(ctx.Bars[market.TF15m], g.ADXPeriod)
	if adx <= g.ADXThreshold {
		return true, ""
	}
	if !analysis.BandWalk(ctx.Bars[market.TF1h], g.BandWalkBars) {
		return true, ""
	}

	h4 := biasOf(ctx.Bars[market.TF4h], g.SMAPeriod)
	aligned := (ctx.Direction == sweep.DirectionUp && h4 == BiasBull) ||
		(ctx.Direction == sweep.DirectionDown && h4 == BiasBear)
	if aligned {
		return false, fmt.Sprintf("trend day (ADX %.1f): skipping counter-trend fade", adx)
	}
	return true, ""
}

// VelocityGate fails on a velocity spike: the latest 1-minute bar's range
// exceeding a multiple of the recent baseline average range.
type VelocityGate struct {
	SpikeMultiple float64
	BaselineBars  int
}

func (g *VelocityGate) Name() string { return "velocity" }

func (g *VelocityGate) Check(ctx *Context) (bool, string) {
	m1 := ctx.Bars[market.TF1m]
	if len(m1) < g.BaselineBars+1 {
		return true, ""
	}

	baseline := 0.0
	for _, b := range m1[len(m1)-g.BaselineBars-1 : len(m1)-1] {
		baseline += b.High - b.Low
	}
	baseline /= float64(g.BaselineBars)
	if baseline <= 0 {
		return true, ""
	}

	last := m1[len(m1)-1]
	ratio := (last.High - last.Low) / baseline
	if ratio > g.SpikeMultiple {
		return false, fmt.Sprintf("velocity spike: %.2fx baseline", ratio)
	}
	return true, ""
}

// NewsGate fails inside the blackout buffer around scheduled events.
// Tier-1 events carry a wider buffer than the rest.
type NewsGate struct {
	Tier1Buffer time.Duration
	OtherBuffer time.Duration
}

func (g *NewsGate) Name() string { return "news" }

func (g *NewsGate) Check(ctx *Context) (bool, string) {
	for _, ev := range ctx.News {
		buffer := g.OtherBuffer
		if ev.Tier == "TIER1" {
			buffer = g.Tier1Buffer
		}
		delta := ev.Time.Sub(ctx.Now)
		if delta < 0 {
			delta = -delta
		}
		if delta <= buffer {
			return false, fmt.Sprintf("news blackout: %s event %q within %s", ev.Tier, ev.Title, buffer)
		}
	}
	return true, ""
}
