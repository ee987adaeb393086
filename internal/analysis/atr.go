package analysis

import (
	"math"

	"asian-sweep-bot/internal/market"
)

// ATR calculates the Average True Range over the given period.
// Returns 0 when there are not enough bars.
func ATR(bars []market.Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 0
	}

	// Simple moving average of true range over the last `period` bars
	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += trueRange(bars[i], bars[i-1])
	}
	return sum / float64(period)
}

func trueRange(cur, prev market.Bar) float64 {
	tr := cur.High - cur.Low
	if hc := math.Abs(cur.High - prev.Close); hc > tr {
		tr = hc
	}
	if lc := math.Abs(cur.Low - prev.Close); lc > tr {
		tr = lc
	}
	return tr
}

// SMA calculates the simple moving average of closes over the given period.
// Returns 0 when there are not enough bars.
func SMA(bars []market.Bar, period int) float64 {
	if period <= 0 || len(bars) < period {
		return 0
	}
	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += bars[i].Close
	}
	return sum / float64(period)
}

// ADX calculates the Average Directional Index over the given period.
// Returns 0 when there are not enough bars to produce a smoothed value.
func ADX(bars []market.Bar, period int) float64 {
	// Needs period bars for DI smoothing plus period DX values for ADX
	if period <= 0 || len(bars) < 2*period+1 {
		return 0
	}

	n := len(bars)
	tr := make([]float64, n)
	dmPlus := make([]float64, n)
	dmMinus := make([]float64, n)

	for i := 1; i < n; i++ {
		tr[i] = trueRange(bars[i], bars[i-1])

		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		if up > down && up > 0 {
			dmPlus[i] = up
		}
		if down > up && down > 0 {
			dmMinus[i] = down
		}
	}

	// Rolling-mean smoothing, matching the reference implementation
	dx := make([]float64, 0, n)
	for i := period; i < n; i++ {
		var atrSum, plusSum, minusSum float64
		for j := i - period + 1; j <= i; j++ {
			atrSum += tr[j]
			plusSum += dmPlus[j]
			minusSum += dmMinus[j]
		}
		if atrSum == 0 {
			dx = append(dx, 0)
			continue
		}
		diPlus := 100 * plusSum / atrSum
		diMinus := 100 * minusSum / atrSum
		if diPlus+diMinus == 0 {
			dx = append(dx, 0)
			continue
		}
		dx = append(dx, 100*math.Abs(diPlus-diMinus)/(diPlus+diMinus))
	}

	if len(dx) < period {
		return 0
	}
	sum := 0.0
	for i := len(dx) - period; i < len(dx); i++ {
		sum += dx[i]
	}
	return sum / float64(period)
}
