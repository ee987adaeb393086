package analysis

import (
	"time"

	"asian-sweep-bot/internal/market"
)

// SwingPoint is a local extreme in price: a bar whose high (or low) is the
// strict extreme within lookback bars on each side.
type SwingPoint struct {
	Index int
	Price float64
	Time  time.Time
}

// SwingHighs identifies swing highs with the given lookback on both sides
func SwingHighs(bars []market.Bar, lookback int) []SwingPoint {
	var points []SwingPoint
	if lookback <= 0 || len(bars) < 2*lookback+1 {
		return points
	}
	for i := lookback; i < len(bars)-lookback; i++ {
		isSwing := true
		for j := i - lookback; j <= i+lookback; j++ {
			if j != i && bars[j].High >= bars[i].High {
				isSwing = false
				break
			}
		}
		if isSwing {
			points = append(points, SwingPoint{Index: i, Price: bars[i].High, Time: bars[i].OpenTime})
		}
	}
	return points
}

// SwingLows identifies swing lows with the given lookback on both sides
func SwingLows(bars []market.Bar, lookback int) []SwingPoint {
	var points []SwingPoint
	if lookback <= 0 || len(bars) < 2*lookback+1 {
		return points
	}
	for i := lookback; i < len(bars)-lookback; i++ {
		isSwing := true
		for j := i - lookback; j <= i+lookback; j++ {
			if j != i && bars[j].Low <= bars[i].Low {
				isSwing = false
				break
			}
		}
		if isSwing {
			points = append(points, SwingPoint{Index: i, Price: bars[i].Low, Time: bars[i].OpenTime})
		}
	}
	return points
}

// StructureBreak describes a break of a recent swing point
type StructureBreak struct {
	Bullish     bool
	BrokenLevel float64
	Price       float64
	Time        time.Time
}

// BreaksStructure reports whether the latest close breaks the most recent
// swing point in the requested direction: a bullish break closes above the
// last swing high, a bearish break closes below the last swing low.
func BreaksStructure(bars []market.Bar, bullish bool, lookback int) (*StructureBreak, bool) {
	if len(bars) == 0 {
		return nil, false
	}
	last := bars[len(bars)-1]

	if bullish {
		highs := SwingHighs(bars, lookback)
		if len(highs) == 0 {
			return nil, false
		}
		level := highs[len(highs)-1].Price
		if last.Close > level {
			return &StructureBreak{Bullish: true, BrokenLevel: level, Price: last.Close, Time: last.OpenTime}, true
		}
		return nil, false
	}

	lows := SwingLows(bars, lookback)
	if len(lows) == 0 {
		return nil, false
	}
	level := lows[len(lows)-1].Price
	if last.Close < level {
		return &StructureBreak{Bullish: false, BrokenLevel: level, Price: last.Close, Time: last.OpenTime}, true
	}
	return nil, false
}

// BandWalk reports whether the last n bars walked directionally: strictly
// consecutive higher highs, or strictly consecutive lower lows.
func BandWalk(bars []market.Bar, n int) bool {
	if n < 2 || len(bars) < n {
		return false
	}
	tail := bars[len(bars)-n:]
	up, down := true, true
	for i := 1; i < len(tail); i++ {
		if tail[i].High <= tail[i-1].High {
			up = false
		}
		if tail[i].Low >= tail[i-1].Low {
			down = false
		}
	}
	return up || down
}
