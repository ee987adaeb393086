package market

import (
	"context"
	"strings"
	"time"
)

// Timeframe represents different chart timeframes
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// Duration returns the bar interval for the timeframe
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF30m:
		return 30 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// Bar represents a single OHLCV price bar. Timestamps are always UTC.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	OpenTime  time.Time `json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// CloseTime returns the end of the bar interval
func (b Bar) CloseTime() time.Time {
	return b.OpenTime.Add(b.Timeframe.Duration())
}

// Body returns the absolute open-to-close distance
func (b Bar) Body() float64 {
	if b.Close >= b.Open {
		return b.Close - b.Open
	}
	return b.Open - b.Close
}

// IsBullish reports whether the bar closed above its open
func (b Bar) IsBullish() bool {
	return b.Close > b.Open
}

// IsBearish reports whether the bar closed below its open
func (b Bar) IsBearish() bool {
	return b.Close < b.Open
}

// SortedByTime reports whether bars are in ascending OpenTime order.
// Detectors require ascending input and reject anything else.
func SortedByTime(bars []Bar) bool {
	for i := 1; i < len(bars); i++ {
		if bars[i].OpenTime.Before(bars[i-1].OpenTime) {
			return false
		}
	}
	return true
}

// PipSize returns the price value of one pip for a symbol.
// XAUUSD quotes in 0.1 pips, JPY pairs in 0.01, everything else 0.0001.
func PipSize(symbol string) float64 {
	s := strings.ToUpper(symbol)
	switch {
	case strings.HasPrefix(s, "XAU"):
		return 0.1
	case strings.HasSuffix(s, "JPY"):
		return 0.01
	default:
		return 0.0001
	}
}

// PriceToPips converts a price distance to pips for a symbol
func PriceToPips(symbol string, price float64) float64 {
	return price / PipSize(symbol)
}

// PipsToPrice converts pips to a price distance for a symbol
func PipsToPrice(symbol string, pips float64) float64 {
	return pips * PipSize(symbol)
}

// BarSource is the pull boundary for historical bars. Implementations live
// outside the core detectors; the core never blocks on I/O itself.
type BarSource interface {
	GetBars(ctx context.Context, symbol string, tf Timeframe, start, end time.Time) ([]Bar, error)
}
