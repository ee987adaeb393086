// Package feed supplies OHLC bars to the engine. MemoryFeed backs replays
// and tests, RESTFeed polls a broker HTTP API and StreamFeed keeps a live
// websocket cache in front of another source.
package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"asian-sweep-bot/internal/market"
)

// MemoryFeed serves bars from an in-memory store
type MemoryFeed struct {
	mu   sync.RWMutex
	bars map[string][]market.Bar // keyed by symbol + "|" + timeframe
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{bars: make(map[string][]market.Bar)}
}

func key(symbol string, tf market.Timeframe) string {
	return symbol + "|" + string(tf)
}

// Add appends bars and keeps each series sorted by open time
func (f *MemoryFeed) Add(bars ...market.Bar) {
	f.mu.Lock()
	defer f.mu.Unlock()
	touched := make(map[string]struct{})
	for _, b := range bars {
		k := key(b.Symbol, b.Timeframe)
		f.bars[k] = append(f.bars[k], b)
		touched[k] = struct{}{}
	}
	for k := range touched {
		series := f.bars[k]
		sort.Slice(series, func(i, j int) bool {
			return series[i].OpenTime.Before(series[j].OpenTime)
		})
	}
}

// GetBars returns bars with open time in [start, end)
func (f *MemoryFeed) GetBars(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	series := f.bars[key(symbol, tf)]
	out := make([]market.Bar, 0, len(series))
	for _, b := range series {
		if b.OpenTime.Before(start) || !b.OpenTime.Before(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}
