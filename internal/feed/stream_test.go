package feed

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"asian-sweep-bot/internal/market"
)

func TestStreamFeedFallsBackToBackingSource(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	backing := NewMemoryFeed()
	backing.Add(m1Bar("EURUSD", base, 1.1050))

	f := NewStreamFeed(StreamConfig{URL: "ws://unused"}, backing, zerolog.Nop())

	// Cold cache: everything comes from the backing source
	got, err := f.GetBars(context.Background(), "EURUSD", market.TF1m, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 || got[0].Close != 1.1050 {
		t.Errorf("expected the backing bar, got %v", got)
	}
}

func TestStreamFeedServesCacheOnceCovered(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	backing := NewMemoryFeed()
	f := NewStreamFeed(StreamConfig{URL: "ws://unused"}, backing, zerolog.Nop())

	// Two closed bars arrive on the stream
	for i := 0; i < 2; i++ {
		f.ingest(streamBar{
			Symbol:    "EURUSD",
			Interval:  "1m",
			Time:      base.Add(time.Duration(i) * time.Minute).Unix(),
			Open:      1.1050,
			High:      1.1052,
			Low:       1.1048,
			Close:     1.1051,
			BarClosed: true,
		})
	}

	// A window starting at or after the earliest cached bar hits the cache
	got, err := f.GetBars(context.Background(), "EURUSD", market.TF1m, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 cached bars, got %d", len(got))
	}
	if got[0].Close != 1.1051 || got[0].Timeframe != market.TF1m {
		t.Errorf("unexpected cached bar %+v", got[0])
	}

	// A window reaching before the cache falls back to backing (empty here)
	got, err = f.GetBars(context.Background(), "EURUSD", market.TF1m, base.Add(-time.Hour), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("window predating the cache must use the backing source, got %d bars", len(got))
	}
}

func TestStreamFeedSeparatesSymbols(t *testing.T) {
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	f := NewStreamFeed(StreamConfig{URL: "ws://unused"}, nil, zerolog.Nop())

	f.ingest(streamBar{Symbol: "EURUSD", Interval: "1m", Time: base.Unix(), Close: 1.1050, BarClosed: true})
	f.ingest(streamBar{Symbol: "GBPUSD", Interval: "1m", Time: base.Unix(), Close: 1.2650, BarClosed: true})

	got, err := f.GetBars(context.Background(), "GBPUSD", market.TF1m, base, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 || got[0].Close != 1.2650 {
		t.Errorf("expected only the GBPUSD bar, got %v", got)
	}
}
