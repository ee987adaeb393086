package sweep

import (
	"errors"
	"testing"
	"time"

	"asian-sweep-bot/internal/asianrange"
	"asian-sweep-bot/internal/market"
)

func testRange() asianrange.Range {
	ts := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	w := market.NewSessionWindow("EURUSD", ts, market.TimeOfDay{Hour: 0}, market.TimeOfDay{Hour: 6})
	return asianrange.Range{
		Window:         w,
		High:           1.1080,
		Low:            1.1000,
		Midpoint:       1.1040,
		RangePips:      80,
		Grade:          asianrange.GradeNormal,
		RiskMultiplier: 1.0,
		Valid:          true,
	}
}

func postWindowBar(rng asianrange.Range, high, low, close float64) market.Bar {
	return market.Bar{
		Symbol:    rng.Window.Symbol,
		Timeframe: market.TF5m,
		OpenTime:  rng.Window.End.Add(30 * time.Minute),
		Open:      close,
		High:      high,
		Low:       low,
		Close:     close,
	}
}

func TestDetectUpSweep(t *testing.T) {
	rng := testRange()
	d := NewDetector(TieBreakMidpoint)
	threshold := 0.0010 // 10 pips

	bar := postWindowBar(rng, 1.1095, 1.1050, 1.1070)
	ev, err := d.Detect(rng, bar, threshold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil {
		t.Fatal("should detect an upside sweep")
	}
	if ev.Direction != DirectionUp {
		t.Errorf("expected UP, got %s", ev.Direction)
	}
	if ev.BreachPrice != 1.1095 {
		t.Errorf("breach price should be the bar high, got %v", ev.BreachPrice)
	}
	if ev.ID == "" {
		t.Error("event should carry an ID")
	}
}

func TestDetectDownSweep(t *testing.T) {
	rng := testRange()
	d := NewDetector(TieBreakMidpoint)

	bar := postWindowBar(rng, 1.1050, 1.0985, 1.1010)
	ev, err := d.Detect(rng, bar, 0.0010)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil || ev.Direction != DirectionDown {
		t.Fatalf("should detect a downside sweep, got %+v", ev)
	}
	if ev.BreachPrice != 1.0985 {
		t.Errorf("breach price should be the bar low, got %v", ev.BreachPrice)
	}
}

func TestDetectBoundaryInclusive(t *testing.T) {
	rng := testRange()
	d := NewDetector(TieBreakMidpoint)

	// High exactly at range high + threshold classifies
	bar := postWindowBar(rng, rng.High+0.0010, 1.1050, 1.1060)
	ev, err := d.Detect(rng, bar, 0.0010)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil {
		t.Error("an exact threshold touch is a sweep")
	}
}

func TestDetectNoBreach(t *testing.T) {
	rng := testRange()
	d := NewDetector(TieBreakMidpoint)

	bar := postWindowBar(rng, 1.1085, 1.1020, 1.1050)
	ev, err := d.Detect(rng, bar, 0.0010)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev != nil {
		t.Errorf("a move inside the threshold is not a sweep, got %+v", ev)
	}
}

func TestDetectIgnoresInWindowBars(t *testing.T) {
	rng := testRange()
	d := NewDetector(TieBreakMidpoint)

	bar := postWindowBar(rng, 1.1200, 1.0900, 1.1050)
	bar.OpenTime = rng.Window.Start.Add(time.Hour)
	ev, err := d.Detect(rng, bar, 0.0010)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev != nil {
		t.Error("bars inside the session window never classify")
	}
}

func TestDetectRejectsInvalidRange(t *testing.T) {
	rng := testRange()
	rng.Valid = false
	d := NewDetector(TieBreakMidpoint)

	bar := postWindowBar(rng, 1.1200, 1.1050, 1.1100)
	ev, err := d.Detect(rng, bar, 0.0010)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev != nil {
		t.Error("an invalid range cannot be swept")
	}
}

func TestBothSidesMidpointTieBreak(t *testing.T) {
	rng := testRange()
	d := NewDetector(TieBreakMidpoint)

	// Wide wick beyond both thresholds, closing above the midpoint
	bar := postWindowBar(rng, 1.1100, 1.0980, 1.1060)
	ev, err := d.Detect(rng, bar, 0.0010)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil || ev.Direction != DirectionUp {
		t.Fatalf("close above midpoint should resolve UP, got %+v", ev)
	}

	// Same wick closing below the midpoint resolves DOWN
	bar = postWindowBar(rng, 1.1100, 1.0980, 1.1020)
	ev, err = d.Detect(rng, bar, 0.0010)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil || ev.Direction != DirectionDown {
		t.Fatalf("close below midpoint should resolve DOWN, got %+v", ev)
	}
}

func TestBothSidesExcursionTieBreak(t *testing.T) {
	rng := testRange()
	d := NewDetector(TieBreakExcursion)

	// Larger overshoot on the downside, even though the close is high
	bar := postWindowBar(rng, 1.1095, 1.0950, 1.1070)
	ev, err := d.Detect(rng, bar, 0.0010)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil || ev.Direction != DirectionDown {
		t.Fatalf("larger downside excursion should resolve DOWN, got %+v", ev)
	}
}

func TestBothSidesRejectTieBreak(t *testing.T) {
	rng := testRange()
	d := NewDetector(TieBreakReject)

	bar := postWindowBar(rng, 1.1100, 1.0980, 1.1060)
	_, err := d.Detect(rng, bar, 0.0010)

	var ambiguous *market.AmbiguousSweepError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("expected AmbiguousSweepError, got %v", err)
	}
	if !ambiguous.BarTime.Equal(bar.OpenTime) {
		t.Errorf("error should carry the bar time, got %v", ambiguous.BarTime)
	}
}

func TestDirectionOpposite(t *testing.T) {
	if DirectionUp.Opposite() != DirectionDown || DirectionDown.Opposite() != DirectionUp {
		t.Error("Opposite should flip the direction")
	}
}
