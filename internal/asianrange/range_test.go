package asianrange

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"asian-sweep-bot/internal/market"
)

func window() market.SessionWindow {
	ts := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	return market.NewSessionWindow("EURUSD", ts, market.TimeOfDay{Hour: 0}, market.TimeOfDay{Hour: 6})
}

func windowBars(w market.SessionWindow, n int, high, low float64) []market.Bar {
	bars := make([]market.Bar, n)
	for i := range bars {
		bars[i] = market.Bar{
			Symbol:    w.Symbol,
			Timeframe: market.TF30m,
			OpenTime:  w.Start.Add(time.Duration(i) * 30 * time.Minute),
			Open:      (high + low) / 2,
			High:      high,
			Low:       low,
			Close:     (high + low) / 2,
		}
	}
	return bars
}

func TestComputeNormalRange(t *testing.T) {
	w := window()
	// 80 pip range on EURUSD
	bars := windowBars(w, 12, 1.1080, 1.1000)

	rng, err := Compute(bars, w, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rng.High != 1.1080 || rng.Low != 1.1000 {
		t.Errorf("unexpected bounds: %v / %v", rng.High, rng.Low)
	}
	if diff := rng.Midpoint - 1.1040; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected midpoint 1.1040, got %v", rng.Midpoint)
	}
	if rng.Grade != GradeNormal || rng.RiskMultiplier != 1.0 {
		t.Errorf("expected NORMAL at full risk, got %s %v", rng.Grade, rng.RiskMultiplier)
	}
	if !rng.Valid {
		t.Error("a NORMAL range is tradeable")
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	w := window()
	bars := windowBars(w, 12, 1.1080, 1.1000)

	first, err := Compute(bars, w, DefaultConfig())
	if err != nil {
		t.Fatalf("first compute: %v", err)
	}
	second, err := Compute(bars, w, DefaultConfig())
	if err != nil {
		t.Fatalf("second compute: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("same bars must produce the same range:\n%+v\n%+v", first, second)
	}
}

func TestComputeInsufficientData(t *testing.T) {
	w := window()
	bars := windowBars(w, 5, 1.1080, 1.1000)

	_, err := Compute(bars, w, DefaultConfig())
	var insufficient *market.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if insufficient.Needed != 12 || insufficient.Got != 5 {
		t.Errorf("unexpected counts: %+v", insufficient)
	}
}

func TestComputeIgnoresBarsOutsideWindow(t *testing.T) {
	w := window()
	bars := windowBars(w, 12, 1.1080, 1.1000)
	// A wild bar after the window must not widen the range
	bars = append(bars, market.Bar{
		Symbol:   w.Symbol,
		OpenTime: w.End.Add(time.Hour),
		High:     1.2000,
		Low:      1.0000,
	})

	rng, err := Compute(bars, w, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rng.High != 1.1080 || rng.Low != 1.1000 {
		t.Errorf("out-of-window bar leaked into the range: %v / %v", rng.High, rng.Low)
	}
	if rng.BarCount != 12 {
		t.Errorf("expected 12 in-window bars, got %d", rng.BarCount)
	}
}

func TestComputeRejectsUnsortedBars(t *testing.T) {
	w := window()
	bars := windowBars(w, 12, 1.1080, 1.1000)
	bars[0], bars[1] = bars[1], bars[0]

	if _, err := Compute(bars, w, DefaultConfig()); err == nil {
		t.Error("unsorted bars should be rejected")
	}
}

func TestGrading(t *testing.T) {
	cases := []struct {
		pips  float64
		grade Grade
		mult  float64
		valid bool
	}{
		{20, GradeNoTrade, 0, false},
		{29.9, GradeNoTrade, 0, false},
		{30, GradeTight, 0.5, true},
		{49, GradeTight, 0.5, true},
		{50, GradeNormal, 1.0, true},
		{150, GradeNormal, 1.0, true},
		{151, GradeWide, 1.0, true},
		{180, GradeWide, 1.0, true},
		{181, GradeNoTrade, 0, false},
	}

	for _, c := range cases {
		grade, mult := gradeRange(c.pips, DefaultConfig())
		if grade != c.grade {
			t.Errorf("%.1f pips: expected grade %s, got %s", c.pips, c.grade, grade)
		}
		if mult != c.mult {
			t.Errorf("%.1f pips: expected multiplier %v, got %v", c.pips, c.mult, mult)
		}
		if (grade != GradeNoTrade) != c.valid {
			t.Errorf("%.1f pips: expected tradeable=%v", c.pips, c.valid)
		}
	}
}

func TestDegenerateRangeInvalid(t *testing.T) {
	w := window()
	bars := windowBars(w, 12, 1.1000, 1.1000)

	rng, err := Compute(bars, w, DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rng.Valid {
		t.Error("a zero-width range is never tradeable")
	}
}
