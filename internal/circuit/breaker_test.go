package circuit

import (
	"strings"
	"testing"
	"time"
)

var day = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func limits() Config {
	return Config{
		Enabled:              true,
		MaxConsecutiveLosses: 3,
		MaxDailyLossPips:     100,
		MaxDailyTrades:       4,
		Cooldown:             2 * time.Hour,
	}
}

func TestDisabledBreakerAlwaysAllows(t *testing.T) {
	b := NewBreaker(Config{Enabled: false})
	for i := 0; i < 10; i++ {
		b.RecordOutcome(day, -50)
	}
	if ok, _ := b.Allow(day); !ok {
		t.Error("disabled breaker must always allow")
	}
}

func TestConsecutiveLossesTrip(t *testing.T) {
	b := NewBreaker(limits())

	b.RecordOutcome(day, -10)
	b.RecordOutcome(day.Add(time.Hour), -10)
	if b.State() != StateClosed {
		t.Fatalf("two losses should not trip, got %s", b.State())
	}

	b.RecordOutcome(day.Add(2*time.Hour), -10)
	if b.State() != StateOpen {
		t.Fatalf("third consecutive loss should trip, got %s", b.State())
	}

	ok, reason := b.Allow(day.Add(2*time.Hour + time.Minute))
	if ok {
		t.Error("open breaker must block")
	}
	if !strings.Contains(reason, "consecutive losses") {
		t.Errorf("reason should carry the trip cause, got %q", reason)
	}
}

func TestWinResetsConsecutiveCount(t *testing.T) {
	b := NewBreaker(limits())

	b.RecordOutcome(day, -10)
	b.RecordOutcome(day.Add(time.Hour), -10)
	b.RecordOutcome(day.Add(2*time.Hour), 15)
	b.RecordOutcome(day.Add(3*time.Hour), -10)
	if b.State() != StateClosed {
		t.Errorf("win in between should reset the streak, got %s", b.State())
	}
}

func TestDailyLossLimitTrips(t *testing.T) {
	b := NewBreaker(limits())

	b.RecordOutcome(day, -60)
	b.RecordOutcome(day.Add(time.Hour), -45)
	if b.State() != StateOpen {
		t.Fatalf("105 pips of daily loss should trip, got %s", b.State())
	}
}

func TestDailyTradeLimitBlocks(t *testing.T) {
	b := NewBreaker(limits())

	// Four alternating outcomes stay under every loss limit
	b.RecordOutcome(day, 10)
	b.RecordOutcome(day.Add(time.Hour), -10)
	b.RecordOutcome(day.Add(2*time.Hour), 10)
	b.RecordOutcome(day.Add(3*time.Hour), -10)

	ok, reason := b.Allow(day.Add(4 * time.Hour))
	if ok {
		t.Error("fourth trade should exhaust the daily budget")
	}
	if !strings.Contains(reason, "daily trade limit") {
		t.Errorf("unexpected reason %q", reason)
	}
}

func TestHalfOpenProbe(t *testing.T) {
	b := NewBreaker(limits())
	for i := 0; i < 3; i++ {
		b.RecordOutcome(day.Add(time.Duration(i)*time.Minute), -10)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	// Still blocked inside the cooldown
	if ok, _ := b.Allow(day.Add(time.Hour)); ok {
		t.Error("must block inside the cooldown")
	}

	// After the cooldown one probe is allowed
	probeAt := day.Add(3 * time.Hour)
	if ok, _ := b.Allow(probeAt); !ok {
		t.Fatal("expected a probe entry after the cooldown")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half_open, got %s", b.State())
	}

	// A losing probe re-trips immediately
	b.RecordOutcome(probeAt.Add(time.Hour), -5)
	if b.State() != StateOpen {
		t.Errorf("losing probe should re-open, got %s", b.State())
	}
}

func TestWinningProbeCloses(t *testing.T) {
	b := NewBreaker(limits())
	for i := 0; i < 3; i++ {
		b.RecordOutcome(day.Add(time.Duration(i)*time.Minute), -10)
	}

	// Roll into the next day so daily counters reset before the probe
	next := day.Add(24 * time.Hour)
	if ok, _ := b.Allow(next); !ok {
		t.Fatal("expected a probe on the next day")
	}
	b.RecordOutcome(next.Add(time.Hour), 20)
	if b.State() != StateClosed {
		t.Errorf("winning probe should close the breaker, got %s", b.State())
	}
	if ok, _ := b.Allow(next.Add(2 * time.Hour)); !ok {
		t.Error("closed breaker must allow")
	}
}

func TestDayRollClearsDailyCounters(t *testing.T) {
	b := NewBreaker(limits())

	b.RecordOutcome(day, 10)
	b.RecordOutcome(day.Add(time.Hour), 10)
	b.RecordOutcome(day.Add(2*time.Hour), 10)
	b.RecordOutcome(day.Add(3*time.Hour), 10)
	if ok, _ := b.Allow(day.Add(4 * time.Hour)); ok {
		t.Fatal("daily budget should be spent")
	}

	if ok, _ := b.Allow(day.Add(24 * time.Hour)); !ok {
		t.Error("next UTC day should reset the trade budget")
	}
}

func TestRecordOutcomeIgnoresBadValues(t *testing.T) {
	b := NewBreaker(limits())
	nan := 0.0
	b.RecordOutcome(day, nan/nan)
	stats := b.Stats()
	if stats["daily_trades"].(int) != 0 {
		t.Error("NaN outcomes must be ignored")
	}
}
