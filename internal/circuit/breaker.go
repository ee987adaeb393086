// Package circuit halts new entries after a run of bad outcomes. It sits
// between an armed session and the executor as an account-level guard;
// per-session cooldowns do not know about losses on other symbols, this does.
package circuit

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // entries allowed
	StateOpen     BreakerState = "open"      // entries halted
	StateHalfOpen BreakerState = "half_open" // one probing entry allowed
)

// Config holds circuit breaker limits
type Config struct {
	Enabled              bool          `json:"enabled"`
	MaxConsecutiveLosses int           `json:"max_consecutive_losses"`
	MaxDailyLossPips     float64       `json:"max_daily_loss_pips"`
	MaxDailyTrades       int           `json:"max_daily_trades"`
	Cooldown             time.Duration `json:"cooldown"`
}

// DefaultConfig returns conservative limits
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		MaxConsecutiveLosses: 3,
		MaxDailyLossPips:     100,
		MaxDailyTrades:       4,
		Cooldown:             2 * time.Hour,
	}
}

// Breaker tracks outcomes across all symbols. All decisions take the
// caller's clock so replays behave the same as live runs.
type Breaker struct {
	mu sync.Mutex

	cfg               Config
	state             BreakerState
	consecutiveLosses int
	dailyLossPips     float64
	dailyTrades       int
	day               string
	trippedAt         time.Time
	tripReason        string
}

func NewBreaker(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: StateClosed}
}

// Allow reports whether a new entry may be taken at now
func (b *Breaker) Allow(now time.Time) (bool, string) {
	if !b.cfg.Enabled {
		return true, ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollDay(now)

	if b.state == StateOpen {
		if now.Sub(b.trippedAt) < b.cfg.Cooldown {
			remaining := b.cfg.Cooldown - now.Sub(b.trippedAt)
			return false, fmt.Sprintf("breaker open for %s (%s)", remaining.Round(time.Second), b.tripReason)
		}
		b.state = StateHalfOpen
	}

	if b.dailyTrades >= b.cfg.MaxDailyTrades {
		return false, fmt.Sprintf("daily trade limit reached: %d", b.dailyTrades)
	}
	if b.dailyLossPips >= b.cfg.MaxDailyLossPips {
		return false, fmt.Sprintf("daily loss limit reached: %.1f pips", b.dailyLossPips)
	}
	return true, ""
}

// RecordOutcome feeds one closed trade back into the breaker. pnlPips is
// positive for a win.
func (b *Breaker) RecordOutcome(now time.Time, pnlPips float64) {
	if !b.cfg.Enabled || math.IsNaN(pnlPips) || math.IsInf(pnlPips, 0) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollDay(now)

	b.dailyTrades++
	if pnlPips < 0 {
		b.consecutiveLosses++
		b.dailyLossPips += -pnlPips
		if b.state == StateHalfOpen {
			b.trip(now, "probe trade lost")
			return
		}
		if b.consecutiveLosses >= b.cfg.MaxConsecutiveLosses {
			b.trip(now, fmt.Sprintf("consecutive losses: %d", b.consecutiveLosses))
			return
		}
		if b.dailyLossPips >= b.cfg.MaxDailyLossPips {
			b.trip(now, fmt.Sprintf("daily loss: %.1f pips", b.dailyLossPips))
		}
		return
	}

	b.consecutiveLosses = 0
	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.tripReason = ""
	}
}

func (b *Breaker) trip(now time.Time, reason string) {
	b.state = StateOpen
	b.trippedAt = now
	b.tripReason = reason
}

// rollDay clears daily counters at the UTC day boundary
func (b *Breaker) rollDay(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	if day != b.day {
		b.day = day
		b.dailyLossPips = 0
		b.dailyTrades = 0
	}
}

// State returns the current breaker state
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns counters for the API and logs
func (b *Breaker) Stats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]interface{}{
		"state":              string(b.state),
		"consecutive_losses": b.consecutiveLosses,
		"daily_loss_pips":    b.dailyLossPips,
		"daily_trades":       b.dailyTrades,
		"trip_reason":        b.tripReason,
	}
}
