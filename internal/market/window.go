package market

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time within a UTC trading day
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" into a TimeOfDay
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// SessionWindow defines the fixed reference window used to compute the
// session range. Immutable after creation; one per symbol per trading day.
type SessionWindow struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"` // midnight UTC of the trading day
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// NewSessionWindow builds the window for a symbol on the trading day
// containing ts. An end at or before the start rolls to the next day.
func NewSessionWindow(symbol string, ts time.Time, start, end TimeOfDay) SessionWindow {
	day := ts.UTC().Truncate(24 * time.Hour)
	s := day.Add(time.Duration(start.Hour)*time.Hour + time.Duration(start.Minute)*time.Minute)
	e := day.Add(time.Duration(end.Hour)*time.Hour + time.Duration(end.Minute)*time.Minute)
	if !e.After(s) {
		e = e.Add(24 * time.Hour)
	}
	return SessionWindow{Symbol: symbol, Date: day, Start: s, End: e}
}

// SessionWindowFor returns the window that owns ts: the most recently
// started one at or before it. For windows rolling past midnight this
// assigns post-midnight bars to the previous day's session instead of the
// not-yet-started one on the bar's calendar day.
func SessionWindowFor(symbol string, ts time.Time, start, end TimeOfDay) SessionWindow {
	w := NewSessionWindow(symbol, ts, start, end)
	if ts.UTC().Before(w.Start) {
		w = NewSessionWindow(symbol, ts.UTC().Add(-24*time.Hour), start, end)
	}
	return w
}

// TradingDay returns the window's day key, e.g. "2026-08-29"
func (w SessionWindow) TradingDay() string {
	return w.Date.Format("2006-01-02")
}

// Contains reports whether t falls inside [Start, End)
func (w SessionWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Closed reports whether the window has ended at time t
func (w SessionWindow) Closed(t time.Time) bool {
	return !t.Before(w.End)
}
