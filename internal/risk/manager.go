// Package risk sizes entries from the account balance and the session
// range grade. Tight ranges trade at half risk, everything else at full.
package risk

import (
	"math"
	"sync"

	"asian-sweep-bot/internal/asianrange"
)

// Config holds sizing parameters
type Config struct {
	RiskPerTradePct  float64 `json:"risk_per_trade_pct"` // percent of balance risked at multiplier 1.0
	MaxOpenPositions int     `json:"max_open_positions"`
	MinUnits         float64 `json:"min_units"`
	MaxUnits         float64 `json:"max_units"`
}

// DefaultConfig returns sizing defaults
func DefaultConfig() Config {
	return Config{
		RiskPerTradePct:  1.0,
		MaxOpenPositions: 1,
		MinUnits:         1000,
		MaxUnits:         500000,
	}
}

// Manager computes position sizes and tracks open exposure
type Manager struct {
	mu            sync.Mutex
	cfg           Config
	balance       float64
	openPositions int
}

func NewManager(cfg Config, balance float64) *Manager {
	return &Manager{cfg: cfg, balance: balance}
}

// UpdateBalance replaces the tracked account balance
func (m *Manager) UpdateBalance(balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance = balance
}

// CanOpen reports whether a new position fits the exposure limit
func (m *Manager) CanOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openPositions < m.cfg.MaxOpenPositions
}

// Opened increments the exposure count after a fill
func (m *Manager) Opened() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openPositions++
}

// Closed decrements the exposure count after an exit
func (m *Manager) Closed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openPositions > 0 {
		m.openPositions--
	}
}

// Size returns the unit count for an entry with the given stop distance.
// The range grade's risk multiplier scales the monetary risk before the
// stop distance converts it into units.
func (m *Manager) Size(rng asianrange.Range, entry, stop float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	stopDistance := math.Abs(entry - stop)
	if stopDistance <= 0 || m.balance <= 0 {
		return 0
	}

	riskAmount := m.balance * (m.cfg.RiskPerTradePct / 100) * rng.RiskMultiplier
	if riskAmount <= 0 {
		return 0
	}

	units := riskAmount / stopDistance
	units = math.Max(units, m.cfg.MinUnits)
	units = math.Min(units, m.cfg.MaxUnits)
	return math.Floor(units)
}
