package risk

import (
	"testing"

	"asian-sweep-bot/internal/asianrange"
)

func cfg() Config {
	return Config{
		RiskPerTradePct:  1.0,
		MaxOpenPositions: 1,
		MinUnits:         1000,
		MaxUnits:         500000,
	}
}

func normalRange() asianrange.Range {
	return asianrange.Range{Grade: asianrange.GradeNormal, RiskMultiplier: 1.0, Valid: true}
}

func tightRange() asianrange.Range {
	return asianrange.Range{Grade: asianrange.GradeTight, RiskMultiplier: 0.5, Valid: true}
}

func TestSizeFullRisk(t *testing.T) {
	m := NewManager(cfg(), 10000)

	// 1% of 10000 = 100 risked over a 0.0040 stop distance, floored
	units := m.Size(normalRange(), 1.1055, 1.1095)
	if units < 24999 || units > 25000 {
		t.Errorf("expected about 25000 units, got %v", units)
	}
}

func TestSizeTightRangeHalvesRisk(t *testing.T) {
	m := NewManager(cfg(), 10000)

	full := m.Size(normalRange(), 1.1055, 1.1095)
	half := m.Size(tightRange(), 1.1055, 1.1095)
	if half < full/2-1 || half > full/2 {
		t.Errorf("tight range should halve the size: full=%v half=%v", full, half)
	}
}

func TestSizeClamps(t *testing.T) {
	m := NewManager(cfg(), 10000)

	// A huge stop distance drops below the floor
	if units := m.Size(normalRange(), 1.1000, 1.6000); units != 1000 {
		t.Errorf("expected MinUnits clamp, got %v", units)
	}
	// A tiny stop distance hits the ceiling
	if units := m.Size(normalRange(), 1.10000, 1.10001); units != 500000 {
		t.Errorf("expected MaxUnits clamp, got %v", units)
	}
}

func TestSizeDegenerateInputs(t *testing.T) {
	m := NewManager(cfg(), 10000)
	if units := m.Size(normalRange(), 1.1050, 1.1050); units != 0 {
		t.Errorf("zero stop distance must size zero, got %v", units)
	}

	broke := NewManager(cfg(), 0)
	if units := broke.Size(normalRange(), 1.1055, 1.1095); units != 0 {
		t.Errorf("zero balance must size zero, got %v", units)
	}
}

func TestExposureTracking(t *testing.T) {
	m := NewManager(cfg(), 10000)

	if !m.CanOpen() {
		t.Fatal("fresh manager should allow opening")
	}
	m.Opened()
	if m.CanOpen() {
		t.Error("exposure limit of 1 should block a second position")
	}
	m.Closed()
	if !m.CanOpen() {
		t.Error("closing should free the slot")
	}
	// Closed never goes negative
	m.Closed()
	m.Opened()
	if m.CanOpen() {
		t.Error("underflow would let a second position through")
	}
}

func TestUpdateBalance(t *testing.T) {
	m := NewManager(cfg(), 10000)
	m.UpdateBalance(20000)

	if units := m.Size(normalRange(), 1.1055, 1.1095); units < 49999 || units > 50000 {
		t.Errorf("expected size to follow the new balance, got %v", units)
	}
}
