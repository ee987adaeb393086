// Package execution is the boundary that turns an armed session into a
// live or simulated position. The core never talks to a broker; it hands
// an armed setup to an Executor and hears back entry and close events.
package execution

import (
	"context"
	"errors"
	"sync"
	"time"

	"asian-sweep-bot/internal/asianrange"
	"asian-sweep-bot/internal/market"
	"asian-sweep-bot/internal/risk"
	"asian-sweep-bot/internal/sweep"
)

// Side of a trade
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order describes an executed entry
type Order struct {
	Symbol string    `json:"symbol"`
	Side   Side      `json:"side"`
	Entry  float64   `json:"entry"`
	Stop   float64   `json:"stop"`
	Target float64   `json:"target"`
	Units  float64   `json:"units"`
	At     time.Time `json:"at"`
}

// Position is an order that has been closed
type Position struct {
	Order
	ExitPrice float64   `json:"exit_price"`
	ClosedAt  time.Time `json:"closed_at"`
	Reason    string    `json:"reason"` // "target" or "stop"
}

// Executor fills armed setups and watches open positions.
// Implementations must be safe for concurrent use across symbols.
type Executor interface {
	// Execute opens a position fading the sweep at the bar close
	Execute(ctx context.Context, ev *sweep.Event, rng asianrange.Range, bar market.Bar) (*Order, error)
	// Manage checks an open position against a new bar; returns the
	// closed position when a stop or target was hit.
	Manage(ctx context.Context, symbol string, bar market.Bar) (*Position, bool, error)
}

// ErrPositionOpen is returned when a symbol already has an open position
var ErrPositionOpen = errors.New("position already open for symbol")

// PaperExecutor simulates fills without any broker connectivity. Entries
// fill at the triggering bar's close; the stop sits beyond the sweep
// extreme and the target at the range midpoint.
type PaperExecutor struct {
	mu         sync.Mutex
	open       map[string]*Order
	stopBuffer float64 // pips beyond the breach extreme
	sizer      *risk.Manager
}

// NewPaperExecutor creates a paper executor with the given stop buffer in
// pips. sizer may be nil, in which case orders carry zero units.
func NewPaperExecutor(stopBufferPips float64, sizer *risk.Manager) *PaperExecutor {
	return &PaperExecutor{
		open:       make(map[string]*Order),
		stopBuffer: stopBufferPips,
		sizer:      sizer,
	}
}

// Execute opens a simulated position fading the sweep direction
func (p *PaperExecutor) Execute(ctx context.Context, ev *sweep.Event, rng asianrange.Range, bar market.Bar) (*Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.open[bar.Symbol]; ok {
		return nil, ErrPositionOpen
	}
	if p.sizer != nil && !p.sizer.CanOpen() {
		return nil, ErrPositionOpen
	}

	buffer := market.PipsToPrice(bar.Symbol, p.stopBuffer)
	order := &Order{
		Symbol: bar.Symbol,
		At:     bar.CloseTime(),
		Entry:  bar.Close,
		Target: rng.Midpoint,
	}
	if ev.Direction == sweep.DirectionUp {
		// Fade the upside sweep: sell, stop above the wick
		order.Side = SideSell
		order.Stop = ev.BreachPrice + buffer
	} else {
		order.Side = SideBuy
		order.Stop = ev.BreachPrice - buffer
	}

	if p.sizer != nil {
		order.Units = p.sizer.Size(rng, order.Entry, order.Stop)
		p.sizer.Opened()
	}

	p.open[bar.Symbol] = order
	return order, nil
}

// Manage closes the symbol's open position when the bar touches its stop
// or target. Stops are checked first: a bar spanning both resolves
// conservatively against the position.
func (p *PaperExecutor) Manage(ctx context.Context, symbol string, bar market.Bar) (*Position, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.open[symbol]
	if !ok {
		return nil, false, nil
	}
	// The fill happens at the entry bar's close, so that bar's extremes
	// predate the position and must not resolve it.
	if bar.OpenTime.Before(order.At) {
		return nil, false, nil
	}

	var exit float64
	var reason string
	switch order.Side {
	case SideSell:
		if bar.High >= order.Stop {
			exit, reason = order.Stop, "stop"
		} else if bar.Low <= order.Target {
			exit, reason = order.Target, "target"
		}
	case SideBuy:
		if bar.Low <= order.Stop {
			exit, reason = order.Stop, "stop"
		} else if bar.High >= order.Target {
			exit, reason = order.Target, "target"
		}
	}
	if reason == "" {
		return nil, false, nil
	}

	delete(p.open, symbol)
	if p.sizer != nil {
		p.sizer.Closed()
	}
	return &Position{
		Order:     *order,
		ExitPrice: exit,
		ClosedAt:  bar.CloseTime(),
		Reason:    reason,
	}, true, nil
}
