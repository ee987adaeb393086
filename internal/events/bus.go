// Package events carries state-transition notifications from the session
// state machine to its consumers (persistence, execution, API snapshots).
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transition is emitted for every applied session state change
type Transition struct {
	ID         string                 `json:"id"`
	Symbol     string                 `json:"symbol"`
	TradingDay string                 `json:"trading_day"`
	From       string                 `json:"from_state"`
	To         string                 `json:"to_state"`
	At         time.Time              `json:"timestamp"`
	Reason     string                 `json:"reason,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// Subscriber is a function that handles transition events
type Subscriber func(Transition)

// subscriberBuffer bounds how far a consumer may lag before it misses
// transitions
const subscriberBuffer = 256

// Bus manages transition publishing and subscriptions
type Bus struct {
	mu   sync.RWMutex
	subs []chan Transition
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a subscriber for all transitions. Each subscriber
// drains its own buffered channel on a dedicated goroutine, so one
// subscriber sees transitions in publish order.
func (b *Bus) Subscribe(sub Subscriber) {
	ch := make(chan Transition, subscriberBuffer)
	go func() {
		for t := range ch {
			sub(t)
		}
	}()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, ch)
}

// Publish sends a transition to all subscribers. A subscriber whose buffer
// is full misses the transition rather than stalling the state machine.
func (b *Bus) Publish(t Transition) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.At.IsZero() {
		t.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- t:
		default:
		}
	}
}
