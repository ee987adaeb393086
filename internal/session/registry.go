package session

import (
	"sync"
	"time"

	"asian-sweep-bot/internal/events"
	"asian-sweep-bot/internal/market"
)

// Registry maps (symbol, trading day) to its session. Sessions are created
// when their window opens and evicted after they finish plus a retention
// period. Distinct sessions are fully independent; the registry lock only
// covers the map, never a session's own state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      Config
	bus      *events.Bus
}

// NewRegistry creates an empty session registry
func NewRegistry(cfg Config, bus *events.Bus) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		bus:      bus,
	}
}

func key(symbol, day string) string {
	return symbol + "|" + day
}

// GetOrCreate returns the session for the window, creating it in IDLE
func (r *Registry) GetOrCreate(window market.SessionWindow) *Session {
	k := key(window.Symbol, window.TradingDay())

	r.mu.RLock()
	s, ok := r.sessions[k]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.sessions[k]; ok {
		return s
	}
	s = New(window, r.cfg, r.bus)
	r.sessions[k] = s
	return s
}

// Get returns the session for (symbol, trading day) if it exists
func (r *Registry) Get(symbol, day string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key(symbol, day)]
	return s, ok
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshots returns a view of every live session
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(list))
	for _, s := range list {
		snaps = append(snaps, s.Snapshot())
	}
	return snaps
}

// Evict removes sessions that finished more than the retention period ago
// and stale sessions from previous trading days. Returns how many went.
func (r *Registry) Evict(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for k, s := range r.sessions {
		if s.evictable(now, r.cfg.Retention) {
			delete(r.sessions, k)
			n++
		}
	}
	return n
}
