package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"asian-sweep-bot/internal/market"
)

// streamBar is the closed-bar message pushed by the broker stream
type streamBar struct {
	Symbol    string  `json:"symbol"`
	Interval  string  `json:"interval"`
	Time      int64   `json:"time"` // bar open, unix seconds
	Open      float64 `json:"open,string"`
	High      float64 `json:"high,string"`
	Low       float64 `json:"low,string"`
	Close     float64 `json:"close,string"`
	Volume    float64 `json:"volume,string"`
	BarClosed bool    `json:"closed"`
}

// StreamConfig holds websocket stream settings
type StreamConfig struct {
	URL          string        `json:"url"`
	Symbols      []string      `json:"symbols"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	MaxCacheBars int           `json:"max_cache_bars"`
}

// StreamFeed keeps a live cache of closed bars from a websocket stream.
// Reads that the cache cannot satisfy fall through to the backing source,
// so cold starts and deep history both work.
type StreamFeed struct {
	cfg     StreamConfig
	backing market.BarSource
	cache   *MemoryFeed
	logger  zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	cacheFrom map[string]time.Time // earliest cached open per symbol|tf
}

func NewStreamFeed(cfg StreamConfig, backing market.BarSource, logger zerolog.Logger) *StreamFeed {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 90 * time.Second
	}
	if cfg.MaxCacheBars <= 0 {
		cfg.MaxCacheBars = 5000
	}
	return &StreamFeed{
		cfg:       cfg,
		backing:   backing,
		cache:     NewMemoryFeed(),
		logger:    logger.With().Str("component", "stream_feed").Logger(),
		cacheFrom: make(map[string]time.Time),
	}
}

// Run maintains the websocket connection, reconnecting with exponential
// backoff, until the context is cancelled.
func (f *StreamFeed) Run(ctx context.Context) error {
	policy := backoff.WithContext(backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(0)), ctx)
	for {
		err := backoff.Retry(func() error { return f.connect(ctx) }, policy)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			f.logger.Error().Err(err).Msg("stream connect failed, retrying")
		}
		f.logger.Warn().Msg("stream disconnected, reconnecting")
		policy.Reset()
	}
}

func (f *StreamFeed) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	defer conn.Close()

	sub := map[string]interface{}{"op": "subscribe", "symbols": f.cfg.Symbols}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	f.logger.Info().Strs("symbols", f.cfg.Symbols).Msg("stream connected")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg streamBar
		if err := json.Unmarshal(raw, &msg); err != nil {
			f.logger.Warn().Err(err).Msg("skipping malformed stream message")
			continue
		}
		if !msg.BarClosed || msg.Symbol == "" {
			continue
		}
		f.ingest(msg)
	}
}

func (f *StreamFeed) ingest(msg streamBar) {
	tf := market.Timeframe(msg.Interval)
	open := time.Unix(msg.Time, 0).UTC()
	bar := market.Bar{
		Symbol:    msg.Symbol,
		Timeframe: tf,
		OpenTime:  open,
		Open:      msg.Open,
		High:      msg.High,
		Low:       msg.Low,
		Close:     msg.Close,
		Volume:    msg.Volume,
	}
	f.cache.Add(bar)

	f.mu.Lock()
	k := key(msg.Symbol, tf)
	if from, ok := f.cacheFrom[k]; !ok || open.Before(from) {
		f.cacheFrom[k] = open
	}
	f.mu.Unlock()
}

// GetBars serves from the live cache when it covers the window, otherwise
// from the backing source.
func (f *StreamFeed) GetBars(ctx context.Context, symbol string, tf market.Timeframe, start, end time.Time) ([]market.Bar, error) {
	f.mu.Lock()
	from, cached := f.cacheFrom[key(symbol, tf)]
	f.mu.Unlock()

	if cached && !start.Before(from) {
		return f.cache.GetBars(ctx, symbol, tf, start, end)
	}
	if f.backing == nil {
		return f.cache.GetBars(ctx, symbol, tf, start, end)
	}
	return f.backing.GetBars(ctx, symbol, tf, start, end)
}
