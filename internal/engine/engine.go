// Package engine drives the signal pipeline: it pulls bars from the feed,
// routes each primary bar through the session's current stage and applies
// the resulting state transitions. All time budgets compare bar timestamps;
// nothing in here sleeps on the wall clock except the poll ticker.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"asian-sweep-bot/internal/asianrange"
	"asian-sweep-bot/internal/circuit"
	"asian-sweep-bot/internal/confluence"
	"asian-sweep-bot/internal/execution"
	"asian-sweep-bot/internal/market"
	"asian-sweep-bot/internal/reversal"
	"asian-sweep-bot/internal/session"
	"asian-sweep-bot/internal/sweep"
)

// Config holds engine settings
type Config struct {
	Symbols     []string
	WindowStart market.TimeOfDay
	WindowEnd   market.TimeOfDay

	PrimaryTimeframe market.Timeframe // default 5m
	MicroTimeframe   market.Timeframe // default 1m

	Range     asianrange.Config
	Threshold sweep.ThresholdConfig
	// StaticThresholdPips disables the dynamic formula when > 0
	StaticThresholdPips float64
	TieBreak            sweep.TieBreak

	Confluence confluence.Config
	Session    session.Config
	Breaker    circuit.Config

	// AssumedSpreadPips feeds the spread gate when no quote source exists
	AssumedSpreadPips float64

	PollInterval time.Duration
}

// Engine owns one processing goroutine per symbol. Sessions serialize their
// own mutation; the engine only sequences calls into the detectors.
type Engine struct {
	cfg      Config
	feed     market.BarSource
	registry *session.Registry
	detector *sweep.Detector
	checker  *confluence.Checker
	executor execution.Executor
	breaker  *circuit.Breaker
	logger   zerolog.Logger

	mu      sync.Mutex
	news    []confluence.NewsEvent
	lastBar map[string]time.Time
}

// New wires the engine. registry, feed and executor are required.
func New(cfg Config, feed market.BarSource, registry *session.Registry, executor execution.Executor, logger zerolog.Logger) *Engine {
	if cfg.PrimaryTimeframe == "" {
		cfg.PrimaryTimeframe = market.TF5m
	}
	if cfg.MicroTimeframe == "" {
		cfg.MicroTimeframe = market.TF1m
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &Engine{
		cfg:      cfg,
		feed:     feed,
		registry: registry,
		detector: sweep.NewDetector(cfg.TieBreak),
		checker:  confluence.NewChecker(cfg.Confluence),
		executor: executor,
		breaker:  circuit.NewBreaker(cfg.Breaker),
		logger:   logger.With().Str("component", "engine").Logger(),
		lastBar:  make(map[string]time.Time),
	}
}

// SetNews replaces the scheduled news events used by the confluence gate
func (e *Engine) SetNews(news []confluence.NewsEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.news = news
}

// Run polls the feed until the context is cancelled, one worker per symbol
func (e *Engine) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, symbol := range e.cfg.Symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			e.runSymbol(ctx, symbol)
		}(symbol)
	}
	wg.Wait()
	return ctx.Err()
}

func (e *Engine) runSymbol(ctx context.Context, symbol string) {
	log := e.logger.With().Str("symbol", symbol).Logger()
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.poll(ctx, symbol); err != nil {
				log.Warn().Err(err).Msg("poll failed")
			}
		}
	}
}

// poll fetches primary bars since the last processed one and runs each
// through the pipeline in order.
func (e *Engine) poll(ctx context.Context, symbol string) error {
	now := time.Now().UTC()

	e.mu.Lock()
	since := e.lastBar[symbol]
	e.mu.Unlock()
	if since.IsZero() {
		since = now.Add(-24 * time.Hour)
	}

	bars, err := e.feed.GetBars(ctx, symbol, e.cfg.PrimaryTimeframe, since, now)
	if err != nil {
		return err
	}
	last := since
	for _, b := range bars {
		if !b.OpenTime.After(last) {
			continue
		}
		if err := e.OnBar(ctx, b); err != nil {
			return err
		}
		last = b.OpenTime
	}

	e.mu.Lock()
	e.lastBar[symbol] = last
	e.mu.Unlock()

	e.registry.Evict(now)
	return nil
}

// OnBar advances the symbol's session with one closed primary bar. Exported
// so replay feeds and tests can drive the pipeline deterministically.
func (e *Engine) OnBar(ctx context.Context, bar market.Bar) error {
	window := market.SessionWindowFor(bar.Symbol, bar.OpenTime, e.cfg.WindowStart, e.cfg.WindowEnd)
	sess := e.registry.GetOrCreate(window)
	log := e.logger.With().Str("symbol", bar.Symbol).Str("day", window.TradingDay()).Logger()

	// A single bar can complete several stages (range attach then sweep,
	// confluence then entry), so loop until the state stops moving.
	for {
		before := sess.State()
		if err := e.step(ctx, sess, bar, log); err != nil {
			return err
		}
		if sess.State() == before {
			return nil
		}
	}
}

func (e *Engine) step(ctx context.Context, sess *session.Session, bar market.Bar, log zerolog.Logger) error {
	switch sess.State() {
	case session.StateIdle:
		return e.stepIdle(ctx, sess, bar, log)
	case session.StateSwept:
		return e.stepSwept(ctx, sess, bar, log)
	case session.StateConfirmed:
		return e.stepConfirmed(ctx, sess, bar, log)
	case session.StateArmed:
		return e.stepArmed(ctx, sess, bar, log)
	case session.StateInTrade:
		return e.stepInTrade(ctx, sess, bar, log)
	case session.StateCooldown:
		return e.stepCooldown(sess, bar)
	}
	return nil
}

func (e *Engine) stepIdle(ctx context.Context, sess *session.Session, bar market.Bar, log zerolog.Logger) error {
	window := sess.Window()
	if !window.Closed(bar.OpenTime) {
		return nil // still inside the window; the range is not final yet
	}

	if sess.Range() == nil {
		if err := e.attachRange(ctx, sess, bar, log); err != nil {
			return err
		}
		if sess.Range() == nil {
			return nil
		}
	}

	rng := sess.Range()
	if !rng.Valid {
		return nil // degenerate or NO_TRADE grade: sweeps are forbidden
	}

	threshold, err := e.resolveThreshold(ctx, sess, bar)
	if err != nil {
		return err
	}

	ev, err := e.detector.Detect(*rng, bar, threshold)
	if err != nil {
		var ambiguous *market.AmbiguousSweepError
		if errors.As(err, &ambiguous) {
			log.Warn().Time("bar", bar.OpenTime).Msg("ambiguous sweep rejected")
			return nil
		}
		return err
	}
	if ev == nil {
		return nil
	}

	applied, err := sess.Apply(session.Event{
		Kind:   session.EventSweepDetected,
		At:     bar.OpenTime,
		Sweep:  ev,
		Reason: "liquidity sweep detected",
	})
	if err != nil {
		return err
	}
	if applied {
		log.Info().
			Str("direction", string(ev.Direction)).
			Float64("breach_price", ev.BreachPrice).
			Float64("threshold", threshold).
			Msg("sweep detected")
	}
	return nil
}

func (e *Engine) attachRange(ctx context.Context, sess *session.Session, bar market.Bar, log zerolog.Logger) error {
	window := sess.Window()
	bars, err := e.feed.GetBars(ctx, window.Symbol, e.cfg.PrimaryTimeframe, window.Start, window.End)
	if err != nil {
		return err
	}

	rng, err := asianrange.Compute(bars, window, e.cfg.Range)
	if err != nil {
		var insufficient *market.InsufficientDataError
		if errors.As(err, &insufficient) {
			log.Debug().Int("got", insufficient.Got).Int("need", insufficient.Needed).Msg("range not ready")
			return nil // recoverable: retry on a later bar
		}
		return err
	}

	if _, err := sess.Apply(session.Event{
		Kind:   session.EventRangeReady,
		At:     window.End,
		Range:  &rng,
		Reason: "session window closed",
	}); err != nil {
		return err
	}
	log.Info().
		Float64("high", rng.High).
		Float64("low", rng.Low).
		Str("grade", string(rng.Grade)).
		Bool("valid", rng.Valid).
		Msg("range attached")
	return nil
}

// resolveThreshold returns the sweep threshold in price units
func (e *Engine) resolveThreshold(ctx context.Context, sess *session.Session, bar market.Bar) (float64, error) {
	if e.cfg.StaticThresholdPips > 0 {
		return market.PipsToPrice(bar.Symbol, e.cfg.StaticThresholdPips), nil
	}

	hourly, err := e.feed.GetBars(ctx, bar.Symbol, market.TF1h, bar.OpenTime.Add(-24*time.Hour), bar.OpenTime)
	if err != nil {
		return 0, err
	}
	t := sweep.ComputeThreshold(*sess.Range(), hourly, e.cfg.Threshold)
	return t.Price, nil
}

func (e *Engine) stepSwept(ctx context.Context, sess *session.Session, bar market.Bar, log zerolog.Logger) error {
	conf := sess.Confirmation()
	if conf == nil {
		return nil
	}

	breach := conf.Sweep.BreachTime
	historyStart := breach.Add(-time.Duration(e.cfg.Session.Reversal.DisplacementATRPeriod+1) * e.cfg.PrimaryTimeframe.Duration())
	primary, err := e.feed.GetBars(ctx, bar.Symbol, e.cfg.PrimaryTimeframe, historyStart, bar.CloseTime())
	if err != nil {
		return err
	}
	micro, err := e.feed.GetBars(ctx, bar.Symbol, e.cfg.MicroTimeframe, breach.Add(-30*time.Minute), bar.CloseTime())
	if err != nil {
		return err
	}

	switch conf.Evaluate(primary, micro, bar.CloseTime()) {
	case reversal.StatusConfirmed:
		_, err := sess.Apply(session.Event{
			Kind:   session.EventReversalConfirmed,
			At:     bar.OpenTime,
			Reason: "reversal confirmed",
			Payload: map[string]interface{}{
				"displacement_ratio": conf.DisplacementRatio,
				"broken_level":       conf.BrokenLevel,
			},
		})
		if err == nil {
			log.Info().Float64("displacement_ratio", conf.DisplacementRatio).Msg("reversal confirmed")
		}
		return err
	case reversal.StatusExpired:
		_, err := sess.Apply(session.Event{
			Kind:   session.EventConfirmationExpired,
			At:     bar.OpenTime,
			Reason: "confirmation lookahead exhausted",
		})
		if err == nil {
			log.Info().Msg("confirmation expired")
		}
		return err
	case reversal.StatusInvalidated:
		_, err := sess.Apply(session.Event{
			Kind:   session.EventAcceptanceOutside,
			At:     bar.OpenTime,
			Reason: "acceptance outside the range",
		})
		if err == nil {
			log.Info().Msg("breakout accepted outside the range")
		}
		return err
	}
	return nil
}

func (e *Engine) stepConfirmed(ctx context.Context, sess *session.Session, bar market.Bar, log zerolog.Logger) error {
	confirmedAt := sess.ConfirmedAt()
	if !confirmedAt.IsZero() && bar.CloseTime().Sub(confirmedAt) >= e.cfg.Session.ConfluenceMaxWait {
		_, err := sess.Apply(session.Event{
			Kind:   session.EventConfluenceExpired,
			At:     bar.CloseTime(),
			Reason: "confluence wait exceeded",
		})
		return err
	}

	cctx, err := e.confluenceContext(ctx, sess, bar)
	if err != nil {
		return err
	}
	res := e.checker.Check(cctx)
	if !res.Passed {
		log.Info().Strs("reasons", res.FailureReasons).Msg("confluence blocked")
		return nil // stays CONFIRMED; a fresh bar re-triggers the check
	}

	_, err = sess.Apply(session.Event{
		Kind:   session.EventConfluencePassed,
		At:     bar.OpenTime,
		Reason: "confluence passed",
		Payload: map[string]interface{}{
			"gates": res.Gates,
		},
	})
	if err == nil {
		log.Info().Msg("session armed")
	}
	return err
}

func (e *Engine) confluenceContext(ctx context.Context, sess *session.Session, bar market.Bar) (*confluence.Context, error) {
	now := bar.CloseTime()
	frames := map[market.Timeframe]time.Duration{
		market.TF1m:  2 * time.Hour,
		market.TF15m: 48 * time.Hour,
		market.TF1h:  5 * 24 * time.Hour,
		market.TF4h:  30 * 24 * time.Hour,
		market.TF1d:  90 * 24 * time.Hour,
	}

	barsByTF := make(map[market.Timeframe][]market.Bar, len(frames))
	for tf, span := range frames {
		bars, err := e.feed.GetBars(ctx, bar.Symbol, tf, now.Add(-span), now)
		if err != nil {
			return nil, err
		}
		barsByTF[tf] = bars
	}

	var dir sweep.Direction
	if ev := sess.ActiveSweep(); ev != nil {
		dir = ev.Direction
	}

	e.mu.Lock()
	news := e.news
	e.mu.Unlock()

	return &confluence.Context{
		Symbol:     bar.Symbol,
		Now:        now,
		Direction:  dir,
		SpreadPips: e.cfg.AssumedSpreadPips,
		Bars:       barsByTF,
		News:       news,
	}, nil
}

func (e *Engine) stepArmed(ctx context.Context, sess *session.Session, bar market.Bar, log zerolog.Logger) error {
	ev := sess.ActiveSweep()
	rng := sess.Range()
	if ev == nil || rng == nil {
		return nil
	}

	if ok, reason := e.breaker.Allow(bar.CloseTime()); !ok {
		log.Warn().Str("reason", reason).Msg("entry blocked by breaker")
		return nil
	}

	order, err := e.executor.Execute(ctx, ev, *rng, bar)
	if err != nil {
		if errors.Is(err, execution.ErrPositionOpen) {
			return nil
		}
		return err
	}

	_, err = sess.Apply(session.Event{
		Kind:   session.EventEntryExecuted,
		At:     order.At,
		Price:  order.Entry,
		Reason: "entry executed",
		Payload: map[string]interface{}{
			"side":   string(order.Side),
			"entry":  order.Entry,
			"stop":   order.Stop,
			"target": order.Target,
		},
	})
	if err == nil {
		log.Info().Str("side", string(order.Side)).Float64("entry", order.Entry).Msg("entered trade")
	}
	return err
}

func (e *Engine) stepInTrade(ctx context.Context, sess *session.Session, bar market.Bar, log zerolog.Logger) error {
	pos, closed, err := e.executor.Manage(ctx, bar.Symbol, bar)
	if err != nil || !closed {
		return err
	}

	pnlPips := market.PriceToPips(bar.Symbol, pos.ExitPrice-pos.Entry)
	if pos.Side == execution.SideSell {
		pnlPips = -pnlPips
	}
	e.breaker.RecordOutcome(pos.ClosedAt, pnlPips)

	_, err = sess.Apply(session.Event{
		Kind:   session.EventPositionClosed,
		At:     pos.ClosedAt,
		Price:  pos.ExitPrice,
		Reason: pos.Reason,
		Payload: map[string]interface{}{
			"exit":  pos.ExitPrice,
			"entry": pos.Entry,
		},
	})
	if err == nil {
		log.Info().Str("reason", pos.Reason).Float64("exit", pos.ExitPrice).Msg("position closed")
	}
	return err
}

func (e *Engine) stepCooldown(sess *session.Session, bar market.Bar) error {
	until := sess.CooldownUntil()
	if until.IsZero() || bar.CloseTime().Before(until) {
		return nil
	}
	_, err := sess.Apply(session.Event{
		Kind:   session.EventCooldownElapsed,
		At:     bar.CloseTime(),
		Reason: "cooldown elapsed",
	})
	return err
}
