package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"asian-sweep-bot/config"
	"asian-sweep-bot/internal/api"
	"asian-sweep-bot/internal/asianrange"
	"asian-sweep-bot/internal/confluence"
	"asian-sweep-bot/internal/engine"
	"asian-sweep-bot/internal/events"
	"asian-sweep-bot/internal/execution"
	"asian-sweep-bot/internal/feed"
	"asian-sweep-bot/internal/logging"
	"asian-sweep-bot/internal/market"
	"asian-sweep-bot/internal/reversal"
	"asian-sweep-bot/internal/risk"
	"asian-sweep-bot/internal/session"
	"asian-sweep-bot/internal/store"
	"asian-sweep-bot/internal/sweep"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New(logging.DefaultConfig())
		fallback.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := logging.New(cfg.LoggingConfig)
	logger.Info().Strs("symbols", cfg.StrategyConfig.Symbols).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	registry := buildRegistry(cfg, bus)

	closeStores := wireStores(ctx, cfg, bus, registry, logger)
	defer closeStores()

	source, runStream := buildFeed(cfg, logger)

	sizer := risk.NewManager(cfg.RiskConfig, cfg.StrategyConfig.AccountBalance)
	executor := execution.NewPaperExecutor(cfg.StrategyConfig.StopBufferPips, sizer)
	eng := engine.New(buildEngineConfig(cfg), source, registry, executor, logger)

	server := api.NewServer(cfg.ServerConfig, registry, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	if runStream != nil {
		go func() {
			if err := runStream(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("stream feed stopped")
			}
		}()
	}

	if err := eng.Run(ctx); err != nil && err != context.Canceled {
		logger.Error().Err(err).Msg("engine stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	logger.Info().Msg("stopped")
}

func buildRegistry(cfg *config.Config, bus *events.Bus) *session.Registry {
	s := cfg.StrategyConfig
	sessionCfg := session.Config{
		Cooldown:          s.Cooldown,
		ConfluenceMaxWait: s.ConfluenceMaxWait,
		Retention:         s.Retention,
		Reversal:          buildReversalConfig(s),
	}
	return session.NewRegistry(sessionCfg, bus)
}

func buildReversalConfig(s config.StrategyConfig) reversal.Config {
	rc := reversal.DefaultConfig()
	if s.ConfirmationLookaheadBars > 0 {
		rc.LookaheadBars = s.ConfirmationLookaheadBars
	}
	if s.ConfirmationLookahead > 0 {
		rc.LookaheadElapsed = s.ConfirmationLookahead
	}
	if s.DisplacementK > 0 {
		rc.DisplacementK = s.DisplacementK
	}
	if s.AcceptanceOutsideCloses > 0 {
		rc.AcceptanceOutsideCloses = s.AcceptanceOutsideCloses
	}
	return rc
}

func buildEngineConfig(cfg *config.Config) engine.Config {
	s := cfg.StrategyConfig
	windowStart, _ := market.ParseTimeOfDay(s.WindowStart)
	windowEnd, _ := market.ParseTimeOfDay(s.WindowEnd)

	rangeCfg := asianrange.DefaultConfig()
	if s.MinRangeBars > 0 {
		rangeCfg.MinBars = s.MinRangeBars
	}

	confluenceCfg := confluenceConfig(s)

	return engine.Config{
		Symbols:     s.Symbols,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Range:       rangeCfg,
		Threshold: sweep.ThresholdConfig{
			FloorPips:   s.ThresholdFloorPips,
			RangePct:    s.ThresholdRangePct,
			ATRMultiple: s.ThresholdATRMult,
			ATRPeriod:   14,
		},
		StaticThresholdPips: s.StaticThresholdPips,
		TieBreak:            sweep.TieBreak(s.TieBreak),
		Confluence:          confluenceCfg,
		Session: session.Config{
			Cooldown:          s.Cooldown,
			ConfluenceMaxWait: s.ConfluenceMaxWait,
			Retention:         s.Retention,
			Reversal:          buildReversalConfig(s),
		},
		Breaker:           cfg.BreakerConfig,
		AssumedSpreadPips: s.AssumedSpreadPips,
		PollInterval:      s.PollInterval,
	}
}

func confluenceConfig(s config.StrategyConfig) confluence.Config {
	cc := confluence.DefaultConfig()
	if s.MaxSpreadPips > 0 {
		cc.MaxSpreadPips = s.MaxSpreadPips
	}
	return cc
}

func buildFeed(cfg *config.Config, logger zerolog.Logger) (market.BarSource, func(context.Context) error) {
	rest := feed.NewRESTFeed(cfg.FeedConfig.REST, logger)
	if cfg.FeedConfig.Mode != "stream" {
		return rest, nil
	}
	stream := feed.NewStreamFeed(cfg.FeedConfig.Stream, rest, logger)
	return stream, stream.Run
}

// wireStores attaches the optional Postgres and Redis sinks to the bus and
// returns a combined closer.
func wireStores(ctx context.Context, cfg *config.Config, bus *events.Bus, registry *session.Registry, logger zerolog.Logger) func() {
	var closers []func()

	if cfg.PostgresEnabled {
		recorder, err := store.NewPostgresRecorder(ctx, cfg.PostgresConfig, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres unavailable")
		}
		recorder.Subscribe(bus)
		bus.Subscribe(snapshotSink(registry, recorder.SaveSnapshot, logger))
		closers = append(closers, recorder.Close)
	}

	if cfg.RedisEnabled {
		publisher, err := store.NewRedisPublisher(ctx, cfg.RedisConfig, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis unavailable")
		}
		publisher.Subscribe(bus)
		bus.Subscribe(snapshotSink(registry, publisher.SaveSnapshot, logger))
		closers = append(closers, func() { publisher.Close() })
	}

	return func() {
		for _, c := range closers {
			c()
		}
	}
}

func snapshotSink(registry *session.Registry, save func(context.Context, session.Snapshot) error, logger zerolog.Logger) events.Subscriber {
	return func(t events.Transition) {
		sess, ok := registry.Get(t.Symbol, t.TradingDay)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := save(ctx, sess.Snapshot()); err != nil {
			logger.Error().Err(err).Str("symbol", t.Symbol).Msg("failed to save snapshot")
		}
	}
}
