// Package store persists session transitions and snapshots. Postgres is the
// durable record, Redis fans transitions out to live consumers. Both are
// optional at runtime; the engine works without either.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"asian-sweep-bot/internal/events"
	"asian-sweep-bot/internal/session"
)

// PostgresConfig holds database connection settings
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// PostgresRecorder writes transitions and session snapshots to PostgreSQL
type PostgresRecorder struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresRecorder connects, configures the pool and runs migrations
func NewPostgresRecorder(ctx context.Context, cfg PostgresConfig, logger zerolog.Logger) (*PostgresRecorder, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	r := &PostgresRecorder{
		pool:   pool,
		logger: logger.With().Str("component", "postgres_recorder").Logger(),
	}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	r.logger.Info().Str("database", cfg.Database).Msg("connected")
	return r, nil
}

func (r *PostgresRecorder) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS session_transitions (
			id UUID PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			trading_day VARCHAR(10) NOT NULL,
			from_state VARCHAR(20) NOT NULL,
			to_state VARCHAR(20) NOT NULL,
			reason TEXT,
			payload JSONB,
			occurred_at TIMESTAMPTZ NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_symbol_day
			ON session_transitions (symbol, trading_day)`,
		`CREATE TABLE IF NOT EXISTS session_snapshots (
			symbol VARCHAR(20) NOT NULL,
			trading_day VARCHAR(10) NOT NULL,
			state VARCHAR(20) NOT NULL,
			snapshot JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (symbol, trading_day)
		)`,
	}
	for _, m := range migrations {
		if _, err := r.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// RecordTransition persists one state transition
func (r *PostgresRecorder) RecordTransition(ctx context.Context, t events.Transition) error {
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO session_transitions
			(id, symbol, trading_day, from_state, to_state, reason, payload, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		t.ID, t.Symbol, t.TradingDay, t.From, t.To, t.Reason, payload, t.At,
	)
	if err != nil {
		return fmt.Errorf("inserting transition: %w", err)
	}
	return nil
}

// SaveSnapshot upserts the latest session snapshot
func (r *PostgresRecorder) SaveSnapshot(ctx context.Context, snap session.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO session_snapshots (symbol, trading_day, state, snapshot, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (symbol, trading_day)
		 DO UPDATE SET state = $3, snapshot = $4, updated_at = $5`,
		snap.Symbol, snap.TradingDay, snap.State, body, snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting snapshot: %w", err)
	}
	return nil
}

// Subscribe attaches the recorder to the transition bus
func (r *PostgresRecorder) Subscribe(bus *events.Bus) {
	bus.Subscribe(func(t events.Transition) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.RecordTransition(ctx, t); err != nil {
			r.logger.Error().Err(err).Str("symbol", t.Symbol).Msg("failed to record transition")
		}
	})
}

// Close releases the connection pool
func (r *PostgresRecorder) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}
