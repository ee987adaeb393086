package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"asian-sweep-bot/internal/events"
	"asian-sweep-bot/internal/session"
)

const (
	// transitionChannel carries transition JSON for live consumers
	transitionChannel = "sweep:transitions"

	// snapshotKeyPrefix keys the latest snapshot per session
	// Format: sweep:session:{symbol}:{trading_day}
	snapshotKeyPrefix = "sweep:session"

	snapshotTTL = 48 * time.Hour
)

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// RedisPublisher pushes transitions and snapshots into Redis
type RedisPublisher struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewRedisPublisher(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisPublisher{
		client: client,
		logger: logger.With().Str("component", "redis_publisher").Logger(),
	}, nil
}

// PublishTransition broadcasts one transition on the pub/sub channel
func (p *RedisPublisher) PublishTransition(ctx context.Context, t events.Transition) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshaling transition: %w", err)
	}
	if err := p.client.Publish(ctx, transitionChannel, body).Err(); err != nil {
		return fmt.Errorf("publishing transition: %w", err)
	}
	return nil
}

// SaveSnapshot stores the latest session snapshot with a TTL
func (p *RedisPublisher) SaveSnapshot(ctx context.Context, snap session.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	key := fmt.Sprintf("%s:%s:%s", snapshotKeyPrefix, snap.Symbol, snap.TradingDay)
	if err := p.client.Set(ctx, key, body, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// Subscribe attaches the publisher to the transition bus
func (p *RedisPublisher) Subscribe(bus *events.Bus) {
	bus.Subscribe(func(t events.Transition) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.PublishTransition(ctx, t); err != nil {
			p.logger.Error().Err(err).Str("symbol", t.Symbol).Msg("failed to publish transition")
		}
	})
}

// Close releases the Redis client
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
