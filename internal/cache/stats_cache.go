// Package cache holds short-lived read models.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"treeadopt/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StatsCache caches wellwisher dashboards between transitions.
type StatsCache interface {
	// Get returns the cached stats, or nil on a miss.
	Get(ctx context.Context, wellwisherID uuid.UUID) (*model.WorkerStats, error)
	Set(ctx context.Context, wellwisherID uuid.UUID, stats model.WorkerStats) error
	Invalidate(ctx context.Context, wellwisherID uuid.UUID) error
}

type redisStatsCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// Connect parses redisURL and pings the server.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// NewRedisStatsCache creates a StatsCache storing JSON under "stats:<id>".
func NewRedisStatsCache(rdb *redis.Client, ttl time.Duration, logger zerolog.Logger) StatsCache {
	return &redisStatsCache{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With().Str("component", "stats-cache").Logger(),
	}
}

func statsKey(id uuid.UUID) string {
	return "stats:" + id.String()
}

func (c *redisStatsCache) Get(ctx context.Context, wellwisherID uuid.UUID) (*model.WorkerStats, error) {
	val, err := c.rdb.Get(ctx, statsKey(wellwisherID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached stats: %w", err)
	}

	var stats model.WorkerStats
	if err := json.Unmarshal(val, &stats); err != nil {
		c.logger.Warn().Err(err).Str("wellwisher_id", wellwisherID.String()).Msg("discarding undecodable cached stats")
		return nil, nil
	}
	return &stats, nil
}

func (c *redisStatsCache) Set(ctx context.Context, wellwisherID uuid.UUID, stats model.WorkerStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	if err := c.rdb.Set(ctx, statsKey(wellwisherID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache stats: %w", err)
	}
	return nil
}

func (c *redisStatsCache) Invalidate(ctx context.Context, wellwisherID uuid.UUID) error {
	if err := c.rdb.Del(ctx, statsKey(wellwisherID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate stats: %w", err)
	}
	return nil
}

// Noop is a StatsCache that never hits.
type Noop struct{}

func (Noop) Get(context.Context, uuid.UUID) (*model.WorkerStats, error) { return nil, nil }
func (Noop) Set(context.Context, uuid.UUID, model.WorkerStats) error    { return nil }
func (Noop) Invalidate(context.Context, uuid.UUID) error                { return nil }
