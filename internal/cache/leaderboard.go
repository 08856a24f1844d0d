// Package cache keeps leaderboard snapshot rows in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/practiceprep/backend/internal/config"
	"github.com/practiceprep/backend/internal/models"
)

// LeaderboardCache stores each snapshot's rows as a JSON blob with a TTL.
// Display names are resolved by the caller on every read.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewLeaderboardCache connects to Redis and verifies the connection.
func NewLeaderboardCache(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*LeaderboardCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &LeaderboardCache{
		client: client,
		ttl:    cfg.CacheTTL,
		logger: logger.With("component", "leaderboard_cache"),
	}, nil
}

func (c *LeaderboardCache) Close() error {
	return c.client.Close()
}

// leaderboardKey returns the Redis key for one period snapshot
func leaderboardKey(period models.PeriodType, key string) string {
	return fmt.Sprintf("leaderboard:%s:%s", period, key)
}

// Get returns nil, nil on a miss.
func (c *LeaderboardCache) Get(ctx context.Context, period models.PeriodType, key string) ([]models.RankingSnapshot, error) {
	data, err := c.client.Get(ctx, leaderboardKey(period, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting cached leaderboard: %w", err)
	}

	var rows []models.RankingSnapshot
	if err := json.Unmarshal(data, &rows); err != nil {
		// A corrupt entry is treated as a miss and overwritten on the next Set.
		c.logger.Warn("discarding unreadable cache entry", "period", period, "key", key, "error", err)
		return nil, nil
	}
	return rows, nil
}

func (c *LeaderboardCache) Set(ctx context.Context, period models.PeriodType, key string, rows []models.RankingSnapshot) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal leaderboard: %w", err)
	}
	if err := c.client.Set(ctx, leaderboardKey(period, key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("caching leaderboard: %w", err)
	}
	return nil
}
