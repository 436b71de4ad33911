package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/raaihank/snapvault/internal/logger"
	"go.uber.org/zap"
)

// RedisJobCache stores job status in Redis with a TTL
type RedisJobCache struct {
	client *redis.Client
	config Config
	logger *logger.Logger

	hits   atomic.Int64
	misses atomic.Int64
	writes atomic.Int64
}

// NewRedisJobCache connects to Redis and verifies the connection
func NewRedisJobCache(cfg Config, log *logger.Logger) (*RedisJobCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "snapvault"
	}

	c := &RedisJobCache{
		client: redis.NewClient(opts),
		config: cfg,
		logger: log.WithComponent("cache"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		c.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.logger.Info("Job cache initialized",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.Int("pool_size", opts.PoolSize),
		zap.Duration("ttl", cfg.TTL),
	)
	return c, nil
}

// Put stores the status, refreshing its TTL
func (c *RedisJobCache) Put(ctx context.Context, status JobStatus) error {
	if status.ID == "" {
		return errors.New("job id is required")
	}
	status.UpdatedAt = time.Now()

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal job status: %w", err)
	}
	if err := c.client.Set(ctx, c.key(status.ID), data, c.config.TTL).Err(); err != nil {
		return fmt.Errorf("failed to cache job status: %w", err)
	}
	c.writes.Add(1)
	return nil
}

// Get returns the cached status of a job
func (c *RedisJobCache) Get(ctx context.Context, id string) (JobStatus, bool, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return JobStatus{}, false, nil
	}
	if err != nil {
		return JobStatus{}, false, fmt.Errorf("job status lookup failed: %w", err)
	}

	var status JobStatus
	if err := json.Unmarshal(data, &status); err != nil {
		c.logger.Error("Corrupted job status entry, deleting", zap.String("job_id", id), zap.Error(err))
		c.client.Del(ctx, c.key(id))
		c.misses.Add(1)
		return JobStatus{}, false, nil
	}
	c.hits.Add(1)
	return status, true, nil
}

// GetStats returns cache statistics
func (c *RedisJobCache) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Writes: c.writes.Load(),
	}

	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+":job:*", 0).Iterator()
	for iter.Next(ctx) {
		stats.TotalKeys++
	}
	if err := iter.Err(); err != nil {
		return stats, fmt.Errorf("failed to scan job keys: %w", err)
	}
	return stats, nil
}

// Close closes the Redis connection
func (c *RedisJobCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *RedisJobCache) key(id string) string {
	return fmt.Sprintf("%s:job:%s", c.config.KeyPrefix, id)
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	creds := url[:at]
	colon := strings.LastIndex(creds, ":")
	scheme := strings.Index(creds, "://")
	if colon <= scheme+2 {
		return url
	}
	return creds[:colon+1] + "***" + url[at:]
}
