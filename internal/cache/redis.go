package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/queryloom/queryloom/internal/config"
	"github.com/queryloom/queryloom/internal/observability"
)

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(cfg config.CacheConfig, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return &RedisCache{client: client, ttl: cfg.TTL, logger: logger}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Get(ctx context.Context, sqlText string) (Entry, bool) {
	payload, err := c.client.Get(ctx, Key(sqlText)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("result cache read failed", "error", err)
			observability.IncrementCacheEvent("error")
			return Entry{}, false
		}
		observability.IncrementCacheEvent("miss")
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		c.logger.Warn("result cache entry is corrupt", "error", err)
		observability.IncrementCacheEvent("error")
		return Entry{}, false
	}
	observability.IncrementCacheEvent("hit")
	return entry, true
}

func (c *RedisCache) Put(ctx context.Context, sqlText string, entry Entry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("result cache entry not serializable", "error", err)
		observability.IncrementCacheEvent("error")
		return
	}
	if err := c.client.Set(ctx, Key(sqlText), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("result cache write failed", "error", err)
		observability.IncrementCacheEvent("error")
		return
	}
	observability.IncrementCacheEvent("store")
}
