package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vidtube/accounts/internal/logger"
)

type Cache struct {
	client *redis.Client
	log    *logger.Logger
}

func New(ctx context.Context, addr string) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	log := logger.Default().WithComponent("cache")
	log.Info(ctx, "connected to redis", map[string]any{"addr": addr})
	return &Cache{client: client, log: log}, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		c.log.Debug(ctx, "cache miss", map[string]any{"cache_key": key})
		return "", false
	}
	if err != nil {
		c.log.Warn(ctx, "cache get failed", map[string]any{"cache_key": key, "error": err.Error()})
		return "", false
	}
	c.log.Debug(ctx, "cache hit", map[string]any{"cache_key": key})
	return val, true
}

func (c *Cache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.log.Warn(ctx, "cache set failed", map[string]any{"cache_key": key, "error": err.Error()})
		return err
	}
	return nil
}

// GetJSON decodes the cached value at key into dst. It reports false on a
// miss or an undecodable value.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(raw), dst) == nil
}

func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, string(raw), ttl)
}
