package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache holds serialized projection and availability results.
// Mutations drop every key touching the affected resource/day, so reads
// are stale only for the invalidation latency, never across a write.
type RedisCache struct {
	client *redis.Client
}

func New(redisAddr string) (*RedisCache, error) {
	const op = "cache.New"

	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	const op = "cache.RedisCache.GetJSON"

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return true, nil
}

func (c *RedisCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	const op = "cache.RedisCache.SetJSON"

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// InvalidateResourceDay drops every cached read touching the resource
// and date. Projections are keyed per resource set, so the resource-wide
// pattern covers them.
func (c *RedisCache) InvalidateResourceDay(ctx context.Context, resourceID string, date time.Time) error {
	const op = "cache.RedisCache.InvalidateResourceDay"

	patterns := []string{
		fmt.Sprintf("avail:%s:%s:*", resourceID, date.Format("2006-01-02")),
		fmt.Sprintf("cal:*%s*", resourceID),
	}

	for _, pattern := range patterns {
		iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
