// Package revision provides the monotonic per-backend revision counter
// reported by revisioned backends.
package revision

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter keeps revisions in Redis so that every server process of a
// backend reports the same sequence.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

// NewRedisCounter connects to Redis and checks the connection.
func NewRedisCounter(redisURL string) (*RedisCounter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCounterWithClient(client), nil
}

// NewRedisCounterWithClient creates a counter from an existing Redis client
func NewRedisCounterWithClient(client *redis.Client) *RedisCounter {
	return &RedisCounter{
		client: client,
		prefix: "revision:",
	}
}

func (c *RedisCounter) key(backend string) string {
	return c.prefix + backend
}

// Current returns the last revision handed out, or 0.
func (c *RedisCounter) Current(ctx context.Context, backend string) (int64, error) {
	n, err := c.client.Get(ctx, c.key(backend)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read revision: %w", err)
	}
	return n, nil
}

// Next advances the revision and returns the new value.
func (c *RedisCounter) Next(ctx context.Context, backend string) (int64, error) {
	n, err := c.client.Incr(ctx, c.key(backend)).Result()
	if err != nil {
		return 0, fmt.Errorf("advance revision: %w", err)
	}
	return n, nil
}

// Ping checks if Redis is reachable
func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCounter) Close() error {
	return c.client.Close()
}
