package shared

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimitCounter implements httprate.LimitCounter on top of Redis so that
// limits are shared between API replicas.
type RedisLimitCounter struct {
	client       redis.UniversalClient
	prefix       string
	windowLength time.Duration
	timeout      time.Duration
}

// NewRedisLimitCounter constructs a counter storing keys under prefix.
func NewRedisLimitCounter(client redis.UniversalClient, prefix string) *RedisLimitCounter {
	if prefix == "" {
		prefix = "httprate"
	}
	return &RedisLimitCounter{client: client, prefix: prefix, windowLength: time.Minute, timeout: time.Second}
}

// Config receives the limiter settings.
func (c *RedisLimitCounter) Config(_ int, windowLength time.Duration) {
	c.windowLength = windowLength
}

// Increment bumps the counter for key in the current window.
func (c *RedisLimitCounter) Increment(key string, currentWindow time.Time) error {
	return c.IncrementBy(key, currentWindow, 1)
}

// IncrementBy bumps the counter by amount.
func (c *RedisLimitCounter) IncrementBy(key string, currentWindow time.Time, amount int) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	k := c.windowKey(key, currentWindow)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.IncrBy(ctx, k, int64(amount))
		pipe.Expire(ctx, k, 3*c.windowLength)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ratelimit: increment: %w", err)
	}
	return nil
}

// Get returns the counts of the current and previous windows.
func (c *RedisLimitCounter) Get(key string, currentWindow, previousWindow time.Time) (int, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	values, err := c.client.MGet(ctx, c.windowKey(key, currentWindow), c.windowKey(key, previousWindow)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("ratelimit: get: %w", err)
	}
	return parseCount(values[0]), parseCount(values[1]), nil
}

func (c *RedisLimitCounter) windowKey(key string, window time.Time) string {
	return fmt.Sprintf("%s:%s:%d", c.prefix, key, window.Unix())
}

func parseCount(v any) int {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
