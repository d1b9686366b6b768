package health

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// RedisChecker checks that the frame stream's Redis server accepts
// commands.
type RedisChecker struct {
	client *redis.Client
	stream string
	length atomic.Int64
}

// NewRedisChecker creates a checker for client that also reports the
// length of stream.
func NewRedisChecker(client *redis.Client, stream string) *RedisChecker {
	return &RedisChecker{
		client: client,
		stream: stream,
	}
}

// Name returns the checker name.
func (r *RedisChecker) Name() string {
	return "redis"
}

// Check pings the server and reads the stream length.
func (r *RedisChecker) Check(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	n, err := r.client.XLen(ctx, r.stream).Result()
	if err != nil {
		return fmt.Errorf("failed to read stream length: %w", err)
	}
	r.length.Store(n)
	return nil
}

// Details returns the stream name and its length at the last check.
func (r *RedisChecker) Details() map[string]interface{} {
	return map[string]interface{}{
		"stream":        r.stream,
		"stream_length": r.length.Load(),
	}
}
