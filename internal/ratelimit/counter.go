// Package ratelimit provides fixed window rate limiting backed by redis or memory.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter counts hits on a key within a fixed window. The window starts
// with the first hit on a key.
type Counter interface {
	// Incr increments the counter for key and returns the new count.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter is a Counter that is shared between processes through redis.
type RedisCounter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCounter(client redis.UniversalClient, prefix string) *RedisCounter {
	return &RedisCounter{
		client: client,
		prefix: prefix,
	}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := c.prefix + key

	count, err := c.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %q: %w", k, err)
	}

	if count == 1 {
		err = c.client.Expire(ctx, k, window).Err()
		if err != nil {
			return 0, fmt.Errorf("failed to set expiry of %q: %w", k, err)
		}
	}

	return count, nil
}

type memoryWindow struct {
	count     int64
	expiresAt time.Time
}

// MemoryCounter is a Counter local to the process. It is safe for concurrent use.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]memoryWindow

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		windows: make(map[string]memoryWindow),
		NowFunc: time.Now,
	}
}

func (c *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.NowFunc()

	w, ok := c.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		w = memoryWindow{expiresAt: now.Add(window)}
	}

	w.count++
	c.windows[key] = w

	return w.count, nil
}

// Prune removes all expired windows.
func (c *MemoryCounter) Prune() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.NowFunc()
	for k, w := range c.windows {
		if !now.Before(w.expiresAt) {
			delete(c.windows, k)
		}
	}
}

// Len returns the number of tracked windows.
func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}
