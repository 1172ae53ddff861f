package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper is a fast path in front of the message-id unique constraint
type Deduper interface {
	// MarkNew claims key and reports whether it was unclaimed
	MarkNew(ctx context.Context, key string) (bool, error)
	// Forget releases a claim whose insert did not happen
	Forget(ctx context.Context, key string) error
}

const defaultDedupTTL = 30 * 24 * time.Hour

// RedisDeduper claims keys with SETNX and a TTL
type RedisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper. A zero ttl uses 30 days.
func NewRedisDeduper(client *redis.Client, prefix string, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &RedisDeduper{client: client, prefix: prefix, ttl: ttl}
}

// MarkNew implements Deduper
func (d *RedisDeduper) MarkNew(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim dedup key: %w", err)
	}
	return ok, nil
}

// Forget implements Deduper
func (d *RedisDeduper) Forget(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release dedup key: %w", err)
	}
	return nil
}

var _ Deduper = (*RedisDeduper)(nil)
