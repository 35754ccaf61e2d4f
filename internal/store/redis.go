package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a shared redis instance, for deployments running
// more than one portal process. Window counters use a single INCR so
// concurrent processes count each request exactly once.
type Redis struct {
	cli       *redis.Client
	keyPrefix string
}

// NewRedis wraps an existing redis client. All keys are namespaced under
// keyPrefix to keep the store out of other tenants' keyspace.
func NewRedis(cli *redis.Client, keyPrefix string) *Redis {
	return &Redis{cli: cli, keyPrefix: keyPrefix}
}

func (r *Redis) key(key string) string {
	return r.keyPrefix + ":" + key
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.cli.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.cli.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.cli.Del(ctx, r.key(key)).Err()
}

func (r *Redis) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	now := time.Now()
	namespaced := r.key(key)

	pipe := r.cli.TxPipeline()
	incr := pipe.Incr(ctx, namespaced)
	pttl := pipe.PTTL(ctx, namespaced)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, err
	}

	count := incr.Val()
	remaining := pttl.Val()

	// First increment of a window, or a counter left without expiry: the
	// window starts now.
	if count == 1 || remaining < 0 {
		if err := r.cli.PExpire(ctx, namespaced, window).Err(); err != nil {
			return 0, time.Time{}, err
		}
		return count, now.Add(window), nil
	}

	return count, now.Add(remaining), nil
}

// Clear flushes the current database. Test-only: production code never calls it.
func (r *Redis) Clear(ctx context.Context) error {
	return r.cli.FlushDB(ctx).Err()
}

// Ping verifies connectivity, for health checks.
func (r *Redis) Ping(ctx context.Context) error {
	return r.cli.Ping(ctx).Err()
}
