package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is prepended to every key stored by [Redis].
const DefaultPrefix = "travelgenie"

// Redis is a [Cache] backed by a Redis server. Redis failures are logged and
// treated as misses.
type Redis struct {
	client *redis.Client
	prefix string
}

var _ Cache = (*Redis)(nil)

// NewRedis wraps client. An empty prefix selects [DefaultPrefix].
//
// Example:
//
//	c := cache.NewRedis(redis.NewClient(&redis.Options{Addr: "localhost:6379"}), "")
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(k string) string {
	return r.prefix + ":" + k
}

// Get implements [Cache].
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("tool cache: redis get failed", "key", key, "err", err)
		}
		return nil, false
	}
	return data, true
}

// Set implements [Cache].
func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := r.client.Set(ctx, r.key(key), val, ttl).Err(); err != nil {
		slog.Warn("tool cache: redis set failed", "key", key, "err", err)
	}
}

// Ping checks connectivity. It backs the readiness probe.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
