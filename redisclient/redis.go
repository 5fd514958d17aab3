// Package redisclient wraps Redis as the gateway's KV store adapter: opaque
// session blobs, atomic counters with TTL, and once-only alert flags. Every
// operation is a single atomic round-trip per spec §5 — no multi-key
// transactions are needed.
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/mtgscribe/gateway/config"
	"github.com/redis/go-redis/v9"
)

// Store is the KV store contract the rest of the gateway depends on. It is
// satisfied by *Client (real Redis) and *MemoryStore (tests).
type Store interface {
	// Incr atomically increments key and returns the new value. If this is
	// the key's first increment, ttl is attached so the counter expires.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// SetNX sets key=value with ttl only if key does not already exist.
	// Returns true if this call created the key.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Set unconditionally sets key=value with ttl (ttl<=0 means no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value and whether the key existed.
	Get(ctx context.Context, key string) (string, bool, error)
	// GetDel atomically reads and deletes key.
	GetDel(ctx context.Context, key string) (string, bool, error)
	// Del deletes key if present.
	Del(ctx context.Context, key string) error
	// TTL returns the remaining time-to-live for key.
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Client adapts *redis.Client to Store.
type Client struct {
	c *redis.Client
}

// New creates a Redis client from the provided config. Returns an error
// if the Redis URL cannot be parsed.
func New(cfg *config.Config) (*Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	r := redis.NewClient(opt)
	return &Client{c: r}, nil
}

func (r *Client) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.c.Ping(ctx).Err()
}

func (r *Client) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := r.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// Only arm TTL when the key has none — ExpireNX (Redis 7+) keeps existing
	// windows from being extended by every subsequent request.
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.c.SetNX(ctx, key, value, ttl).Result()
}

func (r *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.c.Set(ctx, key, value, ttl).Err()
}

func (r *Client) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.c.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Client) GetDel(ctx context.Context, key string) (string, bool, error) {
	v, err := r.c.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Client) Del(ctx context.Context, key string) error {
	return r.c.Del(ctx, key).Err()
}

func (r *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.c.TTL(ctx, key).Result()
}
