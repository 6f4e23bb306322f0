package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisTier is an optional persistent backing store for the security core's
// VulnerabilityCache (§3), so OSV lookups survive a daemon restart. It is
// only constructed when OMG_REDIS_ADDR is set (see internal/paths); callers
// fall back to the in-memory Cache alone otherwise.
type RedisTier struct {
	client *redis.Client
	prefix string
}

// NewRedisTier dials addr (no connection is established eagerly; go-redis
// connects lazily on first command).
func NewRedisTier(addr, password string, db int, prefix string) *RedisTier {
	return &RedisTier{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		prefix: prefix,
	}
}

// Ping verifies connectivity; used at startup to decide whether to keep the
// tier enabled or silently degrade to memory-only.
func (r *RedisTier) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Get reads a JSON-encoded value for key, reporting false on miss or error.
func (r *RedisTier) Get(ctx context.Context, key string, out interface{}) bool {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// Set writes a JSON-encoded value for key with the given TTL.
func (r *RedisTier) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+key, raw, ttl).Err()
}

// Delete removes key.
func (r *RedisTier) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// Close releases the underlying connection pool.
func (r *RedisTier) Close() error { return r.client.Close() }
