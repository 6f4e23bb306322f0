// Package ratelimit throttles OMG's shared outbound HTTP client (§5: "general
// HTTP client = shared, with connection pooling") so bursts of OSV/Rekor/
// license calls from a security-audit scan or batch daemon request don't
// overwhelm an upstream or get rate-limited themselves.
package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config configures a RateLimiter.
type Config struct {
	RequestsPerSecond float64
	Burst             int
	Window            time.Duration
}

// DefaultConfig is conservative enough for public, unauthenticated endpoints
// like OSV and Rekor's index.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 20,
		Burst:             40,
		Window:            time.Second,
	}
}

// RateLimiter wraps golang.org/x/time/rate with a per-second and a per-minute
// bucket, matching the bounded-concurrency guardrails in §5.
type RateLimiter struct {
	limiter   *rate.Limiter
	perMinute *rate.Limiter
	mu        sync.RWMutex
	config    Config
}

// New creates a RateLimiter.
func New(cfg Config) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
	}

	return &RateLimiter{
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		perMinute: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond*60), cfg.Burst*2),
		config:    cfg,
	}
}

// Allow reports whether a request may proceed right now without waiting.
func (r *RateLimiter) Allow() bool { return r.limiter.Allow() }

// AllowN reports whether n requests may proceed at time now.
func (r *RateLimiter) AllowN(now time.Time, n int) bool { return r.limiter.AllowN(now, n) }

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error { return r.limiter.Wait(ctx) }

// LimitExceeded reports whether the per-second bucket is currently exhausted.
func (r *RateLimiter) LimitExceeded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.limiter.Allow()
}

// PerMinuteLimitExceeded reports whether the per-minute bucket is exhausted.
func (r *RateLimiter) PerMinuteLimitExceeded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.perMinute.Allow()
}

// Reset replaces both buckets with fresh ones at the configured rate.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiter = rate.NewLimiter(rate.Limit(r.config.RequestsPerSecond), r.config.Burst)
	r.perMinute = rate.NewLimiter(rate.Limit(r.config.RequestsPerSecond*60), r.config.Burst*2)
}

// Client wraps an *http.Client with rate limiting applied to every request;
// this is the shared client §5 calls out for OSV/SLSA/license HTTP calls.
type Client struct {
	http    *http.Client
	limiter *RateLimiter
}

// NewClient builds a rate-limited HTTP client.
func NewClient(httpClient *http.Client, cfg Config) *Client {
	return &Client{http: httpClient, limiter: New(cfg)}
}

// Do waits for a token (bounded by the request's own context deadline) then
// issues the request.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// Allow reports whether the client has capacity without blocking.
func (c *Client) Allow() bool { return c.limiter.Allow() }
