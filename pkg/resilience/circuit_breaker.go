// Package resilience wraps OMG's outbound HTTP collaborators (OSV
// vulnerability lookups, Rekor transparency-log queries) with circuit
// breaking and retry-with-backoff so a flaky upstream degrades to
// cached/stale data instead of cascading into the calling command. The
// license event queue's telemetry flush deliberately does not use this
// package: its failure mode is skip-and-requeue rather than retry, so a
// slow telemetry endpoint never blocks a foreground command.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config configures a CircuitBreaker.
type Config struct {
	MaxFailures   int
	Timeout       time.Duration
	HalfOpenMax   int
	OnStateChange func(from, to State)
}

// DefaultConfig matches the timeouts §5 assigns to OSV/SLSA/license HTTP
// clients (5-15s per request).
func DefaultConfig() Config {
	return Config{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		HalfOpenMax: 3,
	}
}

// CircuitBreaker implements the standard closed/open/half-open pattern around
// a single external collaborator (one instance per upstream: license issuer,
// OSV, Rekor).
type CircuitBreaker struct {
	mu           sync.RWMutex
	config       Config
	state        State
	failures     int
	successes    int
	halfOpenReqs int
	lastFailure  time.Time
}

// New creates a CircuitBreaker guarding a single upstream.
func New(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{config: cfg, state: StateClosed}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Execute runs fn once under circuit-breaker protection. Context
// cancellation is propagated to the caller; fn is responsible for honoring
// ctx itself.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.afterRequest(err == nil)
	return err
}

// ExecuteWithRetry runs fn under circuit-breaker protection, retrying with
// retryCfg's exponential backoff between attempts. Unlike calling Retry
// around Execute, each attempt reports its own success/failure to the
// breaker as it happens, so a run of failures can trip the breaker open
// mid-retry and abort the remaining attempts with ErrCircuitOpen instead of
// burning the full backoff schedule against a collaborator that has already
// gone down (§7: "retry with backoff for vulnerability/SLSA ... skip and
// continue" once the upstream is known bad).
func (cb *CircuitBreaker) ExecuteWithRetry(ctx context.Context, retryCfg RetryConfig, shouldRetry func(error) bool, fn func(context.Context) error) error {
	var lastErr error
	delay := retryCfg.InitialDelay

	for attempt := 0; attempt < retryCfg.MaxAttempts; attempt++ {
		if err := cb.beforeRequest(); err != nil {
			return err
		}

		err := fn(ctx)
		cb.afterRequest(err == nil)
		if err == nil {
			return nil
		}
		lastErr = err

		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}

		if attempt < retryCfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(addJitter(delay, retryCfg.Jitter)):
			}
			delay = nextDelay(delay, retryCfg)
		}
	}
	return lastErr
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) > cb.config.Timeout {
			cb.setState(StateHalfOpen)
			cb.halfOpenReqs = 1
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenReqs >= cb.config.HalfOpenMax {
			return ErrTooManyRequests
		}
		cb.halfOpenReqs++
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.onSuccess()
	} else {
		cb.onFailure()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.HalfOpenMax {
			cb.setState(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.lastFailure = time.Now()

	switch cb.state {
	case StateHalfOpen:
		cb.setState(StateOpen)
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			cb.setState(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) setState(newState State) {
	if cb.state == newState {
		return
	}
	old := cb.state
	cb.state = newState
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenReqs = 0

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(old, newState)
	}
}
