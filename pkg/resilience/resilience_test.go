package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := New(Config{MaxFailures: 2, Timeout: 50 * time.Millisecond, HalfOpenMax: 1})
	failing := func(context.Context) error { return errors.New("osv unreachable") }

	assert.Error(t, cb.Execute(context.Background(), failing))
	assert.Equal(t, StateClosed, cb.State())
	assert.Error(t, cb.Execute(context.Background(), failing))
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerHalfOpenRecovers(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: 10 * time.Millisecond, HalfOpenMax: 1})
	require.Error(t, cb.Execute(context.Background(), func(context.Context) error { return errors.New("fail") }))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(15 * time.Millisecond)

	require.NoError(t, cb.Execute(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestRetrySucceedsEventually(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}, nil,
		func(context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("transient")
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryRespectsShouldRetry(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func(error) bool { return false },
		func(context.Context) error {
			attempts++
			return errors.New("fatal")
		})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, RetryConfig{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}, nil,
		func(context.Context) error { return errors.New("x") })
	assert.Error(t, err)
}

func TestExecuteWithRetrySucceedsEventually(t *testing.T) {
	cb := New(DefaultConfig())
	attempts := 0
	err := cb.ExecuteWithRetry(context.Background(), RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}, nil,
		func(context.Context) error {
			attempts++
			if attempts < 2 {
				return errors.New("transient")
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, StateClosed, cb.State())
}

func TestExecuteWithRetryTripsBreakerAndAbortsRemainingAttempts(t *testing.T) {
	cb := New(Config{MaxFailures: 2, Timeout: time.Second, HalfOpenMax: 1})
	attempts := 0
	err := cb.ExecuteWithRetry(context.Background(), RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}, nil,
		func(context.Context) error {
			attempts++
			return errors.New("osv unreachable")
		})
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, 2, attempts, "the breaker should trip and stop retrying once MaxFailures is reached, not exhaust all 5 configured attempts")
}
