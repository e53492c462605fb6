package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpload = errors.New("upload failed")

func TestRetrySucceedsAfterFailures(t *testing.T) {
	var attempts, retried []int
	cfg := RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		OnRetry:      func(attempt int, _ error) { retried = append(retried, attempt) },
	}
	n, err := Retry(context.Background(), "bucket 7", cfg, func(attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return errUpload
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{1, 2, 3}, attempts)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetryExhausted(t *testing.T) {
	calls := 0
	n, err := Retry(context.Background(), "bucket 7", RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}, func(int) error {
		calls++
		return errUpload
	})
	assert.ErrorIs(t, err, errUpload)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, n)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("corrupt")
	calls := 0
	cfg := RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Retryable:    func(err error) bool { return !errors.Is(err, permanent) },
	}
	_, err := Retry(context.Background(), "bucket 7", cfg, func(int) error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryDelayIsCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, JitterFraction: 0.1}
	first := cfg.Delay(1)
	assert.InDelta(t, float64(100*time.Millisecond), float64(first), float64(10*time.Millisecond))
	assert.Equal(t, time.Second, cfg.Delay(10))
}

func TestRetryAbortsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, OnRetry: func(int, error) { cancel() }}
	n, err := Retry(ctx, "bucket 7", cfg, func(int) error { return errUpload })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("blob", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     20 * time.Millisecond,
		OnStateChange:    func(_ string, to State) { transitions = append(transitions, to) },
	})

	_ = cb.Execute(func() error { return errUpload })
	_ = cb.Execute(func() error { return errUpload })
	assert.Equal(t, StateOpen, cb.GetState())

	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreakerHalfOpenTrialFailureReopens(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	cb := NewCircuitBreaker("blob", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	cb.now = func() time.Time { return clock }

	_ = cb.Execute(func() error { return errUpload })
	require.Equal(t, StateOpen, cb.GetState())

	clock = clock.Add(time.Minute)
	err := cb.Execute(func() error { return errUpload })
	assert.ErrorIs(t, err, errUpload)
	assert.Equal(t, StateOpen, cb.GetState())

	// reopened at the trial call, so the full timeout applies again
	clock = clock.Add(30 * time.Second)
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)

	c := cb.Counts()
	assert.Equal(t, int64(2), c.Requests)
	assert.Equal(t, int64(2), c.Failures)
	assert.Equal(t, int64(1), c.Rejected)
}

func TestCircuitBreakerIgnoresNonFailures(t *testing.T) {
	notFound := errors.New("missing")
	cb := NewCircuitBreaker("blob", CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return err != nil && !errors.Is(err, notFound) },
	})
	_ = cb.Execute(func() error { return notFound })
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestFetchTimeout(t *testing.T) {
	_, err := Fetch(context.Background(), 10*time.Millisecond, "download", func(ctx context.Context) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got, err := Fetch(context.Background(), time.Second, "download", func(context.Context) ([]byte, error) {
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), got)
}
