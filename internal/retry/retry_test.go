package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithExponentialBackoff_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(5), func(_ context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, calls)
	assert.NoError(t, result.LastError)
}

func TestWithExponentialBackoff_GivesUp(t *testing.T) {
	boom := errors.New("boom")
	result := WithExponentialBackoff(context.Background(), fastConfig(3), func(context.Context, int) error {
		return boom
	})

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.ErrorIs(t, result.LastError, boom)
}

func TestWithExponentialBackoff_NonRetryable(t *testing.T) {
	permanent := errors.New("bad password")
	cfg := fastConfig(5)
	cfg.ShouldRetry = func(err error) bool { return !errors.Is(err, permanent) }

	result := WithExponentialBackoff(context.Background(), cfg, func(context.Context, int) error {
		return permanent
	})
	assert.Equal(t, 1, result.Attempts)
	assert.False(t, result.Success)
}

func TestWithExponentialBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}

	done := make(chan *RetryResult, 1)
	go func() {
		done <- WithExponentialBackoff(ctx, cfg, func(context.Context, int) error {
			return errors.New("down")
		})
	}()
	cancel()

	select {
	case result := <-done:
		assert.False(t, result.Success)
		assert.Equal(t, 1, result.Attempts)
		assert.ErrorIs(t, result.LastError, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("backoff did not observe cancellation")
	}
}

func TestCalculateDelay(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, calculateDelay(cfg, 1))
	assert.Equal(t, 2*time.Second, calculateDelay(cfg, 2))
	assert.Equal(t, 4*time.Second, calculateDelay(cfg, 3))
	assert.Equal(t, 5*time.Second, calculateDelay(cfg, 4))
}

func TestDo_WrapsLastError(t *testing.T) {
	boom := errors.New("boom")
	err := Do(context.Background(), fastConfig(2), func(context.Context, int) error { return boom })
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "after 2 attempts")
}
