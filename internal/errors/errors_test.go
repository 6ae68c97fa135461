package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewValidationError("days", "must be a positive integer"), http.StatusBadRequest},
		{"not found", NewNotFoundError("coin", "bitcoin"), http.StatusNotFound},
		{"upstream", NewUpstreamError("coingecko", "markets", context.DeadlineExceeded), http.StatusInternalServerError},
		{"persistence", NewPersistenceError("upsert coin", fmt.Errorf("conn closed")), http.StatusInternalServerError},
		{"plain error", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetHTTPStatusCode(tt.err))
		})
	}
}

func TestCategorize_FindsWrappedError(t *testing.T) {
	inner := NewNotFoundError("historical data", "solana")
	wrapped := fmt.Errorf("history lookup: %w", inner)

	assert.Same(t, inner, Categorize(wrapped))
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsValidation(wrapped))
	assert.Nil(t, Categorize(nil))
}

func TestUpstreamError_UnwrapsCause(t *testing.T) {
	err := NewUpstreamError("coingecko", "market_chart", context.DeadlineExceeded)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsUpstream(err))
	assert.True(t, IsRetryable(err))
	assert.False(t, IsUserError(err))
}

func TestNewUpstreamStatusError(t *testing.T) {
	err := NewUpstreamStatusError("coingecko", "markets", http.StatusTooManyRequests)

	assert.Equal(t, http.StatusTooManyRequests, err.Details["status"])
	assert.Contains(t, err.Error(), "unexpected status 429")
}

func TestNotFoundMessage(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: coin not found: dogecoin", NewNotFoundError("coin", "dogecoin").Error())
	assert.Equal(t, "NOT_FOUND: no coins available", NewNotFoundError("coins", "").Error())
}
