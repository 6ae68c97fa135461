package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crypto-assistant/internal/cache"
	apperrors "github.com/crypto-assistant/internal/errors"
	"github.com/crypto-assistant/internal/job"
	"github.com/crypto-assistant/internal/models"
	"github.com/crypto-assistant/internal/service"
)

// Mock services for testing
type mockMarketService struct {
	topFunc     func(ctx context.Context, count int) ([]models.CoinSnapshot, bool, error)
	refreshFunc func(ctx context.Context) (*job.RefreshResult, error)
	lastCount   int
}

func (m *mockMarketService) TopCoins(ctx context.Context, count int) ([]models.CoinSnapshot, bool, error) {
	m.lastCount = count
	if m.topFunc != nil {
		return m.topFunc(ctx, count)
	}
	return []models.CoinSnapshot{{CoinID: "bitcoin"}}, false, nil
}

func (m *mockMarketService) AllCoins(context.Context) ([]models.CoinListing, bool, error) {
	return []models.CoinListing{}, false, nil
}

func (m *mockMarketService) Coin(_ context.Context, coinID string) (*models.CoinSnapshot, bool, error) {
	return nil, false, apperrors.NewNotFoundError("cryptocurrency", coinID)
}

func (m *mockMarketService) History(_ context.Context, coinID string, _ int) (*models.HistoricalSeries, bool, error) {
	return nil, false, apperrors.NewNotFoundError("historical data", coinID)
}

func (m *mockMarketService) Ticks(context.Context, string, int) ([]models.PriceTick, error) {
	return []models.PriceTick{}, nil
}

func (m *mockMarketService) Refresh(ctx context.Context) (*job.RefreshResult, error) {
	if m.refreshFunc != nil {
		return m.refreshFunc(ctx)
	}
	return &job.RefreshResult{Fetched: 3, Updated: 3}, nil
}

func (m *mockMarketService) CacheStats() cache.Stats {
	return cache.Stats{}
}

type mockChatService struct {
	calls int
}

func (m *mockChatService) ProcessQuery(_ context.Context, query string) (*service.ChatResponse, error) {
	m.calls++
	return &service.ChatResponse{Answer: "echo: " + query, Answered: true}, nil
}

type mockHealth struct {
	err error
}

func (h mockHealth) Ping(context.Context) error { return h.err }

func testServerConfig() *ServerConfig {
	return &ServerConfig{Host: "127.0.0.1", Port: "0"}
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env Envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestServer_Health(t *testing.T) {
	t.Run("no database", func(t *testing.T) {
		s := NewServer(testServerConfig(), &mockMarketService{}, &mockChatService{}, nil)
		rec, env := doRequest(t, s.Handler(), http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, env.Success)
	})

	t.Run("database reachable", func(t *testing.T) {
		s := NewServer(testServerConfig(), &mockMarketService{}, &mockChatService{}, mockHealth{})
		rec, _ := doRequest(t, s.Handler(), http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"database":"ok"`)
	})

	t.Run("database down", func(t *testing.T) {
		s := NewServer(testServerConfig(), &mockMarketService{}, &mockChatService{}, mockHealth{err: errors.New("refused")})
		rec, env := doRequest(t, s.Handler(), http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.False(t, env.Success)
	})
}

func TestServer_RequestIDEchoed(t *testing.T) {
	s := NewServer(testServerConfig(), &mockMarketService{}, &mockChatService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
}

func TestServer_TopCountParsing(t *testing.T) {
	tests := []struct {
		path string
		want int
	}{
		{"/api/crypto/top", 0},
		{"/api/crypto/top/5", 5},
		{"/api/crypto/top/abc", 0},
		{"/api/crypto/top/-2", -2},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			market := &mockMarketService{}
			s := NewServer(testServerConfig(), market, &mockChatService{}, nil)
			rec, env := doRequest(t, s.Handler(), http.MethodGet, tt.path, "")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, market.lastCount)
			require.NotNil(t, env.Count)
			assert.Equal(t, 1, *env.Count)
			require.NotNil(t, env.Cached)
			assert.False(t, *env.Cached)
		})
	}
}

func TestServer_ServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", apperrors.NewValidationError("count", "bad"), http.StatusBadRequest, ErrCodeInvalidInput},
		{"not found", apperrors.NewNotFoundError("cryptocurrency data", ""), http.StatusNotFound, ErrCodeNotFound},
		{"upstream", apperrors.NewUpstreamError("coingecko", "markets", errors.New("timeout")), http.StatusInternalServerError, ErrCodeInternalError},
		{"persistence", apperrors.NewPersistenceError("upsert coins", errors.New("conn reset")), http.StatusInternalServerError, ErrCodeInternalError},
		{"plain", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			market := &mockMarketService{
				topFunc: func(context.Context, int) ([]models.CoinSnapshot, bool, error) {
					return nil, false, tt.err
				},
			}
			s := NewServer(testServerConfig(), market, &mockChatService{}, nil)
			rec, env := doRequest(t, s.Handler(), http.MethodGet, "/api/crypto/top", "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantCode, env.Code)
			if tt.wantStatus == http.StatusInternalServerError {
				assert.Equal(t, "An internal error occurred", env.Message)
			}
		})
	}
}

func TestServer_RefreshFailure(t *testing.T) {
	market := &mockMarketService{
		refreshFunc: func(context.Context) (*job.RefreshResult, error) {
			return nil, apperrors.NewUpstreamStatusError("coingecko", "markets", http.StatusTooManyRequests)
		},
	}
	s := NewServer(testServerConfig(), market, &mockChatService{}, nil)
	rec, env := doRequest(t, s.Handler(), http.MethodPost, "/api/crypto/refresh", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, env.Success)
}

func TestServer_ChatValidation(t *testing.T) {
	chat := &mockChatService{}
	s := NewServer(testServerConfig(), &mockMarketService{}, chat, nil)

	for _, body := range []string{`{}`, `{"query":"   "}`, `not json`} {
		rec, env := doRequest(t, s.Handler(), http.MethodPost, "/api/chat/query", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, ErrCodeInvalidInput, env.Code)
	}
	assert.Zero(t, chat.calls)

	_, env := doRequest(t, s.Handler(), http.MethodPost, "/api/chat/query", `{}`)
	assert.Equal(t, "Query is required", env.Message)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s := NewServer(testServerConfig(), &mockMarketService{}, &mockChatService{}, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/crypto/refresh", nil))
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	s := NewServer(testServerConfig(), &mockMarketService{}, &mockChatService{}, nil)

	for _, path := range []string{"/api/chat/query", "/api/crypto/refresh", "/api/crypto/bitcoin/history"} {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		req.Header.Set("Origin", "https://example.org")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code, path)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), path)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost, path)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Content-Type", path)
	}
}

func TestServer_CORSHeadersOnRoutedResponses(t *testing.T) {
	s := NewServer(testServerConfig(), &mockMarketService{}, &mockChatService{}, nil)

	rec, _ := doRequest(t, s.Handler(), http.MethodGet, "/api/crypto/all", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_RateLimit(t *testing.T) {
	cfg := testServerConfig()
	cfg.RequestsPerSecond = 1
	cfg.Burst = 2
	s := NewServer(cfg, &mockMarketService{}, &mockChatService{}, nil)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/crypto/all", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestServer_Metrics(t *testing.T) {
	s := NewServer(testServerConfig(), &mockMarketService{}, &mockChatService{}, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
