package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/crypto-assistant/internal/circuitbreaker"
	apperrors "github.com/crypto-assistant/internal/errors"
	"github.com/crypto-assistant/internal/logging"
	"github.com/crypto-assistant/internal/metrics"
	"github.com/crypto-assistant/internal/models"
)

const (
	providerName = "coingecko"

	// DefaultBaseURL is the public CoinGecko v3 API
	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	// maxPerPage is the provider's page size ceiling for /coins/markets
	maxPerPage = 250

	apiKeyHeader = "x-cg-demo-api-key"
)

// CoinGeckoConfig configures the CoinGecko client
type CoinGeckoConfig struct {
	BaseURL             string
	APIKey              string
	Timeout             time.Duration
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration
}

// CoinGeckoClient talks to the CoinGecko REST API. Every call is a single
// HTTP request bounded by the configured timeout.
type CoinGeckoClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *logging.Logger
}

var _ MarketDataProvider = (*CoinGeckoClient)(nil)

// NewCoinGeckoClient creates a client from cfg, filling defaults
func NewCoinGeckoClient(cfg CoinGeckoConfig) *CoinGeckoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &CoinGeckoClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
			Name:         providerName,
			MaxFailures:  cfg.BreakerMaxFailures,
			ResetTimeout: cfg.BreakerResetTimeout,
			OnStateChange: func(name string, _, to circuitbreaker.State) {
				metrics.SetBreakerOpen(name, to != circuitbreaker.StateClosed)
			},
		}),
		logger: logging.WithComponent(providerName),
	}
}

// BreakerStats exposes the guard's counters for diagnostics
func (c *CoinGeckoClient) BreakerStats() circuitbreaker.Stats {
	return c.breaker.GetStats()
}

// FetchTopCoins calls /coins/markets ordered by market cap
func (c *CoinGeckoClient) FetchTopCoins(ctx context.Context, limit int) ([]models.CoinSnapshot, error) {
	if limit <= 0 {
		return nil, apperrors.NewValidationError("limit", "must be a positive integer")
	}
	if limit > maxPerPage {
		limit = maxPerPage
	}

	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("order", "market_cap_desc")
	params.Set("per_page", strconv.Itoa(limit))
	params.Set("page", "1")
	params.Set("sparkline", "false")
	params.Set("price_change_percentage", "24h")

	body, err := c.get(ctx, "markets", "/coins/markets", params)
	if err != nil {
		return nil, err
	}

	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, apperrors.NewUpstreamError(providerName, "markets", fmt.Errorf("expected a JSON array"))
	}

	coins := make([]models.CoinSnapshot, 0, len(root.Array()))
	root.ForEach(func(_, item gjson.Result) bool {
		coin, ok := parseMarketCoin(item)
		if !ok {
			c.logger.WithField("record", truncate(item.Raw, 120)).Warn("Skipping market record without id")
			return true
		}
		coins = append(coins, coin)
		return true
	})

	c.logger.WithField("count", len(coins)).Debug("Fetched top coins")
	return coins, nil
}

// FetchHistoricalSeries calls /coins/{id}/market_chart with a daily interval
// and converts its [timestamp_ms, price] pairs into price points
func (c *CoinGeckoClient) FetchHistoricalSeries(ctx context.Context, coinID string, days int) ([]models.PricePoint, error) {
	if strings.TrimSpace(coinID) == "" {
		return nil, apperrors.NewValidationError("coinId", "is required")
	}
	if days <= 0 {
		return nil, apperrors.NewValidationError("days", "must be a positive integer")
	}

	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("days", strconv.Itoa(days))
	params.Set("interval", "daily")

	body, err := c.get(ctx, "market_chart", "/coins/"+url.PathEscape(coinID)+"/market_chart", params)
	if err != nil {
		return nil, err
	}

	pricesField := gjson.GetBytes(body, "prices")
	if !pricesField.IsArray() {
		return nil, apperrors.NewUpstreamError(providerName, "market_chart", fmt.Errorf("missing prices array for %s", coinID))
	}

	return parsePricePairs(pricesField), nil
}

// FetchCoinDetail calls /coins/{id} without tickers, community or developer data
func (c *CoinGeckoClient) FetchCoinDetail(ctx context.Context, coinID string) (*models.CoinDetail, error) {
	if strings.TrimSpace(coinID) == "" {
		return nil, apperrors.NewValidationError("coinId", "is required")
	}

	params := url.Values{}
	params.Set("localization", "false")
	params.Set("tickers", "false")
	params.Set("market_data", "true")
	params.Set("community_data", "false")
	params.Set("developer_data", "false")

	body, err := c.get(ctx, "coin_detail", "/coins/"+url.PathEscape(coinID), params)
	if err != nil {
		return nil, err
	}

	doc := gjson.ParseBytes(body)
	if !doc.Get("id").Exists() {
		return nil, apperrors.NewUpstreamError(providerName, "coin_detail", fmt.Errorf("response for %s has no id", coinID))
	}

	detail := &models.CoinDetail{
		ID:               doc.Get("id").String(),
		Symbol:           doc.Get("symbol").String(),
		Name:             doc.Get("name").String(),
		HashingAlgorithm: doc.Get("hashing_algorithm").String(),
		Homepage:         doc.Get("links.homepage.0").String(),
		GenesisDate:      doc.Get("genesis_date").String(),
		MarketCapRank:    int(doc.Get("market_cap_rank").Int()),
		CurrentPriceUSD:  doc.Get("market_data.current_price.usd").Float(),
		MarketCapUSD:     doc.Get("market_data.market_cap.usd").Float(),
		TotalVolumeUSD:   doc.Get("market_data.total_volume.usd").Float(),
		LastUpdated:      parseTime(doc.Get("last_updated")),
	}
	for _, cat := range doc.Get("categories").Array() {
		if s := cat.String(); s != "" {
			detail.Categories = append(detail.Categories, s)
		}
	}
	return detail, nil
}

// get performs one GET through the breaker and returns the body of a 2xx response
func (c *CoinGeckoClient) get(ctx context.Context, operation, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	start := time.Now()
	var body []byte
	err := c.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return apperrors.NewUpstreamError(providerName, operation, err)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set(apiKeyHeader, c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return apperrors.NewUpstreamError(providerName, operation, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperrors.NewUpstreamError(providerName, operation, fmt.Errorf("read body: %w", err))
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			c.logger.WithFields(map[string]interface{}{
				"operation": operation,
				"status":    resp.StatusCode,
				"body":      truncate(string(data), 200),
			}).Warn("Provider returned non-2xx status")
			return apperrors.NewUpstreamStatusError(providerName, operation, resp.StatusCode)
		}
		if !gjson.ValidBytes(data) {
			return apperrors.NewUpstreamError(providerName, operation, fmt.Errorf("invalid JSON body"))
		}
		body = data
		return nil
	})
	metrics.RecordUpstream(operation, err, time.Since(start))

	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return nil, apperrors.NewUpstreamError(providerName, operation, err)
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func parseMarketCoin(item gjson.Result) (models.CoinSnapshot, bool) {
	id := item.Get("id").String()
	if id == "" {
		return models.CoinSnapshot{}, false
	}

	coin := models.CoinSnapshot{
		CoinID:                   id,
		Symbol:                   item.Get("symbol").String(),
		Name:                     item.Get("name").String(),
		Image:                    item.Get("image").String(),
		CurrentPrice:             item.Get("current_price").Float(),
		MarketCap:                item.Get("market_cap").Float(),
		MarketCapRank:            int(item.Get("market_cap_rank").Int()),
		TotalVolume:              item.Get("total_volume").Float(),
		High24h:                  item.Get("high_24h").Float(),
		Low24h:                   item.Get("low_24h").Float(),
		PriceChange24h:           item.Get("price_change_24h").Float(),
		PriceChangePercentage24h: item.Get("price_change_percentage_24h").Float(),
		CirculatingSupply:        item.Get("circulating_supply").Float(),
		ATH:                      item.Get("ath").Float(),
		LastUpdated:              parseTime(item.Get("last_updated")),
	}
	if ts := item.Get("total_supply"); ts.Exists() && ts.Type == gjson.Number {
		v := ts.Float()
		coin.TotalSupply = &v
	}
	if athDate := parseTime(item.Get("ath_date")); !athDate.IsZero() {
		coin.ATHDate = &athDate
	}
	return coin, true
}

// parsePricePairs keeps provider order and drops malformed pairs
func parsePricePairs(prices gjson.Result) []models.PricePoint {
	points := make([]models.PricePoint, 0, len(prices.Array()))
	prices.ForEach(func(_, pair gjson.Result) bool {
		values := pair.Array()
		if len(values) < 2 || values[0].Type != gjson.Number || values[1].Type != gjson.Number {
			return true
		}
		points = append(points, models.PricePoint{
			Date:  time.UnixMilli(values[0].Int()).UTC(),
			Price: values[1].Float(),
		})
		return true
	})
	return points
}

func parseTime(v gjson.Result) time.Time {
	if v.Type != gjson.String {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v.String())
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
