package adapter

import (
	"context"

	"github.com/crypto-assistant/internal/models"
)

// MarketDataProvider is the upstream market data source.
// Implementations must not retry internally; the next scheduled refresh is the retry.
type MarketDataProvider interface {
	// FetchTopCoins lists the top coins by market cap in USD
	FetchTopCoins(ctx context.Context, limit int) ([]models.CoinSnapshot, error)

	// FetchHistoricalSeries returns daily (date, price) points, oldest first
	FetchHistoricalSeries(ctx context.Context, coinID string, days int) ([]models.PricePoint, error)

	// FetchCoinDetail returns descriptive and market data for one coin
	FetchCoinDetail(ctx context.Context, coinID string) (*models.CoinDetail, error)
}
