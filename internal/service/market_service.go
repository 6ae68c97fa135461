package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/crypto-assistant/internal/cache"
	apperrors "github.com/crypto-assistant/internal/errors"
	"github.com/crypto-assistant/internal/job"
	"github.com/crypto-assistant/internal/logging"
	"github.com/crypto-assistant/internal/metrics"
	"github.com/crypto-assistant/internal/models"
	"github.com/crypto-assistant/internal/storage"
)

const (
	DefaultTopCount = 10
	MaxTopCount     = 100

	DefaultTickHours = 24
	MaxTickHours     = 24 * 180
)

// ReadCache is the cache the read paths memoize into
type ReadCache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
	Stats() cache.Stats
}

// Refresher runs an on-demand market refresh
type Refresher interface {
	RunFastCycle(ctx context.Context) (*job.RefreshResult, error)
}

// MarketService serves market reads cache-first, falling back to the
// stores and populating the cache on a miss
type MarketService struct {
	coins     storage.CoinStore
	history   storage.HistoryStore
	ticks     storage.TickArchive
	cache     ReadCache
	refresher Refresher

	historyDays int
	now         func() time.Time
	logger      *logging.Logger
}

// NewMarketService creates a market service. historyDays is the default
// window for history reads.
func NewMarketService(
	coins storage.CoinStore,
	history storage.HistoryStore,
	ticks storage.TickArchive,
	readCache ReadCache,
	refresher Refresher,
	historyDays int,
) *MarketService {
	if ticks == nil {
		ticks = storage.DisabledTickArchive{}
	}
	if historyDays <= 0 {
		historyDays = 30
	}
	return &MarketService{
		coins:       coins,
		history:     history,
		ticks:       ticks,
		cache:       readCache,
		refresher:   refresher,
		historyDays: historyDays,
		now:         time.Now,
		logger:      logging.WithComponent("market_service"),
	}
}

// NormalizeTopCount applies the default and the upper bound to a
// requested top-N size
func NormalizeTopCount(count int) int {
	if count <= 0 {
		return DefaultTopCount
	}
	if count > MaxTopCount {
		return MaxTopCount
	}
	return count
}

func (s *MarketService) lookup(key string) (interface{}, bool) {
	v, ok := s.cache.Get(key)
	metrics.RecordCacheLookup(ok)
	return v, ok
}

// TopCoins returns up to count snapshots ordered by rank. The bool
// reports a cache hit. An empty store is a not-found error.
func (s *MarketService) TopCoins(ctx context.Context, count int) ([]models.CoinSnapshot, bool, error) {
	count = NormalizeTopCount(count)
	key := cache.TopCoinsKey(count)

	if v, ok := s.lookup(key); ok {
		if coins, ok := v.([]models.CoinSnapshot); ok {
			return coins, true, nil
		}
	}

	coins, err := s.coins.FindTop(ctx, count)
	if err != nil {
		return nil, false, err
	}
	if len(coins) == 0 {
		return nil, false, apperrors.NewNotFoundError("cryptocurrency data", "")
	}

	s.cache.Set(key, coins)
	return coins, false, nil
}

// AllCoins returns the listing projection of every stored coin
func (s *MarketService) AllCoins(ctx context.Context) ([]models.CoinListing, bool, error) {
	if v, ok := s.lookup(cache.AllCoinsKey); ok {
		if listing, ok := v.([]models.CoinListing); ok {
			return listing, true, nil
		}
	}

	listing, err := s.coins.ListProjection(ctx)
	if err != nil {
		return nil, false, err
	}
	if listing == nil {
		listing = []models.CoinListing{}
	}

	s.cache.Set(cache.AllCoinsKey, listing)
	return listing, false, nil
}

// Coin returns one snapshot by id
func (s *MarketService) Coin(ctx context.Context, coinID string) (*models.CoinSnapshot, bool, error) {
	coinID = strings.TrimSpace(coinID)
	if coinID == "" {
		return nil, false, apperrors.NewValidationError("coinId", "coin id is required")
	}

	key := cache.CoinDetailKey(coinID)
	if v, ok := s.lookup(key); ok {
		if coin, ok := v.(*models.CoinSnapshot); ok {
			return coin, true, nil
		}
	}

	coin, err := s.coins.FindByID(ctx, coinID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, apperrors.NewNotFoundError("cryptocurrency", coinID)
		}
		return nil, false, err
	}

	s.cache.Set(key, coin)
	return coin, false, nil
}

// History returns the last days points of a coin's series. days <= 0
// uses the configured default window.
func (s *MarketService) History(ctx context.Context, coinID string, days int) (*models.HistoricalSeries, bool, error) {
	coinID = strings.TrimSpace(coinID)
	if coinID == "" {
		return nil, false, apperrors.NewValidationError("coinId", "coin id is required")
	}
	if days <= 0 {
		days = s.historyDays
	}

	key := cache.HistoryKey(coinID, days)
	if v, ok := s.lookup(key); ok {
		if series, ok := v.(*models.HistoricalSeries); ok {
			return series, true, nil
		}
	}

	series, err := s.history.FindByID(ctx, coinID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, apperrors.NewNotFoundError("historical data", coinID)
		}
		return nil, false, err
	}

	recent := series.Last(days)
	s.cache.Set(key, recent)
	return recent, false, nil
}

// Ticks returns archived refresh observations of a coin from the last
// hours. Ticks are not cached.
func (s *MarketService) Ticks(ctx context.Context, coinID string, hours int) ([]models.PriceTick, error) {
	coinID = strings.TrimSpace(coinID)
	if coinID == "" {
		return nil, apperrors.NewValidationError("coinId", "coin id is required")
	}
	if hours <= 0 {
		hours = DefaultTickHours
	}
	if hours > MaxTickHours {
		hours = MaxTickHours
	}

	ticks, err := s.ticks.Since(ctx, coinID, s.now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		if errors.Is(err, storage.ErrArchiveDisabled) {
			return nil, apperrors.NewNotFoundError("price tick archive", "")
		}
		return nil, err
	}
	if ticks == nil {
		ticks = []models.PriceTick{}
	}
	return ticks, nil
}

// Refresh runs one market refresh synchronously
func (s *MarketService) Refresh(ctx context.Context) (*job.RefreshResult, error) {
	if s.refresher == nil {
		return nil, apperrors.NewInternalError("refresh is not configured", nil)
	}
	result, err := s.refresher.RunFastCycle(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Manual refresh failed")
		return nil, err
	}
	return result, nil
}

// CacheStats reports read cache activity
func (s *MarketService) CacheStats() cache.Stats {
	return s.cache.Stats()
}
