package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crypto-assistant/internal/adapter"
	apperrors "github.com/crypto-assistant/internal/errors"
	"github.com/crypto-assistant/internal/logging"
	"github.com/crypto-assistant/internal/metrics"
	"github.com/crypto-assistant/internal/models"
	"github.com/crypto-assistant/internal/storage"
)

const (
	CycleFast = "fast"
	CycleSlow = "slow"
)

// CacheFlusher is the part of the read cache a refresh invalidates
type CacheFlusher interface {
	FlushAll()
}

// RefreshResult summarises one fast cycle
type RefreshResult struct {
	RunID     string        `json:"runId"`
	Fetched   int           `json:"fetched"`
	Updated   int           `json:"updated"`
	Failed    int           `json:"failed"`
	Archived  int           `json:"archived"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// HistoryResult summarises one slow cycle
type HistoryResult struct {
	RunID     string        `json:"runId"`
	Coins     int           `json:"coins"`
	Updated   int           `json:"updated"`
	Failed    int           `json:"failed"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// MarketRefresherConfig holds the refresh parameters
type MarketRefresherConfig struct {
	TopCoins       int
	HistoricalDays int
	CoinPause      time.Duration
}

// MarketRefresher pulls market data from the provider into the stores.
// Runs of the same cycle are serialized; a manual refresh issued while a
// scheduled one is in flight waits for it.
type MarketRefresher struct {
	provider adapter.MarketDataProvider
	coins    storage.CoinStore
	history  storage.HistoryStore
	ticks    storage.TickArchive
	cache    CacheFlusher
	cfg      MarketRefresherConfig
	logger   *logging.Logger

	now   func() time.Time
	pause func(ctx context.Context, d time.Duration) error

	fastMu sync.Mutex
	slowMu sync.Mutex
}

// NewMarketRefresher creates a refresher. ticks may be nil when no archive
// is configured.
func NewMarketRefresher(
	provider adapter.MarketDataProvider,
	coins storage.CoinStore,
	history storage.HistoryStore,
	ticks storage.TickArchive,
	cache CacheFlusher,
	cfg MarketRefresherConfig,
) *MarketRefresher {
	if ticks == nil {
		ticks = storage.DisabledTickArchive{}
	}
	if cfg.TopCoins <= 0 {
		cfg.TopCoins = 10
	}
	if cfg.HistoricalDays <= 0 {
		cfg.HistoricalDays = 30
	}
	return &MarketRefresher{
		provider: provider,
		coins:    coins,
		history:  history,
		ticks:    ticks,
		cache:    cache,
		cfg:      cfg,
		logger:   logging.WithComponent("market_refresher"),
		now:      func() time.Time { return time.Now().UTC() },
		pause:    sleepContext,
	}
}

// RunFastCycle fetches the top coins, upserts each one independently and
// flushes the cache once at least one coin was committed. A failing coin
// does not stop the others.
func (r *MarketRefresher) RunFastCycle(ctx context.Context) (result *RefreshResult, err error) {
	r.fastMu.Lock()
	defer r.fastMu.Unlock()

	result = &RefreshResult{RunID: uuid.NewString(), StartedAt: r.now()}
	logger := r.logger.WithFields(map[string]interface{}{
		"run_id": result.RunID,
		"cycle":  CycleFast,
	})
	defer func() {
		result.Duration = r.now().Sub(result.StartedAt)
		metrics.RecordRefresh(CycleFast, err, result.Duration)
		metrics.RecordRefreshItems(CycleFast, result.Updated, result.Failed)
	}()

	logger.WithField("limit", r.cfg.TopCoins).Info("Starting market refresh")

	coins, err := r.provider.FetchTopCoins(ctx, r.cfg.TopCoins)
	if err != nil {
		logger.WithError(err).Error("Failed to fetch top coins")
		return result, err
	}
	result.Fetched = len(coins)

	ticks := make([]models.PriceTick, 0, len(coins))
	var lastErr error
	for i := range coins {
		coin := &coins[i]
		coin.LastUpdated = r.now()

		if err := r.coins.Upsert(ctx, coin); err != nil {
			result.Failed++
			lastErr = err
			logger.WithField("coin_id", coin.CoinID).WithError(err).Warn("Failed to upsert coin")
			continue
		}
		result.Updated++
		ticks = append(ticks, models.PriceTick{
			CoinID:      coin.CoinID,
			Price:       coin.CurrentPrice,
			MarketCap:   coin.MarketCap,
			TotalVolume: coin.TotalVolume,
			RunID:       result.RunID,
			FetchedAt:   coin.LastUpdated,
		})
	}

	if result.Updated > 0 {
		r.flush()
	}

	if len(ticks) > 0 {
		if err := r.ticks.Append(ctx, ticks); err != nil {
			logger.WithError(err).Warn("Failed to archive price ticks")
		} else {
			result.Archived = len(ticks)
		}
	}

	if result.Updated == 0 && result.Failed > 0 {
		err = apperrors.NewPersistenceError("upsert coins", lastErr)
		logger.WithError(err).Error("Market refresh committed nothing")
		return result, err
	}

	logger.WithFields(map[string]interface{}{
		"fetched": result.Fetched,
		"updated": result.Updated,
		"failed":  result.Failed,
	}).Info("Market refresh completed")
	return result, nil
}

// RunSlowCycle replaces the historical series of every stored coin, one
// coin at a time with a pause in between. Per-coin failures are logged
// and skipped.
func (r *MarketRefresher) RunSlowCycle(ctx context.Context) (result *HistoryResult, err error) {
	r.slowMu.Lock()
	defer r.slowMu.Unlock()

	result = &HistoryResult{RunID: uuid.NewString(), StartedAt: r.now()}
	logger := r.logger.WithFields(map[string]interface{}{
		"run_id": result.RunID,
		"cycle":  CycleSlow,
	})
	defer func() {
		result.Duration = r.now().Sub(result.StartedAt)
		metrics.RecordRefresh(CycleSlow, err, result.Duration)
		metrics.RecordRefreshItems(CycleSlow, result.Updated, result.Failed)
	}()

	ids, err := r.coins.IDs(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to list tracked coins")
		return result, err
	}
	result.Coins = len(ids)
	logger.WithFields(map[string]interface{}{
		"coins": len(ids),
		"days":  r.cfg.HistoricalDays,
	}).Info("Starting historical refresh")

	for i, id := range ids {
		if i > 0 {
			if err = r.pause(ctx, r.cfg.CoinPause); err != nil {
				logger.WithField("completed", i).Warn("Historical refresh interrupted")
				return result, err
			}
		}

		if err := r.refreshSeries(ctx, id); err != nil {
			result.Failed++
			logger.WithField("coin_id", id).WithError(err).Warn("Failed to refresh historical series")
			continue
		}
		result.Updated++
	}

	if result.Updated > 0 {
		r.flush()
	}

	logger.WithFields(map[string]interface{}{
		"updated": result.Updated,
		"failed":  result.Failed,
	}).Info("Historical refresh completed")
	return result, nil
}

func (r *MarketRefresher) refreshSeries(ctx context.Context, coinID string) error {
	points, err := r.provider.FetchHistoricalSeries(ctx, coinID, r.cfg.HistoricalDays)
	if err != nil {
		return err
	}
	return r.history.Replace(ctx, &models.HistoricalSeries{
		CoinID:      coinID,
		Prices:      points,
		LastFetched: r.now(),
	})
}

func (r *MarketRefresher) flush() {
	if r.cache == nil {
		return
	}
	r.cache.FlushAll()
	metrics.RecordCacheFlush()
}

// FastTask adapts RunFastCycle to a scheduler task
func (r *MarketRefresher) FastTask(ctx context.Context) error {
	_, err := r.RunFastCycle(ctx)
	return err
}

// SlowTask adapts RunSlowCycle to a scheduler task
func (r *MarketRefresher) SlowTask(ctx context.Context) error {
	_, err := r.RunSlowCycle(ctx)
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("paused refresh cancelled: %w", ctx.Err())
	}
}
