package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crypto-assistant/internal/cache"
	apperrors "github.com/crypto-assistant/internal/errors"
	"github.com/crypto-assistant/internal/models"
	"github.com/crypto-assistant/internal/storage/memory"
)

type fakeProvider struct {
	mu        sync.Mutex
	coins     []models.CoinSnapshot
	series    map[string][]models.PricePoint
	topErr    error
	seriesErr map[string]error
	calls     []string
}

func (p *fakeProvider) FetchTopCoins(_ context.Context, limit int) ([]models.CoinSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "top")
	if p.topErr != nil {
		return nil, p.topErr
	}
	out := make([]models.CoinSnapshot, len(p.coins))
	copy(out, p.coins)
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (p *fakeProvider) FetchHistoricalSeries(_ context.Context, coinID string, _ int) ([]models.PricePoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "history:"+coinID)
	if err := p.seriesErr[coinID]; err != nil {
		return nil, err
	}
	return append([]models.PricePoint(nil), p.series[coinID]...), nil
}

func (p *fakeProvider) FetchCoinDetail(context.Context, string) (*models.CoinDetail, error) {
	return nil, errors.New("not used")
}

// failingCoinStore runs fail before delegating each upsert
type failingCoinStore struct {
	*memory.CoinStore
	fail func(coin *models.CoinSnapshot) error
}

func (s *failingCoinStore) Upsert(ctx context.Context, coin *models.CoinSnapshot) error {
	if s.fail != nil {
		if err := s.fail(coin); err != nil {
			return err
		}
	}
	return s.CoinStore.Upsert(ctx, coin)
}

type fixture struct {
	provider  *fakeProvider
	coins     *memory.CoinStore
	upserts   *failingCoinStore
	history   *memory.HistoryStore
	ticks     *memory.TickArchive
	cache     *cache.MemoryCache
	refresher *MarketRefresher
	pauses    []time.Duration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		provider: &fakeProvider{series: map[string][]models.PricePoint{}, seriesErr: map[string]error{}},
		coins:    memory.NewCoinStore(),
		history:  memory.NewHistoryStore(),
		ticks:    memory.NewTickArchive(),
		cache:    cache.NewMemoryCache(time.Minute),
	}
	f.upserts = &failingCoinStore{CoinStore: f.coins}
	f.refresher = NewMarketRefresher(f.provider, f.upserts, f.history, f.ticks, f.cache, MarketRefresherConfig{
		TopCoins:       10,
		HistoricalDays: 30,
		CoinPause:      time.Second,
	})
	f.refresher.pause = func(ctx context.Context, d time.Duration) error {
		f.pauses = append(f.pauses, d)
		return ctx.Err()
	}
	return f
}

func coin(id string, rank int, price float64) models.CoinSnapshot {
	return models.CoinSnapshot{CoinID: id, Symbol: id[:3], Name: id, MarketCapRank: rank, CurrentPrice: price}
}

func TestRunFastCycle_UpsertIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provider.coins = []models.CoinSnapshot{coin("bitcoin", 1, 50000), coin("ethereum", 2, 3000)}
	first, err := f.refresher.RunFastCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Updated)

	f.provider.coins = []models.CoinSnapshot{coin("bitcoin", 1, 51000), coin("ethereum", 2, 3100)}
	second, err := f.refresher.RunFastCycle(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)

	assert.Equal(t, 2, f.coins.Len())
	btc, err := f.coins.FindByID(ctx, "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, 51000.0, btc.CurrentPrice)
	assert.False(t, btc.LastUpdated.IsZero())
}

func TestRunFastCycle_FlushesCacheAndArchivesTicks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cache.Set(cache.TopCoinsKey(10), "stale")

	f.provider.coins = []models.CoinSnapshot{coin("bitcoin", 1, 50000)}
	result, err := f.refresher.RunFastCycle(ctx)
	require.NoError(t, err)

	assert.False(t, f.cache.Has(cache.TopCoinsKey(10)))
	assert.Equal(t, 1, result.Archived)

	ticks, err := f.ticks.Since(ctx, "bitcoin", time.Time{})
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, result.RunID, ticks[0].RunID)
	assert.Equal(t, 50000.0, ticks[0].Price)
}

func TestRunFastCycle_IsolatesCoinFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.upserts.fail = func(c *models.CoinSnapshot) error {
		if c.CoinID == "ethereum" {
			return errors.New("constraint violation")
		}
		return nil
	}

	f.provider.coins = []models.CoinSnapshot{coin("bitcoin", 1, 1), coin("ethereum", 2, 2), coin("solana", 3, 3)}
	result, err := f.refresher.RunFastCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.Failed)
	ids, _ := f.coins.IDs(ctx)
	assert.Equal(t, []string{"bitcoin", "solana"}, ids)
}

func TestRunFastCycle_NothingCommittedKeepsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cache.Set(cache.AllCoinsKey, "kept")
	f.upserts.fail = func(*models.CoinSnapshot) error { return errors.New("db down") }

	f.provider.coins = []models.CoinSnapshot{coin("bitcoin", 1, 1)}
	_, err := f.refresher.RunFastCycle(ctx)

	require.Error(t, err)
	assert.True(t, apperrors.IsPersistence(err))
	assert.True(t, f.cache.Has(cache.AllCoinsKey))
}

func TestRunFastCycle_UpstreamFailure(t *testing.T) {
	f := newFixture(t)
	f.cache.Set(cache.AllCoinsKey, "kept")
	f.provider.topErr = apperrors.NewUpstreamStatusError("coingecko", "markets", 429)

	result, err := f.refresher.RunFastCycle(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsUpstream(err))
	assert.Zero(t, result.Updated)
	assert.True(t, f.cache.Has(cache.AllCoinsKey))
	assert.Equal(t, 0, f.coins.Len())
}

func TestRunSlowCycle_ReplacesWholeSeries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.coins.Upsert(ctx, &models.CoinSnapshot{CoinID: "bitcoin", MarketCapRank: 1}))
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	long := make([]models.PricePoint, 30)
	for i := range long {
		long[i] = models.PricePoint{Date: day.AddDate(0, 0, i), Price: float64(i)}
	}
	f.provider.series["bitcoin"] = long
	_, err := f.refresher.RunSlowCycle(ctx)
	require.NoError(t, err)

	f.provider.series["bitcoin"] = []models.PricePoint{{Date: day.AddDate(0, 0, 31), Price: 99}}
	result, err := f.refresher.RunSlowCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	series, err := f.history.FindByID(ctx, "bitcoin")
	require.NoError(t, err)
	require.Len(t, series.Prices, 1)
	assert.Equal(t, 99.0, series.Prices[0].Price)
}

func TestRunSlowCycle_PausesBetweenCoinsAndSkipsFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, id := range []string{"bitcoin", "ethereum", "solana"} {
		require.NoError(t, f.coins.Upsert(ctx, &models.CoinSnapshot{CoinID: id, MarketCapRank: i + 1}))
		f.provider.series[id] = []models.PricePoint{{Date: time.Now(), Price: 1}}
	}
	f.provider.seriesErr["ethereum"] = apperrors.NewUpstreamStatusError("coingecko", "market_chart", 500)

	result, err := f.refresher.RunSlowCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Coins)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, f.pauses)
	assert.Equal(t, []string{"history:bitcoin", "history:ethereum", "history:solana"}, f.provider.calls)

	_, err = f.history.FindByID(ctx, "solana")
	assert.NoError(t, err)
}

func TestRunSlowCycle_StopsWhenCancelled(t *testing.T) {
	f := newFixture(t)
	for i, id := range []string{"bitcoin", "ethereum"} {
		require.NoError(t, f.coins.Upsert(context.Background(), &models.CoinSnapshot{CoinID: id, MarketCapRank: i + 1}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := f.refresher.RunSlowCycle(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result.Updated+result.Failed)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
