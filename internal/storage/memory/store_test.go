package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/crypto-assistant/internal/errors"
	"github.com/crypto-assistant/internal/models"
	"github.com/crypto-assistant/internal/storage"
)

func TestCoinStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewCoinStore()

	require.NoError(t, s.Upsert(ctx, &models.CoinSnapshot{CoinID: "bitcoin", CurrentPrice: 1, MarketCapRank: 1}))
	require.NoError(t, s.Upsert(ctx, &models.CoinSnapshot{CoinID: "bitcoin", CurrentPrice: 2, MarketCapRank: 1}))

	assert.Equal(t, 1, s.Len())
	coin, err := s.FindByID(ctx, "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, 2.0, coin.CurrentPrice)
}

func TestCoinStore_OrderingPutsUnrankedLast(t *testing.T) {
	ctx := context.Background()
	s := NewCoinStore()
	for _, c := range []models.CoinSnapshot{
		{CoinID: "unranked"},
		{CoinID: "ethereum", MarketCapRank: 2},
		{CoinID: "bitcoin", MarketCapRank: 1},
	} {
		c := c
		require.NoError(t, s.Upsert(ctx, &c))
	}

	ids, err := s.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bitcoin", "ethereum", "unranked"}, ids)

	top, err := s.FindTop(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)

	listing, err := s.ListProjection(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bitcoin", listing[0].CoinID)
}

func TestCoinStore_UpsertRequiresID(t *testing.T) {
	s := NewCoinStore()

	err := s.Upsert(context.Background(), &models.CoinSnapshot{Name: "Bitcoin"})
	assert.True(t, apperrors.IsValidation(err))
	err = s.Upsert(context.Background(), nil)
	assert.True(t, apperrors.IsValidation(err))
	assert.Zero(t, s.Len())
}

func TestCoinStore_FindByIDMissing(t *testing.T) {
	_, err := NewCoinStore().FindByID(context.Background(), "nosuchcoin")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestHistoryStore_ReplaceDiscardsOldPoints(t *testing.T) {
	ctx := context.Background()
	s := NewHistoryStore()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	long := &models.HistoricalSeries{CoinID: "bitcoin", Prices: []models.PricePoint{
		{Date: day, Price: 1}, {Date: day.AddDate(0, 0, 1), Price: 2}, {Date: day.AddDate(0, 0, 2), Price: 3},
	}}
	require.NoError(t, s.Replace(ctx, long))
	require.NoError(t, s.Replace(ctx, &models.HistoricalSeries{CoinID: "bitcoin", Prices: []models.PricePoint{{Date: day, Price: 9}}}))

	got, err := s.FindByID(ctx, "bitcoin")
	require.NoError(t, err)
	require.Len(t, got.Prices, 1)
	assert.Equal(t, 9.0, got.Prices[0].Price)

	long.Prices[0].Price = -1
	got.Prices[0].Price = -1
	again, _ := s.FindByID(ctx, "bitcoin")
	assert.Equal(t, 9.0, again.Prices[0].Price)
}

func TestHistoryStore_ReplaceRequiresID(t *testing.T) {
	err := NewHistoryStore().Replace(context.Background(), &models.HistoricalSeries{})
	assert.True(t, apperrors.IsValidation(err))
}

func TestTickArchive_Since(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewTickArchive(WithNow(func() time.Time { return base.Add(4 * time.Hour) }))

	require.NoError(t, a.Append(ctx, []models.PriceTick{
		{CoinID: "bitcoin", Price: 3, FetchedAt: base.Add(2 * time.Hour)},
		{CoinID: "bitcoin", Price: 1, FetchedAt: base},
		{CoinID: "ethereum", Price: 5, FetchedAt: base.Add(3 * time.Hour)},
		{CoinID: "bitcoin", Price: 2, FetchedAt: base.Add(time.Hour)},
	}))

	ticks, err := a.Since(ctx, "bitcoin", base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, 2.0, ticks[0].Price)
	assert.Equal(t, 3.0, ticks[1].Price)
}

func TestTickArchive_AppendPrunesPastRetention(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	a := NewTickArchive(WithNow(func() time.Time { return now }))

	require.NoError(t, a.Append(ctx, []models.PriceTick{
		{CoinID: "bitcoin", Price: 1, FetchedAt: now.Add(-DefaultTickRetention - time.Hour)},
		{CoinID: "bitcoin", Price: 2, FetchedAt: now.Add(-DefaultTickRetention + time.Hour)},
		{CoinID: "bitcoin", Price: 3, FetchedAt: now},
	}))
	assert.Equal(t, 2, a.Len())

	// Ticks that were inside the window age out on a later append
	now = now.Add(2 * time.Hour)
	require.NoError(t, a.Append(ctx, []models.PriceTick{{CoinID: "ethereum", Price: 4, FetchedAt: now}}))
	assert.Equal(t, 2, a.Len())

	ticks, err := a.Since(ctx, "bitcoin", time.Time{})
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, 3.0, ticks[0].Price)
}

func TestTickArchive_CustomRetention(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	a := NewTickArchive(WithNow(func() time.Time { return now }), WithRetention(time.Hour))

	require.NoError(t, a.Append(ctx, []models.PriceTick{
		{CoinID: "bitcoin", Price: 1, FetchedAt: now.Add(-2 * time.Hour)},
		{CoinID: "bitcoin", Price: 2, FetchedAt: now.Add(-30 * time.Minute)},
	}))

	ticks, err := a.Since(ctx, "bitcoin", time.Time{})
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, 2.0, ticks[0].Price)
}
