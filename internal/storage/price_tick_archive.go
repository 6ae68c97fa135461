package storage

import (
	"context"
	"time"

	apperrors "github.com/crypto-assistant/internal/errors"
	"github.com/crypto-assistant/internal/models"
)

// PriceTickArchive appends refresh observations to the ClickHouse price_ticks table
type PriceTickArchive struct {
	db *ClickHouseDB
}

var _ TickArchive = (*PriceTickArchive)(nil)

// NewPriceTickArchive creates an archive over db
func NewPriceTickArchive(db *ClickHouseDB) *PriceTickArchive {
	return &PriceTickArchive{db: db}
}

// Append writes ticks in one batch
func (a *PriceTickArchive) Append(ctx context.Context, ticks []models.PriceTick) error {
	if len(ticks) == 0 {
		return nil
	}

	batch, err := a.db.Conn().PrepareBatch(ctx, `
		INSERT INTO price_ticks (coin_id, price, market_cap, total_volume, run_id, fetched_at)
	`)
	if err != nil {
		return apperrors.NewPersistenceError("prepare tick batch", err)
	}

	for _, t := range ticks {
		if err := batch.Append(t.CoinID, t.Price, t.MarketCap, t.TotalVolume, t.RunID, t.FetchedAt.UTC()); err != nil {
			_ = batch.Abort()
			return apperrors.NewPersistenceError("append tick "+t.CoinID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return apperrors.NewPersistenceError("send tick batch", err)
	}
	return nil
}

// Since returns ticks for coinID no older than since, oldest first
func (a *PriceTickArchive) Since(ctx context.Context, coinID string, since time.Time) ([]models.PriceTick, error) {
	query := `
		SELECT coin_id, price, market_cap, total_volume, run_id, fetched_at
		FROM price_ticks
		WHERE coin_id = ? AND fetched_at >= ?
		ORDER BY fetched_at ASC
	`

	rows, err := a.db.Conn().Query(ctx, query, coinID, since.UTC())
	if err != nil {
		return nil, apperrors.NewPersistenceError("query ticks "+coinID, err)
	}
	defer rows.Close()

	ticks := make([]models.PriceTick, 0)
	for rows.Next() {
		var t models.PriceTick
		if err := rows.Scan(&t.CoinID, &t.Price, &t.MarketCap, &t.TotalVolume, &t.RunID, &t.FetchedAt); err != nil {
			return nil, apperrors.NewPersistenceError("scan tick", err)
		}
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("iterate ticks", err)
	}
	return ticks, nil
}

// DisabledTickArchive stands in when ClickHouse is not configured.
// Append is a no-op and Since reports ErrArchiveDisabled.
type DisabledTickArchive struct{}

var _ TickArchive = DisabledTickArchive{}

// Append discards ticks
func (DisabledTickArchive) Append(context.Context, []models.PriceTick) error { return nil }

// Since always fails with ErrArchiveDisabled
func (DisabledTickArchive) Since(context.Context, string, time.Time) ([]models.PriceTick, error) {
	return nil, ErrArchiveDisabled
}
