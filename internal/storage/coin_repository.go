package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/crypto-assistant/internal/errors"
	"github.com/crypto-assistant/internal/models"
)

// CoinRepository stores coin snapshots in the coin_snapshots table
type CoinRepository struct {
	db *PostgresDB
}

var _ CoinStore = (*CoinRepository)(nil)

// NewCoinRepository creates a new coin repository
func NewCoinRepository(db *PostgresDB) *CoinRepository {
	return &CoinRepository{db: db}
}

const coinColumns = `
	coin_id, symbol, name, image, current_price, market_cap,
	COALESCE(market_cap_rank, 0), total_volume, high_24h, low_24h,
	price_change_24h, price_change_percentage_24h, circulating_supply,
	total_supply, ath, ath_date, last_updated`

const coinOrder = `ORDER BY market_cap_rank ASC NULLS LAST, coin_id ASC`

// Upsert inserts the coin or replaces every column of the stored row.
// A zero rank is stored as NULL so that unranked coins sort last.
func (r *CoinRepository) Upsert(ctx context.Context, coin *models.CoinSnapshot) error {
	if coin == nil || coin.CoinID == "" {
		return apperrors.NewValidationError("coinId", "is required")
	}

	query := `
		INSERT INTO coin_snapshots (
			coin_id, symbol, name, image, current_price, market_cap,
			market_cap_rank, total_volume, high_24h, low_24h,
			price_change_24h, price_change_percentage_24h, circulating_supply,
			total_supply, ath, ath_date, last_updated
		)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, 0), $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (coin_id) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			name = EXCLUDED.name,
			image = EXCLUDED.image,
			current_price = EXCLUDED.current_price,
			market_cap = EXCLUDED.market_cap,
			market_cap_rank = EXCLUDED.market_cap_rank,
			total_volume = EXCLUDED.total_volume,
			high_24h = EXCLUDED.high_24h,
			low_24h = EXCLUDED.low_24h,
			price_change_24h = EXCLUDED.price_change_24h,
			price_change_percentage_24h = EXCLUDED.price_change_percentage_24h,
			circulating_supply = EXCLUDED.circulating_supply,
			total_supply = EXCLUDED.total_supply,
			ath = EXCLUDED.ath,
			ath_date = EXCLUDED.ath_date,
			last_updated = EXCLUDED.last_updated,
			updated_at = NOW()
	`

	_, err := r.db.Pool().Exec(ctx, query,
		coin.CoinID,
		coin.Symbol,
		coin.Name,
		coin.Image,
		coin.CurrentPrice,
		coin.MarketCap,
		coin.MarketCapRank,
		coin.TotalVolume,
		coin.High24h,
		coin.Low24h,
		coin.PriceChange24h,
		coin.PriceChangePercentage24h,
		coin.CirculatingSupply,
		coin.TotalSupply,
		coin.ATH,
		coin.ATHDate,
		coin.LastUpdated,
	)
	if err != nil {
		return apperrors.NewPersistenceError("upsert coin "+coin.CoinID, err)
	}
	return nil
}

// FindTop returns up to limit coins by rank
func (r *CoinRepository) FindTop(ctx context.Context, limit int) ([]models.CoinSnapshot, error) {
	query := `SELECT ` + coinColumns + ` FROM coin_snapshots ` + coinOrder
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewPersistenceError("find top coins", err)
	}
	defer rows.Close()

	coins := make([]models.CoinSnapshot, 0)
	for rows.Next() {
		var coin models.CoinSnapshot
		if err := scanCoin(rows, &coin); err != nil {
			return nil, apperrors.NewPersistenceError("scan coin", err)
		}
		coins = append(coins, coin)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("iterate coins", err)
	}
	return coins, nil
}

// FindByID returns one snapshot or ErrNotFound
func (r *CoinRepository) FindByID(ctx context.Context, coinID string) (*models.CoinSnapshot, error) {
	query := `SELECT ` + coinColumns + ` FROM coin_snapshots WHERE coin_id = $1`

	var coin models.CoinSnapshot
	if err := scanCoin(r.db.Pool().QueryRow(ctx, query, coinID), &coin); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("coin %s: %w", coinID, ErrNotFound)
		}
		return nil, apperrors.NewPersistenceError("find coin "+coinID, err)
	}
	return &coin, nil
}

// ListProjection returns id, name, symbol, image and price of every coin
func (r *CoinRepository) ListProjection(ctx context.Context) ([]models.CoinListing, error) {
	query := `SELECT coin_id, name, symbol, image, current_price FROM coin_snapshots ` + coinOrder

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list coins", err)
	}
	defer rows.Close()

	listings := make([]models.CoinListing, 0)
	for rows.Next() {
		var l models.CoinListing
		if err := rows.Scan(&l.CoinID, &l.Name, &l.Symbol, &l.Image, &l.CurrentPrice); err != nil {
			return nil, apperrors.NewPersistenceError("scan listing", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError("iterate listings", err)
	}
	return listings, nil
}

// IDs returns every stored coin id by rank
func (r *CoinRepository) IDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT coin_id FROM coin_snapshots `+coinOrder)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list coin ids", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, apperrors.NewPersistenceError("collect coin ids", err)
	}
	return ids, nil
}

func scanCoin(row pgx.Row, coin *models.CoinSnapshot) error {
	return row.Scan(
		&coin.CoinID,
		&coin.Symbol,
		&coin.Name,
		&coin.Image,
		&coin.CurrentPrice,
		&coin.MarketCap,
		&coin.MarketCapRank,
		&coin.TotalVolume,
		&coin.High24h,
		&coin.Low24h,
		&coin.PriceChange24h,
		&coin.PriceChangePercentage24h,
		&coin.CirculatingSupply,
		&coin.TotalSupply,
		&coin.ATH,
		&coin.ATHDate,
		&coin.LastUpdated,
	)
}
