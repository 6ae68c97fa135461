package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/crypto-assistant/internal/errors"
	"github.com/crypto-assistant/internal/models"
)

// HistoryRepository stores one JSONB price array per coin in historical_series
type HistoryRepository struct {
	db *PostgresDB
}

var _ HistoryStore = (*HistoryRepository)(nil)

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *PostgresDB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Replace overwrites the whole stored series of the coin
func (r *HistoryRepository) Replace(ctx context.Context, series *models.HistoricalSeries) error {
	if series == nil || series.CoinID == "" {
		return apperrors.NewValidationError("coinId", "is required")
	}

	points := series.Prices
	if points == nil {
		points = []models.PricePoint{}
	}
	payload, err := json.Marshal(points)
	if err != nil {
		return apperrors.NewInternalError("encode price series", err)
	}

	query := `
		INSERT INTO historical_series (coin_id, prices, last_fetched)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (coin_id) DO UPDATE SET
			prices = EXCLUDED.prices,
			last_fetched = EXCLUDED.last_fetched,
			updated_at = NOW()
	`

	if _, err := r.db.Pool().Exec(ctx, query, series.CoinID, string(payload), series.LastFetched); err != nil {
		return apperrors.NewPersistenceError("replace history "+series.CoinID, err)
	}
	return nil
}

// FindByID returns the stored series or ErrNotFound
func (r *HistoryRepository) FindByID(ctx context.Context, coinID string) (*models.HistoricalSeries, error) {
	query := `SELECT coin_id, prices, last_fetched FROM historical_series WHERE coin_id = $1`

	var (
		series  models.HistoricalSeries
		payload []byte
	)
	err := r.db.Pool().QueryRow(ctx, query, coinID).Scan(&series.CoinID, &payload, &series.LastFetched)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("history %s: %w", coinID, ErrNotFound)
		}
		return nil, apperrors.NewPersistenceError("find history "+coinID, err)
	}

	if err := json.Unmarshal(payload, &series.Prices); err != nil {
		return nil, apperrors.NewPersistenceError("decode history "+coinID, err)
	}
	return &series, nil
}
