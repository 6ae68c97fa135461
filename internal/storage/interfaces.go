package storage

import (
	"context"
	"time"

	"github.com/crypto-assistant/internal/models"
)

// CoinStore persists the latest snapshot of every tracked coin, keyed by coin id.
type CoinStore interface {
	// Upsert creates the snapshot or overwrites every field of the existing one.
	Upsert(ctx context.Context, coin *models.CoinSnapshot) error

	// FindTop returns up to limit snapshots ordered by market cap rank.
	// Unranked coins sort last. limit <= 0 returns every coin.
	FindTop(ctx context.Context, limit int) ([]models.CoinSnapshot, error)

	// FindByID returns ErrNotFound when the coin was never stored.
	FindByID(ctx context.Context, coinID string) (*models.CoinSnapshot, error)

	// ListProjection returns the listing fields of every coin ordered by rank.
	ListProjection(ctx context.Context) ([]models.CoinListing, error)

	// IDs returns every stored coin id ordered by rank.
	IDs(ctx context.Context) ([]string, error)
}

// HistoryStore persists one price series per coin.
type HistoryStore interface {
	// Replace stores series as the complete history of its coin, discarding
	// whatever was stored before.
	Replace(ctx context.Context, series *models.HistoricalSeries) error

	// FindByID returns ErrNotFound when no series was stored for the coin.
	FindByID(ctx context.Context, coinID string) (*models.HistoricalSeries, error)
}

// TickArchive is an append-only log of the prices seen by market refreshes.
type TickArchive interface {
	Append(ctx context.Context, ticks []models.PriceTick) error

	// Since returns the ticks of coinID fetched at or after since, oldest first.
	Since(ctx context.Context, coinID string, since time.Time) ([]models.PriceTick, error)
}
