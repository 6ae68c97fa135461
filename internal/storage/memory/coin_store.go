// Package memory provides map backed implementations of the storage
// interfaces, used with STORAGE_DRIVER=memory and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/crypto-assistant/internal/errors"
	"github.com/crypto-assistant/internal/models"
	"github.com/crypto-assistant/internal/storage"
)

// CoinStore is an in-memory storage.CoinStore
type CoinStore struct {
	mu    sync.RWMutex
	coins map[string]models.CoinSnapshot
}

var _ storage.CoinStore = (*CoinStore)(nil)

// NewCoinStore creates an empty store
func NewCoinStore() *CoinStore {
	return &CoinStore{coins: make(map[string]models.CoinSnapshot)}
}

// Upsert stores a copy of coin under its id
func (s *CoinStore) Upsert(_ context.Context, coin *models.CoinSnapshot) error {
	if coin == nil || coin.CoinID == "" {
		return apperrors.NewValidationError("coinId", "is required")
	}
	s.mu.Lock()
	s.coins[coin.CoinID] = *coin
	s.mu.Unlock()
	return nil
}

// FindTop returns up to limit coins by rank, unranked last
func (s *CoinStore) FindTop(_ context.Context, limit int) ([]models.CoinSnapshot, error) {
	coins := s.sorted()
	if limit > 0 && limit < len(coins) {
		coins = coins[:limit]
	}
	return coins, nil
}

// FindByID returns a copy of the stored snapshot
func (s *CoinStore) FindByID(_ context.Context, coinID string) (*models.CoinSnapshot, error) {
	s.mu.RLock()
	coin, ok := s.coins[coinID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("coin %s: %w", coinID, storage.ErrNotFound)
	}
	return &coin, nil
}

// ListProjection returns the listing fields by rank
func (s *CoinStore) ListProjection(_ context.Context) ([]models.CoinListing, error) {
	coins := s.sorted()
	out := make([]models.CoinListing, 0, len(coins))
	for _, c := range coins {
		out = append(out, models.CoinListing{
			CoinID:       c.CoinID,
			Name:         c.Name,
			Symbol:       c.Symbol,
			Image:        c.Image,
			CurrentPrice: c.CurrentPrice,
		})
	}
	return out, nil
}

// IDs returns every id by rank
func (s *CoinStore) IDs(_ context.Context) ([]string, error) {
	coins := s.sorted()
	ids := make([]string, 0, len(coins))
	for _, c := range coins {
		ids = append(ids, c.CoinID)
	}
	return ids, nil
}

// Len returns the number of stored coins
func (s *CoinStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.coins)
}

func (s *CoinStore) sorted() []models.CoinSnapshot {
	s.mu.RLock()
	coins := make([]models.CoinSnapshot, 0, len(s.coins))
	for _, c := range s.coins {
		coins = append(coins, c)
	}
	s.mu.RUnlock()

	sort.Slice(coins, func(i, j int) bool {
		ri, rj := coins[i].MarketCapRank, coins[j].MarketCapRank
		switch {
		case ri == rj:
			return coins[i].CoinID < coins[j].CoinID
		case ri == 0:
			return false
		case rj == 0:
			return true
		default:
			return ri < rj
		}
	})
	return coins
}
