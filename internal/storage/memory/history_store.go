package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/crypto-assistant/internal/errors"
	"github.com/crypto-assistant/internal/models"
	"github.com/crypto-assistant/internal/storage"
)

// HistoryStore is an in-memory storage.HistoryStore
type HistoryStore struct {
	mu     sync.RWMutex
	series map[string]models.HistoricalSeries
}

var _ storage.HistoryStore = (*HistoryStore)(nil)

// NewHistoryStore creates an empty store
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{series: make(map[string]models.HistoricalSeries)}
}

// Replace stores a copy of series, dropping any previous points
func (s *HistoryStore) Replace(_ context.Context, series *models.HistoricalSeries) error {
	if series == nil || series.CoinID == "" {
		return apperrors.NewValidationError("coinId", "is required")
	}
	stored := series.Last(0)
	s.mu.Lock()
	s.series[series.CoinID] = *stored
	s.mu.Unlock()
	return nil
}

// FindByID returns a copy of the stored series
func (s *HistoryStore) FindByID(_ context.Context, coinID string) (*models.HistoricalSeries, error) {
	s.mu.RLock()
	series, ok := s.series[coinID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("history %s: %w", coinID, storage.ErrNotFound)
	}
	return series.Last(0), nil
}

// DefaultTickRetention matches the TTL on the ClickHouse price_ticks table
const DefaultTickRetention = 180 * 24 * time.Hour

// TickArchive is an in-memory storage.TickArchive. Ticks older than the
// retention window are dropped on every append.
type TickArchive struct {
	mu        sync.RWMutex
	ticks     []models.PriceTick
	retention time.Duration
	now       func() time.Time
}

var _ storage.TickArchive = (*TickArchive)(nil)

// TickArchiveOption configures a TickArchive
type TickArchiveOption func(*TickArchive)

// WithRetention overrides DefaultTickRetention
func WithRetention(d time.Duration) TickArchiveOption {
	return func(a *TickArchive) { a.retention = d }
}

// WithNow sets the clock used to compute the retention cutoff
func WithNow(now func() time.Time) TickArchiveOption {
	return func(a *TickArchive) { a.now = now }
}

// NewTickArchive creates an empty archive, by default keeping
// DefaultTickRetention of ticks
func NewTickArchive(opts ...TickArchiveOption) *TickArchive {
	a := &TickArchive{retention: DefaultTickRetention, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Append records ticks and prunes anything past retention
func (a *TickArchive) Append(_ context.Context, ticks []models.PriceTick) error {
	cutoff := a.now().Add(-a.retention)

	a.mu.Lock()
	defer a.mu.Unlock()

	old := a.ticks
	kept := old[:0]
	for _, t := range old {
		if !t.FetchedAt.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	for _, t := range ticks {
		if !t.FetchedAt.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) < len(old) {
		clear(old[len(kept):])
	}
	a.ticks = kept
	return nil
}

// Len returns the number of retained ticks
func (a *TickArchive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.ticks)
}

// Since returns ticks for coinID at or after since, oldest first
func (a *TickArchive) Since(_ context.Context, coinID string, since time.Time) ([]models.PriceTick, error) {
	a.mu.RLock()
	out := make([]models.PriceTick, 0)
	for _, t := range a.ticks {
		if t.CoinID == coinID && !t.FetchedAt.Before(since) {
			out = append(out, t)
		}
	}
	a.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].FetchedAt.Before(out[j].FetchedAt) })
	return out, nil
}
