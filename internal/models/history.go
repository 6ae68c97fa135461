package models

import (
	"time"
)

// PricePoint is one (date, price) sample of a series
type PricePoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// HistoricalSeries holds the chronologically ordered price history of a coin.
// A refresh replaces Prices as a whole.
type HistoricalSeries struct {
	CoinID      string       `json:"coinId" db:"coin_id"`
	Prices      []PricePoint `json:"prices" db:"prices"`
	LastFetched time.Time    `json:"lastFetched" db:"last_fetched"`
}

// Last returns a copy of the series restricted to its final n points.
// n <= 0 or n >= len(Prices) keeps every point.
func (s *HistoricalSeries) Last(n int) *HistoricalSeries {
	prices := s.Prices
	if n > 0 && n < len(prices) {
		prices = prices[len(prices)-n:]
	}
	out := make([]PricePoint, len(prices))
	copy(out, prices)
	return &HistoricalSeries{CoinID: s.CoinID, Prices: out, LastFetched: s.LastFetched}
}

// PriceTick is one archived observation of a coin taken by a market refresh
type PriceTick struct {
	CoinID      string    `json:"coinId" ch:"coin_id"`
	Price       float64   `json:"price" ch:"price"`
	MarketCap   float64   `json:"marketCap" ch:"market_cap"`
	TotalVolume float64   `json:"totalVolume" ch:"total_volume"`
	RunID       string    `json:"runId" ch:"run_id"`
	FetchedAt   time.Time `json:"fetchedAt" ch:"fetched_at"`
}
