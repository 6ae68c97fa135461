package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHistoricalSeries_Last(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := &HistoricalSeries{CoinID: "bitcoin"}
	for i := 0; i < 5; i++ {
		series.Prices = append(series.Prices, PricePoint{Date: base.AddDate(0, 0, i), Price: float64(100 + i)})
	}

	last := series.Last(2)
	assert.Equal(t, "bitcoin", last.CoinID)
	assert.Equal(t, []float64{103, 104}, prices(last))

	assert.Len(t, series.Last(0).Prices, 5)
	assert.Len(t, series.Last(50).Prices, 5)

	last.Prices[0].Price = -1
	assert.Equal(t, 103.0, series.Prices[3].Price)
}

func prices(s *HistoricalSeries) []float64 {
	out := make([]float64, 0, len(s.Prices))
	for _, p := range s.Prices {
		out = append(out, p.Price)
	}
	return out
}
