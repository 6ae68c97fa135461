package models

import (
	"time"
)

// CoinSnapshot is the latest known market state of one tracked coin
type CoinSnapshot struct {
	CoinID                   string     `json:"coinId" db:"coin_id"`
	Symbol                   string     `json:"symbol" db:"symbol"`
	Name                     string     `json:"name" db:"name"`
	Image                    string     `json:"image,omitempty" db:"image"`
	CurrentPrice             float64    `json:"currentPrice" db:"current_price"`
	MarketCap                float64    `json:"marketCap" db:"market_cap"`
	MarketCapRank            int        `json:"marketCapRank,omitempty" db:"market_cap_rank"`
	TotalVolume              float64    `json:"totalVolume" db:"total_volume"`
	High24h                  float64    `json:"high24h" db:"high_24h"`
	Low24h                   float64    `json:"low24h" db:"low_24h"`
	PriceChange24h           float64    `json:"priceChange24h" db:"price_change_24h"`
	PriceChangePercentage24h float64    `json:"priceChangePercentage24h" db:"price_change_percentage_24h"`
	CirculatingSupply        float64    `json:"circulatingSupply" db:"circulating_supply"`
	TotalSupply              *float64   `json:"totalSupply,omitempty" db:"total_supply"`
	ATH                      float64    `json:"ath" db:"ath"`
	ATHDate                  *time.Time `json:"athDate,omitempty" db:"ath_date"`
	LastUpdated              time.Time  `json:"lastUpdated" db:"last_updated"`
}

// CoinListing is the reduced projection used by search and autocomplete
type CoinListing struct {
	CoinID       string  `json:"coinId" db:"coin_id"`
	Name         string  `json:"name" db:"name"`
	Symbol       string  `json:"symbol" db:"symbol"`
	Image        string  `json:"image,omitempty" db:"image"`
	CurrentPrice float64 `json:"currentPrice" db:"current_price"`
}

// CoinDetail is the subset of the provider's single-coin document we surface
type CoinDetail struct {
	ID               string    `json:"id"`
	Symbol           string    `json:"symbol"`
	Name             string    `json:"name"`
	HashingAlgorithm string    `json:"hashingAlgorithm,omitempty"`
	Categories       []string  `json:"categories,omitempty"`
	Homepage         string    `json:"homepage,omitempty"`
	GenesisDate      string    `json:"genesisDate,omitempty"`
	MarketCapRank    int       `json:"marketCapRank,omitempty"`
	CurrentPriceUSD  float64   `json:"currentPriceUsd"`
	MarketCapUSD     float64   `json:"marketCapUsd"`
	TotalVolumeUSD   float64   `json:"totalVolumeUsd"`
	LastUpdated      time.Time `json:"lastUpdated"`
}
