package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/crypto-assistant/internal/adapter"
	"github.com/crypto-assistant/internal/intent"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: Could not load .env file: %v\n", err)
	}

	coinID := "bitcoin"
	if len(os.Args) > 1 {
		coinID = strings.ToLower(os.Args[1])
	}

	client := adapter.NewCoinGeckoClient(adapter.CoinGeckoConfig{
		BaseURL: os.Getenv("COINGECKO_API_URL"),
		APIKey:  os.Getenv("COINGECKO_API_KEY"),
		Timeout: 15 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fmt.Println("Fetching top 10 coins from CoinGecko...")
	coins, err := client.FetchTopCoins(ctx, 10)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	for _, c := range coins {
		fmt.Printf("  %2d. %-12s %-6s %14s  %s%%\n",
			c.MarketCapRank, c.Name, strings.ToUpper(c.Symbol),
			intent.FormatPrice(c.CurrentPrice), intent.FormatPercent(c.PriceChangePercentage24h))
	}

	fmt.Printf("\nFetching detail for %s...\n", coinID)
	detail, err := client.FetchCoinDetail(ctx, coinID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  Name:       %s (%s)\n", detail.Name, strings.ToUpper(detail.Symbol))
	fmt.Printf("  Price:      %s\n", intent.FormatPrice(detail.CurrentPriceUSD))
	fmt.Printf("  Market cap: $%s\n", intent.FormatLargeNumber(detail.MarketCapUSD))
	if detail.Homepage != "" {
		fmt.Printf("  Homepage:   %s\n", detail.Homepage)
	}

	fmt.Printf("\nFetching 7-day chart for %s...\n", coinID)
	points, err := client.FetchHistoricalSeries(ctx, coinID, 7)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	for _, p := range points {
		fmt.Printf("  %s  %s\n", p.Date.Format("2006-01-02"), intent.FormatPrice(p.Price))
	}

	stats := client.BreakerStats()
	fmt.Printf("\nBreaker: %s (%d calls, %d failures)\n", stats.State, stats.TotalCalls, stats.TotalFailures)
}
