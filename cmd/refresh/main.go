// Package main runs market refresh cycles from the command line.
//
// Usage:
//
//	refresh market      # fetch the top coins once
//	refresh history     # refetch every stored coin's history once
//	refresh schedule    # run both on their cron schedules until interrupted
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crypto-assistant/internal/adapter"
	"github.com/crypto-assistant/internal/cache"
	"github.com/crypto-assistant/internal/config"
	"github.com/crypto-assistant/internal/job"
	"github.com/crypto-assistant/internal/logging"
	"github.com/crypto-assistant/internal/scheduler"
	"github.com/crypto-assistant/internal/storage"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: refresh market|history|schedule")
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	command := flag.Arg(0)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatalf("refresh needs STORAGE_DRIVER=postgres, got %q", cfg.Database.Driver)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.WithComponent("refresh")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	postgres, err := storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	var ticks storage.TickArchive
	if cfg.Database.ClickHouse.Enabled {
		clickhouse, err := storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, price tick archive disabled")
		} else {
			defer clickhouse.Close()
			ticks = storage.NewPriceTickArchive(clickhouse)
		}
	}

	provider := adapter.NewCoinGeckoClient(adapter.CoinGeckoConfig{
		BaseURL:             cfg.Upstream.BaseURL,
		APIKey:              cfg.Upstream.APIKey,
		Timeout:             cfg.Upstream.Timeout,
		BreakerMaxFailures:  cfg.Upstream.BreakerMaxFailures,
		BreakerResetTimeout: cfg.Upstream.BreakerResetTimeout,
	})

	// No server reads this process's cache; it only satisfies the flusher.
	// A running server keeps serving its own cache until CACHE_TTL expires.
	refresher := job.NewMarketRefresher(
		provider,
		storage.NewCoinRepository(postgres),
		storage.NewHistoryRepository(postgres),
		ticks,
		cache.NewMemoryCache(cfg.Cache.TTL),
		job.MarketRefresherConfig{
			TopCoins:       cfg.Upstream.TopCoinsCount,
			HistoricalDays: cfg.Upstream.HistoricalDays,
			CoinPause:      cfg.Scheduler.HistoryCoinPause,
		},
	)

	switch command {
	case "market":
		result, err := refresher.RunFastCycle(ctx)
		if err != nil {
			log.Fatalf("Market refresh failed: %v", err)
		}
		fmt.Printf("Fetched %d coins: %d updated, %d failed, %d ticks archived (%s)\n",
			result.Fetched, result.Updated, result.Failed, result.Archived, result.Duration)

	case "history":
		result, err := refresher.RunSlowCycle(ctx)
		if err != nil {
			log.Fatalf("History refresh failed: %v", err)
		}
		fmt.Printf("History for %d coins: %d updated, %d failed (%s)\n",
			result.Coins, result.Updated, result.Failed, result.Duration)

	case "schedule":
		if err := runSchedule(ctx, cfg, refresher); err != nil {
			log.Fatalf("Scheduler failed: %v", err)
		}

	default:
		log.Fatalf("Unknown command: %s", command)
	}
}

func runSchedule(ctx context.Context, cfg *config.Config, refresher *job.MarketRefresher) error {
	loc := cfg.Scheduler.Location()
	fast, err := scheduler.ParseSchedule(cfg.Scheduler.MarketSchedule, loc)
	if err != nil {
		return err
	}
	slow, err := scheduler.ParseSchedule(cfg.Scheduler.HistorySchedule, loc)
	if err != nil {
		return err
	}

	warnServerCacheStaleness(cfg.Cache.TTL, scheduler.Interval(fast, time.Now()))

	sched := scheduler.New()
	if err := sched.Add(scheduler.Job{Name: job.CycleFast, Schedule: fast, Task: refresher.FastTask, RunAtStart: true}); err != nil {
		return err
	}
	if err := sched.Add(scheduler.Job{
		Name:       job.CycleSlow,
		Schedule:   slow,
		Task:       refresher.SlowTask,
		RunAtStart: true,
		StartDelay: cfg.Scheduler.HistoryStartDelay,
	}); err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	sched.Stop()
	return nil
}

// warnServerCacheStaleness flags a server CACHE_TTL that lets readers see data
// more than about one refresh interval old. This process cannot flush a
// server's cache, so a cached read can outlive the data it was built from by
// up to the TTL.
func warnServerCacheStaleness(ttl, interval time.Duration) bool {
	if !cacheTTLTooLong(ttl, interval) {
		return false
	}
	logging.WithFields(map[string]interface{}{
		"cache_ttl": ttl.String(),
		"interval":  interval.String(),
		"max_ttl":   (interval / 2).String(),
	}).Warn("Server caches are not flushed by this process; set the server's CACHE_TTL to at most half the market interval")
	return true
}

func cacheTTLTooLong(ttl, interval time.Duration) bool {
	return ttl > interval/2
}
