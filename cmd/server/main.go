// Package main provides the API server entry point for the crypto assistant.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crypto-assistant/internal/adapter"
	"github.com/crypto-assistant/internal/api"
	"github.com/crypto-assistant/internal/cache"
	"github.com/crypto-assistant/internal/config"
	"github.com/crypto-assistant/internal/intent"
	"github.com/crypto-assistant/internal/job"
	"github.com/crypto-assistant/internal/logging"
	"github.com/crypto-assistant/internal/retry"
	"github.com/crypto-assistant/internal/scheduler"
	"github.com/crypto-assistant/internal/service"
	"github.com/crypto-assistant/internal/storage"
	"github.com/crypto-assistant/internal/storage/memory"
)

func main() {
	fmt.Println("Crypto Assistant API Server")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	var (
		coins   storage.CoinStore
		history storage.HistoryStore
		ticks   storage.TickArchive = storage.DisabledTickArchive{}
		health  api.HealthChecker
	)

	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("Using in-memory storage, data is lost on restart")
		coins = memory.NewCoinStore()
		history = memory.NewHistoryStore()
		ticks = memory.NewTickArchive()
	default:
		postgres, err := connectPostgres(ctx, cfg)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Postgres")
		}
		defer postgres.Close()

		if cfg.Server.AutoMigrate {
			logger.WithField("path", cfg.Server.MigrationsPath).Info("Applying Postgres migrations")
			if err := storage.RunMigrations(cfg.Database.Postgres.URL(), cfg.Server.MigrationsPath); err != nil {
				logger.WithError(err).Fatal("Failed to apply migrations")
			}
		}

		coins = storage.NewCoinRepository(postgres)
		history = storage.NewHistoryRepository(postgres)
		health = postgres
	}

	if cfg.Database.ClickHouse.Enabled {
		clickhouse, err := storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
		if err != nil {
			// The archive is optional; refreshes and reads work without it
			logger.WithError(err).Warn("ClickHouse unavailable, price tick archive disabled")
		} else {
			defer func() {
				if err := clickhouse.Close(); err != nil {
					logger.WithError(err).Warn("Error closing ClickHouse connection")
				}
			}()
			ticks = storage.NewPriceTickArchive(clickhouse)
			logger.Info("Price tick archive enabled")
		}
	}

	// Initialize cache
	readCache := cache.NewMemoryCache(cfg.Cache.TTL)
	readCache.StartSweeper(ctx, cfg.Cache.SweepInterval)

	// Initialize market data provider and refresher
	provider := adapter.NewCoinGeckoClient(adapter.CoinGeckoConfig{
		BaseURL:             cfg.Upstream.BaseURL,
		APIKey:              cfg.Upstream.APIKey,
		Timeout:             cfg.Upstream.Timeout,
		BreakerMaxFailures:  cfg.Upstream.BreakerMaxFailures,
		BreakerResetTimeout: cfg.Upstream.BreakerResetTimeout,
	})

	refresher := job.NewMarketRefresher(provider, coins, history, ticks, readCache, job.MarketRefresherConfig{
		TopCoins:       cfg.Upstream.TopCoinsCount,
		HistoricalDays: cfg.Upstream.HistoricalDays,
		CoinPause:      cfg.Scheduler.HistoryCoinPause,
	})

	// Initialize chat
	registry := intent.DefaultRegistry()
	if cfg.Chat.CoinRegistryFile != "" {
		registry, err = intent.LoadRegistry(cfg.Chat.CoinRegistryFile)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load coin registry")
		}
	}

	// Initialize services
	marketService := service.NewMarketService(coins, history, ticks, readCache, refresher, cfg.Upstream.HistoricalDays)
	chatService := service.NewChatService(intent.NewParser(registry), marketService)

	// Start the refresh scheduler
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = startScheduler(ctx, cfg, refresher)
		if err != nil {
			logger.WithError(err).Fatal("Failed to start scheduler")
		}
	} else {
		logger.Info("Scheduler disabled, data is refreshed on demand only")
	}

	// Initialize API server
	server := api.NewServer(&api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       2 * cfg.Server.ReadTimeout,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}, marketService, chatService, health)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Wait for interrupt signal or server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Server stopped unexpectedly")
		}
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	// Stop the scheduler after the listener so in-flight refreshes finish
	if sched != nil {
		sched.Stop()
	}
	cancel()

	logger.Info("Server exited")
}

// connectPostgres opens the pool, retrying while the database starts up
func connectPostgres(ctx context.Context, cfg *config.Config) (*storage.PostgresDB, error) {
	var db *storage.PostgresDB
	err := retry.WithRetry(ctx, func(ctx context.Context, attempt int) error {
		var err error
		db, err = storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
		return err
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// startScheduler registers the fast market job and the slow history job
func startScheduler(ctx context.Context, cfg *config.Config, refresher *job.MarketRefresher) (*scheduler.Scheduler, error) {
	loc := cfg.Scheduler.Location()

	marketSchedule, err := scheduler.ParseSchedule(cfg.Scheduler.MarketSchedule, loc)
	if err != nil {
		return nil, fmt.Errorf("CRON_SCHEDULE: %w", err)
	}
	historySchedule, err := scheduler.ParseSchedule(cfg.Scheduler.HistorySchedule, loc)
	if err != nil {
		return nil, fmt.Errorf("HISTORY_CRON_SCHEDULE: %w", err)
	}

	// A TTL longer than the fast interval is harmless since every cycle
	// flushes, but it usually means a misconfiguration
	if interval := scheduler.Interval(marketSchedule, time.Now()); cfg.Cache.TTL > interval {
		logging.WithFields(map[string]interface{}{
			"cache_ttl": cfg.Cache.TTL.String(),
			"interval":  interval.String(),
		}).Warn("Cache TTL exceeds the market refresh interval")
	}

	sched := scheduler.New()
	jobs := []scheduler.Job{
		{
			Name:       job.CycleFast,
			Schedule:   marketSchedule,
			Task:       refresher.FastTask,
			RunAtStart: true,
		},
		{
			Name:       job.CycleSlow,
			Schedule:   historySchedule,
			Task:       refresher.SlowTask,
			RunAtStart: true,
			StartDelay: cfg.Scheduler.HistoryStartDelay,
		},
	}
	for _, j := range jobs {
		if err := sched.Add(j); err != nil {
			return nil, err
		}
	}

	if err := sched.Start(ctx); err != nil {
		return nil, err
	}
	return sched, nil
}
