// Package storage provides the Postgres and ClickHouse connections and the
// repositories for coin snapshots, price history and the tick archive.
package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crypto-assistant/internal/config"
)

// PostgresDB wraps the pgxpool connection
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB opens a pool from cfg and verifies it with a ping
func NewPostgresDB(ctx context.Context, cfg *config.PostgresConfig) (*PostgresDB, error) {
	poolConfig, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	return newPostgresDB(ctx, poolConfig)
}

// NewPostgresDBFromDSN opens a pool from a full connection string
func NewPostgresDBFromDSN(ctx context.Context, dsn string, maxConns int) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}
	applyPoolLimits(poolConfig, maxConns)
	return newPostgresDB(ctx, poolConfig)
}

// PoolConfig builds the pool settings from cfg. Connection fields are set
// on the parsed config directly so passwords with spaces, quotes or an
// empty value never reach the keyword/value parser.
func PoolConfig(cfg *config.PostgresConfig) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig("sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	port, err := strconv.ParseUint(cfg.Port, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres port %q: %w", cfg.Port, err)
	}

	conn := poolConfig.ConnConfig
	conn.Host = cfg.Host
	conn.Port = uint16(port)
	conn.User = cfg.User
	conn.Password = cfg.Password
	conn.Database = cfg.Database
	conn.Fallbacks = nil

	applyPoolLimits(poolConfig, cfg.MaxConnections)
	return poolConfig, nil
}

func applyPoolLimits(poolConfig *pgxpool.Config, maxConns int) {
	if maxConns <= 0 {
		maxConns = 10
	}
	poolConfig.MaxConns = int32(maxConns) // #nosec G115 - bounded by config
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute
}

func newPostgresDB(ctx context.Context, poolConfig *pgxpool.Config) (*PostgresDB, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the database connection pool
func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Pool returns the underlying connection pool
func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks if the database is reachable
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}
