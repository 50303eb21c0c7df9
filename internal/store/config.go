package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplicationName tags control-plane sessions in pg_stat_activity
const ApplicationName = "modelctl"

// Config holds the Postgres pool settings for the record table. The API and
// the worker each hold one pool; the worker's optimizer and tiering passes
// are the heaviest concurrent users, so MaxConnections should cover their
// combined concurrency.
type Config struct {
	DatabaseURL       string
	MaxConnections    int
	MinConnections    int
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
	StatementTimeout  time.Duration // zero leaves the server default
}

// DefaultConfig returns pool settings sized for one control-plane process
func DefaultConfig(databaseURL string) *Config {
	return &Config{
		DatabaseURL:       databaseURL,
		MaxConnections:    10,
		MinConnections:    2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
		ConnectTimeout:    10 * time.Second,
		StatementTimeout:  30 * time.Second,
	}
}

// Validate checks the settings before a pool is opened
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database url is required")
	case c.MaxConnections < 1:
		return fmt.Errorf("max connections must be at least 1, got %d", c.MaxConnections)
	case c.MinConnections < 0 || c.MinConnections > c.MaxConnections:
		return fmt.Errorf("min connections must be between 0 and %d, got %d", c.MaxConnections, c.MinConnections)
	case c.StatementTimeout < 0:
		return fmt.Errorf("statement timeout must not be negative, got %s", c.StatementTimeout)
	}
	return nil
}

// PoolConfig translates the settings into a pgxpool configuration without
// connecting. Sessions carry ApplicationName and the statement timeout.
func PoolConfig(cfg *Config) (*pgxpool.Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	params := poolConfig.ConnConfig.RuntimeParams
	if _, ok := params["application_name"]; !ok {
		params["application_name"] = ApplicationName
	}
	if cfg.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}

	return poolConfig, nil
}

// NewPool opens and pings a connection pool
func NewPool(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	poolConfig, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
