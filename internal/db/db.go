package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Config describes a postgres connection pool.
type Config struct {
	Addr         string
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  string

	// ConnectAttempts bounds how many pings are tried before giving up,
	// RetryDelay apart. Values below 1 mean a single attempt.
	ConnectAttempts int
	RetryDelay      time.Duration
}

// New opens the pool and waits until the server answers a ping.
func New(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	idle, err := time.ParseDuration(cfg.MaxIdleTime)
	if err != nil {
		return nil, fmt.Errorf("invalid max idle time %q: %w", cfg.MaxIdleTime, err)
	}

	conn, err := sqlx.Open("postgres", cfg.Addr)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxIdleTime(idle)

	attempts := max(cfg.ConnectAttempts, 1)
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	for attempt := 1; ; attempt++ {
		if err = ping(ctx, conn); err == nil {
			return conn, nil
		}
		if attempt >= attempts {
			break
		}
		select {
		case <-ctx.Done():
			conn.Close()
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	conn.Close()
	return nil, fmt.Errorf("ping database after %d attempt(s): %w", attempts, err)
}

func ping(ctx context.Context, conn *sqlx.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.PingContext(ctx)
}
