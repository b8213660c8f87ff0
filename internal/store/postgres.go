// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// PoolConfig describes the connection pool.
type PoolConfig struct {
	URL             string
	MaxConns        int32
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
	ConnectAttempts uint64
}

// Connect opens a pgx pool and pings it, retrying with exponential backoff
// until the database answers or ConnectAttempts is exhausted.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.ConnectTimeout > 0 {
		pcfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}
	backoff := retry.WithMaxRetries(attempts-1, retry.WithCappedDuration(5*time.Second, retry.NewExponential(250*time.Millisecond)))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			slog.WarnContext(ctx, "database not reachable yet", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("attempts", attempts).Wrap(err)
	}
	return pool, nil
}
