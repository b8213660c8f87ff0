// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/adminauth/internal/auth"
	"github.com/holomush/adminauth/internal/auth/postgres"
	"github.com/holomush/adminauth/internal/auth/redis"
	"github.com/holomush/adminauth/internal/config"
	"github.com/holomush/adminauth/internal/notify"
	"github.com/holomush/adminauth/internal/observability"
	"github.com/holomush/adminauth/internal/store"
)

// Deps contains injectable dependencies for the subcommands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// PoolFactory opens the database pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, cfg store.PoolConfig) (DBPool, error)

	// MigratorFactory creates a schema migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// SenderFactory builds the outbound notification sender for the
	// configured driver. The closer is called after the dispatcher drains.
	// Default: newSender
	SenderFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notify.Sender, io.Closer, error)

	// ThrottleFactory connects the reset issuance throttle.
	// Default: newRedisThrottle
	ThrottleFactory func(ctx context.Context, url string) (auth.IssueThrottle, io.Closer, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// ListenerFactory creates the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)
}

func (d *Deps) withDefaults() *Deps {
	if d == nil {
		d = &Deps{}
	}
	if d.PoolFactory == nil {
		d.PoolFactory = func(ctx context.Context, cfg store.PoolConfig) (DBPool, error) {
			return store.Connect(ctx, cfg)
		}
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if d.SenderFactory == nil {
		d.SenderFactory = newSender
	}
	if d.ThrottleFactory == nil {
		d.ThrottleFactory = newRedisThrottle
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if d.ListenerFactory == nil {
		d.ListenerFactory = net.Listen
	}
	return d
}

// DBPool wraps the methods used from pgxpool.Pool.
type DBPool interface {
	postgres.Pool
	Ping(ctx context.Context) error
	Close()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (*store.MigrationStatus, error)
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
	Registry() *prometheus.Registry
}

// newRedisThrottle connects to Redis and verifies it answers.
func newRedisThrottle(ctx context.Context, url string) (auth.IssueThrottle, io.Closer, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, nil, oops.Code("REDIS_URL_INVALID").Wrap(err)
	}
	client := goredis.NewClient(opts)
	throttle := redis.NewThrottle(client, redis.DefaultKeyPrefix)
	if err := throttle.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return throttle, client, nil
}
