// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/adminauth/internal/auth"
	"github.com/holomush/adminauth/internal/auth/postgres"
	"github.com/holomush/adminauth/internal/config"
	"github.com/holomush/adminauth/internal/httpapi"
	"github.com/holomush/adminauth/internal/notify"
	"github.com/holomush/adminauth/internal/observability"
	"github.com/holomush/adminauth/pkg/errutil"
)

// HTTP server timeouts.
const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 120 * time.Second

	defaultShutdownTimeout = 10 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the credential API",
		Long: `Run the JSON API for administrator accounts and password resets,
together with the metrics endpoint and the expired token janitor.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, deps)
		},
	}
}

// newHasher returns an argon2id hasher that also verifies, and upgrades,
// legacy bcrypt hashes.
func newHasher(cfg *config.Config) (auth.PasswordHasher, error) {
	primary, err := auth.NewArgon2idHasherWithParams(cfg.Argon2Params())
	if err != nil {
		return nil, err
	}
	return auth.NewUpgradingHasher(primary, auth.NewBcryptHasher(auth.LegacyBcryptCost)), nil
}

// newService wires the credential service to the PostgreSQL repositories.
func newService(pool postgres.Pool, cfg *config.Config, opts ...auth.Option) (*auth.CredentialService, error) {
	hasher, err := newHasher(cfg)
	if err != nil {
		return nil, oops.Code("SERVICE_INIT_FAILED").With("operation", "hasher").Wrap(err)
	}
	return auth.NewCredentialService(
		postgres.NewAccountRepository(pool),
		postgres.NewResetTokenRepository(pool),
		hasher,
		cfg.AuthConfig(),
		opts...,
	)
}

// applyMigrations brings the schema up to date.
func applyMigrations(deps *Deps, databaseURL string) error {
	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Debug("error closing migrator", "error", closeErr)
		}
	}()
	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").Wrap(err)
	}
	slog.Info("database schema up to date")
	return nil
}

// runServeWithDeps runs the API with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *Deps) error {
	deps = deps.withDefaults()
	logger := slog.Default()

	logger.Info("starting adminauth",
		"version", version,
		"http_addr", cfg.Server.HTTPAddr,
		"notify_driver", cfg.Notify.Driver,
	)

	if cfg.Database.AutoMigrate {
		if err := applyMigrations(deps, cfg.Database.URL); err != nil {
			return err
		}
	}

	pool, err := deps.PoolFactory(ctx, cfg.PoolConfig())
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	var throttle auth.IssueThrottle = auth.NoThrottle{}
	var throttleCloser io.Closer = nopCloser{}
	if cfg.Redis.URL != "" {
		throttle, throttleCloser, err = deps.ThrottleFactory(ctx, cfg.Redis.URL)
		if err != nil {
			return oops.Code("THROTTLE_INIT_FAILED").Wrap(err)
		}
		logger.Info("reset issuance throttle enabled",
			"limit", cfg.Reset.IssueLimit,
			"window", cfg.Reset.IssueWindow,
		)
	}
	defer closeQuietly(throttleCloser, "throttle")

	catalog, err := loadCatalog(cfg.Notify.TemplatesFile)
	if err != nil {
		return oops.Code("TEMPLATES_INIT_FAILED").Wrap(err)
	}
	sender, senderCloser, err := deps.SenderFactory(ctx, cfg, logger)
	if err != nil {
		return oops.Code("NOTIFY_INIT_FAILED").With("driver", cfg.Notify.Driver).Wrap(err)
	}
	defer closeQuietly(senderCloser, "notification sender")
	dispatcher := notify.NewDispatcher(sender, catalog, cfg.DispatcherConfig(), logger)

	svc, err := newService(pool, cfg,
		auth.WithNotifier(dispatcher),
		auth.WithThrottle(throttle),
		auth.WithLogger(logger),
	)
	if err != nil {
		_ = dispatcher.Close(context.Background())
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	var apiMetrics *observability.Metrics
	if cfg.Server.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Server.MetricsAddr, func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
		auth.RegisterMetrics(obsServer.Registry())
		notify.RegisterMetrics(obsServer.Registry())
		obsErrChan, startErr := obsServer.Start()
		if startErr != nil {
			_ = dispatcher.Close(context.Background())
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(startErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		apiMetrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	router, err := httpapi.NewRouter(svc, httpapi.Options{
		AllowedOrigins:  cfg.Server.CORSAllowedOrigins,
		ExposeResetLink: cfg.Reset.ExposeLink,
		Metrics:         apiMetrics,
		Logger:          logger,
	})
	if err != nil {
		stopAll(logger, cfg, nil, obsServer, dispatcher)
		return err
	}

	listener, err := deps.ListenerFactory("tcp", cfg.Server.HTTPAddr)
	if err != nil {
		stopAll(logger, cfg, nil, obsServer, dispatcher)
		return oops.Code("LISTEN_FAILED").With("addr", cfg.Server.HTTPAddr).Wrap(err)
	}
	apiServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	apiErrChan := make(chan error, 1)
	go func() {
		defer close(apiErrChan)
		if serveErr := apiServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			apiErrChan <- serveErr
		}
	}()
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		auth.NewTokenJanitor(svc, cfg.Reset.PurgeInterval, logger).Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("adminauth listening on " + listener.Addr().String())
	logger.Info("api server ready", "addr", listener.Addr().String())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	cancel()
	<-janitorDone
	stopAll(logger, cfg, apiServer, obsServer, dispatcher)
	logger.Info("shutdown complete")
	return nil
}

// stopAll shuts servers down in dependency order: the API first so no new
// notifications are queued, then the dispatcher drains.
func stopAll(logger *slog.Logger, cfg *config.Config, api *http.Server, obs ObservabilityServer, dispatcher *notify.Dispatcher) {
	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if api != nil {
		if err := api.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error stopping api server", "error", err)
		}
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		errutil.LogError(logger, "notification queue not drained", err)
	}
	if obs != nil {
		if err := obs.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}
}

func closeQuietly(c io.Closer, name string) {
	if err := c.Close(); err != nil {
		slog.Debug("error closing "+name, "error", err)
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
