// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/adminauth/internal/auth"
)

// Default timeout for one-shot database commands.
const defaultCommandTimeout = 30 * time.Second

// bootstrapPasswordEnv supplies the password when --password is empty, keeping
// it out of shell history.
const bootstrapPasswordEnv = "ADMINAUTH_BOOTSTRAP_PASSWORD"

// bootstrapConfig holds configuration for the bootstrap command.
type bootstrapConfig struct {
	username  string
	email     string
	password  string
	firstName string
	lastName  string
	roleID    string
	timeout   time.Duration
}

// NewBootstrapCmd creates the bootstrap subcommand.
func NewBootstrapCmd(deps *Deps) *cobra.Command {
	cfg := &bootstrapConfig{}

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Register the first administrator",
		Long: `Register an administrator directly against the database, without a welcome
notification. Running it again for an existing username or email is a no-op.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBootstrap(cmd, deps, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.username, "username", "", "administrator username")
	cmd.Flags().StringVar(&cfg.email, "email", "", "administrator email")
	cmd.Flags().StringVar(&cfg.password, "password", "", "initial password (default: $"+bootstrapPasswordEnv+")")
	cmd.Flags().StringVar(&cfg.firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&cfg.lastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&cfg.roleID, "role-id", "superadmin", "role identifier")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultCommandTimeout, "timeout for database operations (e.g., 30s, 1m)")

	return cmd
}

func runBootstrap(cmd *cobra.Command, deps *Deps, cfg *bootstrapConfig) error {
	password := cfg.password
	if password == "" {
		password = os.Getenv(bootstrapPasswordEnv)
	}

	in := auth.RegisterInput{
		Username: cfg.username,
		Email:    cfg.email,
		Password: password,
		RoleID:   cfg.roleID,
		Profile:  &auth.Profile{FirstName: cfg.firstName, LastName: cfg.lastName},
	}

	return withService(cmd, deps, cfg.timeout, func(ctx context.Context, svc *auth.CredentialService) error {
		account, err := svc.Register(ctx, in)
		if err != nil {
			if field, ok := auth.ConflictField(err); ok {
				cmd.Printf("An administrator with this %s already exists, skipping\n", field)
				return nil
			}
			return err
		}
		slog.Info("administrator bootstrapped", "account_id", account.ID.String(), "username", account.Username)
		cmd.Printf("Registered administrator %s (%s)\n", account.Username, account.ID)
		return nil
	})
}

// withService opens the database, builds a credential service that sends no
// notifications, and runs fn within timeout.
func withService(
	cmd *cobra.Command,
	deps *Deps,
	timeout time.Duration,
	fn func(ctx context.Context, svc *auth.CredentialService) error,
) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	pool, err := deps.PoolFactory(ctx, cfg.PoolConfig())
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	svc, err := newService(pool, cfg, auth.WithNotifier(auth.NopNotifier{}))
	if err != nil {
		return err
	}
	if err := fn(ctx, svc); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return oops.Code("COMMAND_TIMEOUT").With("timeout", timeout.String()).Wrap(err)
		}
		return err
	}
	return nil
}
