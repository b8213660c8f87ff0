// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/holomush/adminauth/internal/auth"
)

// NewTokensCmd creates the tokens subcommand.
func NewTokensCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Maintain password reset tokens",
	}

	var timeout time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired and consumed reset tokens",
		Long: `Delete reset tokens that can no longer be redeemed. The serve command does
this periodically; run it by hand when the server is not running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd, deps, timeout, func(ctx context.Context, svc *auth.CredentialService) error {
				n, err := svc.PurgeResetTokens(ctx)
				if err != nil {
					return err
				}
				cmd.Printf("Purged %d reset token(s)\n", n)
				return nil
			})
		},
	}
	purge.Flags().DurationVar(&timeout, "timeout", defaultCommandTimeout, "timeout for database operations")
	cmd.AddCommand(purge)

	return cmd
}
