// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/holomush/adminauth/pkg/errutil"
)

// DefaultPurgeInterval is how often the janitor removes dead reset tokens.
const DefaultPurgeInterval = 15 * time.Minute

// TokenPurger deletes reset tokens that can no longer be redeemed.
type TokenPurger interface {
	PurgeResetTokens(ctx context.Context) (int64, error)
}

// TokenJanitor periodically purges expired and consumed reset tokens.
type TokenJanitor struct {
	purger   TokenPurger
	interval time.Duration
	logger   *slog.Logger
}

// NewTokenJanitor creates a TokenJanitor. A non-positive interval uses
// DefaultPurgeInterval.
func NewTokenJanitor(purger TokenPurger, interval time.Duration, logger *slog.Logger) *TokenJanitor {
	if interval <= 0 {
		interval = DefaultPurgeInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenJanitor{purger: purger, interval: interval, logger: logger}
}

// Run purges once per interval until ctx is cancelled.
func (j *TokenJanitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.purger.PurgeResetTokens(ctx); err != nil && ctx.Err() == nil {
				errutil.LogErrorContext(ctx, j.logger, "reset token purge failed", err)
			}
		}
	}
}
