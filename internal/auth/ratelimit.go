// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Reset issuance limits.
const (
	DefaultIssueLimit  = 5
	DefaultIssueWindow = time.Hour
)

// IssueLimit bounds how many reset tokens one account may be issued per window.
type IssueLimit struct {
	Max    int
	Window time.Duration
}

// DefaultIssueLimitPolicy returns the default issuance limit.
func DefaultIssueLimitPolicy() IssueLimit {
	return IssueLimit{Max: DefaultIssueLimit, Window: DefaultIssueWindow}
}

// IssueThrottle counts reset issuances per account.
type IssueThrottle interface {
	// Allow records one issuance attempt for the account and reports whether
	// it is within the limit.
	Allow(ctx context.Context, accountID ulid.ULID, limit IssueLimit) (bool, error)
}

// ThrottleWindow is implemented by throttles that can report how long an
// account stays limited.
type ThrottleWindow interface {
	Window(ctx context.Context, accountID ulid.ULID) (time.Duration, error)
}

// ThrottleResetter is implemented by throttles that can clear an account's
// issuance count.
type ThrottleResetter interface {
	Reset(ctx context.Context, accountID ulid.ULID) error
}

// NoThrottle allows every issuance.
type NoThrottle struct{}

// Allow always returns true.
func (NoThrottle) Allow(context.Context, ulid.ULID, IssueLimit) (bool, error) {
	return true, nil
}
