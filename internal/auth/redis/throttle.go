// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package redis provides a Redis-backed reset issuance throttle shared by
// every service replica.
package redis

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/adminauth/internal/auth"
)

// DefaultKeyPrefix namespaces throttle counters.
const DefaultKeyPrefix = "adminauth:reset:"

// Throttle counts issuances per account in a fixed window. The window opens
// with the first issuance and the counter expires when it closes.
type Throttle struct {
	client goredis.Cmdable
	prefix string
}

// NewThrottle creates a Throttle. An empty prefix uses DefaultKeyPrefix.
func NewThrottle(client goredis.Cmdable, prefix string) *Throttle {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Throttle{client: client, prefix: prefix}
}

// Allow increments the account's counter and reports whether it is within
// limit. A non-positive limit.Max disables the check.
func (t *Throttle) Allow(ctx context.Context, accountID ulid.ULID, limit auth.IssueLimit) (bool, error) {
	if limit.Max <= 0 {
		return true, nil
	}
	window := limit.Window
	if window <= 0 {
		window = auth.DefaultIssueWindow
	}

	key := t.key(accountID)
	var incr *goredis.IntCmd
	_, err := t.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return false, oops.Code("THROTTLE_UNAVAILABLE").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return incr.Val() <= int64(limit.Max), nil
}

// Reset clears the account's counter.
func (t *Throttle) Reset(ctx context.Context, accountID ulid.ULID) error {
	if err := t.client.Del(ctx, t.key(accountID)).Err(); err != nil {
		return oops.Code("THROTTLE_RESET_FAILED").With("account_id", accountID.String()).Wrap(err)
	}
	return nil
}

// Ping checks connectivity.
func (t *Throttle) Ping(ctx context.Context) error {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return oops.Code("THROTTLE_UNAVAILABLE").Wrap(err)
	}
	return nil
}

func (t *Throttle) key(accountID ulid.ULID) string {
	return t.prefix + accountID.String()
}

var (
	_ auth.IssueThrottle    = (*Throttle)(nil)
	_ auth.ThrottleWindow   = (*Throttle)(nil)
	_ auth.ThrottleResetter = (*Throttle)(nil)
)

// Window returns how long until the account's current window closes. Zero
// means no window is open.
func (t *Throttle) Window(ctx context.Context, accountID ulid.ULID) (time.Duration, error) {
	ttl, err := t.client.TTL(ctx, t.key(accountID)).Result()
	if err != nil {
		return 0, oops.Code("THROTTLE_UNAVAILABLE").Wrap(err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
