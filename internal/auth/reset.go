// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes  = 32        // 32 bytes = 64 hex chars
	ResetTokenExpiry = time.Hour // default TTL
	minTokenBytes    = 16        // 128 bits
)

// ResetToken is an outstanding password reset grant. Only the SHA-256 digest
// of the opaque token is kept; the plaintext leaves the service exactly once.
type ResetToken struct {
	ID         ulid.ULID
	AccountID  ulid.ULID
	TokenHash  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Consumed   bool
	ConsumedAt *time.Time
}

// NewResetToken creates a ResetToken issued at now with the given TTL.
func NewResetToken(accountID ulid.ULID, tokenHash string, now time.Time, ttl time.Duration) (*ResetToken, error) {
	if accountID.IsZero() {
		return nil, oops.Code("RESET_INVALID_ACCOUNT").Errorf("account ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("RESET_INVALID_TOKEN_HASH").Errorf("token hash cannot be empty")
	}
	if ttl <= 0 {
		return nil, oops.Code("RESET_INVALID_TTL").Errorf("ttl must be positive, got %s", ttl)
	}
	return &ResetToken{
		ID:        ulid.Make(),
		AccountID: accountID,
		TokenHash: tokenHash,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// IsExpired reports whether the token can no longer be redeemed at now.
// Tokens are redeemable strictly before ExpiresAt.
func (r *ResetToken) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// TokenGenerator produces opaque, unguessable tokens.
type TokenGenerator interface {
	Generate() (string, error)
}

// RandomTokenGenerator draws hex-encoded tokens from crypto/rand.
type RandomTokenGenerator struct {
	size   int
	source io.Reader
}

// NewRandomTokenGenerator creates a generator emitting size random bytes per
// token. Sizes below 16 bytes are raised to 16.
func NewRandomTokenGenerator(size int) *RandomTokenGenerator {
	if size < minTokenBytes {
		size = minTokenBytes
	}
	return &RandomTokenGenerator{size: size, source: rand.Reader}
}

// Generate returns a new hex-encoded token.
func (g *RandomTokenGenerator) Generate() (string, error) {
	buf := make([]byte, g.size)
	if _, err := io.ReadFull(g.source, buf); err != nil {
		return "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrapf(ErrHashing, "read random bytes: %v", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashResetToken computes the hex SHA-256 digest under which a token is stored.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// ResetTokenRepository manages reset token persistence.
type ResetTokenRepository interface {
	// Issue invalidates every live token of the account and stores the new one
	// as a single atomic step.
	Issue(ctx context.Context, token *ResetToken) error

	// GetByTokenHash retrieves a token by its hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*ResetToken, error)

	// Redeem atomically marks the token consumed and sets the account's
	// password hash. It succeeds only if the token is unconsumed and
	// now is before its expiry; otherwise it returns ErrInvalidToken or
	// ErrExpiredToken and changes nothing.
	Redeem(ctx context.Context, tokenHash, passwordHash string, now time.Time) (ulid.ULID, error)

	// DeleteInactive removes tokens that expired or were consumed before cutoff.
	DeleteInactive(ctx context.Context, cutoff time.Time) (int64, error)
}
