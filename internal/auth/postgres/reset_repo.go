// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/adminauth/internal/auth"
)

// ResetTokenRepository implements auth.ResetTokenRepository using PostgreSQL.
type ResetTokenRepository struct {
	pool Pool
}

// NewResetTokenRepository creates a new ResetTokenRepository.
func NewResetTokenRepository(pool Pool) *ResetTokenRepository {
	return &ResetTokenRepository{pool: pool}
}

// Issue invalidates the account's live tokens and stores the new one. The
// account row is locked so concurrent issues for one account serialize.
func (r *ResetTokenRepository) Issue(ctx context.Context, token *auth.ResetToken) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx, `SELECT id FROM admin_accounts WHERE id = $1 FOR UPDATE`,
			token.AccountID.String()).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return oops.Code("ACCOUNT_NOT_FOUND").
				With("account_id", token.AccountID.String()).
				Wrap(auth.ErrNotFound)
		}
		if err != nil {
			return oops.Code("RESET_ISSUE_FAILED").
				With("operation", "lock admin_account").
				Wrap(auth.StorageFailure(err))
		}

		if _, err := tx.Exec(ctx, `
			UPDATE reset_tokens SET consumed = TRUE, consumed_at = $2
			WHERE account_id = $1 AND NOT consumed
		`, token.AccountID.String(), token.IssuedAt); err != nil {
			return oops.Code("RESET_ISSUE_FAILED").
				With("operation", "invalidate live reset_tokens").
				Wrap(auth.StorageFailure(err))
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO reset_tokens (id, account_id, token_hash, issued_at, expires_at, consumed)
			VALUES ($1, $2, $3, $4, $5, FALSE)
		`, token.ID.String(), token.AccountID.String(), token.TokenHash, token.IssuedAt, token.ExpiresAt); err != nil {
			return oops.Code("RESET_ISSUE_FAILED").
				With("operation", "insert reset_token").
				With("account_id", token.AccountID.String()).
				Wrap(auth.StorageFailure(err))
		}
		return nil
	})
}

// GetByTokenHash retrieves a token by its hash.
func (r *ResetTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.ResetToken, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, account_id, token_hash, issued_at, expires_at, consumed, consumed_at
		FROM reset_tokens
		WHERE token_hash = $1
	`, tokenHash)

	token, err := scanResetToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

// Redeem consumes the token and sets the password hash in one transaction.
// The conditional update is the single-use guard: of any number of
// concurrent callers, only one sees a returned row.
func (r *ResetTokenRepository) Redeem(ctx context.Context, tokenHash, passwordHash string, now time.Time) (ulid.ULID, error) {
	var accountID ulid.ULID
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		var idStr string
		err := tx.QueryRow(ctx, `
			UPDATE reset_tokens SET consumed = TRUE, consumed_at = $2
			WHERE token_hash = $1 AND NOT consumed AND expires_at > $2
			RETURNING account_id
		`, tokenHash, now).Scan(&idStr)
		if errors.Is(err, pgx.ErrNoRows) {
			return r.rejection(ctx, tx, tokenHash, now)
		}
		if err != nil {
			return oops.Code("RESET_REDEEM_FAILED").
				With("operation", "consume reset_token").
				Wrap(auth.StorageFailure(err))
		}

		accountID, err = ulid.Parse(idStr)
		if err != nil {
			return oops.Code("RESET_INVALID_ACCOUNT_ID").
				With("account_id", idStr).
				Wrap(auth.StorageFailure(err))
		}

		result, err := tx.Exec(ctx, `
			UPDATE admin_accounts SET password_hash = $2, updated_at = $3 WHERE id = $1
		`, idStr, passwordHash, now)
		if err != nil {
			return oops.Code("RESET_REDEEM_FAILED").
				With("operation", "update password").
				With("account_id", idStr).
				Wrap(auth.StorageFailure(err))
		}
		if result.RowsAffected() == 0 {
			return oops.Code("ACCOUNT_NOT_FOUND").With("account_id", idStr).Wrap(auth.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return ulid.ULID{}, err
	}
	return accountID, nil
}

// rejection explains why the guarded update matched nothing. Expiry is
// reported ahead of consumption.
func (r *ResetTokenRepository) rejection(ctx context.Context, tx pgx.Tx, tokenHash string, now time.Time) error {
	var (
		consumed  bool
		expiresAt time.Time
	)
	err := tx.QueryRow(ctx, `SELECT consumed, expires_at FROM reset_tokens WHERE token_hash = $1`,
		tokenHash).Scan(&consumed, &expiresAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return oops.Code("RESET_TOKEN_INVALID").Wrap(auth.ErrInvalidToken)
	case err != nil:
		return oops.Code("RESET_REDEEM_FAILED").
			With("operation", "inspect reset_token").
			Wrap(auth.StorageFailure(err))
	case !now.Before(expiresAt):
		return oops.Code("RESET_TOKEN_EXPIRED").Wrap(auth.ErrExpiredToken)
	default:
		return oops.Code("RESET_TOKEN_CONSUMED").With("consumed", consumed).Wrap(auth.ErrInvalidToken)
	}
}

// DeleteInactive removes tokens that expired, or were consumed, at or before
// cutoff.
func (r *ResetTokenRepository) DeleteInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM reset_tokens
		WHERE expires_at <= $1 OR (consumed AND consumed_at <= $1)
	`, cutoff)
	if err != nil {
		return 0, oops.Code("RESET_DELETE_INACTIVE_FAILED").
			With("operation", "delete inactive reset_tokens").
			Wrap(auth.StorageFailure(err))
	}
	return result.RowsAffected(), nil
}

// scanResetToken scans a single row into a ResetToken.
// Callers are responsible for handling pgx.ErrNoRows.
func scanResetToken(row pgx.Row) (*auth.ResetToken, error) {
	var (
		t            auth.ResetToken
		idStr        string
		accountIDStr string
	)

	err := row.Scan(&idStr, &accountIDStr, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &t.Consumed, &t.ConsumedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("RESET_SCAN_FAILED").
			With("operation", "scan reset_token").
			Wrap(auth.StorageFailure(err))
	}

	t.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("RESET_INVALID_ID").
			With("id", idStr).
			Wrap(auth.StorageFailure(err))
	}

	t.AccountID, err = ulid.Parse(accountIDStr)
	if err != nil {
		return nil, oops.Code("RESET_INVALID_ACCOUNT_ID").
			With("account_id", accountIDStr).
			Wrap(auth.StorageFailure(err))
	}
	return &t, nil
}

var _ auth.ResetTokenRepository = (*ResetTokenRepository)(nil)
