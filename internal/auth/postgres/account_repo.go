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

const accountColumns = `id, username, email, password_hash, first_name, last_name,
	       role_id, is_verified, two_factor_enabled, created_at, updated_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool Pool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create stores a new account. A zero ID is replaced with a fresh ULID.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	if account.ID.IsZero() {
		account.ID = ulid.Make()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO admin_accounts (
			id, username, email, password_hash, first_name, last_name,
			role_id, is_verified, two_factor_enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		account.ID.String(),
		account.Username,
		account.Email,
		account.PasswordHash,
		account.Profile.FirstName,
		account.Profile.LastName,
		account.RoleID,
		account.IsVerified,
		account.TwoFactorEnabled,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert admin_account").
			With("username", account.Username).
			Wrap(writeError(err))
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM admin_accounts WHERE id = $1`, id.String())
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").With("id", id.String()).Wrap(err)
	}
	return account, nil
}

// GetByUsername retrieves an account by username (case-insensitive).
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM admin_accounts WHERE LOWER(username) = LOWER($1)`, username)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("username", username).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_USERNAME_FAILED").With("username", username).Wrap(err)
	}
	return account, nil
}

// GetByEmail retrieves an account by email (case-insensitive).
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM admin_accounts WHERE LOWER(email) = LOWER($1)`, email)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_EMAIL_FAILED").Wrap(err)
	}
	return account, nil
}

// Update persists the mutable fields of the account. The password hash is
// written only when passwordChanged is set; otherwise the stored hash is kept
// and read back into account, so a reset that committed after account was
// loaded survives.
func (r *AccountRepository) Update(ctx context.Context, account *auth.Account, passwordChanged bool) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE admin_accounts SET
			username = $2, email = $3,
			password_hash = CASE WHEN $11 THEN $4 ELSE password_hash END,
			first_name = $5, last_name = $6, role_id = $7, is_verified = $8,
			two_factor_enabled = $9, updated_at = $10
		WHERE id = $1
		RETURNING password_hash
	`,
		account.ID.String(),
		account.Username,
		account.Email,
		account.PasswordHash,
		account.Profile.FirstName,
		account.Profile.LastName,
		account.RoleID,
		account.IsVerified,
		account.TwoFactorEnabled,
		account.UpdatedAt,
		passwordChanged,
	).Scan(&account.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", account.ID.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "update admin_account").
			With("id", account.ID.String()).
			Wrap(writeError(err))
	}
	return nil
}

// UpdatePassword replaces only the password hash.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE admin_accounts SET password_hash = $2, updated_at = $3 WHERE id = $1
	`, id.String(), passwordHash, time.Now())
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_PASSWORD_FAILED").
			With("id", id.String()).
			Wrap(auth.StorageFailure(err))
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes an account. Its reset tokens go with it through the
// foreign key cascade.
func (r *AccountRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM admin_accounts WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "delete admin_account").
			With("id", id.String()).
			Wrap(auth.StorageFailure(err))
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanAccount scans a single row into an Account.
// Callers are responsible for handling pgx.ErrNoRows.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		a     auth.Account
		idStr string
	)
	err := row.Scan(
		&idStr,
		&a.Username,
		&a.Email,
		&a.PasswordHash,
		&a.Profile.FirstName,
		&a.Profile.LastName,
		&a.RoleID,
		&a.IsVerified,
		&a.TwoFactorEnabled,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").Wrap(auth.StorageFailure(err))
	}

	a.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").With("id", idStr).Wrap(auth.StorageFailure(err))
	}
	return &a, nil
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
