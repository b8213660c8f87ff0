// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres provides PostgreSQL implementations of auth repositories.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/holomush/adminauth/internal/auth"
)

// Unique index names from the admin_accounts migration.
const (
	constraintUsername = "admin_accounts_username_key"
	constraintEmail    = "admin_accounts_email_key"
)

// Pool is the subset of pgxpool.Pool the repositories use.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// inTx runs fn in a transaction, committing only when fn succeeds.
func inTx(ctx context.Context, pool Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(auth.StorageFailure(err))
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx) //nolint:errcheck // the fn error takes precedence
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(auth.StorageFailure(err))
	}
	return nil
}

// writeError maps unique violations to conflicts and everything else to
// storage failures.
func writeError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		switch pgErr.ConstraintName {
		case constraintEmail:
			return &auth.ConflictError{Field: auth.FieldEmail}
		case constraintUsername:
			return &auth.ConflictError{Field: auth.FieldUsername}
		}
	}
	return auth.StorageFailure(err)
}
