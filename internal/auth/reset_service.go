// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
)

// IssuePasswordReset issues a reset token for the account registered under
// email, invalidating any live token it already had. The plaintext token is
// returned; only its hash is stored.
func (s *CredentialService) IssuePasswordReset(ctx context.Context, email string) (_ string, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "auth.issue_reset")
	defer func() {
		s.finish(span, OpIssueReset, start, err)
	}()

	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return "", err
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) && s.cfg.ConcealUnknownEmail {
			s.logger.DebugContext(ctx, "reset requested for unknown email")
			return "", nil
		}
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "GetByEmail").
			Wrap(classify(err))
	}
	span.SetAttributes(attribute.String("account.id", account.ID.String()))

	allowed, err := s.throttle.Allow(ctx, account.ID, s.cfg.IssueLimit)
	if err != nil {
		// The throttle is advisory; issuance proceeds when it is unavailable.
		s.logger.WarnContext(ctx, "reset throttle unavailable", "account_id", account.ID.String(), "error", err)
	} else if !allowed {
		return "", oops.Code("RESET_THROTTLED").
			With("account_id", account.ID.String()).
			Wrap(s.throttled(ctx, account.ID))
	}

	token, err := s.tokens.Generate()
	if err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").With("operation", "Generate").Wrap(err)
	}

	reset, err := NewResetToken(account.ID, HashResetToken(token), s.now(), s.cfg.ResetTokenTTL)
	if err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").With("operation", "NewResetToken").Wrap(err)
	}

	if err := s.resets.Issue(ctx, reset); err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "Issue").
			With("account_id", account.ID.String()).
			Wrap(classify(err))
	}
	s.logger.InfoContext(ctx, "password reset issued",
		"account_id", account.ID.String(),
		"expires_at", reset.ExpiresAt,
	)

	vars := profileVars(account)
	vars[VarResetLink] = s.ResetLink(token)
	vars[VarExpiresIn] = s.cfg.ResetTokenTTL.String()
	s.notify(ctx, Notification{Kind: NotifyPasswordReset, To: account.Email, Vars: vars})

	return token, nil
}

// ValidateResetToken reports whether token is currently redeemable without
// consuming it.
func (s *CredentialService) ValidateResetToken(ctx context.Context, token string) (_ *ResetToken, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "auth.validate_reset")
	defer func() {
		s.finish(span, OpValidateReset, start, err)
	}()
	return s.lookupToken(ctx, token)
}

func (s *CredentialService) lookupToken(ctx context.Context, token string) (*ResetToken, error) {
	if token == "" {
		return nil, oops.Code("RESET_TOKEN_EMPTY").Wrap(ErrInvalidToken)
	}

	reset, err := s.resets.GetByTokenHash(ctx, HashResetToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("RESET_TOKEN_INVALID").Wrap(ErrInvalidToken)
		}
		return nil, oops.Code("RESET_VALIDATE_FAILED").
			With("operation", "GetByTokenHash").
			Wrap(classify(err))
	}

	// Expiry is reported before consumption.
	if reset.IsExpired(s.now()) {
		return nil, oops.Code("RESET_TOKEN_EXPIRED").Wrap(ErrExpiredToken)
	}
	if reset.Consumed {
		return nil, oops.Code("RESET_TOKEN_CONSUMED").Wrap(ErrInvalidToken)
	}
	return reset, nil
}

// RedeemPasswordReset sets a new password using a live reset token. The
// token is consumed and the password replaced as one atomic step, so
// concurrent redemptions of one token yield exactly one success.
func (s *CredentialService) RedeemPasswordReset(ctx context.Context, token, newPassword string) (err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "auth.redeem_reset")
	defer func() {
		s.finish(span, OpRedeemReset, start, err)
	}()

	if newPassword == "" {
		return oops.Code("RESET_PASSWORD_EMPTY").Wrap(NewValidationError("newPassword", "cannot be blank"))
	}
	if len([]rune(newPassword)) > MaxPasswordLength {
		return oops.Code("RESET_PASSWORD_INVALID").Wrap(NewValidationError("newPassword", "is too long"))
	}

	reset, err := s.lookupToken(ctx, token)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "Hash").Wrap(err)
	}

	accountID, err := s.resets.Redeem(ctx, reset.TokenHash, hash, s.now())
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "Redeem").
			With("account_id", reset.AccountID.String()).
			Wrap(classify(err))
	}
	span.SetAttributes(attribute.String("account.id", accountID.String()))
	s.logger.InfoContext(ctx, "password reset redeemed", "account_id", accountID.String())
	s.clearThrottle(ctx, accountID)

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		s.logger.WarnContext(ctx, "password changed notification skipped",
			"account_id", accountID.String(),
			"error", err,
		)
		return nil
	}
	s.notify(ctx, Notification{Kind: NotifyPasswordChanged, To: account.Email, Vars: profileVars(account)})
	return nil
}

func (s *CredentialService) throttled(ctx context.Context, accountID ulid.ULID) *ThrottledError {
	te := &ThrottledError{}
	w, ok := s.throttle.(ThrottleWindow)
	if !ok {
		return te
	}
	remaining, err := w.Window(ctx, accountID)
	if err != nil {
		s.logger.DebugContext(ctx, "throttle window unavailable", "account_id", accountID.String(), "error", err)
		return te
	}
	te.RetryAfter = remaining
	return te
}

// clearThrottle restores the issuance budget once a reset has been used.
func (s *CredentialService) clearThrottle(ctx context.Context, accountID ulid.ULID) {
	r, ok := s.throttle.(ThrottleResetter)
	if !ok {
		return
	}
	if err := r.Reset(ctx, accountID); err != nil {
		s.logger.WarnContext(ctx, "reset throttle not cleared", "account_id", accountID.String(), "error", err)
	}
}

// PurgeResetTokens deletes reset tokens that can no longer be redeemed.
func (s *CredentialService) PurgeResetTokens(ctx context.Context) (_ int64, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "auth.purge_tokens")
	defer func() {
		s.finish(span, OpPurgeTokens, start, err)
	}()

	n, err := s.resets.DeleteInactive(ctx, s.now())
	if err != nil {
		return 0, oops.Code("RESET_PURGE_FAILED").Wrap(classify(err))
	}
	TokensPurged.Add(float64(n))
	if n > 0 {
		s.logger.InfoContext(ctx, "reset tokens purged", "count", n)
	}
	return n, nil
}
