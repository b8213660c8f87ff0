// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/adminauth/internal/auth"
	"github.com/holomush/adminauth/internal/auth/authtest"
	"github.com/holomush/adminauth/internal/auth/mocks"
	"github.com/holomush/adminauth/pkg/errutil"
)

const testToken = "0f1e2d3c4b5a69788796a5b4c3d2e1f00f1e2d3c4b5a69788796a5b4c3d2e1f0"

func TestCredentialService_IssuePasswordReset(t *testing.T) {
	account := &auth.Account{
		ID:       ulid.Make(),
		Username: "jdoe",
		Email:    "jdoe@example.com",
		Profile:  auth.Profile{FirstName: "Jane", LastName: "Doe"},
	}
	cfg := auth.DefaultConfig()
	cfg.PublicURL = "https://admin.example.com"

	t.Run("issues token and notifies with link", func(t *testing.T) {
		svc, deps := newTestService(t, cfg)

		deps.accounts.On("GetByEmail", mock.Anything, "jdoe@example.com").Return(account, nil)
		deps.throttle.On("Allow", mock.Anything, account.ID, cfg.IssueLimit).Return(true, nil)
		deps.tokens.On("Generate").Return(testToken, nil)
		deps.resets.On("Issue", mock.Anything, mock.MatchedBy(func(r *auth.ResetToken) bool {
			return r.AccountID == account.ID &&
				r.TokenHash == auth.HashResetToken(testToken) &&
				r.IssuedAt.Equal(fixedNow) &&
				r.ExpiresAt.Equal(fixedNow.Add(auth.ResetTokenExpiry)) &&
				!r.Consumed
		})).Return(nil)
		deps.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n auth.Notification) bool {
			return n.Kind == auth.NotifyPasswordReset &&
				n.To == "jdoe@example.com" &&
				n.Vars[auth.VarResetLink] == "https://admin.example.com/resetpassword/"+testToken &&
				n.Vars[auth.VarExpiresIn] == "1h0m0s" &&
				n.Vars[auth.VarFirstName] == "Jane"
		})).Return(nil)

		token, err := svc.IssuePasswordReset(context.Background(), " JDoe@example.com")
		require.NoError(t, err)
		assert.Equal(t, testToken, token)
	})

	t.Run("stored hash differs from returned token", func(t *testing.T) {
		svc, deps := newTestService(t, cfg)
		var stored *auth.ResetToken

		deps.accounts.On("GetByEmail", mock.Anything, mock.Anything).Return(account, nil)
		deps.throttle.On("Allow", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
		deps.tokens.On("Generate").Return(testToken, nil)
		deps.resets.On("Issue", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			stored = args.Get(1).(*auth.ResetToken)
		}).Return(nil)
		deps.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

		token, err := svc.IssuePasswordReset(context.Background(), account.Email)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.NotEqual(t, token, stored.TokenHash)
		assert.Equal(t, auth.HashResetToken(token), stored.TokenHash)
	})

	t.Run("unknown email is not found", func(t *testing.T) {
		svc, deps := newTestService(t, cfg)
		deps.accounts.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, auth.ErrNotFound)

		_, err := svc.IssuePasswordReset(context.Background(), "ghost@example.com")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, "RESET_REQUEST_FAILED")
		deps.resets.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything)
	})

	t.Run("unknown email is concealed when configured", func(t *testing.T) {
		concealed := cfg
		concealed.ConcealUnknownEmail = true
		svc, deps := newTestService(t, concealed)
		deps.accounts.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, auth.ErrNotFound)

		token, err := svc.IssuePasswordReset(context.Background(), "ghost@example.com")
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("malformed email is a validation error", func(t *testing.T) {
		svc, _ := newTestService(t, cfg)

		_, err := svc.IssuePasswordReset(context.Background(), "not-an-email")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrValidation)
	})

	t.Run("throttled", func(t *testing.T) {
		svc, deps := newTestService(t, cfg)
		deps.accounts.On("GetByEmail", mock.Anything, mock.Anything).Return(account, nil)
		deps.throttle.On("Allow", mock.Anything, account.ID, mock.Anything).Return(false, nil)

		_, err := svc.IssuePasswordReset(context.Background(), account.Email)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrThrottled)
		errutil.AssertErrorCode(t, err, "RESET_THROTTLED")
		deps.tokens.AssertNotCalled(t, "Generate")
	})

	t.Run("throttled reports remaining window", func(t *testing.T) {
		throttle := &windowThrottle{remaining: 42 * time.Minute}
		svc, deps := newTestService(t, cfg, auth.WithThrottle(throttle))
		deps.accounts.On("GetByEmail", mock.Anything, mock.Anything).Return(account, nil)

		_, err := svc.IssuePasswordReset(context.Background(), account.Email)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrThrottled)
		retry, ok := auth.RetryAfter(err)
		require.True(t, ok)
		assert.Equal(t, 42*time.Minute, retry)
	})

	t.Run("throttle outage does not block issuance", func(t *testing.T) {
		svc, deps := newTestService(t, cfg)
		deps.accounts.On("GetByEmail", mock.Anything, mock.Anything).Return(account, nil)
		deps.throttle.On("Allow", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("redis down"))
		deps.tokens.On("Generate").Return(testToken, nil)
		deps.resets.On("Issue", mock.Anything, mock.Anything).Return(nil)
		deps.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

		token, err := svc.IssuePasswordReset(context.Background(), account.Email)
		require.NoError(t, err)
		assert.Equal(t, testToken, token)
	})

	t.Run("storage failure on issue", func(t *testing.T) {
		svc, deps := newTestService(t, cfg)
		deps.accounts.On("GetByEmail", mock.Anything, mock.Anything).Return(account, nil)
		deps.throttle.On("Allow", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
		deps.tokens.On("Generate").Return(testToken, nil)
		deps.resets.On("Issue", mock.Anything, mock.Anything).Return(errors.New("disk full"))

		_, err := svc.IssuePasswordReset(context.Background(), account.Email)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrStorage)
		errutil.AssertErrorContext(t, err, "operation", "Issue")
		deps.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
	})
}

func TestCredentialService_ValidateResetToken(t *testing.T) {
	accountID := ulid.Make()
	hash := auth.HashResetToken(testToken)

	tests := []struct {
		name    string
		token   string
		stored  *auth.ResetToken
		repoErr error
		wantErr error
		code    string
	}{
		{
			name:   "live token",
			token:  testToken,
			stored: &auth.ResetToken{AccountID: accountID, TokenHash: hash, ExpiresAt: fixedNow.Add(time.Minute)},
		},
		{
			name:    "empty token",
			token:   "",
			wantErr: auth.ErrInvalidToken,
			code:    "RESET_TOKEN_EMPTY",
		},
		{
			name:    "unknown token",
			token:   testToken,
			repoErr: auth.ErrNotFound,
			wantErr: auth.ErrInvalidToken,
			code:    "RESET_TOKEN_INVALID",
		},
		{
			name:    "expired token",
			token:   testToken,
			stored:  &auth.ResetToken{AccountID: accountID, TokenHash: hash, ExpiresAt: fixedNow},
			wantErr: auth.ErrExpiredToken,
			code:    "RESET_TOKEN_EXPIRED",
		},
		{
			name:    "consumed token",
			token:   testToken,
			stored:  &auth.ResetToken{AccountID: accountID, TokenHash: hash, ExpiresAt: fixedNow.Add(time.Minute), Consumed: true},
			wantErr: auth.ErrInvalidToken,
			code:    "RESET_TOKEN_CONSUMED",
		},
		{
			name:    "expired and consumed reports expiry",
			token:   testToken,
			stored:  &auth.ResetToken{AccountID: accountID, TokenHash: hash, ExpiresAt: fixedNow.Add(-time.Minute), Consumed: true},
			wantErr: auth.ErrExpiredToken,
			code:    "RESET_TOKEN_EXPIRED",
		},
		{
			name:    "storage failure",
			token:   testToken,
			repoErr: errors.New("connection reset"),
			wantErr: auth.ErrStorage,
			code:    "RESET_VALIDATE_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, deps := newTestService(t, auth.DefaultConfig())
			if tt.token != "" {
				deps.resets.On("GetByTokenHash", mock.Anything, hash).Return(tt.stored, tt.repoErr)
			}

			got, err := svc.ValidateResetToken(context.Background(), tt.token)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, accountID, got.AccountID)
				return
			}
			require.Error(t, err)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, tt.wantErr)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestCredentialService_RedeemPasswordReset(t *testing.T) {
	account := &auth.Account{ID: ulid.Make(), Username: "jdoe", Email: "jdoe@example.com"}
	hash := auth.HashResetToken(testToken)
	live := func() *auth.ResetToken {
		return &auth.ResetToken{AccountID: account.ID, TokenHash: hash, ExpiresAt: fixedNow.Add(time.Minute)}
	}

	t.Run("sets new password and notifies", func(t *testing.T) {
		svc, deps := newTestService(t, auth.DefaultConfig())
		deps.resets.On("GetByTokenHash", mock.Anything, hash).Return(live(), nil)
		deps.hasher.On("Hash", "n3w-password").Return("$argon2id$new", nil)
		deps.resets.On("Redeem", mock.Anything, hash, "$argon2id$new", fixedNow).Return(account.ID, nil)
		deps.accounts.On("GetByID", mock.Anything, account.ID).Return(account, nil)
		deps.notifier.On("Notify", mock.Anything, notificationOf(auth.NotifyPasswordChanged, account.Email)).Return(nil)

		require.NoError(t, svc.RedeemPasswordReset(context.Background(), testToken, "n3w-password"))
	})

	t.Run("empty password is rejected before lookup", func(t *testing.T) {
		svc, _ := newTestService(t, auth.DefaultConfig())

		err := svc.RedeemPasswordReset(context.Background(), testToken, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrValidation)
		errutil.AssertErrorCode(t, err, "RESET_PASSWORD_EMPTY")
	})

	t.Run("expired token changes nothing", func(t *testing.T) {
		svc, deps := newTestService(t, auth.DefaultConfig())
		expired := live()
		expired.ExpiresAt = fixedNow.Add(-time.Second)
		deps.resets.On("GetByTokenHash", mock.Anything, hash).Return(expired, nil)

		err := svc.RedeemPasswordReset(context.Background(), testToken, "n3w-password")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrExpiredToken)
		deps.hasher.AssertNotCalled(t, "Hash", mock.Anything)
		deps.resets.AssertNotCalled(t, "Redeem", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("lost race surfaces as invalid token", func(t *testing.T) {
		svc, deps := newTestService(t, auth.DefaultConfig())
		deps.resets.On("GetByTokenHash", mock.Anything, hash).Return(live(), nil)
		deps.hasher.On("Hash", mock.Anything).Return("$argon2id$new", nil)
		deps.resets.On("Redeem", mock.Anything, hash, mock.Anything, mock.Anything).Return(ulid.ULID{}, auth.ErrInvalidToken)

		err := svc.RedeemPasswordReset(context.Background(), testToken, "n3w-password")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
		assert.NotErrorIs(t, err, auth.ErrStorage)
		deps.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
	})

	t.Run("hash failure leaves token unconsumed", func(t *testing.T) {
		svc, deps := newTestService(t, auth.DefaultConfig())
		deps.resets.On("GetByTokenHash", mock.Anything, hash).Return(live(), nil)
		deps.hasher.On("Hash", mock.Anything).Return("", auth.ErrHashing)

		err := svc.RedeemPasswordReset(context.Background(), testToken, "n3w-password")
		authtest.AssertKind(t, err, auth.KindHashing)
		errutil.AssertNoSecret(t, err, "n3w-password")
		errutil.AssertNoSecret(t, err, testToken)
		deps.resets.AssertNotCalled(t, "Redeem", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("redemption clears the issuance count", func(t *testing.T) {
		throttle := &windowThrottle{}
		svc, deps := newTestService(t, auth.DefaultConfig(), auth.WithThrottle(throttle))
		deps.resets.On("GetByTokenHash", mock.Anything, hash).Return(live(), nil)
		deps.hasher.On("Hash", mock.Anything).Return("$argon2id$new", nil)
		deps.resets.On("Redeem", mock.Anything, hash, mock.Anything, mock.Anything).Return(account.ID, nil)
		deps.accounts.On("GetByID", mock.Anything, account.ID).Return(account, nil)
		deps.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

		require.NoError(t, svc.RedeemPasswordReset(context.Background(), testToken, "n3w-password"))
		assert.Equal(t, []ulid.ULID{account.ID}, throttle.cleared)
	})

	t.Run("notification lookup failure still succeeds", func(t *testing.T) {
		svc, deps := newTestService(t, auth.DefaultConfig())
		deps.resets.On("GetByTokenHash", mock.Anything, hash).Return(live(), nil)
		deps.hasher.On("Hash", mock.Anything).Return("$argon2id$new", nil)
		deps.resets.On("Redeem", mock.Anything, hash, mock.Anything, mock.Anything).Return(account.ID, nil)
		deps.accounts.On("GetByID", mock.Anything, account.ID).Return(nil, errors.New("timeout"))

		require.NoError(t, svc.RedeemPasswordReset(context.Background(), testToken, "n3w-password"))
	})
}

// windowThrottle refuses every issuance and records cleared accounts.
type windowThrottle struct {
	remaining time.Duration
	cleared   []ulid.ULID
}

func (w *windowThrottle) Allow(context.Context, ulid.ULID, auth.IssueLimit) (bool, error) {
	return false, nil
}

func (w *windowThrottle) Window(context.Context, ulid.ULID) (time.Duration, error) {
	return w.remaining, nil
}

func (w *windowThrottle) Reset(_ context.Context, accountID ulid.ULID) error {
	w.cleared = append(w.cleared, accountID)
	return nil
}

// singleUseResets grants Redeem to exactly one caller, like the row-level
// guard in the postgres repository.
type singleUseResets struct {
	*mocks.MockResetTokenRepository
	consumed atomic.Bool
}

func (r *singleUseResets) Redeem(_ context.Context, _, _ string, _ time.Time) (ulid.ULID, error) {
	if r.consumed.CompareAndSwap(false, true) {
		return ulid.Make(), nil
	}
	return ulid.ULID{}, auth.ErrInvalidToken
}

func TestCredentialService_RedeemPasswordReset_Concurrent(t *testing.T) {
	hash := auth.HashResetToken(testToken)
	resets := &singleUseResets{MockResetTokenRepository: mocks.NewMockResetTokenRepository(t)}
	resets.On("GetByTokenHash", mock.Anything, hash).
		Return(&auth.ResetToken{AccountID: ulid.Make(), TokenHash: hash, ExpiresAt: fixedNow.Add(time.Minute)}, nil)

	accounts := mocks.NewMockAccountRepository(t)
	accounts.On("GetByID", mock.Anything, mock.Anything).Return(&auth.Account{Email: "jdoe@example.com"}, nil).Maybe()
	hasher := mocks.NewMockPasswordHasher(t)
	hasher.On("Hash", mock.Anything).Return("$argon2id$new", nil)

	svc, err := auth.NewCredentialService(accounts, resets, hasher, auth.DefaultConfig(),
		auth.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)

	const workers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		invalid   atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := svc.RedeemPasswordReset(context.Background(), testToken, "n3w-password")
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, auth.ErrInvalidToken):
				invalid.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(workers-1), invalid.Load())
}

func TestCredentialService_PurgeResetTokens(t *testing.T) {
	t.Run("deletes inactive tokens", func(t *testing.T) {
		svc, deps := newTestService(t, auth.DefaultConfig())
		deps.resets.On("DeleteInactive", mock.Anything, fixedNow).Return(int64(3), nil)

		n, err := svc.PurgeResetTokens(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("storage failure", func(t *testing.T) {
		svc, deps := newTestService(t, auth.DefaultConfig())
		deps.resets.On("DeleteInactive", mock.Anything, fixedNow).Return(int64(0), errors.New("boom"))

		_, err := svc.PurgeResetTokens(context.Background())
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "RESET_PURGE_FAILED")
		assert.ErrorIs(t, err, auth.ErrStorage)
	})
}
