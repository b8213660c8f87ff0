// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/adminauth/internal/auth"
	"github.com/holomush/adminauth/pkg/errutil"
)

func validInput() auth.RegisterInput {
	return auth.RegisterInput{
		Username: "jdoe",
		Email:    "jdoe@example.com",
		Password: "s3cret-pass",
		Profile:  &auth.Profile{FirstName: "Jane", LastName: "Doe"},
		RoleID:   "admin",
	}
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var ve *auth.ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	return ve.Fields
}

func TestRegisterInput_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *auth.RegisterInput)
		fields []string
	}{
		{"missing username", func(in *auth.RegisterInput) { in.Username = "" }, []string{"username"}},
		{"short username", func(in *auth.RegisterInput) { in.Username = "ab" }, []string{"username"}},
		{"username starts with digit", func(in *auth.RegisterInput) { in.Username = "1admin" }, []string{"username"}},
		{"username with space", func(in *auth.RegisterInput) { in.Username = "j doe" }, []string{"username"}},
		{"missing email", func(in *auth.RegisterInput) { in.Email = "" }, []string{"email"}},
		{"malformed email", func(in *auth.RegisterInput) { in.Email = "not-an-email" }, []string{"email"}},
		{"display name email", func(in *auth.RegisterInput) { in.Email = "Jane <jane@example.com>" }, []string{"email"}},
		{"missing password", func(in *auth.RegisterInput) { in.Password = "" }, []string{"password"}},
		{"missing profile", func(in *auth.RegisterInput) { in.Profile = nil }, []string{"profile"}},
		{"missing role", func(in *auth.RegisterInput) { in.RoleID = "" }, []string{"roleId"}},
		{"several missing", func(in *auth.RegisterInput) {
			in.Username = ""
			in.Password = ""
		}, []string{"username", "password"}},
		{"long first name", func(in *auth.RegisterInput) {
			in.Profile = &auth.Profile{FirstName: strings.Repeat("a", auth.MaxNameLength+1)}
		}, []string{"profile.firstName"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)

			err := in.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, auth.ErrValidation)
			errutil.AssertErrorCode(t, err, "ACCOUNT_INVALID")

			fields := fieldsOf(t, err)
			assert.Len(t, fields, len(tt.fields))
			for _, f := range tt.fields {
				assert.Contains(t, fields, f)
			}
		})
	}

	t.Run("valid input passes", func(t *testing.T) {
		assert.NoError(t, validInput().Validate())
	})

	t.Run("empty profile is accepted", func(t *testing.T) {
		in := validInput()
		in.Profile = &auth.Profile{}
		assert.NoError(t, in.Validate())
	})
}

func TestAccountPatch_Validate(t *testing.T) {
	empty := ""
	bad := "bad-email"
	good := "new@example.com"
	short := "ab"

	t.Run("empty patch is valid", func(t *testing.T) {
		p := auth.AccountPatch{}
		assert.NoError(t, p.Validate())
		assert.True(t, p.IsEmpty())
	})

	t.Run("valid email change", func(t *testing.T) {
		p := auth.AccountPatch{Email: &good}
		assert.NoError(t, p.Validate())
		assert.False(t, p.IsEmpty())
	})

	tests := []struct {
		name  string
		patch auth.AccountPatch
		field string
	}{
		{"empty password", auth.AccountPatch{Password: &empty}, "password"},
		{"malformed email", auth.AccountPatch{Email: &bad}, "email"},
		{"short username", auth.AccountPatch{Username: &short}, "username"},
		{"empty role", auth.AccountPatch{RoleID: &empty}, "roleId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, auth.ErrValidation)
			errutil.AssertErrorCode(t, err, "ACCOUNT_PATCH_INVALID")
			assert.Contains(t, fieldsOf(t, err), tt.field)
		})
	}
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, auth.ValidateEmail("ops@example.com"))

	err := auth.ValidateEmail("")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_INVALID_EMAIL")
	assert.ErrorIs(t, err, auth.ErrValidation)

	assert.Error(t, auth.ValidateEmail("nope"))
	assert.Error(t, auth.ValidateEmail(strings.Repeat("a", 250)+"@example.com"))
}

func TestValidateUsername(t *testing.T) {
	assert.NoError(t, auth.ValidateUsername("ops.admin"))
	err := auth.ValidateUsername("x")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_INVALID_USERNAME")
	assert.ErrorIs(t, err, auth.ErrValidation)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "jane@example.com", auth.NormalizeEmail("  Jane@Example.COM "))
}

func TestAccount_View(t *testing.T) {
	a := &auth.Account{
		ID:           ulid.Make(),
		Username:     "jdoe",
		Email:        "jdoe@example.com",
		PasswordHash: "$argon2id$secret",
		Profile:      auth.Profile{FirstName: "Jane"},
		RoleID:       "admin",
	}

	data, err := json.Marshal(a.View())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "argon2id")
	assert.Contains(t, string(data), `"username":"jdoe"`)
	assert.Contains(t, string(data), `"roleId":"admin"`)
	assert.Contains(t, string(data), `"firstName":"Jane"`)
}

func TestAccount_LogValueOmitsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	a := &auth.Account{ID: ulid.Make(), Username: "jdoe", PasswordHash: "$argon2id$secret"}
	in := validInput()
	logger.Info("test", "account", a, "input", in)

	assert.NotContains(t, buf.String(), "argon2id")
	assert.NotContains(t, buf.String(), in.Password)
	assert.Contains(t, buf.String(), "jdoe")
}
