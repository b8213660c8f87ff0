// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Field constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MaxEmailLength    = 254
	MaxPasswordLength = 1024
	MaxNameLength     = 100
	MaxRoleIDLength   = 64
)

// usernameRegex matches usernames that start with a letter and contain only
// letters, digits, underscores, dots and hyphens.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.-]*$`)

// Account is an administrator identity with login credentials.
type Account struct {
	ID               ulid.ULID
	Username         string
	Email            string
	PasswordHash     string `json:"-"`
	Profile          Profile
	RoleID           string
	IsVerified       bool
	TwoFactorEnabled bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// LogValue keeps credential material out of structured logs.
func (a *Account) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", a.ID.String()),
		slog.String("username", a.Username),
	)
}

// Profile holds display metadata used for notifications.
type Profile struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// AccountView is the response-facing projection of an Account.
type AccountView struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	Profile          Profile   `json:"profile"`
	RoleID           string    `json:"roleId"`
	IsVerified       bool      `json:"isVerified"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// View projects the account without its password hash.
func (a *Account) View() AccountView {
	return AccountView{
		ID:               a.ID.String(),
		Username:         a.Username,
		Email:            a.Email,
		Profile:          a.Profile,
		RoleID:           a.RoleID,
		IsVerified:       a.IsVerified,
		TwoFactorEnabled: a.TwoFactorEnabled,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateUsername validates a username against the account rules.
func ValidateUsername(username string) error {
	err := validation.Validate(username,
		validation.Required,
		validation.Length(MinUsernameLength, MaxUsernameLength),
		validation.Match(usernameRegex).Error("must start with a letter and contain only letters, digits, '_', '.', '-'"),
	)
	if err != nil {
		return oops.Code("AUTH_INVALID_USERNAME").With("username", username).Wrap(NewValidationError(FieldUsername, err.Error()))
	}
	return nil
}

// ValidateEmail validates a bare email address.
func ValidateEmail(email string) error {
	err := validation.Validate(email, validation.Required, validation.Length(0, MaxEmailLength), validation.By(emailAddress))
	if err != nil {
		return oops.Code("AUTH_INVALID_EMAIL").Wrap(NewValidationError(FieldEmail, err.Error()))
	}
	return nil
}

// emailAddress accepts a bare address without display name.
func emailAddress(value any) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case *string:
		if v == nil {
			return nil
		}
		s = *v
	default:
		return errors.New("must be a string")
	}
	if s == "" {
		return nil
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return errors.New("must be a valid email address")
	}
	return nil
}

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	Username         string   `json:"username"`
	Email            string   `json:"email"`
	Password         string   `json:"password"`
	Profile          *Profile `json:"profile"`
	RoleID           string   `json:"roleId"`
	IsVerified       bool     `json:"isVerified"`
	TwoFactorEnabled bool     `json:"two_factor_enabled"`
}

// LogValue omits the password.
func (in RegisterInput) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", in.Username),
		slog.String("role_id", in.RoleID),
	)
}

// Validate checks presence and shape of every required field.
func (in RegisterInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Username,
			validation.Required,
			validation.Length(MinUsernameLength, MaxUsernameLength),
			validation.Match(usernameRegex),
		),
		validation.Field(&in.Email, validation.Required, validation.Length(0, MaxEmailLength), validation.By(emailAddress)),
		validation.Field(&in.Password, validation.Required, validation.Length(0, MaxPasswordLength)),
		validation.Field(&in.Profile, validation.Required),
		validation.Field(&in.RoleID, validation.Required, validation.Length(0, MaxRoleIDLength)),
	)
	if err != nil {
		return oops.Code("ACCOUNT_INVALID").Wrap(toValidationError(err))
	}
	if err := in.Profile.validate(); err != nil {
		return oops.Code("ACCOUNT_INVALID").Wrap(err)
	}
	return nil
}

func (p *Profile) validate() error {
	err := validation.ValidateStruct(p,
		validation.Field(&p.FirstName, validation.Length(0, MaxNameLength)),
		validation.Field(&p.LastName, validation.Length(0, MaxNameLength)),
	)
	if err != nil {
		return prefixFields("profile.", toValidationError(err))
	}
	return nil
}

// AccountPatch lists the mutable fields of an account. Nil fields are left
// unchanged; a nil Password preserves the stored hash.
type AccountPatch struct {
	Username         *string  `json:"username"`
	Email            *string  `json:"email"`
	Password         *string  `json:"password"`
	Profile          *Profile `json:"profile"`
	RoleID           *string  `json:"roleId"`
	IsVerified       *bool    `json:"isVerified"`
	TwoFactorEnabled *bool    `json:"two_factor_enabled"`
}

// Validate checks every supplied field.
func (p AccountPatch) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Username,
			validation.NilOrNotEmpty,
			validation.Length(MinUsernameLength, MaxUsernameLength),
			validation.Match(usernameRegex),
		),
		validation.Field(&p.Email, validation.NilOrNotEmpty, validation.Length(0, MaxEmailLength), validation.By(emailAddress)),
		validation.Field(&p.Password, validation.NilOrNotEmpty, validation.Length(0, MaxPasswordLength)),
		validation.Field(&p.RoleID, validation.NilOrNotEmpty, validation.Length(0, MaxRoleIDLength)),
	)
	if err != nil {
		return oops.Code("ACCOUNT_PATCH_INVALID").Wrap(toValidationError(err))
	}
	if p.Profile != nil {
		if err := p.Profile.validate(); err != nil {
			return oops.Code("ACCOUNT_PATCH_INVALID").Wrap(err)
		}
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p AccountPatch) IsEmpty() bool {
	return p.Username == nil && p.Email == nil && p.Password == nil && p.Profile == nil &&
		p.RoleID == nil && p.IsVerified == nil && p.TwoFactorEnabled == nil
}

func toValidationError(err error) *ValidationError {
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		fields := make(map[string]string, len(fieldErrs))
		for name, fe := range fieldErrs {
			fields[name] = fe.Error()
		}
		return &ValidationError{Fields: fields}
	}
	return NewValidationError("input", err.Error())
}

func prefixFields(prefix string, ve *ValidationError) *ValidationError {
	fields := make(map[string]string, len(ve.Fields))
	for k, v := range ve.Fields {
		fields[prefix+k] = v
	}
	return &ValidationError{Fields: fields}
}

// AccountRepository manages account persistence. Implementations must
// enforce username and email uniqueness themselves and report collisions
// as *ConflictError.
type AccountRepository interface {
	// Create stores a new account, assigning its ID when unset.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByUsername retrieves an account by username (case-insensitive).
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// GetByEmail retrieves an account by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// Update persists the mutable fields of the account. The stored password
	// hash is replaced only when passwordChanged is set, and account.PasswordHash
	// is refreshed with the stored value.
	Update(ctx context.Context, account *Account, passwordChanged bool) error

	// UpdatePassword replaces only the password hash.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// Delete removes an account and its reset tokens.
	Delete(ctx context.Context, id ulid.ULID) error
}
