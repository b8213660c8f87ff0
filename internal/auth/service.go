// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/adminauth/pkg/errutil"
)

var tracer = otel.Tracer("adminauth/auth")

// Config holds policy values for the credential service.
type Config struct {
	// ResetTokenTTL is how long an issued reset token stays redeemable.
	ResetTokenTTL time.Duration

	// ConcealUnknownEmail makes IssuePasswordReset report success with an
	// empty token for unknown emails instead of ErrNotFound.
	ConcealUnknownEmail bool

	// PublicURL is the externally visible base URL used for reset links.
	PublicURL string

	// IssueLimit bounds reset issuance per account when a throttle is set.
	IssueLimit IssueLimit
}

// DefaultConfig returns the default service policy.
func DefaultConfig() Config {
	return Config{
		ResetTokenTTL: ResetTokenExpiry,
		IssueLimit:    DefaultIssueLimitPolicy(),
	}
}

// Option customizes a CredentialService.
type Option func(*CredentialService)

// WithNotifier sets the notification sink.
func WithNotifier(n Notifier) Option {
	return func(s *CredentialService) { s.notifier = n }
}

// WithThrottle sets the reset issuance throttle.
func WithThrottle(t IssueThrottle) Option {
	return func(s *CredentialService) { s.throttle = t }
}

// WithTokenGenerator replaces the reset token generator.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(s *CredentialService) { s.tokens = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *CredentialService) { s.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *CredentialService) { s.now = now }
}

// CredentialService orchestrates account registration, edits, deletion and
// the two-phase password reset flow. It holds no mutable state of its own.
type CredentialService struct {
	accounts AccountRepository
	resets   ResetTokenRepository
	hasher   PasswordHasher
	tokens   TokenGenerator
	notifier Notifier
	throttle IssueThrottle
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewCredentialService creates a CredentialService.
func NewCredentialService(
	accounts AccountRepository,
	resets ResetTokenRepository,
	hasher PasswordHasher,
	cfg Config,
	opts ...Option,
) (*CredentialService, error) {
	if accounts == nil {
		return nil, oops.Code("SERVICE_INIT_FAILED").Errorf("account repository is required")
	}
	if resets == nil {
		return nil, oops.Code("SERVICE_INIT_FAILED").Errorf("reset token repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("SERVICE_INIT_FAILED").Errorf("password hasher is required")
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = ResetTokenExpiry
	}
	if cfg.IssueLimit.Max <= 0 || cfg.IssueLimit.Window <= 0 {
		cfg.IssueLimit = DefaultIssueLimitPolicy()
	}

	s := &CredentialService{
		accounts: accounts,
		resets:   resets,
		hasher:   hasher,
		tokens:   NewRandomTokenGenerator(ResetTokenBytes),
		notifier: NopNotifier{},
		throttle: NoThrottle{},
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates an administrator account and sends the welcome
// notification once the account is stored.
func (s *CredentialService) Register(ctx context.Context, in RegisterInput) (_ *Account, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "auth.register")
	defer func() {
		s.finish(span, OpRegister, start, err)
	}()

	in.Username = strings.TrimSpace(in.Username)
	in.Email = NormalizeEmail(in.Email)
	if err := in.Validate(); err != nil {
		return nil, err
	}

	if err := s.ensureUnique(ctx, in.Email, in.Username, ulid.ULID{}); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("ACCOUNT_REGISTER_FAILED").With("operation", "Hash").Wrap(err)
	}

	now := s.now()
	account := &Account{
		Username:         in.Username,
		Email:            in.Email,
		PasswordHash:     hash,
		Profile:          *in.Profile,
		RoleID:           in.RoleID,
		IsVerified:       in.IsVerified,
		TwoFactorEnabled: in.TwoFactorEnabled,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, oops.Code("ACCOUNT_REGISTER_FAILED").
			With("operation", "Create").
			With("username", in.Username).
			Wrap(classify(err))
	}
	span.SetAttributes(attribute.String("account.id", account.ID.String()))
	s.logger.InfoContext(ctx, "account registered", "account", account)

	vars := profileVars(account)
	vars[VarPassword] = in.Password
	s.notify(ctx, Notification{Kind: NotifyWelcome, To: account.Email, Vars: vars})

	return account, nil
}

// Get returns an account by ID.
func (s *CredentialService) Get(ctx context.Context, id ulid.ULID) (*Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").With("account_id", id.String()).Wrap(classify(err))
	}
	return account, nil
}

// Edit applies patch to the account. A patch without a password keeps the
// stored hash unchanged.
func (s *CredentialService) Edit(ctx context.Context, id ulid.ULID, patch AccountPatch) (_ *Account, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "auth.edit", trace.WithAttributes(attribute.String("account.id", id.String())))
	defer func() {
		s.finish(span, OpEdit, start, err)
	}()

	if patch.Username != nil {
		trimmed := strings.TrimSpace(*patch.Username)
		patch.Username = &trimmed
	}
	if patch.Email != nil {
		normalized := NormalizeEmail(*patch.Email)
		patch.Email = &normalized
	}
	if patch.IsEmpty() {
		return nil, oops.Code("ACCOUNT_PATCH_EMPTY").
			With("account_id", id.String()).
			Wrap(NewValidationError("body", "must change at least one field"))
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, oops.Code("ACCOUNT_EDIT_FAILED").
			With("operation", "GetByID").
			With("account_id", id.String()).
			Wrap(classify(err))
	}

	var checkEmail, checkUsername string
	if patch.Email != nil && !strings.EqualFold(*patch.Email, account.Email) {
		checkEmail = *patch.Email
	}
	if patch.Username != nil && !strings.EqualFold(*patch.Username, account.Username) {
		checkUsername = *patch.Username
	}
	if err := s.ensureUnique(ctx, checkEmail, checkUsername, account.ID); err != nil {
		return nil, err
	}

	if patch.Password != nil {
		hash, err := s.hasher.Hash(*patch.Password)
		if err != nil {
			return nil, oops.Code("ACCOUNT_EDIT_FAILED").With("operation", "Hash").Wrap(err)
		}
		account.PasswordHash = hash
	}
	applyPatch(account, patch)
	account.UpdatedAt = s.now()

	if err := s.accounts.Update(ctx, account, patch.Password != nil); err != nil {
		return nil, oops.Code("ACCOUNT_EDIT_FAILED").
			With("operation", "Update").
			With("account_id", id.String()).
			Wrap(classify(err))
	}
	s.logger.InfoContext(ctx, "account updated", "account", account, "password_changed", patch.Password != nil)
	return account, nil
}

func applyPatch(a *Account, p AccountPatch) {
	if p.Username != nil {
		a.Username = *p.Username
	}
	if p.Email != nil {
		a.Email = *p.Email
	}
	if p.Profile != nil {
		a.Profile = *p.Profile
	}
	if p.RoleID != nil {
		a.RoleID = *p.RoleID
	}
	if p.IsVerified != nil {
		a.IsVerified = *p.IsVerified
	}
	if p.TwoFactorEnabled != nil {
		a.TwoFactorEnabled = *p.TwoFactorEnabled
	}
}

// Delete removes an account after confirming it exists.
func (s *CredentialService) Delete(ctx context.Context, id ulid.ULID) (err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "auth.delete", trace.WithAttributes(attribute.String("account.id", id.String())))
	defer func() {
		s.finish(span, OpDelete, start, err)
	}()

	if _, err := s.accounts.GetByID(ctx, id); err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "GetByID").
			With("account_id", id.String()).
			Wrap(classify(err))
	}
	if err := s.accounts.Delete(ctx, id); err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "Delete").
			With("account_id", id.String()).
			Wrap(classify(err))
	}
	s.logger.InfoContext(ctx, "account deleted", "account_id", id.String())
	return nil
}

// VerifyCredentials checks a password for the account named by username or
// email. Hashes from an older scheme are replaced after a successful match.
func (s *CredentialService) VerifyCredentials(ctx context.Context, identifier, password string) (_ *Account, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "auth.verify_credentials")
	defer func() {
		s.finish(span, OpVerifyCredentials, start, err)
	}()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, oops.Code("CREDENTIALS_INVALID").Wrap(NewValidationError("identifier", "identifier and password are required"))
	}

	var account *Account
	if strings.Contains(identifier, "@") {
		account, err = s.accounts.GetByEmail(ctx, NormalizeEmail(identifier))
	} else {
		account, err = s.accounts.GetByUsername(ctx, identifier)
	}
	if errors.Is(err, ErrNotFound) {
		return nil, oops.Code("CREDENTIALS_INVALID").Wrap(ErrInvalidCredentials)
	}
	if err != nil {
		return nil, oops.Code("CREDENTIALS_VERIFY_FAILED").With("operation", "lookup").Wrap(classify(err))
	}

	ok, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return nil, oops.Code("CREDENTIALS_VERIFY_FAILED").
			With("operation", "Verify").
			With("account_id", account.ID.String()).
			Wrap(err)
	}
	if !ok {
		return nil, oops.Code("CREDENTIALS_INVALID").Wrap(ErrInvalidCredentials)
	}

	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		s.upgradeHash(ctx, account, password)
	}
	return account, nil
}

// upgradeHash rehashes with the current scheme. Failure leaves the old hash
// in place, which still verifies.
func (s *CredentialService) upgradeHash(ctx context.Context, account *Account, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		errutil.LogErrorContext(ctx, s.logger, "password rehash failed", err)
		return
	}
	if err := s.accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "password rehash not stored", err)
		return
	}
	account.PasswordHash = hash
	s.logger.InfoContext(ctx, "password hash upgraded", "account_id", account.ID.String())
}

// ensureUnique checks that email and username are free, ignoring the account
// identified by self. Empty values are skipped. The store's unique indexes
// remain the final authority under concurrent writes.
func (s *CredentialService) ensureUnique(ctx context.Context, email, username string, self ulid.ULID) error {
	if email != "" {
		existing, err := s.accounts.GetByEmail(ctx, email)
		switch {
		case err == nil && existing.ID != self:
			return oops.Code("ACCOUNT_EMAIL_TAKEN").Wrap(&ConflictError{Field: FieldEmail})
		case err != nil && !errors.Is(err, ErrNotFound):
			return oops.Code("ACCOUNT_UNIQUENESS_CHECK_FAILED").With("operation", "GetByEmail").Wrap(classify(err))
		}
	}
	if username != "" {
		existing, err := s.accounts.GetByUsername(ctx, username)
		switch {
		case err == nil && existing.ID != self:
			return oops.Code("ACCOUNT_USERNAME_TAKEN").With("username", username).Wrap(&ConflictError{Field: FieldUsername})
		case err != nil && !errors.Is(err, ErrNotFound):
			return oops.Code("ACCOUNT_UNIQUENESS_CHECK_FAILED").With("operation", "GetByUsername").Wrap(classify(err))
		}
	}
	return nil
}

// notify hands n to the notifier. Delivery problems never reach the caller.
func (s *CredentialService) notify(ctx context.Context, n Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.WarnContext(ctx, "notification not dispatched", "notification", n, "error", err)
	}
}

func (s *CredentialService) finish(span trace.Span, op string, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, KindOf(err).String())
		if !IsDomain(err) {
			errutil.LogErrorContext(trace.ContextWithSpan(context.Background(), span), s.logger, op+" failed", err)
		}
	}
	span.End()
	observe(op, start, err)
}

// classify marks errors outside the taxonomy as storage failures.
func classify(err error) error {
	if KindOf(err) == KindUnknown {
		return StorageFailure(err)
	}
	return err
}

// ResetLink builds the externally visible link for a reset token.
func (s *CredentialService) ResetLink(token string) string {
	return strings.TrimRight(s.cfg.PublicURL, "/") + "/resetpassword/" + url.PathEscape(token)
}
