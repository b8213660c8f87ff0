// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Sentinel errors for the credential lifecycle. Every error returned by the
// service matches exactly one of these with errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when caller input is missing or malformed.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a unique field is already taken.
	ErrConflict = errors.New("already registered")

	// ErrInvalidToken is returned for unknown or already consumed reset tokens.
	ErrInvalidToken = errors.New("invalid reset token")

	// ErrExpiredToken is returned for reset tokens past their expiry.
	ErrExpiredToken = errors.New("reset token has expired")

	// ErrInvalidCredentials is returned when an identifier/password pair does
	// not match any account.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrThrottled is returned when reset issuance exceeds the configured limit.
	ErrThrottled = errors.New("too many reset requests")

	// ErrStorage wraps transient infrastructure failures.
	ErrStorage = errors.New("storage failure")

	// ErrHashing wraps failures of the password hashing primitive.
	ErrHashing = errors.New("password hashing failure")
)

// Unique account fields reported by ConflictError.
const (
	FieldEmail    = "email"
	FieldUsername = "username"
)

// ConflictError reports which unique field collided.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return e.Field + " is already registered"
}

// Is makes ConflictError match ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ConflictField returns the colliding field if err is a conflict.
func ConflictField(err error) (string, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Field, true
	}
	return "", false
}

// ThrottledError reports a refused issuance. RetryAfter is zero when the
// throttle cannot tell when the window closes.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	if e.RetryAfter <= 0 {
		return ErrThrottled.Error()
	}
	return fmt.Sprintf("%s, retry after %s", ErrThrottled, e.RetryAfter)
}

// Is makes ThrottledError match ErrThrottled.
func (e *ThrottledError) Is(target error) bool {
	return target == ErrThrottled
}

// RetryAfter returns how long a throttled caller should wait, if known.
func RetryAfter(err error) (time.Duration, bool) {
	var te *ThrottledError
	if errors.As(err, &te) && te.RetryAfter > 0 {
		return te.RetryAfter, true
	}
	return 0, false
}

// ValidationError carries per-field reasons for rejected input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid input"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Is makes ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

// Kind classifies an error into the credential lifecycle taxonomy.
type Kind int

// Error kinds, ordered by how callers usually check them.
const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindInvalidToken
	KindExpiredToken
	KindInvalidCredentials
	KindThrottled
	KindStorage
	KindHashing
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindValidation:         "validation",
	KindConflict:           "conflict",
	KindNotFound:           "not_found",
	KindInvalidToken:       "invalid_token",
	KindExpiredToken:       "expired_token",
	KindInvalidCredentials: "invalid_credentials",
	KindThrottled:          "throttled",
	KindStorage:            "storage",
	KindHashing:            "hashing",
}

func (k Kind) String() string {
	return kindNames[k]
}

// KindOf returns the taxonomy kind of err. Domain kinds take precedence over
// infrastructure kinds so that a wrapped not-found is never reported as storage.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidToken):
		return KindInvalidToken
	case errors.Is(err, ErrExpiredToken):
		return KindExpiredToken
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrThrottled):
		return KindThrottled
	case errors.Is(err, ErrHashing):
		return KindHashing
	case errors.Is(err, ErrStorage):
		return KindStorage
	default:
		return KindUnknown
	}
}

// StorageFailure marks err as a transient infrastructure failure while
// keeping it in the chain.
func StorageFailure(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

// IsDomain reports whether err is a caller-facing domain outcome rather than
// an infrastructure failure.
func IsDomain(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindConflict, KindNotFound, KindInvalidToken, KindExpiredToken,
		KindInvalidCredentials, KindThrottled:
		return true
	default:
		return false
	}
}
