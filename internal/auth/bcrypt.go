// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// LegacyBcryptCost is the cost used by the previous account store.
const LegacyBcryptCost = 10

// BcryptHasher implements PasswordHasher using bcrypt. It exists to verify
// hashes imported from the previous account store.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a BcryptHasher. Costs outside bcrypt's range fall
// back to LegacyBcryptCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = LegacyBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

// IsBcryptHash reports whether hash is in modular crypt bcrypt format.
func IsBcryptHash(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}

// Hash produces a bcrypt hash of the password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", oops.Code("AUTH_BCRYPT_FAILED").With("cost", h.cost).Wrapf(ErrHashing, "%v", err)
	}
	return string(hash), nil
}

// Verify checks if the password matches the bcrypt hash.
func (h *BcryptHasher) Verify(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code("AUTH_INVALID_HASH").Wrapf(ErrHashing, "%v", err)
	}
}

// NeedsUpgrade returns true if the hash was computed with a lower cost.
func (h *BcryptHasher) NeedsUpgrade(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost < h.cost
}

var _ PasswordHasher = (*BcryptHasher)(nil)
