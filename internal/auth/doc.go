// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements the administrator credential lifecycle.
//
// # Domain Types
//
// Account is an administrator identity. RegisterInput and AccountPatch are
// the only ways to create or change one; both validate their fields before
// any repository is touched. ResetToken is a single-use, expiring grant to
// set a new password; only the SHA-256 digest of its opaque value is stored.
//
// # Services
//
// CredentialService coordinates repositories, the password hasher, the token
// generator and the notifier:
//   - Register, Get, Edit, Delete - account lifecycle with uniqueness checks
//   - IssuePasswordReset, ValidateResetToken, RedeemPasswordReset - reset flow
//   - VerifyCredentials - password check with transparent hash upgrade
//   - PurgeResetTokens - garbage collection, driven by TokenJanitor
//
// # Errors
//
// Every returned error matches one sentinel (ErrValidation, ErrConflict,
// ErrNotFound, ErrInvalidToken, ErrExpiredToken, ErrInvalidCredentials,
// ErrThrottled, ErrStorage, ErrHashing). KindOf maps an error to its Kind
// for transport layers.
package auth
