// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package authtest provides assertions over the credential error taxonomy.
package authtest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/adminauth/internal/auth"
)

// AssertKind asserts that err classifies as want.
func AssertKind(t *testing.T, err error, want auth.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want.String(), auth.KindOf(err).String(), "error: %v", err)
}

// AssertConflictOn asserts that err is a conflict on field.
func AssertConflictOn(t *testing.T, err error, field string) {
	t.Helper()
	AssertKind(t, err, auth.KindConflict)
	got, ok := auth.ConflictField(err)
	require.True(t, ok, "conflict carries no field: %v", err)
	assert.Equal(t, field, got)
}

// AssertInvalidField asserts that err is a validation failure naming field.
func AssertInvalidField(t *testing.T, err error, field string) {
	t.Helper()
	AssertKind(t, err, auth.KindValidation)
	var ve *auth.ValidationError
	require.True(t, errors.As(err, &ve), "validation error carries no fields: %v", err)
	assert.Contains(t, ve.Fields, field)
}
