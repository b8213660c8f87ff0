// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireOops(t *testing.T, err error) oops.OopsError {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	return oopsErr
}

// AssertErrorCode asserts that the innermost oops code on err is code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	assert.Equal(t, code, requireOops(t, err).Code(), "error: %v", err)
}

// AssertErrorContext asserts that err carries key with value in its oops
// context. Context from every wrapping layer is visible.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	octx := requireOops(t, err).Context()
	if assert.Contains(t, octx, key) {
		assert.Equal(t, value, octx[key])
	}
}

// AssertNoSecret asserts that neither the message nor the oops context of
// err mentions secret.
func AssertNoSecret(t *testing.T, err error, secret string) {
	t.Helper()
	require.Error(t, err)
	assert.NotContains(t, err.Error(), secret)
	if oopsErr, ok := oops.AsOops(err); ok {
		for k, v := range oopsErr.Context() {
			if s, isString := v.(string); isString {
				assert.NotContains(t, s, secret, "context key %q", k)
			}
		}
	}
}
