// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// asOops unwraps err into an oops error or fails the test.
func asOops(t *testing.T, err error) oops.OopsError {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	return oopsErr
}

// AssertErrorCode asserts that err carries the given oops code.
// Codes are always strings in this codebase (the auth.Code* constants
// and the migration/config codes), so a non-string code is a failure.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	raw := asOops(t, err).Code()
	got, ok := raw.(string)
	require.True(t, ok, "expected string error code, got %v", raw)
	assert.Equal(t, code, got)
}

// AssertErrorContext asserts that err carries the given oops context
// key with the given value.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	ctx := asOops(t, err).Context()
	require.Contains(t, ctx, key, "error context missing key %q", key)
	assert.Equal(t, value, ctx[key])
}
