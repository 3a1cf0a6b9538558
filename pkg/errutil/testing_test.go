// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package errutil_test

import (
	"fmt"
	"testing"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/pkg/errutil"
)

func TestAssertErrorCode(t *testing.T) {
	err := oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid email or password")
	errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
}

func TestAssertErrorContext(t *testing.T) {
	err := oops.Code("SESSION_CREATE_FAILED").With("user_id", int64(42)).Errorf("boom")
	errutil.AssertErrorContext(t, err, "user_id", int64(42))
}

func TestAssertErrorCode_WrappedError(t *testing.T) {
	inner := oops.Code("AUTH_TOKEN_INVALID").Errorf("invalid or expired reset token")
	err := fmt.Errorf("resetting password: %w", inner)
	errutil.AssertErrorCode(t, err, "AUTH_TOKEN_INVALID")
}
