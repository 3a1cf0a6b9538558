// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/pkg/errutil"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM  "))
	assert.Equal(t, "bob@example.com", NormalizeEmail("bob@example.com"))
}

func TestValidateEmail(t *testing.T) {
	valid := []string{
		"alice@example.com",
		"a.b+tag@sub.example.co.uk",
		"x@y.zz",
	}
	for _, email := range valid {
		assert.NoError(t, ValidateEmail(email), email)
	}

	invalid := []string{
		"",
		"plainaddress",
		"@example.com",
		"alice@",
		"alice@nodot",
		"alice bob@example.com",
		"a@" + strings.Repeat("x", 250) + ".com",
	}
	for _, email := range invalid {
		err := ValidateEmail(email)
		require.Error(t, err, email)
		errutil.AssertErrorCode(t, err, CodeValidation)
	}
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("Ada"))
	assert.NoError(t, ValidateName(strings.Repeat("x", MaxNameLength)))

	for _, name := range []string{"", "   ", strings.Repeat("x", MaxNameLength+1)} {
		err := ValidateName(name)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, CodeValidation)
	}
}

func TestUser_Public(t *testing.T) {
	hash := "secret-hash"
	user := &User{
		ID:                    42,
		Name:                  "Ada",
		Email:                 "ada@example.com",
		PasswordHash:          "argon2-material",
		EmailVerified:         true,
		VerificationTokenHash: &hash,
	}

	pub := user.Public()
	assert.Equal(t, int64(42), pub.ID)
	assert.Equal(t, "Ada", pub.Name)
	assert.Equal(t, "ada@example.com", pub.Email)
	assert.True(t, pub.EmailVerified)
}

func TestUser_IsLocked(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, (&User{}).IsLocked(now))
	assert.False(t, (&User{LockedUntil: &past}).IsLocked(now))
	assert.True(t, (&User{LockedUntil: &future}).IsLocked(now))
}
