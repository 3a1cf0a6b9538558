// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextLockout(t *testing.T) {
	now := time.Now()

	attempts, until := NextLockout(0, now)
	assert.Equal(t, 1, attempts)
	assert.Nil(t, until)

	attempts, until = NextLockout(LockoutThreshold-2, now)
	assert.Equal(t, LockoutThreshold-1, attempts)
	assert.Nil(t, until)

	attempts, until = NextLockout(LockoutThreshold-1, now)
	assert.Equal(t, LockoutThreshold, attempts)
	require.NotNil(t, until)
	assert.Equal(t, now.Add(LockoutDuration), *until)

	// Failures past the threshold keep the lock fresh.
	attempts, until = NextLockout(LockoutThreshold, now)
	assert.Equal(t, LockoutThreshold+1, attempts)
	require.NotNil(t, until)
}

func TestIsLockedOut(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Minute)

	assert.False(t, IsLockedOut(nil, now))
	assert.False(t, IsLockedOut(&past, now))
	assert.False(t, IsLockedOut(&now, now), "a lock expiring exactly now is expired")
	assert.True(t, IsLockedOut(&future, now))
}
