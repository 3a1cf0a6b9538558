// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import "time"

// Failed-login lockout policy. An account accrues a failed attempt on each
// wrong password; at the threshold it is locked for the lockout duration.
// A successful login resets the counter.
const (
	LockoutThreshold = 7
	LockoutDuration  = 15 * time.Minute
)

// IsLockedOut reports whether a lockout timestamp is set and not yet passed
// as of now.
func IsLockedOut(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && now.Before(*lockedUntil)
}

// NextLockout computes the login state after one more failed attempt.
// It returns the new counter and, once the threshold is reached, the time
// the lock expires.
func NextLockout(failedAttempts int, now time.Time) (int, *time.Time) {
	failedAttempts++
	if failedAttempts < LockoutThreshold {
		return failedAttempts, nil
	}
	until := now.Add(LockoutDuration)
	return failedAttempts, &until
}
