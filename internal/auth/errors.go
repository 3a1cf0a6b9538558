// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrCorruptSession is returned by a session cache backend when a stored
// payload cannot be decoded. The session store deletes such entries and
// treats them as absent.
var ErrCorruptSession = errors.New("corrupt session payload")

// Stable error codes attached to oops errors at the service boundary.
// The HTTP layer maps these to status codes; anything without a mapping is
// surfaced as a generic internal error.
const (
	// CodeValidation marks malformed or missing input.
	CodeValidation = "AUTH_VALIDATION"

	// CodeWeakPassword marks a password below the strength threshold.
	CodeWeakPassword = "AUTH_WEAK_PASSWORD"

	// CodeEmailTaken marks a duplicate registration attempt.
	CodeEmailTaken = "AUTH_EMAIL_TAKEN"

	// CodeInvalidCredentials marks a failed login. Deliberately coarse:
	// unknown email, wrong password, and locked accounts all produce it.
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"

	// CodeSessionInvalid marks an absent, expired, or malformed session.
	CodeSessionInvalid = "AUTH_SESSION_INVALID"

	// CodeTokenInvalid marks an unknown or expired verification/reset token.
	// The two cases are indistinguishable to callers.
	CodeTokenInvalid = "AUTH_TOKEN_INVALID"
)
