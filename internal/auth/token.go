// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// Opaque token configuration. One generator serves email verification,
// password reset, and session tokens; only the stored hash and the expiry
// policy differ.
const (
	TokenBytes = 32 // 32 bytes = 64 hex chars

	// VerificationTokenExpiry is how long an email verification link stays
	// valid.
	VerificationTokenExpiry = 24 * time.Hour

	// ResetTokenExpiry is how long a password reset link stays valid.
	ResetTokenExpiry = time.Hour
)

// GenerateToken creates a secure random opaque token and its hash.
// Returns (plaintext_token, sha256_hash, error). The plaintext goes to the
// client or into an email; only the hash is ever stored.
func GenerateToken() (token, hash string, err error) {
	tokenBytes := make([]byte, TokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("AUTH_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", TokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = HashToken(token)

	return token, hash, nil
}

// HashToken computes the SHA-256 hash of an opaque token for storage lookup.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// tokenLive reports whether a stored token hash/expiry pair is present and
// not yet expired. An expired token is indistinguishable from an absent one
// to every caller.
func tokenLive(hash *string, expiresAt *time.Time, now time.Time) bool {
	return hash != nil && expiresAt != nil && expiresAt.After(now)
}
