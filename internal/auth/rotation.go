// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/observability"
)

// RotationAge is how old a session may grow before an authenticated request
// replaces it with a fresh one.
const RotationAge = 30 * time.Minute

// ShouldRotate reports whether a session created at the given time is due
// for replacement. A zero creation time means the timestamp was lost, which
// is treated as overdue rather than fresh.
func ShouldRotate(createdAt, now time.Time) bool {
	if createdAt.IsZero() {
		return true
	}
	return now.Sub(createdAt) > RotationAge
}

// Rotate replaces a session past its rotation age with a fresh token for the
// same user. A session not yet due is returned unchanged. The expected user
// guards against rotating a token that belongs to someone else; a mismatch
// invalidates nothing and reports the session as invalid.
func (s *SessionStore) Rotate(ctx context.Context, token string, expectedUserID int64) (string, error) {
	session, err := s.Validate(ctx, token)
	if err != nil {
		return "", oops.Code("SESSION_ROTATE_FAILED").Wrap(err)
	}
	if session == nil {
		return "", oops.Code(CodeSessionInvalid).Errorf("session not found")
	}
	if session.UserID != expectedUserID {
		return "", oops.Code(CodeSessionInvalid).
			With("expected_user_id", expectedUserID).
			With("session_user_id", session.UserID).
			Errorf("session does not belong to the expected user")
	}

	if !ShouldRotate(session.CreatedAt, s.now()) {
		return token, nil
	}

	newToken, err := s.Create(ctx, expectedUserID)
	if err != nil {
		return "", oops.Code("SESSION_ROTATE_FAILED").Wrap(err)
	}

	// Best effort: the old session expires on its own if this fails.
	_ = s.Invalidate(ctx, token)

	observability.RecordSessionRotated()
	return newToken, nil
}
