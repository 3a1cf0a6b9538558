// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"time"
)

// Session configuration defaults.
const (
	// SessionTTL is the sliding session lifetime; each successful
	// validation refreshes it to the full duration.
	SessionTTL = 7 * 24 * time.Hour

	// DefaultMaxSessionsPerUser bounds live sessions per account; the
	// oldest session is evicted to make room for a new one.
	DefaultMaxSessionsPerUser = 5

	// DefaultCacheTimeout bounds every cache backend call so that an
	// unreachable cache fails over to the durable store quickly instead of
	// hanging the request.
	DefaultCacheTimeout = 250 * time.Millisecond
)

// Session is an authenticated session payload. The user fields are a
// snapshot captured at creation time; they may drift from the user row until
// the session expires, which is an accepted staleness window.
type Session struct {
	TokenHash     string    `json:"-"`
	UserID        int64     `json:"userId"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	LastAccessed  time.Time `json:"lastAccessed"`
}

// SessionCache is the fast, TTL-native session backend. Implementations are
// an optimization, never a hard dependency: the SessionStore logs and
// swallows every error from them.
//
// Beyond the payload keys, the cache maintains a sessions-by-user reverse
// index used only for enumeration; it is never the source of truth for a
// session's validity.
type SessionCache interface {
	// Put stores the session payload under its token hash with the given
	// TTL and adds the hash to the owner's reverse index.
	Put(ctx context.Context, session *Session, ttl time.Duration) error

	// Get retrieves a session payload by token hash. Returns ErrNotFound
	// if absent or expired, ErrCorruptSession if the payload cannot be
	// decoded.
	Get(ctx context.Context, tokenHash string) (*Session, error)

	// Delete removes a session payload. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, tokenHash string) error

	// Members returns the token hashes in a user's reverse index. Entries
	// may be stale; callers prune via RemoveMember.
	Members(ctx context.Context, userID int64) ([]string, error)

	// RemoveMember removes one token hash from a user's reverse index.
	RemoveMember(ctx context.Context, userID int64, tokenHash string) error

	// DeleteIndex removes a user's entire reverse index.
	DeleteIndex(ctx context.Context, userID int64) error
}

// DurableSessionRepository is the relational fallback backend. Rows carry an
// absolute expiry instead of a native TTL; expired rows are treated as
// absent and swept out of band.
type DurableSessionRepository interface {
	// Insert stores a session row with an absolute expiry.
	Insert(ctx context.Context, session *Session, expiresAt time.Time) error

	// GetLive retrieves a non-expired session by token hash, with the user
	// snapshot reconstructed by joining the users table. Returns
	// ErrNotFound if absent or expired.
	GetLive(ctx context.Context, tokenHash string, now time.Time) (*Session, error)

	// Touch updates the last-accessed timestamp and slides the expiry.
	Touch(ctx context.Context, tokenHash string, lastAccessed, expiresAt time.Time) error

	// Delete removes a session row. Deleting an absent row is not an error.
	Delete(ctx context.Context, tokenHash string) error

	// ListByUser returns a user's non-expired sessions.
	ListByUser(ctx context.Context, userID int64) ([]*Session, error)

	// DeleteByUser removes all of a user's session rows.
	DeleteByUser(ctx context.Context, userID int64) error

	// DeleteExpired removes expired session rows and returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
