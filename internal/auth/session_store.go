// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// SessionStoreConfig tunes the dual-backend session store. Zero values fall
// back to the package defaults.
type SessionStoreConfig struct {
	TTL          time.Duration
	MaxPerUser   int
	CacheTimeout time.Duration
	RotateAfter  time.Duration
}

// SessionStore owns the session lifecycle across two backends: a fast
// TTL-native cache tried first, and a durable relational fallback. The cache
// is an optimization; every operation completes against the durable backend
// when the cache is unreachable, and cache errors are logged, counted, and
// swallowed.
type SessionStore struct {
	cache   SessionCache
	durable DurableSessionRepository
	users   UserRepository
	logger  *slog.Logger

	ttl          time.Duration
	maxPerUser   int
	cacheTimeout time.Duration
	rotateAfter  time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

// NewSessionStore creates a SessionStore.
func NewSessionStore(cache SessionCache, durable DurableSessionRepository, users UserRepository, logger *slog.Logger, cfg SessionStoreConfig) (*SessionStore, error) {
	if cache == nil {
		return nil, oops.Errorf("session cache is required")
	}
	if durable == nil {
		return nil, oops.Errorf("durable session repository is required")
	}
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.TTL <= 0 {
		cfg.TTL = SessionTTL
	}
	if cfg.MaxPerUser <= 0 {
		cfg.MaxPerUser = DefaultMaxSessionsPerUser
	}
	if cfg.CacheTimeout <= 0 {
		cfg.CacheTimeout = DefaultCacheTimeout
	}
	if cfg.RotateAfter <= 0 {
		cfg.RotateAfter = RotationAge
	}

	return &SessionStore{
		cache:        cache,
		durable:      durable,
		users:        users,
		logger:       logger,
		ttl:          cfg.TTL,
		maxPerUser:   cfg.MaxPerUser,
		cacheTimeout: cfg.CacheTimeout,
		rotateAfter:  cfg.RotateAfter,
		now:          time.Now,
	}, nil
}

// TTL returns the configured sliding session lifetime.
func (s *SessionStore) TTL() time.Duration { return s.ttl }

// Create makes a new session for the user and returns its plaintext token.
// The user snapshot fetch is the only hard dependency: an unknown user
// aborts the operation. The cache write falls back to a durable insert.
func (s *SessionStore) Create(ctx context.Context, userID int64) (string, error) {
	if err := s.enforceLimit(ctx, userID); err != nil {
		// Limit enforcement is best-effort under backend failure; the
		// create itself will fail below if both backends are down.
		errutil.LogWarn(s.logger, "session limit enforcement failed", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "fetch user snapshot").
			With("user_id", userID).
			Wrap(err)
	}

	token, hash, err := GenerateToken()
	if err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	now := s.now()
	session := &Session{
		TokenHash:     hash,
		UserID:        user.ID,
		Email:         user.Email,
		Name:          user.Name,
		EmailVerified: user.EmailVerified,
		CreatedAt:     now,
		LastAccessed:  now,
	}

	cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	err = s.cache.Put(cctx, session, s.ttl)
	cancel()
	if err == nil {
		observability.RecordSessionCreated("cache")
		return token, nil
	}

	errutil.LogWarn(s.logger, "session cache write failed, falling back to durable store", err)
	observability.RecordCacheFallback("create")

	if err := s.durable.Insert(ctx, session, now.Add(s.ttl)); err != nil {
		return "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "durable insert").
			With("user_id", userID).
			Wrap(err)
	}
	observability.RecordSessionCreated("durable")
	return token, nil
}

// Validate resolves a session token to its payload, refreshing the sliding
// TTL and last-accessed time. A miss returns (nil, nil): absent, expired,
// and malformed sessions all mean "unauthenticated", never a system failure.
func (s *SessionStore) Validate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, nil
	}
	hash := HashToken(token)
	now := s.now()

	cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	session, err := s.cache.Get(cctx, hash)
	cancel()
	switch {
	case err == nil:
		session.LastAccessed = now
		cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
		if err := s.cache.Put(cctx, session, s.ttl); err != nil {
			errutil.LogWarn(s.logger, "session TTL refresh failed", err)
		}
		cancel()
		return session, nil
	case errors.Is(err, ErrCorruptSession):
		// Undecodable payloads are pruned, never validated.
		cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
		if derr := s.cache.Delete(cctx, hash); derr != nil {
			errutil.LogWarn(s.logger, "corrupt session prune failed", derr)
		}
		cancel()
	case errors.Is(err, ErrNotFound):
		// Fall through to the durable backend.
	default:
		errutil.LogWarn(s.logger, "session cache read failed, falling back to durable store", err)
		observability.RecordCacheFallback("validate")
	}

	session, err = s.durable.GetLive(ctx, hash, now)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "durable lookup").
			Wrap(err)
	}

	if err := s.durable.Touch(ctx, hash, now, now.Add(s.ttl)); err != nil {
		errutil.LogWarn(s.logger, "session touch failed", err)
	}
	session.LastAccessed = now
	return session, nil
}

// Invalidate removes a session from both backends. It is idempotent and
// best-effort: an already-gone session or a failing backend never produces
// an error.
func (s *SessionStore) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	hash := HashToken(token)

	// Resolve the owner first so the reverse index entry can be removed too.
	var userID int64
	cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	session, err := s.cache.Get(cctx, hash)
	cancel()
	if err == nil {
		userID = session.UserID
	} else if durableSession, derr := s.durable.GetLive(ctx, hash, s.now()); derr == nil {
		userID = durableSession.UserID
	}

	cctx, cancel = context.WithTimeout(ctx, s.cacheTimeout)
	if err := s.cache.Delete(cctx, hash); err != nil {
		errutil.LogWarn(s.logger, "session cache delete failed", err)
	}
	cancel()

	if userID != 0 {
		cctx, cancel = context.WithTimeout(ctx, s.cacheTimeout)
		if err := s.cache.RemoveMember(cctx, userID, hash); err != nil {
			errutil.LogWarn(s.logger, "session index removal failed", err)
		}
		cancel()
	}

	if err := s.durable.Delete(ctx, hash); err != nil && !errors.Is(err, ErrNotFound) {
		errutil.LogWarn(s.logger, "durable session delete failed", err)
	}
	return nil
}

// InvalidateAll removes every session a user owns from both backends, then
// drops the reverse index. Used after a password reset to force
// re-authentication everywhere.
func (s *SessionStore) InvalidateAll(ctx context.Context, userID int64) error {
	cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	members, err := s.cache.Members(cctx, userID)
	cancel()
	if err != nil {
		errutil.LogWarn(s.logger, "session index enumeration failed", err)
		observability.RecordCacheFallback("invalidate_all")
	}

	for _, hash := range members {
		cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
		if err := s.cache.Delete(cctx, hash); err != nil {
			errutil.LogWarn(s.logger, "session cache delete failed", err)
		}
		cancel()
	}

	// The durable sweep also covers sessions created during a cache outage,
	// which never made it into the reverse index.
	if err := s.durable.DeleteByUser(ctx, userID); err != nil {
		return oops.Code("SESSION_INVALIDATE_ALL_FAILED").
			With("operation", "durable delete by user").
			With("user_id", userID).
			Wrap(err)
	}

	cctx, cancel = context.WithTimeout(ctx, s.cacheTimeout)
	if err := s.cache.DeleteIndex(cctx, userID); err != nil {
		errutil.LogWarn(s.logger, "session index delete failed", err)
	}
	cancel()
	return nil
}

// enforceLimit evicts the oldest sessions when the user is at the
// concurrent-session cap, so that a subsequent create stays within it.
// Stale reverse-index entries found during the scan are pruned.
func (s *SessionStore) enforceLimit(ctx context.Context, userID int64) error {
	live, err := s.liveSessions(ctx, userID)
	if err != nil {
		return err
	}
	if len(live) < s.maxPerUser {
		return nil
	}

	sort.Slice(live, func(i, j int) bool {
		return live[i].CreatedAt.Before(live[j].CreatedAt)
	})

	// Evict enough of the oldest to leave room for one new session.
	evict := live[:len(live)-s.maxPerUser+1]
	for _, victim := range evict {
		cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
		if err := s.cache.Delete(cctx, victim.TokenHash); err != nil {
			errutil.LogWarn(s.logger, "session eviction cache delete failed", err)
		}
		cancel()

		cctx, cancel = context.WithTimeout(ctx, s.cacheTimeout)
		if err := s.cache.RemoveMember(cctx, userID, victim.TokenHash); err != nil {
			errutil.LogWarn(s.logger, "session eviction index removal failed", err)
		}
		cancel()

		if err := s.durable.Delete(ctx, victim.TokenHash); err != nil && !errors.Is(err, ErrNotFound) {
			errutil.LogWarn(s.logger, "session eviction durable delete failed", err)
		}
		observability.RecordSessionEvicted()
	}
	return nil
}

// liveSessions enumerates a user's live sessions via the cache reverse
// index, falling back to the durable backend when the cache is unreachable.
func (s *SessionStore) liveSessions(ctx context.Context, userID int64) ([]*Session, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	members, err := s.cache.Members(cctx, userID)
	cancel()
	if err != nil {
		observability.RecordCacheFallback("enforce_limit")
		sessions, derr := s.durable.ListByUser(ctx, userID)
		if derr != nil {
			return nil, oops.Code("SESSION_LIMIT_SCAN_FAILED").
				With("operation", "durable list by user").
				With("user_id", userID).
				Wrap(derr)
		}
		return sessions, nil
	}

	var live []*Session
	for _, hash := range members {
		cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
		session, err := s.cache.Get(cctx, hash)
		cancel()
		switch {
		case err == nil:
			live = append(live, session)
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrCorruptSession):
			// Expired or undecodable entry still in the index: prune it.
			cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
			if rerr := s.cache.RemoveMember(cctx, userID, hash); rerr != nil {
				errutil.LogWarn(s.logger, "stale index entry prune failed", rerr)
			}
			cancel()
			if errors.Is(err, ErrCorruptSession) {
				cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
				if derr := s.cache.Delete(cctx, hash); derr != nil {
					errutil.LogWarn(s.logger, "corrupt session prune failed", derr)
				}
				cancel()
			}
		default:
			// A flaky read is not grounds for eviction; skip the entry.
			errutil.LogWarn(s.logger, "session scan read failed", err)
		}
	}
	return live, nil
}
