// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// Redis keyspace. Session payloads are keyed by token hash, never by the
// plaintext token, so a cache dump cannot mint valid cookies.
//
//	session:{tokenHash}  -> JSON session payload, native TTL
//	user_sessions:{id}   -> set of token hashes (reverse index)
const (
	sessionKeyPrefix     = "session:"
	userSessionKeyPrefix = "user_sessions:"
)

func sessionKey(tokenHash string) string {
	return sessionKeyPrefix + tokenHash
}

func userSessionsKey(userID int64) string {
	return fmt.Sprintf("%s%d", userSessionKeyPrefix, userID)
}

// RedisSessionCache implements auth.SessionCache on Redis.
type RedisSessionCache struct {
	client redis.UniversalClient
}

// NewRedisSessionCache creates a session cache on the given client.
func NewRedisSessionCache(client redis.UniversalClient) *RedisSessionCache {
	return &RedisSessionCache{client: client}
}

var _ auth.SessionCache = (*RedisSessionCache)(nil)

// Put stores the session payload with a native TTL and adds its hash to the
// owner's reverse index. The index gets the same TTL on every write, so it
// outlives the longest-lived member.
func (c *RedisSessionCache) Put(ctx context.Context, session *auth.Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return oops.With("operation", "encode session").Wrap(err)
	}

	indexKey := userSessionsKey(session.UserID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(session.TokenHash), payload, ttl)
		pipe.SAdd(ctx, indexKey, session.TokenHash)
		pipe.Expire(ctx, indexKey, ttl)
		return nil
	})
	if err != nil {
		return oops.With("operation", "put session").Wrap(err)
	}
	return nil
}

// Get retrieves a session payload by token hash.
func (c *RedisSessionCache) Get(ctx context.Context, tokenHash string) (*auth.Session, error) {
	payload, err := c.client.Get(ctx, sessionKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, oops.With("operation", "get session").Wrap(err)
	}

	var session auth.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, auth.ErrCorruptSession
	}
	// TokenHash is excluded from the payload; the key carries it.
	session.TokenHash = tokenHash
	return &session, nil
}

// Delete removes a session payload. Deleting an absent key is not an error.
func (c *RedisSessionCache) Delete(ctx context.Context, tokenHash string) error {
	if err := c.client.Del(ctx, sessionKey(tokenHash)).Err(); err != nil {
		return oops.With("operation", "delete session").Wrap(err)
	}
	return nil
}

// Members returns the token hashes in a user's reverse index.
func (c *RedisSessionCache) Members(ctx context.Context, userID int64) ([]string, error) {
	hashes, err := c.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return nil, oops.With("operation", "list session index").With("user_id", userID).Wrap(err)
	}
	return hashes, nil
}

// RemoveMember removes one token hash from a user's reverse index.
func (c *RedisSessionCache) RemoveMember(ctx context.Context, userID int64, tokenHash string) error {
	if err := c.client.SRem(ctx, userSessionsKey(userID), tokenHash).Err(); err != nil {
		return oops.With("operation", "remove from session index").With("user_id", userID).Wrap(err)
	}
	return nil
}

// DeleteIndex removes a user's entire reverse index.
func (c *RedisSessionCache) DeleteIndex(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, userSessionsKey(userID)).Err(); err != nil {
		return oops.With("operation", "delete session index").With("user_id", userID).Wrap(err)
	}
	return nil
}

// AttemptCounter counts events in a fixed window, backed by Redis INCR with
// an expiry set on the first hit. Used to throttle login and password reset
// requests per client.
type AttemptCounter struct {
	client redis.UniversalClient
}

// NewAttemptCounter creates an AttemptCounter on the given client.
func NewAttemptCounter(client redis.UniversalClient) *AttemptCounter {
	return &AttemptCounter{client: client}
}

// Incr adds one hit under the key and returns the total for the current
// window. The first hit starts the window.
func (c *AttemptCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	fullKey := "attempts:" + key

	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, fullKey)
		pipe.ExpireNX(ctx, fullKey, window)
		return nil
	})
	if err != nil {
		return 0, oops.With("operation", "count attempt").Wrap(err)
	}
	return incr.Val(), nil
}

// Reset clears the counter, forgiving prior hits.
func (c *AttemptCounter) Reset(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, "attempts:"+key).Err(); err != nil {
		return oops.With("operation", "reset attempt counter").Wrap(err)
	}
	return nil
}
