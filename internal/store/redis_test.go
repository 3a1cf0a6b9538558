// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
)

func newTestCache(t *testing.T) (*RedisSessionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSessionCache(client), mr
}

func testSession(tokenHash string, userID int64) *auth.Session {
	now := time.Now().UTC().Truncate(time.Second)
	return &auth.Session{
		TokenHash:     tokenHash,
		UserID:        userID,
		Email:         "ada@example.com",
		Name:          "Ada",
		EmailVerified: true,
		CreatedAt:     now,
		LastAccessed:  now,
	}
}

func TestRedisSessionCache_PutGet(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	session := testSession("hash1", 7)
	require.NoError(t, cache.Put(ctx, session, time.Hour))

	got, err := cache.Get(ctx, "hash1")
	require.NoError(t, err)

	assert.Equal(t, "hash1", got.TokenHash, "token hash comes from the key, not the payload")
	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.Equal(t, "Ada", got.Name)
	assert.True(t, got.EmailVerified)
	assert.True(t, session.CreatedAt.Equal(got.CreatedAt))
}

func TestRedisSessionCache_PayloadOmitsTokenHash(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, testSession("hash1", 7), time.Hour))

	raw, err := mr.Get("session:hash1")
	require.NoError(t, err)
	assert.NotContains(t, raw, "hash1", "payload must not duplicate the key material")
}

func TestRedisSessionCache_GetMissing(t *testing.T) {
	cache, _ := newTestCache(t)

	_, err := cache.Get(context.Background(), "absent")
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestRedisSessionCache_GetExpired(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, testSession("hash1", 7), time.Minute))

	mr.FastForward(2 * time.Minute)

	_, err := cache.Get(ctx, "hash1")
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestRedisSessionCache_GetCorruptPayload(t *testing.T) {
	cache, mr := newTestCache(t)

	require.NoError(t, mr.Set("session:hash1", "{not json"))

	_, err := cache.Get(context.Background(), "hash1")
	require.ErrorIs(t, err, auth.ErrCorruptSession)
}

func TestRedisSessionCache_Delete(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, testSession("hash1", 7), time.Hour))
	require.NoError(t, cache.Delete(ctx, "hash1"))

	_, err := cache.Get(ctx, "hash1")
	require.ErrorIs(t, err, auth.ErrNotFound)

	// Deleting an absent key is fine.
	assert.NoError(t, cache.Delete(ctx, "hash1"))
}

func TestRedisSessionCache_ReverseIndex(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, testSession("hash1", 7), time.Hour))
	require.NoError(t, cache.Put(ctx, testSession("hash2", 7), time.Hour))
	require.NoError(t, cache.Put(ctx, testSession("other", 8), time.Hour))

	members, err := cache.Members(ctx, 7)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"hash1", "hash2"}, members)

	require.NoError(t, cache.RemoveMember(ctx, 7, "hash1"))
	members, err = cache.Members(ctx, 7)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"hash2"}, members)

	require.NoError(t, cache.DeleteIndex(ctx, 7))
	members, err = cache.Members(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, members)

	// User 8's index is untouched.
	members, err = cache.Members(ctx, 8)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"other"}, members)
}

func TestRedisSessionCache_IndexExpiresWithSessions(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, testSession("hash1", 7), time.Minute))

	mr.FastForward(2 * time.Minute)

	members, err := cache.Members(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, members, "index should not outlive its longest-lived member")
}

func TestAttemptCounter_Incr(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	counter := NewAttemptCounter(client)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := counter.Incr(ctx, "login:1.2.3.4", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	// Separate keys count separately.
	n, err := counter.Incr(ctx, "login:5.6.7.8", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// The window expires and the counter restarts.
	mr.FastForward(2 * time.Minute)
	n, err = counter.Incr(ctx, "login:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAttemptCounter_Reset(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	counter := NewAttemptCounter(client)
	ctx := context.Background()

	_, err := counter.Incr(ctx, "login:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.NoError(t, counter.Reset(ctx, "login:1.2.3.4"))

	n, err := counter.Incr(ctx, "login:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
