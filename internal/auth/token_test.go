// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	token, hash, err := GenerateToken()
	require.NoError(t, err)

	assert.Len(t, token, TokenBytes*2, "token should be hex-encoded")
	assert.Equal(t, HashToken(token), hash)

	token2, hash2, err := GenerateToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
	assert.NotEqual(t, hash, hash2)
}

func TestHashToken(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"), "hashing is deterministic")
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
	assert.Len(t, HashToken("abc"), 64, "sha256 hex digest")
}

func TestTokenLive(t *testing.T) {
	now := time.Now()
	hash := "deadbeef"
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	assert.False(t, tokenLive(nil, nil, now))
	assert.False(t, tokenLive(&hash, nil, now))
	assert.False(t, tokenLive(nil, &future, now))
	assert.False(t, tokenLive(&hash, &past, now), "expired token is dead")
	assert.True(t, tokenLive(&hash, &future, now))
}
