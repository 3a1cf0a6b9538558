// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package authtest provides in-memory fakes of the auth persistence
// interfaces for tests. The cache and durable fakes support error injection
// so fallback paths can be exercised without a real backend.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// UserRepo is an in-memory auth.UserRepository.
type UserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*auth.User

	// Err, when set, is returned from every method.
	Err error
}

// NewUserRepo creates an empty UserRepo.
func NewUserRepo() *UserRepo {
	return &UserRepo{users: make(map[int64]*auth.User)}
}

var _ auth.UserRepository = (*UserRepo)(nil)

// Seed inserts a user directly, assigning an ID if unset.
func (r *UserRepo) Seed(user *auth.User) *auth.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == 0 {
		r.nextID++
		user.ID = r.nextID
	} else if user.ID > r.nextID {
		r.nextID = user.ID
	}
	r.users[user.ID] = user
	return user
}

func (r *UserRepo) Create(ctx context.Context, user *auth.User) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return oops.Code(auth.CodeEmailTaken).Errorf("email already registered")
		}
	}
	r.nextID++
	user.ID = r.nextID
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*auth.User, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *UserRepo) UpdateLoginState(ctx context.Context, id int64, failedAttempts int, lockedUntil *time.Time) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	user.FailedAttempts = failedAttempts
	user.LockedUntil = lockedUntil
	return nil
}

func (r *UserRepo) SetVerificationToken(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	user.VerificationTokenHash = &tokenHash
	user.VerificationExpiresAt = &expiresAt
	return nil
}

func (r *UserRepo) GetByVerificationTokenHash(ctx context.Context, tokenHash string) (*auth.User, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.VerificationTokenHash != nil && *user.VerificationTokenHash == tokenHash {
			clone := *user
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *UserRepo) MarkEmailVerified(ctx context.Context, id int64) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	user.EmailVerified = true
	user.VerificationTokenHash = nil
	user.VerificationExpiresAt = nil
	return nil
}

func (r *UserRepo) SetResetToken(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	user.ResetTokenHash = &tokenHash
	user.ResetExpiresAt = &expiresAt
	return nil
}

func (r *UserRepo) GetByResetTokenHash(ctx context.Context, tokenHash string) (*auth.User, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.ResetTokenHash != nil && *user.ResetTokenHash == tokenHash {
			clone := *user
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *UserRepo) ResetPassword(ctx context.Context, id int64, passwordHash string) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.ResetTokenHash = nil
	user.ResetExpiresAt = nil
	return nil
}

type cacheEntry struct {
	session   auth.Session
	expiresAt time.Time
}

// Cache is an in-memory auth.SessionCache with TTL semantics and error
// injection.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	members map[int64]map[string]struct{}

	// Err, when set, is returned from every method, simulating an
	// unreachable cache.
	Err error
	// Corrupt marks token hashes whose payloads fail to decode.
	Corrupt map[string]bool
	// Now supplies the clock for TTL checks; defaults to time.Now.
	Now func() time.Time
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		members: make(map[int64]map[string]struct{}),
		Corrupt: make(map[string]bool),
	}
}

var _ auth.SessionCache = (*Cache)(nil)

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Len reports how many unexpired sessions the cache holds.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	now := c.now()
	for _, e := range c.entries {
		if e.expiresAt.After(now) {
			n++
		}
	}
	return n
}

func (c *Cache) Put(ctx context.Context, session *auth.Session, ttl time.Duration) error {
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[session.TokenHash] = cacheEntry{
		session:   *session,
		expiresAt: c.now().Add(ttl),
	}
	set, ok := c.members[session.UserID]
	if !ok {
		set = make(map[string]struct{})
		c.members[session.UserID] = set
	}
	set[session.TokenHash] = struct{}{}
	return nil
}

func (c *Cache) Get(ctx context.Context, tokenHash string) (*auth.Session, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Corrupt[tokenHash] {
		return nil, auth.ErrCorruptSession
	}
	entry, ok := c.entries[tokenHash]
	if !ok || !entry.expiresAt.After(c.now()) {
		return nil, auth.ErrNotFound
	}
	clone := entry.session
	return &clone, nil
}

func (c *Cache) Delete(ctx context.Context, tokenHash string) error {
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tokenHash)
	delete(c.Corrupt, tokenHash)
	return nil
}

func (c *Cache) Members(ctx context.Context, userID int64) ([]string, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var hashes []string
	for hash := range c.members[userID] {
		hashes = append(hashes, hash)
	}
	return hashes, nil
}

func (c *Cache) RemoveMember(ctx context.Context, userID int64, tokenHash string) error {
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.members[userID]; ok {
		delete(set, tokenHash)
	}
	return nil
}

func (c *Cache) DeleteIndex(ctx context.Context, userID int64) error {
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.members, userID)
	return nil
}

type durableRow struct {
	session   auth.Session
	expiresAt time.Time
}

// DurableRepo is an in-memory auth.DurableSessionRepository.
type DurableRepo struct {
	mu   sync.Mutex
	rows map[string]durableRow

	// Err, when set, is returned from every method.
	Err error
}

// NewDurableRepo creates an empty DurableRepo.
func NewDurableRepo() *DurableRepo {
	return &DurableRepo{rows: make(map[string]durableRow)}
}

var _ auth.DurableSessionRepository = (*DurableRepo)(nil)

// Len reports how many rows the repo holds, expired included.
func (r *DurableRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *DurableRepo) Insert(ctx context.Context, session *auth.Session, expiresAt time.Time) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[session.TokenHash] = durableRow{session: *session, expiresAt: expiresAt}
	return nil
}

func (r *DurableRepo) GetLive(ctx context.Context, tokenHash string, now time.Time) (*auth.Session, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[tokenHash]
	if !ok || !row.expiresAt.After(now) {
		return nil, auth.ErrNotFound
	}
	clone := row.session
	return &clone, nil
}

func (r *DurableRepo) Touch(ctx context.Context, tokenHash string, lastAccessed, expiresAt time.Time) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[tokenHash]
	if !ok {
		return auth.ErrNotFound
	}
	row.session.LastAccessed = lastAccessed
	row.expiresAt = expiresAt
	r.rows[tokenHash] = row
	return nil
}

func (r *DurableRepo) Delete(ctx context.Context, tokenHash string) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, tokenHash)
	return nil
}

func (r *DurableRepo) ListByUser(ctx context.Context, userID int64) ([]*auth.Session, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var sessions []*auth.Session
	for _, row := range r.rows {
		if row.session.UserID == userID {
			clone := row.session
			sessions = append(sessions, &clone)
		}
	}
	return sessions, nil
}

func (r *DurableRepo) DeleteByUser(ctx context.Context, userID int64) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for hash, row := range r.rows {
		if row.session.UserID == userID {
			delete(r.rows, hash)
		}
	}
	return nil
}

func (r *DurableRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if r.Err != nil {
		return 0, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for hash, row := range r.rows {
		if !row.expiresAt.After(now) {
			delete(r.rows, hash)
			n++
		}
	}
	return n, nil
}

// SentMail records one delivered message.
type SentMail struct {
	Kind  string // "verification" or "reset"
	To    string
	Name  string
	Token string
}

// Mailer is a recording auth.Mailer.
type Mailer struct {
	mu   sync.Mutex
	sent []SentMail

	// Err, when set, is returned from every send.
	Err error
}

// NewMailer creates an empty Mailer.
func NewMailer() *Mailer {
	return &Mailer{}
}

var _ auth.Mailer = (*Mailer)(nil)

func (m *Mailer) SendVerification(ctx context.Context, to, name, token string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMail{Kind: "verification", To: to, Name: name, Token: token})
	return nil
}

func (m *Mailer) SendPasswordReset(ctx context.Context, to, name, token string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMail{Kind: "reset", To: to, Name: name, Token: token})
	return nil
}

// Sent returns a copy of the recorded messages in send order.
func (m *Mailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMail, len(m.sent))
	copy(out, m.sent)
	return out
}

// Last returns the most recent message, or nil when none were sent.
func (m *Mailer) Last() *SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	last := m.sent[len(m.sent)-1]
	return &last
}
