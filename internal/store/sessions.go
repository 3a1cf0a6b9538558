// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// PostgresSessionRepository implements auth.DurableSessionRepository using
// PostgreSQL. Rows carry an absolute expiry; expired rows are invisible to
// reads and swept by DeleteExpired.
type PostgresSessionRepository struct {
	pool poolIface
}

// NewPostgresSessionRepository creates a new PostgreSQL session repository.
func NewPostgresSessionRepository(pool poolIface) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

var _ auth.DurableSessionRepository = (*PostgresSessionRepository)(nil)

// Insert stores a session row with an absolute expiry.
func (r *PostgresSessionRepository) Insert(ctx context.Context, session *auth.Session, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (token_hash, user_id, created_at, last_accessed, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		session.TokenHash, session.UserID, session.CreatedAt, session.LastAccessed, expiresAt)
	if err != nil {
		return oops.With("operation", "insert session").With("user_id", session.UserID).Wrap(err)
	}
	return nil
}

// GetLive retrieves a non-expired session, rebuilding the user snapshot from
// the current user row.
func (r *PostgresSessionRepository) GetLive(ctx context.Context, tokenHash string, now time.Time) (*auth.Session, error) {
	var session auth.Session
	err := r.pool.QueryRow(ctx,
		`SELECT s.token_hash, s.user_id, u.email, u.name, u.email_verified,
		        s.created_at, s.last_accessed
		 FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.token_hash = $1 AND s.expires_at > $2`,
		tokenHash, now,
	).Scan(
		&session.TokenHash, &session.UserID, &session.Email, &session.Name,
		&session.EmailVerified, &session.CreatedAt, &session.LastAccessed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, oops.With("operation", "get live session").Wrap(err)
	}
	return &session, nil
}

// Touch updates the last-accessed timestamp and slides the expiry.
func (r *PostgresSessionRepository) Touch(ctx context.Context, tokenHash string, lastAccessed, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions SET last_accessed = $2, expires_at = $3 WHERE token_hash = $1`,
		tokenHash, lastAccessed, expiresAt)
	if err != nil {
		return oops.With("operation", "touch session").Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// Delete removes a session row. Deleting an absent row is not an error.
func (r *PostgresSessionRepository) Delete(ctx context.Context, tokenHash string) error {
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return oops.With("operation", "delete session").Wrap(err)
	}
	return nil
}

// ListByUser returns a user's non-expired sessions.
func (r *PostgresSessionRepository) ListByUser(ctx context.Context, userID int64) ([]*auth.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.token_hash, s.user_id, u.email, u.name, u.email_verified,
		        s.created_at, s.last_accessed
		 FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.user_id = $1 AND s.expires_at > now()
		 ORDER BY s.created_at`,
		userID)
	if err != nil {
		return nil, oops.With("operation", "list sessions").With("user_id", userID).Wrap(err)
	}
	defer rows.Close()

	var sessions []*auth.Session
	for rows.Next() {
		var session auth.Session
		if err := rows.Scan(
			&session.TokenHash, &session.UserID, &session.Email, &session.Name,
			&session.EmailVerified, &session.CreatedAt, &session.LastAccessed,
		); err != nil {
			return nil, oops.With("operation", "scan session row").Wrap(err)
		}
		sessions = append(sessions, &session)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate sessions").Wrap(err)
	}
	return sessions, nil
}

// DeleteByUser removes all of a user's session rows.
func (r *PostgresSessionRepository) DeleteByUser(ctx context.Context, userID int64) error {
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return oops.With("operation", "delete sessions by user").With("user_id", userID).Wrap(err)
	}
	return nil
}

// DeleteExpired removes expired session rows and returns the count.
func (r *PostgresSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, oops.With("operation", "delete expired sessions").Wrap(err)
	}
	return tag.RowsAffected(), nil
}
