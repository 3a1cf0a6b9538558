// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// userColumns is the column list every user SELECT uses, in scanUser order.
const userColumns = `id, name, email, password_hash, email_verified,
	verification_token_hash, verification_expires_at,
	reset_token_hash, reset_expires_at,
	failed_attempts, locked_until, created_at, updated_at`

// PostgresUserRepository implements auth.UserRepository using PostgreSQL.
type PostgresUserRepository struct {
	pool poolIface
}

// NewPostgresUserRepository creates a new PostgreSQL user repository.
func NewPostgresUserRepository(pool poolIface) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

var _ auth.UserRepository = (*PostgresUserRepository)(nil)

// Create stores a new user. A duplicate email surfaces as AUTH_EMAIL_TAKEN
// via the unique index rather than a racy pre-check.
func (r *PostgresUserRepository) Create(ctx context.Context, user *auth.User) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		user.Name, user.Email, user.PasswordHash,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code(auth.CodeEmailTaken).Errorf("email already registered")
		}
		return oops.With("operation", "create user").Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *PostgresUserRepository) GetByID(ctx context.Context, id int64) (*auth.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row, "get user by id")
}

// GetByEmail retrieves a user by normalized email.
func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row, "get user by email")
}

// UpdateLoginState persists the failure counter and lockout timestamp.
func (r *PostgresUserRepository) UpdateLoginState(ctx context.Context, id int64, failedAttempts int, lockedUntil *time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET failed_attempts = $2, locked_until = $3, updated_at = now()
		 WHERE id = $1`,
		id, failedAttempts, lockedUntil)
	if err != nil {
		return oops.With("operation", "update login state").With("user_id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// SetVerificationToken stores a verification token hash and expiry,
// overwriting any prior unconsumed token.
func (r *PostgresUserRepository) SetVerificationToken(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET verification_token_hash = $2, verification_expires_at = $3, updated_at = now()
		 WHERE id = $1`,
		id, tokenHash, expiresAt)
	if err != nil {
		return oops.With("operation", "set verification token").With("user_id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// GetByVerificationTokenHash retrieves the user holding the given
// verification token hash.
func (r *PostgresUserRepository) GetByVerificationTokenHash(ctx context.Context, tokenHash string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE verification_token_hash = $1`, tokenHash)
	return scanUser(row, "get user by verification token")
}

// MarkEmailVerified sets email_verified and clears the verification token
// pair in one statement, so a consumed token can never be replayed.
func (r *PostgresUserRepository) MarkEmailVerified(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET email_verified = TRUE,
		     verification_token_hash = NULL,
		     verification_expires_at = NULL,
		     updated_at = now()
		 WHERE id = $1`,
		id)
	if err != nil {
		return oops.With("operation", "mark email verified").With("user_id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// SetResetToken stores a reset token hash and expiry, overwriting any prior
// unconsumed token.
func (r *PostgresUserRepository) SetResetToken(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET reset_token_hash = $2, reset_expires_at = $3, updated_at = now()
		 WHERE id = $1`,
		id, tokenHash, expiresAt)
	if err != nil {
		return oops.With("operation", "set reset token").With("user_id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// GetByResetTokenHash retrieves the user holding the given reset token hash.
func (r *PostgresUserRepository) GetByResetTokenHash(ctx context.Context, tokenHash string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE reset_token_hash = $1`, tokenHash)
	return scanUser(row, "get user by reset token")
}

// ResetPassword replaces the password hash and clears the reset token pair
// in one statement.
func (r *PostgresUserRepository) ResetPassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET password_hash = $2,
		     reset_token_hash = NULL,
		     reset_expires_at = NULL,
		     updated_at = now()
		 WHERE id = $1`,
		id, passwordHash)
	if err != nil {
		return oops.With("operation", "reset password").With("user_id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row, operation string) (*auth.User, error) {
	var user auth.User
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.EmailVerified,
		&user.VerificationTokenHash, &user.VerificationExpiresAt,
		&user.ResetTokenHash, &user.ResetExpiresAt,
		&user.FailedAttempts, &user.LockedUntil, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, oops.With("operation", operation).Wrap(err)
	}
	return &user, nil
}
