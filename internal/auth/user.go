// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Name validation constraints.
const (
	MinNameLength = 1
	MaxNameLength = 100
)

// MaxEmailLength bounds stored email addresses.
const MaxEmailLength = 254

// emailRegex is intentionally permissive: one @, no spaces, a dot in the
// domain. Real validation happens via the verification email.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// User represents a registered account.
//
// A non-nil token hash is always paired with a non-nil expiry; the repository
// methods that set and clear them maintain the pair atomically.
type User struct {
	ID            int64
	Name          string
	Email         string // stored case-normalized
	PasswordHash  string
	EmailVerified bool

	VerificationTokenHash *string
	VerificationExpiresAt *time.Time
	ResetTokenHash        *string
	ResetExpiresAt        *time.Time

	FailedAttempts int
	LockedUntil    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PublicUser is the client-visible projection of a User. It never carries
// the password hash or any token material.
type PublicUser struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
}

// Public returns the client-visible projection of the user.
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
	}
}

// IsLocked returns true if the account is locked out as of now.
func (u *User) IsLocked(now time.Time) bool {
	return IsLockedOut(u.LockedUntil, now)
}

// NormalizeEmail lower-cases and trims an email address. All lookups and
// writes go through this so that uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the shape of an email address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code(CodeValidation).Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code(CodeValidation).
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	if !emailRegex.MatchString(email) {
		return oops.Code(CodeValidation).Errorf("email address is not valid")
	}
	return nil
}

// ValidateName checks account display-name constraints.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < MinNameLength {
		return oops.Code(CodeValidation).Errorf("name cannot be empty")
	}
	if len(trimmed) > MaxNameLength {
		return oops.Code(CodeValidation).
			With("max", MaxNameLength).
			Errorf("name must be at most %d characters", MaxNameLength)
	}
	return nil
}

// UserRepository manages durable user persistence.
type UserRepository interface {
	// Create stores a new user and fills in ID, CreatedAt, and UpdatedAt.
	// Returns an error with code AUTH_EMAIL_TAKEN on duplicate email.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id int64) (*User, error)

	// GetByEmail retrieves a user by normalized email. Returns ErrNotFound
	// if absent.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// UpdateLoginState persists the failure counter and lockout timestamp.
	UpdateLoginState(ctx context.Context, id int64, failedAttempts int, lockedUntil *time.Time) error

	// SetVerificationToken stores a verification token hash and expiry,
	// overwriting any prior unconsumed token.
	SetVerificationToken(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) error

	// GetByVerificationTokenHash retrieves the user holding the given
	// verification token hash. Returns ErrNotFound if no user holds it;
	// expiry is the caller's concern.
	GetByVerificationTokenHash(ctx context.Context, tokenHash string) (*User, error)

	// MarkEmailVerified sets email_verified and clears the verification
	// token pair in a single statement.
	MarkEmailVerified(ctx context.Context, id int64) error

	// SetResetToken stores a reset token hash and expiry, overwriting any
	// prior unconsumed token.
	SetResetToken(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) error

	// GetByResetTokenHash retrieves the user holding the given reset token
	// hash. Returns ErrNotFound if no user holds it; expiry is the
	// caller's concern.
	GetByResetTokenHash(ctx context.Context, tokenHash string) (*User, error)

	// ResetPassword replaces the password hash and clears the reset token
	// pair in a single statement.
	ResetPassword(ctx context.Context, id int64, passwordHash string) error
}
