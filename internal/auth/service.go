// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// dummyPasswordHash is verified against when login targets an unknown email,
// so that the response time does not reveal whether the account exists.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Service implements the account lifecycle: registration, login with
// lockout, logout, email verification, and the password reset flow. Session
// mechanics live in SessionStore; Service composes them with user state.
type Service struct {
	users    UserRepository
	sessions *SessionStore
	hasher   PasswordHasher
	strength *StrengthChecker
	mailer   Mailer
	logger   *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewService creates a Service.
func NewService(users UserRepository, sessions *SessionStore, hasher PasswordHasher, strength *StrengthChecker, mailer Mailer, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if strength == nil {
		return nil, oops.Errorf("strength checker is required")
	}
	if mailer == nil {
		return nil, oops.Errorf("mailer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		strength: strength,
		mailer:   mailer,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Sessions exposes the underlying session store for transport-level
// concerns such as validation and rotation.
func (s *Service) Sessions() *SessionStore { return s.sessions }

// Register creates an account and kicks off email verification. The
// verification email is best-effort: a delivery failure is logged and the
// registration still succeeds.
func (s *Service) Register(ctx context.Context, name, email, password string) (*PublicUser, error) {
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	result := s.strength.Score(password, name, email)
	if !result.IsValid {
		return nil, oops.Code(CodeWeakPassword).
			With("score", result.Score).
			With("feedback", result.Feedback).
			Errorf("password is too weak")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	now := s.now()
	user := &User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	observability.RecordRegistration()

	if err := s.issueVerification(ctx, user); err != nil {
		errutil.LogError(s.logger, "verification email not sent", err)
	}
	return user.Public(), nil
}

// ResendVerification issues a fresh verification token for an account that
// has not verified yet. Like ForgotPassword it never reveals whether the
// email is registered.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return oops.Code("VERIFICATION_RESEND_FAILED").Wrap(err)
	}
	if user.EmailVerified {
		return nil
	}
	if err := s.issueVerification(ctx, user); err != nil {
		errutil.LogError(s.logger, "verification email not sent", err)
	}
	return nil
}

func (s *Service) issueVerification(ctx context.Context, user *User) error {
	token, hash, err := GenerateToken()
	if err != nil {
		return oops.Code("VERIFICATION_ISSUE_FAILED").Wrap(err)
	}
	expiresAt := s.now().Add(VerificationTokenExpiry)
	if err := s.users.SetVerificationToken(ctx, user.ID, hash, expiresAt); err != nil {
		return oops.Code("VERIFICATION_ISSUE_FAILED").
			With("user_id", user.ID).
			Wrap(err)
	}
	if err := s.mailer.SendVerification(ctx, user.Email, user.Name, token); err != nil {
		return oops.Code("VERIFICATION_ISSUE_FAILED").
			With("operation", "send email").
			Wrap(err)
	}
	return nil
}

// Login checks credentials and opens a session. Unknown emails, wrong
// passwords, and locked accounts all produce the same invalid-credentials
// error, and the unknown-email path still runs a hash verification so the
// response time matches.
func (s *Service) Login(ctx context.Context, email, password string) (string, *PublicUser, error) {
	email = NormalizeEmail(email)
	now := s.now()

	invalid := oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		s.hasher.Verify(password, dummyPasswordHash)
		observability.RecordLogin("failure")
		return "", nil, invalid
	}
	if err != nil {
		return "", nil, oops.Code("LOGIN_FAILED").Wrap(err)
	}

	if user.IsLocked(now) {
		// Burn a verification anyway; a locked account should not be
		// distinguishable by timing either.
		s.hasher.Verify(password, user.PasswordHash)
		observability.RecordLogin("locked")
		return "", nil, invalid
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		attempts, lockedUntil := NextLockout(user.FailedAttempts, now)
		if err := s.users.UpdateLoginState(ctx, user.ID, attempts, lockedUntil); err != nil {
			errutil.LogError(s.logger, "failed attempt accounting failed", err)
		}
		observability.RecordLogin("failure")
		return "", nil, invalid
	}

	if user.FailedAttempts > 0 || user.LockedUntil != nil {
		if err := s.users.UpdateLoginState(ctx, user.ID, 0, nil); err != nil {
			errutil.LogError(s.logger, "failed attempt reset failed", err)
		}
	}

	token, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return "", nil, oops.Code("LOGIN_FAILED").
			With("operation", "create session").
			Wrap(err)
	}
	observability.RecordLogin("success")
	return token, user.Public(), nil
}

// Logout tears down the session for the given token. Always succeeds, even
// when the session is already gone.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Invalidate(ctx, token)
}

// CurrentUser resolves a session token to its session payload. A missing or
// expired session yields an invalid-session error.
func (s *Service) CurrentUser(ctx context.Context, token string) (*Session, error) {
	session, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, oops.Code(CodeSessionInvalid).Errorf("session not found or expired")
	}
	return session, nil
}

// VerifyEmail consumes a verification token and marks the account verified.
// The token is single-use: verification clears it.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	invalid := oops.Code(CodeTokenInvalid).Errorf("invalid or expired verification token")
	if token == "" {
		return invalid
	}

	user, err := s.users.GetByVerificationTokenHash(ctx, HashToken(token))
	if errors.Is(err, ErrNotFound) {
		return invalid
	}
	if err != nil {
		return oops.Code("VERIFY_EMAIL_FAILED").Wrap(err)
	}
	if !tokenLive(user.VerificationTokenHash, user.VerificationExpiresAt, s.now()) {
		return invalid
	}

	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return oops.Code("VERIFY_EMAIL_FAILED").
			With("user_id", user.ID).
			Wrap(err)
	}
	return nil
}

// ForgotPassword starts the reset flow. The response never reveals whether
// the email is registered: an unknown address and a delivery failure both
// come back as success.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		s.logger.DebugContext(ctx, "password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return oops.Code("FORGOT_PASSWORD_FAILED").Wrap(err)
	}

	token, hash, err := GenerateToken()
	if err != nil {
		return oops.Code("FORGOT_PASSWORD_FAILED").Wrap(err)
	}
	expiresAt := s.now().Add(ResetTokenExpiry)
	if err := s.users.SetResetToken(ctx, user.ID, hash, expiresAt); err != nil {
		return oops.Code("FORGOT_PASSWORD_FAILED").
			With("user_id", user.ID).
			Wrap(err)
	}

	if err := s.mailer.SendPasswordReset(ctx, user.Email, user.Name, token); err != nil {
		errutil.LogError(s.logger, "password reset email not sent", err)
	}
	return nil
}

// ResetPassword consumes a reset token, replaces the password, and revokes
// every session the account holds.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	// Strength is checked before the token is consumed or even looked up,
	// so a weak replacement password surfaces as such rather than as a
	// token error. The account's name and email are not known yet, so the
	// score runs without user inputs.
	result := s.strength.Score(newPassword)
	if !result.IsValid {
		return oops.Code(CodeWeakPassword).
			With("score", result.Score).
			With("feedback", result.Feedback).
			Errorf("password is too weak")
	}

	invalid := oops.Code(CodeTokenInvalid).Errorf("invalid or expired reset token")
	if token == "" {
		return invalid
	}

	user, err := s.users.GetByResetTokenHash(ctx, HashToken(token))
	if errors.Is(err, ErrNotFound) {
		return invalid
	}
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").Wrap(err)
	}
	if !tokenLive(user.ResetTokenHash, user.ResetExpiresAt, s.now()) {
		return invalid
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}
	if err := s.users.ResetPassword(ctx, user.ID, hash); err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("user_id", user.ID).
			Wrap(err)
	}

	// The credential change already happened; a failed revocation sweep is
	// logged rather than surfaced as a reset failure.
	if err := s.sessions.InvalidateAll(ctx, user.ID); err != nil {
		errutil.LogError(s.logger, "session revocation after reset failed", err)
	}
	return nil
}
