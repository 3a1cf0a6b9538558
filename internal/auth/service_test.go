// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/authtest"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

const strongPassword = "xT9#mQ2$vL8@pW5z"

type serviceFixture struct {
	svc     *auth.Service
	store   *auth.SessionStore
	users   *authtest.UserRepo
	cache   *authtest.Cache
	durable *authtest.DurableRepo
	mailer  *authtest.Mailer
	clock   *fakeClock
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	clock := newFakeClock()
	users := authtest.NewUserRepo()
	cache := authtest.NewCache()
	cache.Now = clock.Now
	durable := authtest.NewDurableRepo()
	mailer := authtest.NewMailer()

	store, err := auth.NewSessionStore(cache, durable, users, slog.Default(), auth.SessionStoreConfig{})
	require.NoError(t, err)
	store.SetNow(clock.Now)

	svc, err := auth.NewService(users, store, auth.NewArgon2idHasher(), auth.NewStrengthChecker(), mailer, slog.Default())
	require.NoError(t, err)
	svc.SetNow(clock.Now)

	return &serviceFixture{
		svc:     svc,
		store:   store,
		users:   users,
		cache:   cache,
		durable: durable,
		mailer:  mailer,
		clock:   clock,
	}
}

func (f *serviceFixture) register(t *testing.T, name, email string) *auth.PublicUser {
	t.Helper()
	user, err := f.svc.Register(context.Background(), name, email, strongPassword)
	require.NoError(t, err)
	return user
}

func TestService_Register(t *testing.T) {
	f := newServiceFixture(t)

	user, err := f.svc.Register(context.Background(), "Ada Lovelace", "Ada@Example.COM", strongPassword)
	require.NoError(t, err)

	assert.NotZero(t, user.ID)
	assert.Equal(t, "Ada Lovelace", user.Name)
	assert.Equal(t, "ada@example.com", user.Email, "email stored normalized")
	assert.False(t, user.EmailVerified)

	// A verification email went out with a usable token.
	sent := f.mailer.Last()
	require.NotNil(t, sent)
	assert.Equal(t, "verification", sent.Kind)
	assert.Equal(t, "ada@example.com", sent.To)
	assert.NotEmpty(t, sent.Token)
}

func TestService_RegisterValidation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		userName string
		email    string
		password string
		wantCode string
	}{
		{"empty name", "", "a@example.com", strongPassword, auth.CodeValidation},
		{"blank name", "   ", "a@example.com", strongPassword, auth.CodeValidation},
		{"bad email", "Ada", "not-an-email", strongPassword, auth.CodeValidation},
		{"empty password", "Ada", "a@example.com", "", auth.CodeWeakPassword},
		{"weak password", "Ada", "a@example.com", "password123", auth.CodeWeakPassword},
		{"password contains email", "Ada", "a@example.com", "a@example.com1", auth.CodeWeakPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.userName, tt.email, tt.password)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestService_RegisterDuplicateEmail(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.register(t, "Ada", "ada@example.com")

	// Case differences do not dodge the uniqueness check.
	_, err := f.svc.Register(ctx, "Imposter", "ADA@example.com", strongPassword)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeEmailTaken)
}

func TestService_RegisterSucceedsWhenMailerFails(t *testing.T) {
	f := newServiceFixture(t)
	f.mailer.Err = errors.New("smtp relay down")

	user, err := f.svc.Register(context.Background(), "Ada", "ada@example.com", strongPassword)
	require.NoError(t, err, "a mail outage must not block registration")
	assert.NotZero(t, user.ID)
}

func TestService_LoginSuccess(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.register(t, "Ada", "ada@example.com")

	token, user, err := f.svc.Login(ctx, "ADA@example.com ", strongPassword)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, "ada@example.com", user.Email)

	session, err := f.svc.CurrentUser(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)
}

func TestService_LoginFailuresAreIndistinguishable(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.register(t, "Ada", "ada@example.com")

	_, _, wrongPassword := f.svc.Login(ctx, "ada@example.com", "wrong password")
	require.Error(t, wrongPassword)
	errutil.AssertErrorCode(t, wrongPassword, auth.CodeInvalidCredentials)

	_, _, unknownEmail := f.svc.Login(ctx, "nobody@example.com", strongPassword)
	require.Error(t, unknownEmail)
	errutil.AssertErrorCode(t, unknownEmail, auth.CodeInvalidCredentials)

	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error(),
		"unknown email and wrong password must read identically")
}

func TestService_LoginLockout(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.register(t, "Ada", "ada@example.com")

	for i := 0; i < auth.LockoutThreshold; i++ {
		_, _, err := f.svc.Login(ctx, "ada@example.com", "wrong password")
		require.Error(t, err)
	}

	// Locked: even the correct password is rejected, with the same error.
	_, _, err := f.svc.Login(ctx, "ada@example.com", strongPassword)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
}

func TestService_LoginAfterLockExpires(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.register(t, "Ada", "ada@example.com")

	for i := 0; i < auth.LockoutThreshold; i++ {
		_, _, err := f.svc.Login(ctx, "ada@example.com", "wrong-password")
		require.Error(t, err)
	}

	// Still locked just before the lockout window closes.
	f.clock.Advance(auth.LockoutDuration - time.Second)
	_, _, err := f.svc.Login(ctx, "ada@example.com", strongPassword)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)

	f.clock.Advance(2 * time.Second)
	token, _, err := f.svc.Login(ctx, "ada@example.com", strongPassword)
	require.NoError(t, err, "an expired lock no longer blocks login")
	assert.NotEmpty(t, token)

	// The successful login reset the failure counter.
	user, err := f.users.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Zero(t, user.FailedAttempts)
	assert.Nil(t, user.LockedUntil)
}

func TestService_Logout(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.register(t, "Ada", "ada@example.com")

	token, _, err := f.svc.Login(ctx, "ada@example.com", strongPassword)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, token))

	_, err = f.svc.CurrentUser(ctx, token)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeSessionInvalid)

	// Logging out twice is fine.
	assert.NoError(t, f.svc.Logout(ctx, token))
}

func TestService_VerifyEmail(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.register(t, "Ada", "ada@example.com")

	token := f.mailer.Last().Token
	require.NoError(t, f.svc.VerifyEmail(ctx, token))

	user, err := f.users.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.True(t, user.EmailVerified)
	assert.Nil(t, user.VerificationTokenHash, "token is single-use")

	// Reusing the consumed token fails.
	err = f.svc.VerifyEmail(ctx, token)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeTokenInvalid)
}

func TestService_VerifyEmailExpiredToken(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.register(t, "Ada", "ada@example.com")
	token := f.mailer.Last().Token

	f.clock.Advance(auth.VerificationTokenExpiry + time.Minute)

	err := f.svc.VerifyEmail(ctx, token)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeTokenInvalid)
}

func TestService_VerifyEmailBadToken(t *testing.T) {
	f := newServiceFixture(t)

	for _, token := range []string{"", "garbage"} {
		err := f.svc.VerifyEmail(context.Background(), token)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeTokenInvalid)
	}
}

func TestService_ResendVerification(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.register(t, "Ada", "ada@example.com")
	first := f.mailer.Last().Token

	require.NoError(t, f.svc.ResendVerification(ctx, "ada@example.com"))
	second := f.mailer.Last().Token
	require.NotEqual(t, first, second)

	// The stale token was superseded.
	err := f.svc.VerifyEmail(ctx, first)
	require.Error(t, err)
	require.NoError(t, f.svc.VerifyEmail(ctx, second))

	// Already verified or unknown: silently a no-op.
	sentBefore := len(f.mailer.Sent())
	require.NoError(t, f.svc.ResendVerification(ctx, "ada@example.com"))
	require.NoError(t, f.svc.ResendVerification(ctx, "nobody@example.com"))
	assert.Len(t, f.mailer.Sent(), sentBefore)
}

func TestService_ForgotPassword(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.register(t, "Ada", "ada@example.com")

	require.NoError(t, f.svc.ForgotPassword(ctx, "ada@example.com"))

	sent := f.mailer.Last()
	require.NotNil(t, sent)
	assert.Equal(t, "reset", sent.Kind)
	assert.NotEmpty(t, sent.Token)
}

func TestService_ForgotPasswordUnknownEmail(t *testing.T) {
	f := newServiceFixture(t)

	sentBefore := len(f.mailer.Sent())
	require.NoError(t, f.svc.ForgotPassword(context.Background(), "nobody@example.com"),
		"unknown email must look like success")
	assert.Len(t, f.mailer.Sent(), sentBefore)
}

func TestService_ForgotPasswordMailerFailure(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.register(t, "Ada", "ada@example.com")

	f.mailer.Err = errors.New("smtp relay down")
	assert.NoError(t, f.svc.ForgotPassword(ctx, "ada@example.com"),
		"delivery failure must look like success")
}

func TestService_ResetPassword(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.register(t, "Ada", "ada@example.com")

	// An open session that must die with the old password.
	sessionToken, _, err := f.svc.Login(ctx, "ada@example.com", strongPassword)
	require.NoError(t, err)

	require.NoError(t, f.svc.ForgotPassword(ctx, "ada@example.com"))
	resetToken := f.mailer.Last().Token

	const newPassword = "rK4!nB7&dF2@hJ6c"
	require.NoError(t, f.svc.ResetPassword(ctx, resetToken, newPassword))

	// Old password is out, new one is in.
	_, _, err = f.svc.Login(ctx, "ada@example.com", strongPassword)
	require.Error(t, err)
	_, _, err = f.svc.Login(ctx, "ada@example.com", newPassword)
	require.NoError(t, err)

	// Every pre-reset session was revoked.
	_, err = f.svc.CurrentUser(ctx, sessionToken)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeSessionInvalid)

	// The reset token is single-use.
	err = f.svc.ResetPassword(ctx, resetToken, "tY5$wE8*uI3#oP7m")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeTokenInvalid)
}

func TestService_ResetPasswordExpiredToken(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.register(t, "Ada", "ada@example.com")

	require.NoError(t, f.svc.ForgotPassword(ctx, "ada@example.com"))
	resetToken := f.mailer.Last().Token

	f.clock.Advance(auth.ResetTokenExpiry + time.Minute)

	err := f.svc.ResetPassword(ctx, resetToken, "rK4!nB7&dF2@hJ6c")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeTokenInvalid)
}

func TestService_ResetPasswordRejectsWeakReplacement(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.register(t, "Ada", "ada@example.com")

	require.NoError(t, f.svc.ForgotPassword(ctx, "ada@example.com"))
	resetToken := f.mailer.Last().Token

	err := f.svc.ResetPassword(ctx, resetToken, "password123")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeWeakPassword)

	// The rejection did not consume the token.
	require.NoError(t, f.svc.ResetPassword(ctx, resetToken, "rK4!nB7&dF2@hJ6c"))
}

func TestService_ResetPasswordChecksStrengthBeforeToken(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	// Both the token and the password are bad; the strength failure wins.
	err := f.svc.ResetPassword(ctx, "not-a-real-token", "password123")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeWeakPassword)
}

func TestService_ForgotPasswordOverwritesPriorToken(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.register(t, "Ada", "ada@example.com")

	require.NoError(t, f.svc.ForgotPassword(ctx, "ada@example.com"))
	first := f.mailer.Last().Token
	require.NoError(t, f.svc.ForgotPassword(ctx, "ada@example.com"))
	second := f.mailer.Last().Token
	require.NotEqual(t, first, second)

	err := f.svc.ResetPassword(ctx, first, "rK4!nB7&dF2@hJ6c")
	require.Error(t, err, "superseded token must be dead")
	require.NoError(t, f.svc.ResetPassword(ctx, second, "rK4!nB7&dF2@hJ6c"))
}
