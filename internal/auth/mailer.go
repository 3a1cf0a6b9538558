// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"log/slog"
)

// Mailer delivers the account lifecycle emails. The tokens passed in are the
// plaintext values; implementations embed them in links and must not log
// them.
type Mailer interface {
	SendVerification(ctx context.Context, to, name, token string) error
	SendPasswordReset(ctx context.Context, to, name, token string) error
}

// LogMailer is a Mailer for development setups without an SMTP relay. It
// logs that a message would have been sent, without the token.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

var _ Mailer = (*LogMailer)(nil)

func (m *LogMailer) SendVerification(ctx context.Context, to, name, token string) error {
	m.logger.InfoContext(ctx, "verification email suppressed (log mailer)",
		slog.String("to", to))
	return nil
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, to, name, token string) error {
	m.logger.InfoContext(ctx, "password reset email suppressed (log mailer)",
		slog.String("to", to))
	return nil
}
