// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package mail delivers account lifecycle emails over SMTP.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/gatehouse/gatehouse/internal/auth"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Config holds SMTP relay settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// From is the sender address placed on every message.
	From string
	// BaseURL is the public origin of the frontend, used to build the
	// verification and reset links.
	BaseURL string
}

// SMTPMailer sends verification and password reset emails through an SMTP
// relay over implicit TLS. Sends retry with backoff since relays drop
// connections under load.
type SMTPMailer struct {
	cfg    Config
	logger *slog.Logger
}

// NewSMTPMailer creates an SMTPMailer.
func NewSMTPMailer(cfg Config, logger *slog.Logger) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_FAILED").Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, oops.Code("MAIL_CONFIG_FAILED").Errorf("from address is required")
	}
	if cfg.BaseURL == "" {
		return nil, oops.Code("MAIL_CONFIG_FAILED").Errorf("base URL is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPMailer{cfg: cfg, logger: logger}, nil
}

var _ auth.Mailer = (*SMTPMailer)(nil)

// SendVerification emails a confirmation link for a freshly registered or
// re-requested address.
func (m *SMTPMailer) SendVerification(ctx context.Context, to, name, token string) error {
	link := m.cfg.BaseURL + "/verify/" + url.PathEscape(token)
	body, err := renderTemplate("verification.html.tmpl", name, link)
	if err != nil {
		return err
	}
	return m.send(ctx, to, "Verify your email address", body)
}

// SendPasswordReset emails a password reset link.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, name, token string) error {
	link := m.cfg.BaseURL + "/reset-password?token=" + url.QueryEscape(token)
	body, err := renderTemplate("reset.html.tmpl", name, link)
	if err != nil {
		return err
	}
	return m.send(ctx, to, "Reset your password", body)
}

func renderTemplate(name, recipient, link string) (string, error) {
	var body bytes.Buffer
	data := struct {
		Name string
		Link string
	}{Name: recipient, Link: link}
	if err := templates.ExecuteTemplate(&body, name, data); err != nil {
		return "", oops.Code("MAIL_RENDER_FAILED").With("template", name).Wrap(err)
	}
	return body.String(), nil
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, body string) error {
	message := composeMessage(m.cfg.From, to, subject, body, m.cfg.Host, time.Now())

	backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if sendErr := m.deliver(to, message); sendErr != nil {
			return retry.RetryableError(sendErr)
		}
		return nil
	})
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("to", to).Wrap(err)
	}

	m.logger.InfoContext(ctx, "email sent",
		slog.String("to", to),
		slog.String("subject", subject))
	return nil
}

func (m *SMTPMailer) deliver(to string, message []byte) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12})
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if m.cfg.Username != "" {
		smtpAuth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(smtpAuth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	return client.Quit()
}

// composeMessage builds an RFC 5322 message with a ULID Message-ID so relay
// logs can be correlated with ours.
func composeMessage(from, to, subject, body, host string, now time.Time) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s@%s>\r\n", ulid.Make(), host)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	return buf.Bytes()
}
