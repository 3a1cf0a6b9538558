// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth provides the session and credential lifecycle core for Gatehouse.
//
// # Domain Types
//
// User is the durable account record; Session is the bearer-token session
// payload with a denormalized user snapshot. Both are plain structs; the
// repositories receive values validated by the Service and SessionStore.
//
// # Services
//
// Service orchestrates registration, login, logout, email verification, and
// the password reset flow. SessionStore owns session persistence across a
// fast cache backend and a durable fallback, including limit enforcement and
// token rotation. Neither talks to the other's backends directly.
//
// # Capabilities
//
// PasswordHasher (argon2id), StrengthChecker (zxcvbn-based scoring), and
// Mailer (templated outbound email) are injected capabilities with
// production implementations in this package, internal/mail, and swappable
// test doubles in authtest.
package auth
