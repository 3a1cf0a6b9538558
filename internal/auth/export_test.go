// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import "time"

// SetNow overrides the store clock in tests.
func (s *SessionStore) SetNow(now func() time.Time) { s.now = now }

// SetNow overrides the service clock in tests.
func (s *Service) SetNow(now func() time.Time) { s.now = now }
