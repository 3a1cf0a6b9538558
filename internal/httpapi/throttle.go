// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// Limiter counts attempts per key within a rolling window. The Redis-backed
// store.AttemptCounter implements it.
type Limiter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	Reset(ctx context.Context, key string) error
}

// throttle caps attempts per client IP on a credential endpoint. The limiter
// is an optimization like the session cache: when it errors the request
// proceeds and the failure is logged.
func (h *Handler) throttle(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			count, err := h.limiter.Incr(r.Context(), throttleKey(scope, r), h.cfg.LoginWindow)
			if err != nil {
				errutil.LogWarn(h.logger, "attempt limiter unavailable", err)
				next.ServeHTTP(w, r)
				return
			}
			if count > int64(h.cfg.LoginAttempts) {
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{
					Code:    "RATE_LIMITED",
					Message: "too many attempts, try again later",
				}})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// resetThrottle clears the attempt count after a success, so a user who
// finally remembers their password is not locked out of the next login.
func (h *Handler) resetThrottle(ctx context.Context, scope string, r *http.Request) {
	if h.limiter == nil {
		return
	}
	if err := h.limiter.Reset(ctx, throttleKey(scope, r)); err != nil {
		errutil.LogWarn(h.logger, "attempt limiter reset failed", err)
	}
}

func throttleKey(scope string, r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return scope + ":" + host
}
