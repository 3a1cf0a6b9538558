// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package httpapi exposes the account lifecycle as a JSON HTTP API.
package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// Config tunes the HTTP layer.
type Config struct {
	// CookieSecure marks session cookies Secure.
	CookieSecure bool
	// RequestsPerMinute caps every client IP across the whole API.
	// Zero disables the global limit.
	RequestsPerMinute int
	// LoginAttempts and LoginWindow cap credential-guessing endpoints per
	// client IP. Enforced only when a Limiter is provided.
	LoginAttempts int
	LoginWindow   time.Duration
}

// Handler serves the account API.
type Handler struct {
	svc     *auth.Service
	limiter Limiter
	metrics *observability.Metrics
	logger  *slog.Logger
	cfg     Config
}

// NewHandler creates a Handler. The limiter and metrics are optional; nil
// disables attempt throttling and request counting respectively.
func NewHandler(svc *auth.Service, limiter Limiter, metrics *observability.Metrics, logger *slog.Logger, cfg Config) (*Handler, error) {
	if svc == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:     svc,
		limiter: limiter,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}, nil
}

// Routes builds the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	if h.cfg.RequestsPerMinute > 0 {
		r.Use(httprate.LimitByIP(h.cfg.RequestsPerMinute, time.Minute))
	}
	r.Use(h.countRequests)

	r.Post("/register", h.handleRegister)
	r.With(h.throttle("login")).Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.handleMe)
	r.Get("/verify/{token}", h.handleVerifyEmail)
	r.Post("/resend-verification", h.handleResendVerification)
	r.With(h.throttle("forgot")).Post("/forgot-password", h.handleForgotPassword)
	r.Post("/reset-password", h.handleResetPassword)

	return r
}

// countRequests records one observation per request, labelled by route
// pattern rather than raw path so token-bearing URLs do not explode the
// label space.
func (h *Handler) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		h.metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
	})
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	if _, err := h.svc.Register(r.Context(), req.Name, req.Email, req.Password); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusCreated, "account created, check your email for a verification link")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	token, user, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.resetThrottle(r.Context(), "login", r)
	h.setSessionCookie(w, token, h.svc.Sessions().TTL())
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if err := h.svc.Logout(r.Context(), token); err != nil {
			errutil.LogWarn(h.logger, "logout cleanup failed", err)
		}
	}
	h.clearSessionCookie(w)
	writeMessage(w, http.StatusOK, "logged out")
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	session, err := h.svc.CurrentUser(r.Context(), token)
	if err != nil {
		h.clearSessionCookie(w)
		h.writeError(w, r, err)
		return
	}

	// Replace sessions past the rotation age. A rotation failure is not the
	// client's problem; they keep their current token.
	if rotated, rotateErr := h.svc.Sessions().Rotate(r.Context(), token, session.UserID); rotateErr != nil {
		errutil.LogWarn(h.logger, "session rotation failed", rotateErr)
	} else if rotated != token {
		h.setSessionCookie(w, rotated, h.svc.Sessions().TTL())
	}

	writeJSON(w, http.StatusOK, auth.PublicUser{
		ID:            session.UserID,
		Name:          session.Name,
		Email:         session.Email,
		EmailVerified: session.EmailVerified,
	})
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.VerifyEmail(r.Context(), chi.URLParam(r, "token")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "email verified")
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *Handler) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.ResendVerification(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "if that email needs verification, a new link has been sent")
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "if that email is registered, a password reset link has been sent")
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "password has been reset")
}
