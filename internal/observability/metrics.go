// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package observability

import "github.com/prometheus/client_golang/prometheus"

// Package-level counters so domain code can record events without holding a
// Server instance. They are registered by NewMetrics.
var (
	logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_logins_total",
			Help: "Total number of login attempts by outcome",
		},
		[]string{"status"},
	)

	registrations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatehouse_registrations_total",
			Help: "Total number of accounts registered",
		},
	)

	sessionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_sessions_created_total",
			Help: "Total number of sessions created by backend",
		},
		[]string{"backend"},
	)

	sessionsEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatehouse_sessions_evicted_total",
			Help: "Total number of sessions evicted by the per-user limit",
		},
	)

	sessionsRotated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatehouse_sessions_rotated_total",
			Help: "Total number of sessions replaced by age rotation",
		},
	)

	cacheFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_session_cache_fallbacks_total",
			Help: "Total number of session cache failures that fell back to the durable store",
		},
		[]string{"operation"},
	)
)

// RecordLogin increments the login counter. Status is one of "success",
// "failure", or "locked".
func RecordLogin(status string) {
	logins.WithLabelValues(status).Inc()
}

// RecordRegistration increments the registration counter.
func RecordRegistration() {
	registrations.Inc()
}

// RecordSessionCreated increments the session creation counter. Backend is
// "cache" or "durable".
func RecordSessionCreated(backend string) {
	sessionsCreated.WithLabelValues(backend).Inc()
}

// RecordSessionEvicted increments the limit-eviction counter.
func RecordSessionEvicted() {
	sessionsEvicted.Inc()
}

// RecordSessionRotated increments the rotation counter.
func RecordSessionRotated() {
	sessionsRotated.Inc()
}

// RecordCacheFallback increments the cache fallback counter for the given
// session operation.
func RecordCacheFallback(operation string) {
	cacheFallbacks.WithLabelValues(operation).Inc()
}

// Metrics contains custom Prometheus metrics for Gatehouse.
type Metrics struct {
	RequestsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers custom Gatehouse metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_http_requests_total",
				Help: "Total number of HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(logins)
	reg.MustRegister(registrations)
	reg.MustRegister(sessionsCreated)
	reg.MustRegister(sessionsEvicted)
	reg.MustRegister(sessionsRotated)
	reg.MustRegister(cacheFallbacks)

	return m
}
