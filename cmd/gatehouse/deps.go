// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/store"
	"github.com/gatehouse/gatehouse/internal/tls"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory connects to PostgreSQL.
	// Default: store.NewPool
	PoolFactory func(ctx context.Context, url string) (*pgxpool.Pool, error)

	// MigratorFactory creates a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (AutoMigrator, error)

	// RedisClientFactory creates the session cache client.
	// Default: redis.NewClient
	RedisClientFactory func(cfg config.RedisConfig) redis.UniversalClient

	// MailerFactory builds the outbound mailer from the SMTP config.
	// Default: SMTP mailer, or the log mailer when no host is configured.
	MailerFactory func(cfg config.SMTPConfig, baseURL string, logger *slog.Logger) (auth.Mailer, error)

	// ObservabilityServerFactory creates the metrics/health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// TLSEnsurer loads or generates the local development certificates.
	// Default: tls.EnsureServerTLS
	TLSEnsurer func(certsDir string, hosts []string) (*cryptotls.Config, error)
}

// AutoMigrator wraps the methods used from store.Migrator during startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// fillDefaults replaces nil factories with the production implementations.
func (d *ServeDeps) fillDefaults() {
	if d.PoolFactory == nil {
		d.PoolFactory = store.NewPool
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(url string) (AutoMigrator, error) {
			return store.NewMigrator(url)
		}
	}
	if d.RedisClientFactory == nil {
		d.RedisClientFactory = func(cfg config.RedisConfig) redis.UniversalClient {
			return redis.NewClient(&redis.Options{
				Addr:     cfg.Addr,
				Password: cfg.Password,
				DB:       cfg.DB,
			})
		}
	}
	if d.MailerFactory == nil {
		d.MailerFactory = newMailer
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if d.TLSEnsurer == nil {
		d.TLSEnsurer = tls.EnsureServerTLS
	}
}
