// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/httpapi"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/mail"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/store"
	"github.com/gatehouse/gatehouse/internal/xdg"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authentication server",
		Long: `Start the HTTP server that handles registration, login, sessions,
email verification, and password resets.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}
	registerConfigFlags(cmd.Flags())
	return cmd
}

// registerConfigFlags declares flags whose dotted names mirror config keys,
// so the flag layer overrides the file layer key for key.
func registerConfigFlags(flags *pflag.FlagSet) {
	def := config.Default()
	flags.String("http.addr", def.HTTP.Addr, "HTTP listen address")
	flags.String("http.base_url", def.HTTP.BaseURL, "public origin used in email links")
	flags.Bool("http.cookie_secure", def.HTTP.CookieSecure, "mark session cookies Secure")
	flags.Bool("http.dev_tls", def.HTTP.DevTLS, "serve HTTPS with generated local certificates")
	flags.String("metrics.addr", def.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	flags.String("database.url", "", "PostgreSQL connection URL")
	flags.Bool("database.migrate", def.Database.Migrate, "run pending schema migrations on startup")
	flags.String("redis.addr", "", "Redis address")
	flags.String("log.format", def.Log.Format, "log format (json or text)")
	flags.String("log.level", def.Log.Level, "log level (debug, info, warn, error)")
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.fillDefaults()

	cfg, err := config.Load(resolveConfigFile(), cmd.Flags())
	if err != nil {
		return err
	}

	logger := logging.SetupAt("gatehouse", version, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level), nil)
	slog.SetDefault(logger)

	logger.Info("starting server",
		"http_addr", cfg.HTTP.Addr,
		"metrics_addr", cfg.Metrics.Addr,
		"log_format", cfg.Log.Format,
	)

	if cfg.Database.Migrate {
		if err := runAutoMigration(cfg.Database.URL, deps.MigratorFactory); err != nil {
			return err
		}
		logger.Info("schema migrations applied")
	}

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("connected to database")

	users := store.NewPostgresUserRepository(pool)
	durableSessions := store.NewPostgresSessionRepository(pool)

	client := deps.RedisClientFactory(cfg.Redis)
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			logger.Debug("error closing redis client", "error", closeErr)
		}
	}()
	cache := store.NewRedisSessionCache(client)
	limiter := store.NewAttemptCounter(client)

	sessionStore, err := auth.NewSessionStore(cache, durableSessions, users, logger, auth.SessionStoreConfig{
		TTL:          cfg.Session.TTL,
		MaxPerUser:   cfg.Session.MaxPerUser,
		CacheTimeout: cfg.Session.CacheTimeout,
		RotateAfter:  cfg.Session.RotateAfter,
	})
	if err != nil {
		return err
	}

	mailer, err := deps.MailerFactory(cfg.SMTP, cfg.HTTP.BaseURL, logger)
	if err != nil {
		return err
	}

	svc, err := auth.NewService(users, sessionStore, auth.NewArgon2idHasher(), auth.NewStrengthChecker(), mailer, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start the metrics/health server first so readiness reports during the
	// remaining startup.
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		srv := deps.ObservabilityServerFactory(cfg.Metrics.Addr, func() bool {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), time.Second)
			defer pingCancel()
			return pool.Ping(pingCtx) == nil
		})
		obsErrChan, obsErr := srv.Start()
		if obsErr != nil {
			return oops.Code("METRICS_START_FAILED").Wrap(obsErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability", logger)
		obsServer = srv
		if concrete, ok := srv.(*observability.Server); ok {
			metrics = concrete.Metrics()
		}
		logger.Info("observability server started", "addr", srv.Addr())
	}

	handler, err := httpapi.NewHandler(svc, limiter, metrics, logger, httpapi.Config{
		CookieSecure:      cfg.HTTP.CookieSecure,
		RequestsPerMinute: cfg.Throttle.RequestsPerMinute,
		LoginAttempts:     cfg.Throttle.LoginAttempts,
		LoginWindow:       cfg.Throttle.LoginWindow,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.HTTP.DevTLS {
		tlsConf, tlsErr := deps.TLSEnsurer(xdg.CertsDir(), baseURLHosts(cfg.HTTP.BaseURL))
		if tlsErr != nil {
			return oops.Code("TLS_SETUP_FAILED").Wrap(tlsErr)
		}
		httpServer.TLSConfig = tlsConf
		logger.Info("serving HTTPS with local certificates", "certs_dir", xdg.CertsDir())
	}

	errChan := make(chan error, 1)
	go func() {
		var serveErr error
		switch {
		case cfg.HTTP.TLSCert != "":
			serveErr = httpServer.ListenAndServeTLS(cfg.HTTP.TLSCert, cfg.HTTP.TLSKey)
		case cfg.HTTP.DevTLS:
			serveErr = httpServer.ListenAndServeTLS("", "")
		default:
			serveErr = httpServer.ListenAndServe()
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	go sweepExpiredSessions(ctx, durableSessions, cfg.Database.SweepInterval, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Server started")
	logger.Info("server ready", "addr", cfg.HTTP.Addr)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		return oops.Code("SERVER_FAILED").Wrap(err)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping HTTP server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// runAutoMigration applies pending schema migrations.
func runAutoMigration(databaseURL string, factory func(string) (AutoMigrator, error)) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		_ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	return nil
}

// sweepExpiredSessions periodically deletes expired rows from the durable
// session store. The cache expires its own entries; the relational backend
// needs this out-of-band pass.
func sweepExpiredSessions(ctx context.Context, sessions *store.PostgresSessionRepository, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.DeleteExpired(ctx, time.Now())
			if err != nil {
				errutil.LogWarn(logger, "expired session sweep failed", err)
				continue
			}
			if n > 0 {
				logger.Debug("expired sessions swept", "count", n)
			}
		}
	}
}

// baseURLHosts extracts the hostname from the public base URL so generated
// certificates cover it.
func baseURLHosts(baseURL string) []string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	return []string{u.Hostname()}
}

// newMailer picks the SMTP mailer when a relay is configured, and the
// logging mailer otherwise.
func newMailer(cfg config.SMTPConfig, baseURL string, logger *slog.Logger) (auth.Mailer, error) {
	if cfg.Host == "" {
		logger.Warn("no SMTP host configured, emails will be logged instead of sent")
		return auth.NewLogMailer(logger), nil
	}
	return mail.NewSMTPMailer(mail.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		BaseURL:  baseURL,
	}, logger)
}

// monitorServerErrors cancels the run context when a background server
// reports a fatal error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errChan <-chan error, name string, logger *slog.Logger) {
	select {
	case <-ctx.Done():
	case err, ok := <-errChan:
		if ok && err != nil {
			errutil.LogError(logger, name+" server failed", err)
			cancel()
		}
	}
}
