// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads server configuration from defaults, an optional YAML
// file, and command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the full server configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	SMTP     SMTPConfig     `koanf:"smtp"`
	Session  SessionConfig  `koanf:"session"`
	Throttle ThrottleConfig `koanf:"throttle"`
	Log      LogConfig      `koanf:"log"`
}

// HTTPConfig configures the public API server.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
	// BaseURL is the public origin of the frontend, used in email links.
	BaseURL string `koanf:"base_url"`
	// CookieSecure marks session cookies Secure. Disable only for local
	// development over plain HTTP.
	CookieSecure bool `koanf:"cookie_secure"`
	// TLSCert and TLSKey serve HTTPS directly from the given key pair.
	// Leave empty when TLS terminates at a proxy.
	TLSCert string `koanf:"tls_cert"`
	TLSKey  string `koanf:"tls_key"`
	// DevTLS serves HTTPS with a generated local certificate so Secure
	// cookies work against localhost.
	DevTLS bool `koanf:"dev_tls"`
}

// MetricsConfig configures the metrics/health server. An empty address
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL string `koanf:"url"`
	// Migrate runs pending schema migrations on startup.
	Migrate bool `koanf:"migrate"`
	// SweepInterval is how often expired durable sessions are deleted.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// RedisConfig configures the session cache and attempt counters.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// SMTPConfig configures outbound email. An empty host logs messages instead
// of sending them.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

// SessionConfig tunes the session store.
type SessionConfig struct {
	TTL          time.Duration `koanf:"ttl"`
	MaxPerUser   int           `koanf:"max_per_user"`
	CacheTimeout time.Duration `koanf:"cache_timeout"`
	RotateAfter  time.Duration `koanf:"rotate_after"`
}

// ThrottleConfig tunes request rate limits on the credential endpoints.
type ThrottleConfig struct {
	// RequestsPerMinute caps every client IP across the whole API.
	RequestsPerMinute int `koanf:"requests_per_minute"`
	// LoginAttempts caps login and forgot-password calls per key per window.
	LoginAttempts int           `koanf:"login_attempts"`
	LoginWindow   time.Duration `koanf:"login_window"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:         ":8080",
			BaseURL:      "http://localhost:8080",
			CookieSecure: true,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9100",
		},
		Database: DatabaseConfig{
			SweepInterval: time.Hour,
		},
		SMTP: SMTPConfig{
			Port: 465,
		},
		Session: SessionConfig{
			TTL:          7 * 24 * time.Hour,
			MaxPerUser:   5,
			CacheTimeout: 250 * time.Millisecond,
			RotateAfter:  30 * time.Minute,
		},
		Throttle: ThrottleConfig{
			RequestsPerMinute: 120,
			LoginAttempts:     10,
			LoginWindow:       time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds a Config from the defaults, the YAML file at path (if path is
// non-empty), and any flags changed on the given flag set.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
	}

	// Connection-string fallbacks from the environment, the convention
	// hosted Postgres and Redis providers use. File and flag values win.
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	if cfg.Redis.Addr == "" {
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opts, err := redis.ParseURL(redisURL)
			if err != nil {
				return Config{}, oops.Code("CONFIG_INVALID").With("env", "REDIS_URL").Wrap(err)
			}
			cfg.Redis.Addr = opts.Addr
			cfg.Redis.Password = opts.Password
			cfg.Redis.DB = opts.DB
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	var problems []string

	if c.HTTP.Addr == "" {
		problems = append(problems, "http.addr is required")
	}
	if c.HTTP.BaseURL == "" {
		problems = append(problems, "http.base_url is required")
	}
	if (c.HTTP.TLSCert == "") != (c.HTTP.TLSKey == "") {
		problems = append(problems, "http.tls_cert and http.tls_key must be set together")
	}
	if c.HTTP.DevTLS && c.HTTP.TLSCert != "" {
		problems = append(problems, "http.dev_tls and http.tls_cert are mutually exclusive")
	}
	if c.Database.URL == "" {
		problems = append(problems, "database.url is required")
	}
	if c.Database.SweepInterval <= 0 {
		problems = append(problems, "database.sweep_interval must be positive")
	}
	if c.Redis.Addr == "" {
		problems = append(problems, "redis.addr is required")
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		problems = append(problems, "smtp.from is required when smtp.host is set")
	}
	if c.Session.TTL <= 0 {
		problems = append(problems, "session.ttl must be positive")
	}
	if c.Session.MaxPerUser <= 0 {
		problems = append(problems, "session.max_per_user must be positive")
	}
	if c.Session.RotateAfter <= 0 {
		problems = append(problems, "session.rotate_after must be positive")
	}
	if c.Throttle.LoginAttempts <= 0 || c.Throttle.LoginWindow <= 0 {
		problems = append(problems, "throttle.login_attempts and throttle.login_window must be positive")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("log.format must be 'json' or 'text', got %q", c.Log.Format))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level must be debug, info, warn, or error, got %q", c.Log.Level))
	}

	if len(problems) > 0 {
		return oops.Code("CONFIG_INVALID").With("problems", problems).Errorf("invalid configuration: %s", problems[0])
	}
	return nil
}
