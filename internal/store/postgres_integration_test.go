// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/store"
)

// setupPostgres starts a PostgreSQL container, applies migrations, and
// returns a connected pool.
func setupPostgres() (*pgxpool.Pool, func(), error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("gatehouse_test"),
		postgres.WithUsername("gatehouse"),
		postgres.WithPassword("gatehouse"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		return nil, nil, err
	}
	_ = migrator.Close()

	pool, err := store.NewPool(ctx, connStr)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}
	return pool, cleanup, nil
}

var _ = Describe("Postgres repositories", func() {
	var pool *pgxpool.Pool
	var cleanup func()
	var users *store.PostgresUserRepository
	var sessions *store.PostgresSessionRepository

	BeforeEach(func() {
		var err error
		pool, cleanup, err = setupPostgres()
		Expect(err).NotTo(HaveOccurred())
		users = store.NewPostgresUserRepository(pool)
		sessions = store.NewPostgresSessionRepository(pool)
	})

	AfterEach(func() {
		cleanup()
	})

	registerUser := func(email string) *auth.User {
		user := &auth.User{Name: "Ada", Email: email, PasswordHash: "argon2-material"}
		Expect(users.Create(context.Background(), user)).To(Succeed())
		return user
	}

	Describe("PostgresUserRepository", func() {
		It("creates and retrieves users", func() {
			ctx := context.Background()
			user := registerUser("ada@example.com")
			Expect(user.ID).NotTo(BeZero())

			got, err := users.GetByEmail(ctx, "ada@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(user.ID))
			Expect(got.EmailVerified).To(BeFalse())

			byID, err := users.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(byID.Email).To(Equal("ada@example.com"))
		})

		It("rejects duplicate emails case-insensitively", func() {
			registerUser("ada@example.com")
			dup := &auth.User{Name: "Imposter", Email: "Ada@Example.com", PasswordHash: "x"}
			err := users.Create(context.Background(), dup)
			Expect(err).To(HaveOccurred())
		})

		It("round-trips the verification token lifecycle", func() {
			ctx := context.Background()
			user := registerUser("ada@example.com")

			expiresAt := time.Now().Add(24 * time.Hour)
			Expect(users.SetVerificationToken(ctx, user.ID, "tokenhash", expiresAt)).To(Succeed())

			got, err := users.GetByVerificationTokenHash(ctx, "tokenhash")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(user.ID))

			Expect(users.MarkEmailVerified(ctx, user.ID)).To(Succeed())

			verified, err := users.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(verified.EmailVerified).To(BeTrue())
			Expect(verified.VerificationTokenHash).To(BeNil())

			_, err = users.GetByVerificationTokenHash(ctx, "tokenhash")
			Expect(err).To(MatchError(auth.ErrNotFound))
		})

		It("replaces the password and clears the reset token atomically", func() {
			ctx := context.Background()
			user := registerUser("ada@example.com")

			Expect(users.SetResetToken(ctx, user.ID, "resethash", time.Now().Add(time.Hour))).To(Succeed())
			Expect(users.ResetPassword(ctx, user.ID, "newhash")).To(Succeed())

			got, err := users.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PasswordHash).To(Equal("newhash"))
			Expect(got.ResetTokenHash).To(BeNil())
		})
	})

	Describe("PostgresSessionRepository", func() {
		It("stores and retrieves live sessions with the user snapshot", func() {
			ctx := context.Background()
			user := registerUser("ada@example.com")
			now := time.Now()

			session := &auth.Session{
				TokenHash:    "sessionhash",
				UserID:       user.ID,
				CreatedAt:    now,
				LastAccessed: now,
			}
			Expect(sessions.Insert(ctx, session, now.Add(time.Hour))).To(Succeed())

			got, err := sessions.GetLive(ctx, "sessionhash", now)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.UserID).To(Equal(user.ID))
			Expect(got.Email).To(Equal("ada@example.com"))
			Expect(got.Name).To(Equal("Ada"))
		})

		It("hides expired sessions and sweeps them", func() {
			ctx := context.Background()
			user := registerUser("ada@example.com")
			now := time.Now()

			session := &auth.Session{
				TokenHash:    "expiredhash",
				UserID:       user.ID,
				CreatedAt:    now.Add(-2 * time.Hour),
				LastAccessed: now.Add(-2 * time.Hour),
			}
			Expect(sessions.Insert(ctx, session, now.Add(-time.Hour))).To(Succeed())

			_, err := sessions.GetLive(ctx, "expiredhash", now)
			Expect(err).To(MatchError(auth.ErrNotFound))

			n, err := sessions.DeleteExpired(ctx, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(1)))
		})

		It("deletes every session a user owns", func() {
			ctx := context.Background()
			user := registerUser("ada@example.com")
			now := time.Now()

			for _, hash := range []string{"h1", "h2", "h3"} {
				session := &auth.Session{
					TokenHash:    hash,
					UserID:       user.ID,
					CreatedAt:    now,
					LastAccessed: now,
				}
				Expect(sessions.Insert(ctx, session, now.Add(time.Hour))).To(Succeed())
			}

			listed, err := sessions.ListByUser(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(listed).To(HaveLen(3))

			Expect(sessions.DeleteByUser(ctx, user.ID)).To(Succeed())

			listed, err = sessions.ListByUser(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(listed).To(BeEmpty())
		})
	})
})
