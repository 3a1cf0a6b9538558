// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/store"
)

// NewMigrateCmd creates the migrate subcommand with its actions.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
		Long:  `Inspect and apply schema migrations against the PostgreSQL database.`,
	}
	cmd.PersistentFlags().String("database.url", "", "PostgreSQL connection URL (defaults to DATABASE_URL)")

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateDownCmd())
	cmd.AddCommand(newMigrateStepsCmd())
	cmd.AddCommand(newMigrateVersionCmd())
	cmd.AddCommand(newMigrateForceCmd())

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				pending, err := m.PendingMigrations()
				if err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "list pending").Wrap(err)
				}
				if len(pending) == 0 {
					cmd.Println("No pending migrations")
					return nil
				}
				for _, v := range pending {
					name, nameErr := store.MigrationName(v)
					if nameErr != nil {
						name = fmt.Sprintf("version %d", v)
					}
					cmd.Printf("Applying %s\n", name)
				}
				if err := m.Up(); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "up").Wrap(err)
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				if err := m.Down(); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "down").Wrap(err)
				}
				cmd.Println("Rollback completed successfully")
				return nil
			})
		},
	}
}

func newMigrateStepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps <n>",
		Short: "Apply n migrations (negative rolls back)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_STEPS").Errorf("steps must be an integer, got %q", args[0])
			}
			return withMigrator(cmd, func(m *store.Migrator) error {
				if err := m.Steps(n); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "steps").With("n", n).Wrap(err)
				}
				cmd.Printf("Applied %d step(s)\n", n)
				return nil
			})
		},
	}
}

func newMigrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "version").Wrap(err)
				}
				if version == 0 {
					cmd.Println("No migrations applied")
					return nil
				}
				name, nameErr := store.MigrationName(version)
				if nameErr != nil {
					name = "unknown"
				}
				cmd.Printf("Version: %d (%s)\n", version, name)
				if dirty {
					cmd.Println("WARNING: schema is dirty; a migration failed mid-way. Use 'migrate force' after fixing it.")
				}
				return nil
			})
		},
	}
}

func newMigrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Force the schema version without running migrations",
		Long: `Force the recorded schema version without running any migrations.
Used to clear the dirty flag after a manually repaired failure.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, func(m *store.Migrator) error {
				if err := m.Force(version); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "force").With("version", version).Wrap(err)
				}
				cmd.Printf("Forced version to %d\n", version)
				return nil
			})
		},
	}
}

// parseForceVersion parses the version argument of the force action.
func parseForceVersion(arg string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(arg, "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").Errorf("version must be an integer, got %q", arg)
	}
	return version, nil
}

// withMigrator resolves the database URL, opens a migrator, runs fn, and
// closes the migrator.
func withMigrator(cmd *cobra.Command, fn func(*store.Migrator) error) error {
	databaseURL, err := resolveDatabaseURL(cmd)
	if err != nil {
		return err
	}

	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		_ = migrator.Close()
	}()

	return fn(migrator)
}

// resolveDatabaseURL reads the connection URL from the flag, falling back to
// the DATABASE_URL environment variable.
func resolveDatabaseURL(cmd *cobra.Command) (string, error) {
	if url, err := cmd.Flags().GetString("database.url"); err == nil && url != "" {
		return url, nil
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url, nil
	}
	return "", oops.Code("CONFIG_INVALID").Errorf("database URL is required: set --database.url or DATABASE_URL")
}
