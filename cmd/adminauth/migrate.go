// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate subcommand and its children.
func NewMigrateCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  `Apply, roll back or inspect the embedded PostgreSQL migrations.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, migrateUp)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, migrateUp)
		},
	})

	var confirmed bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Long:  `Roll back every migration. All administrator accounts and reset tokens are dropped.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down drops all data; pass --yes to confirm")
			}
			return withMigrator(cmd, deps, func(cmd *cobra.Command, m Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	}
	down.Flags().BoolVar(&confirmed, "yes", false, "confirm dropping all data")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "steps N",
		Short: "Apply N migrations (negative N rolls back)",
		Long:  `Apply N migrations. Roll back with a negative N after "--": migrate steps -- -1`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, deps, func(cmd *cobra.Command, m Migrator) error {
				if err := m.Steps(n); err != nil {
					return err
				}
				cmd.Printf("Applied %d migration step(s)\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, printStatus)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Set the recorded schema version and clear the dirty flag without running
any migration. Use after repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, deps, func(cmd *cobra.Command, m Migrator) error {
				if err := m.Force(v); err != nil {
					return err
				}
				cmd.Printf("Schema version forced to %d\n", v)
				return nil
			})
		},
	})

	return cmd
}

func migrateUp(cmd *cobra.Command, m Migrator) error {
	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return err
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func printStatus(cmd *cobra.Command, m Migrator) error {
	status, err := m.Status()
	if err != nil {
		return err
	}
	switch {
	case status.Version == 0:
		cmd.Println("Schema version: none")
	default:
		cmd.Printf("Schema version: %d (%s)\n", status.Version, status.Name)
	}
	if status.Dirty {
		cmd.Println("WARNING: schema is dirty; repair it and run 'migrate force'")
	}
	if len(status.Pending) == 0 {
		cmd.Println("Pending: none")
		return nil
	}
	pending := make([]string, 0, len(status.Pending))
	for _, v := range status.Pending {
		pending = append(pending, fmt.Sprint(v))
	}
	cmd.Println("Pending: " + strings.Join(pending, ", "))
	return nil
}

// withMigrator loads the configuration, opens a migrator and runs fn.
func withMigrator(cmd *cobra.Command, deps *Deps, fn func(*cobra.Command, Migrator) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	m, err := deps.MigratorFactory(cfg.Database.URL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrln("error closing migrator:", closeErr)
		}
	}()
	return fn(cmd, m)
}

// parseForceVersion parses a migration version or step count. Parsing stops
// at the first non-digit, so "3abc" is 3.
func parseForceVersion(s string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrap(err)
	}
	return v, nil
}
