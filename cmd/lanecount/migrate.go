package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/lanecount/internal/db"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRawDB(root, func(store *db.DB) error {
				if err := store.MigrateUp(db.MigrationsFS()); err != nil {
					return err
				}
				return printVersion(cmd, store)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRawDB(root, func(store *db.DB) error {
				if err := store.MigrateDown(db.MigrationsFS()); err != nil {
					return err
				}
				return printVersion(cmd, store)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRawDB(root, func(store *db.DB) error {
				return printVersion(cmd, store)
			})
		},
	})
	return cmd
}

// withRawDB opens the database without migrating it.
func withRawDB(root *rootOptions, fn func(*db.DB) error) error {
	if root.dbPath == "" {
		return errNoDB
	}
	store, err := db.OpenDB(root.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func printVersion(cmd *cobra.Command, store *db.DB) error {
	version, dirty, err := store.MigrateVersion(db.MigrationsFS())
	if err != nil {
		return err
	}
	if dirty {
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty)\n", version)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
	return nil
}
