package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mealbuddy/mealbuddy/internal/database"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := database.NewMariaDB(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("connecting to MariaDB: %w", err)
			}
			defer db.Close()

			return database.RunMigrations(db, cfg.MigrationsPath)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := database.NewMariaDB(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("connecting to MariaDB: %w", err)
			}
			defer db.Close()

			return database.RollbackMigrations(db, cfg.MigrationsPath, steps)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")
	cmd.AddCommand(down)

	return cmd
}
