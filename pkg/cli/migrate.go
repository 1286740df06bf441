package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-reasoner/pkg/database"
	"github.com/ekaya-inc/ekaya-reasoner/pkg/logging"
)

func init() {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBase(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()
			return applyMigrations(cmd.Context(), b)
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE:  runMigrateDown,
	}
	down.Flags().Int("steps", 1, "Number of migrations to roll back")

	cmd.AddCommand(up, down)
	RootCmd.AddCommand(cmd)
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	steps, _ := cmd.Flags().GetInt("steps")

	b, err := openBase(cmd.Context())
	if err != nil {
		return err
	}
	defer b.Close()

	sqlDB, err := openMigrationDB(cmd.Context(), b)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return database.RollbackMigrations(sqlDB, steps, b.logger)
}

func applyMigrations(ctx context.Context, b *base) error {
	sqlDB, err := openMigrationDB(ctx, b)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return database.RunMigrations(sqlDB, b.logger)
}

func openMigrationDB(ctx context.Context, b *base) (*sql.DB, error) {
	migrationURL := b.cfg.Database.MigrationURL()
	sqlDB, err := database.OpenMigrationDB(ctx, migrationURL)
	if err != nil {
		return nil, fmt.Errorf("open migration database (%s): %w", logging.SanitizeConnectionString(migrationURL), err)
	}
	return sqlDB, nil
}
