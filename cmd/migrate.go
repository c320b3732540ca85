package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"invoices/internal/config"
	"invoices/internal/logger"
	"invoices/internal/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back the database schema",
	Long: `Apply the embedded PostgreSQL migrations to DATABASE_URL.

Migrations are idempotent: running migrate on an up-to-date database does
nothing. --down rolls every migration back and drops the invoices table.`,
	Example: `  # Create or upgrade the schema
  invoices migrate

  # Show the current schema version
  invoices migrate --version

  # Drop everything
  invoices migrate --down`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().Bool("down", false, "Roll back all migrations")
	migrateCmd.Flags().Bool("version", false, "Print the current schema version and exit")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("migrate")

	down, _ := cmd.Flags().GetBool("down")
	showVersion, _ := cmd.Flags().GetBool("version")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	switch {
	case showVersion:
		version, dirty, err := postgres.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d", version)
		if dirty {
			fmt.Fprint(cmd.OutOrStdout(), " (dirty)")
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	case down:
		log.Warn().Msg("Rolling back all migrations")
		if err := postgres.RunMigrationsDown(cfg.DatabaseURL); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migrations rolled back")
		return nil
	default:
		if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
		return nil
	}
}
