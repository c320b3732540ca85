package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"invoices/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "invoices",
	Short: "Invoices CLI - invoice lifecycle, numbering and reporting",
	Long: `Invoices CLI creates and maintains invoices: it allocates INV-<n> numbers,
converts totals into the reporting currency, toggles payment status, sweeps
past-due invoices to overdue and reports per-status totals.

Storage is PostgreSQL (STORE_DRIVER=postgres, DATABASE_URL) or an in-process
store for trying things out (STORE_DRIVER=memory). Exchange rates come from an
HTTP rate API (FX_PROVIDER=http) or a fixed table (FX_PROVIDER=static).`,
	Version:      version,
	SilenceUsage: true,
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Duration("timeout", 0, "Abort the command after this long (0 = no limit)")
}
