package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var toggleCmd = &cobra.Command{
	Use:   "toggle [invoice-id]",
	Short: "Flip an invoice between paid and unpaid",
	Long: `Flip the payment status of an invoice.

A paid invoice becomes unpaid. A pending, unpaid or overdue invoice becomes
paid. Toggling twice from paid returns to paid; toggling a pending invoice twice
ends at unpaid.`,
	Args: cobra.ExactArgs(1),
	RunE: runToggle,
}

func init() {
	rootCmd.AddCommand(toggleCmd)

	toggleCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
}

func runToggle(cmd *cobra.Command, args []string) error {
	outputPath, _ := cmd.Flags().GetString("output")

	return withApp(cmd, "toggle", func(ctx context.Context, a *app, log zerolog.Logger) error {
		inv, err := a.engine.ToggleStatus(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s is now %s\n", inv.InvoiceNumber, inv.Status)
		return writeJSON(inv, outputPath, log)
	})
}
