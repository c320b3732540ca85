package cmd

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update [invoice-id]",
	Short: "Replace the editable fields of an invoice",
	Long: `Replace client, dates, items, amounts, currency, status and notes of an
invoice from a JSON document in the same shape create accepts.

The invoice number cannot be changed. The total is converted again; if that
fails the stored invoice is left as it was. Status "overdue" cannot be set by
hand, it is assigned by the overdue sweep.`,
	Example: `  invoices update 3f1c... -f invoice.json`,
	Args:    cobra.ExactArgs(1),
	RunE:    runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().StringP("file", "f", "", "Invoice JSON file, - for stdin [REQUIRED]")
	updateCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")

	_ = updateCmd.MarkFlagRequired("file")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	id := args[0]
	path, _ := cmd.Flags().GetString("file")
	outputPath, _ := cmd.Flags().GetString("output")

	input, err := readInvoiceInput(path)
	if err != nil {
		return err
	}

	return withApp(cmd, "update", func(ctx context.Context, a *app, log zerolog.Logger) error {
		inv, err := a.engine.Update(ctx, id, input)
		if err != nil {
			return err
		}
		return writeJSON(inv, outputPath, log)
	})
}
