package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an invoice from a JSON file",
	Long: `Create an invoice from a JSON document.

The invoice number is allocated automatically (INV-1001, INV-1002, ...) unless
--number or "invoice_number" supplies one. The total is converted into the
reporting currency before anything is stored; if the conversion fails, no
invoice is created.

Input fields:
  client_id, invoice_date, due_date (YYYY-MM-DD), items, sub_total,
  tax_amount, total_amount, currency {code, symbol, name}, status, notes`,
	Example: `  # Create from a file
  invoices create -f invoice.json

  # Create with a fixed number and save the result
  invoices create -f invoice.json --number INV-5000 -o created.json

  # Read from stdin
  cat invoice.json | invoices create -f -`,
	Args: cobra.NoArgs,
	RunE: runCreate,
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringP("file", "f", "", "Invoice JSON file, - for stdin [REQUIRED]")
	createCmd.Flags().String("number", "", "Use this invoice number instead of allocating one")
	createCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")

	_ = createCmd.MarkFlagRequired("file")
}

func runCreate(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	number, _ := cmd.Flags().GetString("number")
	outputPath, _ := cmd.Flags().GetString("output")

	input, err := readInvoiceInput(path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(number) != "" {
		input.InvoiceNumber = number
	}

	return withApp(cmd, "create", func(ctx context.Context, a *app, log zerolog.Logger) error {
		log.Info().
			Str("file", path).
			Str("client_id", input.ClientID).
			Str("invoice_number", input.InvoiceNumber).
			Msg("Creating invoice")

		inv, err := a.engine.Create(ctx, input)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Created %s (%s %s = %s %s)\n",
			inv.InvoiceNumber,
			inv.TotalAmount.StringFixed(2), inv.Currency.Code,
			inv.ConvertedTotalAmount.StringFixed(2), a.cfg.ReportingCurrency)

		return writeJSON(inv, outputPath, log)
	})
}
