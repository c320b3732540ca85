package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"invoices/internal/invoice"
	"invoices/internal/sheets"
	"invoices/pkg/models"
)

// exportPageLimit is the page size used to walk all matching invoices.
const exportPageLimit = 100

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all matching invoices and the summary to Google Sheets",
	Long: `Export every invoice matching the selection, plus the dashboard summary,
to a Google Sheet. The worksheet (default "Invoices") is replaced with the
invoices and "<worksheet> Summary" with the per-status totals.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_SHEET_URL - Google Sheets URL (or pass --sheet)`,
	Example: `  # Export everything
  invoices export

  # Export one client's open invoices to a named worksheet
  invoices export --client acme --status pending,unpaid,overdue --worksheet "Acme open"

  # Print what would be exported without touching the sheet
  invoices export --dry-run`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	addListFlags(exportCmd)
	exportCmd.Flags().String("sheet", "", "Google Sheets URL (default: GOOGLE_SHEET_URL)")
	exportCmd.Flags().String("worksheet", "", "Worksheet name (default: GOOGLE_SHEET_WORKSHEET)")
	exportCmd.Flags().Bool("dry-run", false, "Print the report as JSON instead of writing to the sheet")
}

func runExport(cmd *cobra.Command, args []string) error {
	req, err := listRequestFromFlags(cmd)
	if err != nil {
		return err
	}
	sheetURL, _ := cmd.Flags().GetString("sheet")
	worksheet, _ := cmd.Flags().GetString("worksheet")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	return withApp(cmd, "export", func(ctx context.Context, a *app, log zerolog.Logger) error {
		if sheetURL == "" {
			sheetURL = a.cfg.GoogleSheetURL
		}
		if worksheet == "" {
			worksheet = a.cfg.GoogleSheetWorksheet
		}
		if sheetURL == "" && !dryRun {
			return fmt.Errorf("GOOGLE_SHEET_URL environment variable or --sheet is required")
		}

		req.Limit = exportPageLimit
		req.SortBy = invoice.SortInvoiceNumber

		all := make([]*models.Invoice, 0, exportPageLimit)
		req.Page = 1
		first, err := a.engine.List(ctx, req)
		if err != nil {
			return err
		}
		all = append(all, first.Invoices...)
		for page := 2; page <= first.TotalPages; page++ {
			req.Page = page
			next, err := a.engine.List(ctx, req)
			if err != nil {
				return err
			}
			all = append(all, next.Invoices...)
		}

		report := *first
		report.Invoices = all
		report.Page = 1
		report.Limit = len(all)
		report.TotalPages = 1

		log.Info().
			Int("invoices", len(all)).
			Str("worksheet", worksheet).
			Bool("dry_run", dryRun).
			Msg("Exporting invoices")

		if dryRun {
			return writeJSON(report, "", log)
		}

		sheetsService, err := sheets.NewSheetsService(ctx, sheetURL)
		if err != nil {
			return fmt.Errorf("failed to create Google Sheets service: %w", err)
		}
		if err := sheetsService.WriteReport(ctx, &report, worksheet); err != nil {
			return fmt.Errorf("failed to write to Google Sheet: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Sheet: %s\n", worksheet)
		fmt.Fprintf(cmd.OutOrStdout(), "Rows written: %d\n", len(all))
		fmt.Fprintf(cmd.OutOrStdout(), "URL: %s\n", sheetURL)
		return nil
	})
}
