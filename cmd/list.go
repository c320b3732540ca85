package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"invoices/pkg/models"
	"invoices/pkg/services"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List invoices with a per-status summary",
	Long: `List one page of invoices together with the dashboard summary.

Before reading, invoices that are not paid and past their due date are moved to
overdue. If that sweep fails the listing still succeeds; "sweep_error" in the
output says why and statuses are shown as stored.

The summary reports count and sum, in the reporting currency, for all matching
invoices, the paid, pending and overdue ones, and those in the --status
selection. The overdue bucket is computed from due dates, not stored status.`,
	Example: `  # First page, newest first
  invoices list

  # Paid and unpaid invoices of one client, sorted by total
  invoices list --client acme --status paid,unpaid --sort total --desc

  # Invoices dated in Q1 whose number contains 10
  invoices list --from 2024-01-01 --to 2024-03-31 --search 10`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	addListFlags(listCmd)
	listCmd.Flags().Int("page", 1, "Page number")
	listCmd.Flags().Int("limit", 10, "Invoices per page (max 100)")
	listCmd.Flags().String("sort", "created_at", "Sort by created_at, invoice_date, due_date, total or invoice_number")
	listCmd.Flags().Bool("desc", false, "Sort descending")
	listCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
}

// addListFlags registers the selection flags shared by list and export.
func addListFlags(cmd *cobra.Command) {
	cmd.Flags().String("client", "", "Only invoices of this client")
	cmd.Flags().StringSlice("status", nil, "Status selection: pending, paid, unpaid, overdue")
	cmd.Flags().String("from", "", "Invoice date from (YYYY-MM-DD, inclusive)")
	cmd.Flags().String("to", "", "Invoice date to (YYYY-MM-DD, inclusive)")
	cmd.Flags().String("search", "", "Invoice number contains")
}

// listRequestFromFlags reads the selection flags registered by addListFlags.
func listRequestFromFlags(cmd *cobra.Command) (services.ListRequest, error) {
	var req services.ListRequest

	req.ClientID, _ = cmd.Flags().GetString("client")
	req.Search, _ = cmd.Flags().GetString("search")

	statuses, _ := cmd.Flags().GetStringSlice("status")
	for _, raw := range statuses {
		status := models.Status(strings.ToLower(strings.TrimSpace(raw)))
		if !status.Valid() {
			return req, fmt.Errorf("invalid --status %q: must be pending, paid, unpaid or overdue", raw)
		}
		req.Status = append(req.Status, status)
	}

	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	var err error
	if req.From, err = parseDate(from); err != nil {
		return req, fmt.Errorf("--from: %w", err)
	}
	if req.To, err = parseDate(to); err != nil {
		return req, fmt.Errorf("--to: %w", err)
	}
	if !req.From.IsZero() && !req.To.IsZero() && req.To.Before(req.From) {
		return req, fmt.Errorf("--to must not be before --from")
	}

	return req, nil
}

func runList(cmd *cobra.Command, args []string) error {
	req, err := listRequestFromFlags(cmd)
	if err != nil {
		return err
	}
	req.Page, _ = cmd.Flags().GetInt("page")
	req.Limit, _ = cmd.Flags().GetInt("limit")
	req.SortBy, _ = cmd.Flags().GetString("sort")
	req.Desc, _ = cmd.Flags().GetBool("desc")
	outputPath, _ := cmd.Flags().GetString("output")

	return withApp(cmd, "list", func(ctx context.Context, a *app, log zerolog.Logger) error {
		result, err := a.engine.List(ctx, req)
		if err != nil {
			return err
		}
		if result.SweepError != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: overdue sweep failed, statuses may be stale: %s\n", result.SweepError)
		}
		return writeJSON(result, outputPath, log)
	})
}
