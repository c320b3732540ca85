package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [invoice-id]",
	Short: "Soft-delete an invoice",
	Long: `Mark an invoice as deleted. Deleted invoices disappear from get, list and
the summary. Their numbers are never handed out again. There is no undelete.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	return withApp(cmd, "delete", func(ctx context.Context, a *app, log zerolog.Logger) error {
		if err := a.engine.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	})
}
