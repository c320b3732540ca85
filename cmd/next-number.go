package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var nextNumberCmd = &cobra.Command{
	Use:   "next-number",
	Short: "Show the invoice number the next create would use",
	Long: `Print the number the next create without --number would try first.

The number is not reserved. A concurrent create may take it, in which case the
later create allocates the following one.`,
	Args: cobra.NoArgs,
	RunE: runNextNumber,
}

func init() {
	rootCmd.AddCommand(nextNumberCmd)
}

func runNextNumber(cmd *cobra.Command, args []string) error {
	return withApp(cmd, "next-number", func(ctx context.Context, a *app, log zerolog.Logger) error {
		number, err := a.engine.NextNumber(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), number)
		return nil
	})
}
