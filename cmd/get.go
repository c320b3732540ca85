package cmd

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get [invoice-id]",
	Short: "Print one invoice as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
}

func runGet(cmd *cobra.Command, args []string) error {
	outputPath, _ := cmd.Flags().GetString("output")

	return withApp(cmd, "get", func(ctx context.Context, a *app, log zerolog.Logger) error {
		inv, err := a.engine.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return writeJSON(inv, outputPath, log)
	})
}
