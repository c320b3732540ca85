package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Move past-due unpaid invoices to overdue",
	Long: `Run the overdue sweep: every invoice that is not paid and whose due date has
passed becomes overdue. Invoices already overdue are left alone and nothing is
moved back, so running the sweep repeatedly is safe.

With --watch the sweep runs every --interval (default SWEEP_INTERVAL) until
interrupted, and --metrics-addr exposes Prometheus metrics while it runs.`,
	Example: `  # One sweep
  invoices sweep

  # Sweep every 5 minutes and serve metrics on :9090/metrics
  invoices sweep --watch --interval 5m --metrics-addr :9090`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().Bool("watch", false, "Keep sweeping on an interval until interrupted")
	sweepCmd.Flags().Duration("interval", 0, "Sweep interval with --watch (default: SWEEP_INTERVAL)")
	sweepCmd.Flags().String("metrics-addr", "", "Serve /metrics on this address with --watch (default: METRICS_ADDR)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	watch, _ := cmd.Flags().GetBool("watch")
	interval, _ := cmd.Flags().GetDuration("interval")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	return withApp(cmd, "sweep", func(ctx context.Context, a *app, log zerolog.Logger) error {
		if !watch {
			n, err := a.engine.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d invoice(s) overdue\n", n)
			return nil
		}

		if interval <= 0 {
			interval = a.cfg.SweepInterval
		}
		if metricsAddr == "" {
			metricsAddr = a.cfg.MetricsAddr
		}

		g, ctx := errgroup.WithContext(ctx)
		if metricsAddr != "" {
			g.Go(func() error {
				return a.metrics.Serve(ctx, metricsAddr)
			})
		}
		g.Go(func() error {
			return sweepLoop(ctx, a, interval, log)
		})

		err := g.Wait()
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("Sweep loop stopped")
			return nil
		}
		return err
	})
}

// sweepLoop sweeps immediately and then on every tick until ctx is done.
// A failed sweep is logged and retried on the next tick.
func sweepLoop(ctx context.Context, a *app, interval time.Duration, log zerolog.Logger) error {
	log.Info().Dur("interval", interval).Msg("Starting overdue sweep loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := a.engine.Sweep(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			log.Error().Err(err).Msg("Overdue sweep failed, retrying on next tick")
		case n > 0:
			log.Info().Int64("affected", n).Msg("Invoices marked overdue")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
