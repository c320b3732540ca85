package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"invoices/internal/config"
	"invoices/internal/currency"
	"invoices/internal/invoice"
	"invoices/internal/logger"
	"invoices/internal/metrics"
	"invoices/internal/postgres"
	"invoices/internal/store/memory"
	pgstore "invoices/internal/store/postgres"
)

// app holds everything a command needs to talk to the engine.
type app struct {
	cfg     *config.Config
	engine  *invoice.Engine
	metrics *metrics.Recorder
	pool    *pgxpool.Pool
	log     zerolog.Logger
}

// newApp loads the configuration and wires store, converter, metrics and engine.
func newApp(ctx context.Context) (*app, error) {
	log := logger.WithComponent("app")

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	store, pool, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	converter, err := newConverter(cfg)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}

	recorder := metrics.New()
	engine := invoice.NewEngine(store, converter, cfg.EngineConfig(), invoice.WithRecorder(recorder))

	log.Debug().
		Str("store", cfg.StoreDriver).
		Str("fx_provider", cfg.FXProvider).
		Str("reporting_currency", cfg.ReportingCurrency).
		Msg("Engine ready")

	return &app{
		cfg:     cfg,
		engine:  engine,
		metrics: recorder,
		pool:    pool,
		log:     log,
	}, nil
}

// Close releases the database pool, if any.
func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (invoice.Store, *pgxpool.Pool, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn().Msg("Using in-memory store, invoices are lost when the command exits")
		return memory.New(), nil, nil
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.PostgresConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return pgstore.New(pool), pool, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

func newConverter(cfg *config.Config) (*currency.Gateway, error) {
	var source currency.RateSource
	switch cfg.FXProvider {
	case config.FXStatic:
		parsed, err := currency.ParseStaticRates(cfg.FXStaticRates, cfg.ReportingCurrency)
		if err != nil {
			return nil, fmt.Errorf("invalid FX_STATIC_RATES: %w", err)
		}
		if len(parsed) == 0 {
			parsed = nil
		}
		source = currency.NewStaticRateSource(parsed)
	default:
		httpSource, err := currency.NewHTTPRateSource(cfg.HTTPSourceConfig())
		if err != nil {
			return nil, fmt.Errorf("invalid rate source configuration: %w", err)
		}
		source = httpSource
	}
	return currency.NewGateway(source, cfg.GatewayConfig()), nil
}

// commandContext returns a context canceled on SIGINT/SIGTERM or after timeout.
// A zero timeout means no deadline.
func commandContext(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	if timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, timeout)
		parent := cancel
		cancel = func() {
			timeoutCancel()
			parent()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// explain turns engine errors into messages for the terminal.
func explain(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Command failed")

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("operation timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("operation was canceled")
	case errors.Is(err, invoice.ErrValidation):
		return fmt.Errorf("invalid invoice input:\n%w", err)
	case errors.Is(err, invoice.ErrNotFound):
		return fmt.Errorf("invoice not found: %w", err)
	case errors.Is(err, invoice.ErrConflict):
		return fmt.Errorf("invoice number already in use, omit --number to allocate one: %w", err)
	case errors.Is(err, invoice.ErrConversion):
		return fmt.Errorf("currency conversion failed, nothing was written. Check FX_PROVIDER and FX_API_URL: %w", err)
	case errors.Is(err, invoice.ErrAlreadyDeleted):
		return fmt.Errorf("invoice is already deleted: %w", err)
	case errors.Is(err, invoice.ErrBusy):
		return fmt.Errorf("invoice is being changed by someone else, try again: %w", err)
	default:
		return err
	}
}

// withApp builds the app under a signal-aware context and runs fn with it.
func withApp(cmd *cobra.Command, component string, fn func(ctx context.Context, a *app, log zerolog.Logger) error) error {
	log := logger.WithComponent(component)
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, cancel := commandContext(timeout, log)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, a, log); err != nil {
		return explain(err, log)
	}
	return nil
}
