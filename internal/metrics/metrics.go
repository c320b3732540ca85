// Package metrics exports invoice engine counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"invoices/internal/logger"
)

const namespace = "invoices"

// Recorder implements invoice.Recorder on a private Prometheus registry.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Recorder struct {
	registry *prometheus.Registry

	created           prometheus.Counter
	conversionFailed  *prometheus.CounterVec
	numberConflicts   prometheus.Counter
	swept             prometheus.Counter
	lastSweepUnixTime prometheus.Gauge

	now func() time.Time
	log zerolog.Logger
}

// New creates a Recorder with its own registry, so repeated construction in
// tests never collides with the default registerer.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "created_total",
			Help:      "Invoices created.",
		}),
		conversionFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversion_failures_total",
			Help:      "Writes rejected because the total could not be converted.",
		}, []string{"currency"}),
		numberConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "number_conflicts_total",
			Help:      "Inserts rejected by the unique invoice number constraint.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_overdue_total",
			Help:      "Invoices moved to overdue by the sweep.",
		}),
		lastSweepUnixTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sweep_timestamp_seconds",
			Help:      "Unix time of the last successful overdue sweep.",
		}),
		now: time.Now,
		log: logger.WithComponent("metrics"),
	}

	r.registry.MustRegister(
		r.created,
		r.conversionFailed,
		r.numberConflicts,
		r.swept,
		r.lastSweepUnixTime,
	)
	return r
}

// InvoiceCreated counts a created invoice.
func (r *Recorder) InvoiceCreated() { r.created.Inc() }

// ConversionFailed counts a failed conversion for currencyCode.
func (r *Recorder) ConversionFailed(currencyCode string) {
	r.conversionFailed.WithLabelValues(currencyCode).Inc()
}

// NumberConflict counts a unique-number rejection.
func (r *Recorder) NumberConflict() { r.numberConflicts.Inc() }

// Swept records a successful sweep that touched n invoices.
func (r *Recorder) Swept(n int64) {
	r.swept.Add(float64(n))
	r.lastSweepUnixTime.Set(float64(r.now().Unix()))
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		r.log.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
