package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := New()
	r.now = func() time.Time { return time.Unix(1700000000, 0) }

	r.InvoiceCreated()
	r.InvoiceCreated()
	r.ConversionFailed("EUR")
	r.NumberConflict()
	r.Swept(3)
	r.Swept(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.created))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.conversionFailed.WithLabelValues("EUR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.numberConflicts))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.swept))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(r.lastSweepUnixTime))
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.InvoiceCreated()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "invoices_created_total 1")
}
