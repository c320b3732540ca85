package invoice_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"invoices/internal/currency"
	"invoices/internal/invoice"
	"invoices/internal/store/memory"
	"invoices/pkg/models"
	"invoices/pkg/services"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

// clock is a settable time source shared with the engine.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// stubConverter delegates to a static-rate gateway and fails for listed codes.
type stubConverter struct {
	inner invoice.Converter
	fail  map[string]bool
}

func (c *stubConverter) Convert(ctx context.Context, code string, amount decimal.Decimal) (decimal.Decimal, error) {
	if c.fail[code] {
		return decimal.Decimal{}, currency.NewConversionError(code, "rate source failed", currency.ErrUnavailable)
	}
	return c.inner.Convert(ctx, code, amount)
}

func newGateway() *currency.Gateway {
	source := currency.NewStaticRateSource(map[string]decimal.Decimal{
		"EUR/USD": decimal.RequireFromString("1.0850"),
		"GBP/USD": decimal.RequireFromString("1.2650"),
	})
	return currency.NewGateway(source, currency.GatewayConfig{Target: "USD"})
}

type fixture struct {
	engine    *invoice.Engine
	store     *memory.Store
	clock     *clock
	converter *stubConverter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memory.New(), nil)
}

// newFixtureWithStore builds an engine over s. When wrap is non-nil the engine
// talks to wrap instead of s directly.
func newFixtureWithStore(t *testing.T, s *memory.Store, wrap invoice.Store) *fixture {
	t.Helper()

	c := &clock{now: testNow}
	conv := &stubConverter{inner: newGateway(), fail: map[string]bool{}}

	cfg := invoice.DefaultConfig()
	cfg.MaxAllocationRetries = 50
	cfg.RetryInitialInterval = time.Millisecond

	var store invoice.Store = s
	if wrap != nil {
		store = wrap
	}

	return &fixture{
		engine:    invoice.NewEngine(store, conv, cfg, invoice.WithClock(c.Now)),
		store:     s,
		clock:     c,
		converter: conv,
	}
}

// input returns a valid USD input due in days days relative to testNow.
func input(clientID, total string, dueInDays int) services.InvoiceInput {
	amount := decimal.RequireFromString(total)
	return services.InvoiceInput{
		ClientID:    clientID,
		InvoiceDate: testNow.AddDate(0, 0, -30),
		DueDate:     testNow.AddDate(0, 0, dueInDays),
		Items: []models.Item{{
			Description: "Design work",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   amount,
			Amount:      amount,
		}},
		SubTotal:    amount,
		TaxAmount:   decimal.Zero,
		TotalAmount: amount,
		Currency:    models.Currency{Code: "USD", Symbol: "$"},
	}
}

func (f *fixture) create(t *testing.T, in services.InvoiceInput) *models.Invoice {
	t.Helper()
	inv, err := f.engine.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return inv
}
