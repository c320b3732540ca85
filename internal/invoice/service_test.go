package invoice_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoices/internal/currency"
	"invoices/internal/invoice"
	"invoices/internal/store/memory"
	"invoices/internal/store/storetest"
	"invoices/pkg/models"
	"invoices/pkg/services"
)

func TestEngine_Create(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	in := input("client-a", "100", 14)
	in.Currency = models.Currency{Code: "eur", Symbol: "€"}
	in.Notes = "first order"

	inv, err := f.engine.Create(ctx, in)
	require.NoError(t, err)

	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, "INV-1001", inv.InvoiceNumber)
	assert.Equal(t, models.StatusPending, inv.Status)
	assert.Equal(t, "EUR", inv.Currency.Code)
	assert.Equal(t, "108.50", inv.ConvertedTotalAmount.StringFixed(2))
	assert.Equal(t, testNow, inv.CreatedAt)
	assert.False(t, inv.IsDeleted)

	stored, err := f.engine.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.InvoiceNumber, stored.InvoiceNumber)
	assert.Equal(t, "first order", stored.Notes)

	next, err := f.engine.NextNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, "INV-1002", next)
}

func TestEngine_CreateExplicitNumber(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	in := input("client-a", "100", 14)
	in.InvoiceNumber = "INV-5000"
	inv, err := f.engine.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "INV-5000", inv.InvoiceNumber)

	_, err = f.engine.Create(ctx, in)
	assert.ErrorIs(t, err, invoice.ErrConflict)

	next := f.create(t, input("client-a", "100", 14))
	assert.Equal(t, "INV-5001", next.InvoiceNumber)
}

func TestEngine_CreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	in := input("", "0", 14)
	in.DueDate = in.InvoiceDate.AddDate(0, 0, -1)
	in.Currency.Code = "DOLLAR"
	in.Status = models.StatusOverdue

	_, err := f.engine.Create(ctx, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, invoice.ErrValidation)
	for _, field := range []string{"client_id", "due_date", "currency.code", "total_amount", "status"} {
		assert.Contains(t, err.Error(), field)
	}

	page, err := f.store.Page(ctx, invoice.Filter{}, invoice.PageOptions{})
	require.NoError(t, err)
	assert.Zero(t, page.TotalRecords)
}

func TestEngine_FailedConversionWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.converter.fail["GBP"] = true

	in := input("client-a", "100", 14)
	in.Currency.Code = "GBP"
	_, err := f.engine.Create(ctx, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, invoice.ErrConversion)
	assert.ErrorIs(t, err, currency.ErrUnavailable)

	page, err := f.store.Page(ctx, invoice.Filter{}, invoice.PageOptions{})
	require.NoError(t, err)
	assert.Zero(t, page.TotalRecords)

	// unknown currency through the real gateway
	in.Currency.Code = "XAU"
	_, err = f.engine.Create(ctx, in)
	assert.ErrorIs(t, err, invoice.ErrConversion)
	assert.ErrorIs(t, err, currency.ErrUnknownCurrency)

	// update leaves the stored invoice untouched
	inv := f.create(t, input("client-a", "100", 14))
	changed := input("client-b", "999", 14)
	changed.Currency.Code = "GBP"
	_, err = f.engine.Update(ctx, inv.ID, changed)
	assert.ErrorIs(t, err, invoice.ErrConversion)

	stored, err := f.engine.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "client-a", stored.ClientID)
	assert.True(t, stored.TotalAmount.Equal(decimal.NewFromInt(100)))
}

func TestEngine_Update(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv := f.create(t, input("client-a", "100", 14))

	f.clock.Set(testNow.Add(1))
	changed := input("client-b", "200", 20)
	changed.Currency.Code = "GBP"
	changed.Status = models.StatusPaid
	updated, err := f.engine.Update(ctx, inv.ID, changed)
	require.NoError(t, err)

	assert.Equal(t, inv.InvoiceNumber, updated.InvoiceNumber)
	assert.Equal(t, "client-b", updated.ClientID)
	assert.Equal(t, models.StatusPaid, updated.Status)
	assert.Equal(t, "253.00", updated.ConvertedTotalAmount.StringFixed(2))
	assert.Equal(t, inv.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(inv.UpdatedAt))

	changed.InvoiceNumber = "INV-9999"
	_, err = f.engine.Update(ctx, inv.ID, changed)
	assert.ErrorIs(t, err, invoice.ErrValidation)

	changed.InvoiceNumber = ""
	changed.Status = models.StatusOverdue
	_, err = f.engine.Update(ctx, inv.ID, changed)
	assert.ErrorIs(t, err, invoice.ErrValidation)

	_, err = f.engine.Update(ctx, "missing", input("client-a", "1", 1))
	assert.ErrorIs(t, err, invoice.ErrNotFound)
}

// stealingStore lets another creator claim the allocated number just before
// the first insert lands.
type stealingStore struct {
	*memory.Store
	once sync.Once
}

func (s *stealingStore) Insert(ctx context.Context, inv *models.Invoice) error {
	var err error
	s.once.Do(func() {
		err = s.Store.Insert(ctx, storetest.NewInvoice(inv.InvoiceNumber, "rival", "1", testNow))
	})
	if err != nil {
		return err
	}
	return s.Store.Insert(ctx, inv)
}

func TestEngine_CreateReallocatesAfterCollision(t *testing.T) {
	mem := memory.New()
	f := newFixtureWithStore(t, mem, &stealingStore{Store: mem})

	inv := f.create(t, input("client-a", "100", 14))
	assert.Equal(t, "INV-1002", inv.InvoiceNumber)
}

func TestEngine_ConcurrentCreatesNeverShareANumber(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const n = 20
	var wg sync.WaitGroup
	numbers := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inv, err := f.engine.Create(ctx, input(fmt.Sprintf("client-%d", i), "10", 14))
			errs[i] = err
			if err == nil {
				numbers[i] = inv.InvoiceNumber
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[numbers[i]], "duplicate number %s", numbers[i])
		seen[numbers[i]] = true
	}
	for i := 1001; i < 1001+n; i++ {
		assert.True(t, seen[fmt.Sprintf("INV-%d", i)], "INV-%d missing", i)
	}
}

func TestEngine_ListDegradesWhenSweepFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.create(t, input("client-a", "100", -1))
	f.store.FailSweep(errors.New("connection reset"))

	result, err := f.engine.List(ctx, services.ListRequest{})
	require.NoError(t, err)
	assert.Contains(t, result.SweepError, "connection reset")
	assert.Zero(t, result.Swept)
	require.Len(t, result.Invoices, 1)
	assert.Equal(t, models.StatusPending, result.Invoices[0].Status, "stored status is listed as is")
	assert.Equal(t, int64(1), result.Summary.Overdue.Count, "overdue bucket is computed from due date")
}

// interleavingStore lands writes right after the dashboard is aggregated and
// before the page is read.
type interleavingStore struct {
	*memory.Store
	once  sync.Once
	write func(ctx context.Context) error
	err   error
}

func (s *interleavingStore) Aggregate(ctx context.Context, filters []invoice.Filter) ([]invoice.Totals, error) {
	totals, err := s.Store.Aggregate(ctx, filters)
	s.once.Do(func() { s.err = s.write(ctx) })
	return totals, err
}

// The sweep, the summary and the page are separate reads. Writes that land
// between them show up in the page but not in the summary. This window is
// accepted: the summary and the page of one List call may differ by exactly
// the writes made in between.
func TestEngine_ListSummaryAndPageMayDifferByInterleavedWrites(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	interleaving := &interleavingStore{Store: mem}
	f := newFixtureWithStore(t, mem, interleaving)

	first := f.create(t, input("client-a", "10", 14))
	f.create(t, input("client-a", "20", 14))

	interleaving.write = func(ctx context.Context) error {
		if err := mem.Insert(ctx, storetest.NewInvoice("INV-2000", "client-b", "5", testNow.AddDate(0, 0, 14))); err != nil {
			return err
		}
		_, err := mem.CompareAndSetStatus(ctx, first.ID, models.StatusPending, models.StatusPaid, testNow)
		return err
	}

	result, err := f.engine.List(ctx, services.ListRequest{SortBy: invoice.SortInvoiceNumber})
	require.NoError(t, err)
	require.NoError(t, interleaving.err)

	// summary: the snapshot before the writes
	assert.Equal(t, int64(2), result.Summary.Total.Count)
	assert.Equal(t, "30.00", result.Summary.Total.Sum.StringFixed(2))
	assert.Zero(t, result.Summary.Paid.Count)
	assert.Equal(t, int64(2), result.Summary.Pending.Count)

	// page: the state after the writes
	assert.Equal(t, int64(3), result.TotalRecords)
	require.Len(t, result.Invoices, 3)
	assert.Equal(t, "INV-1001", result.Invoices[0].InvoiceNumber)
	assert.Equal(t, models.StatusPaid, result.Invoices[0].Status)
	assert.Equal(t, "INV-2000", result.Invoices[2].InvoiceNumber)

	// the next call sees a consistent picture again
	result, err = f.engine.List(ctx, services.ListRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Summary.Total.Count)
	assert.Equal(t, int64(1), result.Summary.Paid.Count)
	assert.Equal(t, result.Summary.Total.Count, result.TotalRecords)
}

func TestEngine_ListFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 5; i++ {
		f.create(t, input("client-a", fmt.Sprintf("%d", (i+1)*10), 14))
	}
	paid := input("client-a", "1000", 14)
	paid.Status = models.StatusPaid
	f.create(t, paid)
	f.create(t, input("client-b", "7", 14))

	result, err := f.engine.List(ctx, services.ListRequest{
		ClientID: "client-a",
		Status:   []models.Status{models.StatusPending},
		Page:     2,
		Limit:    2,
		SortBy:   invoice.SortInvoiceNumber,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5), result.TotalRecords)
	assert.Equal(t, 3, result.TotalPages)
	require.Len(t, result.Invoices, 2)
	assert.Equal(t, "INV-1003", result.Invoices[0].InvoiceNumber)
	assert.Equal(t, "INV-1004", result.Invoices[1].InvoiceNumber)

	s := result.Summary
	assert.Equal(t, "USD", s.Currency)
	assert.Equal(t, int64(6), s.Total.Count)
	assert.Equal(t, "1150.00", s.Total.Sum.StringFixed(2))
	assert.Equal(t, int64(1), s.Paid.Count)
	assert.Equal(t, int64(5), s.Pending.Count)
	assert.Equal(t, int64(0), s.Overdue.Count)
	assert.True(t, s.Overdue.Sum.IsZero())
	assert.Equal(t, int64(5), s.Custom.Count)
	assert.Equal(t, "150.00", s.Custom.Sum.StringFixed(2))

	result, err = f.engine.List(ctx, services.ListRequest{Search: "inv-1007"})
	require.NoError(t, err)
	require.Len(t, result.Invoices, 1)
	assert.Equal(t, "client-b", result.Invoices[0].ClientID)
}

func TestFiltersFromRequest(t *testing.T) {
	base, custom := invoice.FiltersFromRequest(services.ListRequest{
		ClientID: " client-a ",
		Status:   []models.Status{models.StatusPaid},
		From:     testNow,
		Search:   " 10 ",
	})

	assert.Equal(t, "client-a", base.ClientID)
	assert.Equal(t, "10", base.NumberContains)
	assert.Equal(t, testNow, base.InvoiceFrom)
	assert.Nil(t, base.Statuses)
	assert.Equal(t, []models.Status{models.StatusPaid}, custom.Statuses)
	assert.Equal(t, base.ClientID, custom.ClientID)
}
