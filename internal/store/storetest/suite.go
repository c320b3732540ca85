// Package storetest holds behaviour tests every invoice.Store must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoices/internal/invoice"
	"invoices/pkg/models"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) invoice.Store

var epoch = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// NewInvoice builds a valid invoice with the given number and USD total.
func NewInvoice(number, clientID string, total string, due time.Time) *models.Invoice {
	amount := decimal.RequireFromString(total)
	return &models.Invoice{
		ID:            uuid.NewString(),
		InvoiceNumber: number,
		ClientID:      clientID,
		InvoiceDate:   due.AddDate(0, 0, -30),
		DueDate:       due,
		Items: []models.Item{{
			Description: "Consulting",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   amount,
			Amount:      amount,
		}},
		SubTotal:             amount,
		TaxAmount:            decimal.Zero,
		TotalAmount:          amount,
		Currency:             models.Currency{Code: "USD", Symbol: "$"},
		ConvertedTotalAmount: amount,
		Status:               models.StatusPending,
		CreatedAt:            epoch,
		UpdatedAt:            epoch,
	}
}

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, newStore(t)) })
	t.Run("UniqueLiveNumber", func(t *testing.T) { testUniqueLiveNumber(t, newStore(t)) })
	t.Run("LatestNumber", func(t *testing.T) { testLatestNumber(t, newStore(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("CompareAndSetStatus", func(t *testing.T) { testCompareAndSetStatus(t, newStore(t)) })
	t.Run("SoftDelete", func(t *testing.T) { testSoftDelete(t, newStore(t)) })
	t.Run("MarkOverdue", func(t *testing.T) { testMarkOverdue(t, newStore(t)) })
	t.Run("Aggregate", func(t *testing.T) { testAggregate(t, newStore(t)) })
	t.Run("Page", func(t *testing.T) { testPage(t, newStore(t)) })
}

func insert(t *testing.T, s invoice.Store, inv *models.Invoice) *models.Invoice {
	t.Helper()
	require.NoError(t, s.Insert(context.Background(), inv))
	return inv
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func testInsertAndGet(t *testing.T, s invoice.Store) {
	ctx := context.Background()
	inv := NewInvoice("INV-1001", "client-a", "250.50", epoch.AddDate(0, 1, 0))
	inv.Currency = models.Currency{Code: "EUR", Symbol: "€", Name: "Euro"}
	inv.ConvertedTotalAmount = decimal.RequireFromString("271.79")
	inv.Notes = "net 30"
	insert(t, s, inv)

	got, err := s.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.InvoiceNumber, got.InvoiceNumber)
	assert.Equal(t, "client-a", got.ClientID)
	assert.Equal(t, inv.Currency, got.Currency)
	assert.Equal(t, "net 30", got.Notes)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.True(t, inv.DueDate.Equal(got.DueDate))
	assertDecimal(t, "250.50", got.TotalAmount)
	assertDecimal(t, "271.79", got.ConvertedTotalAmount)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Consulting", got.Items[0].Description)
	assertDecimal(t, "250.50", got.Items[0].Amount)

	_, err = s.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, invoice.ErrNotFound)
}

func testUniqueLiveNumber(t *testing.T, s invoice.Store) {
	ctx := context.Background()
	first := insert(t, s, NewInvoice("INV-1001", "client-a", "10", epoch))

	taken, err := s.NumberTaken(ctx, "INV-1001")
	require.NoError(t, err)
	assert.True(t, taken)

	err = s.Insert(ctx, NewInvoice("INV-1001", "client-b", "20", epoch))
	assert.ErrorIs(t, err, invoice.ErrNumberTaken)

	// deleting frees the number for reuse
	require.NoError(t, s.SoftDelete(ctx, first.ID, epoch))
	taken, err = s.NumberTaken(ctx, "INV-1001")
	require.NoError(t, err)
	assert.False(t, taken)
	insert(t, s, NewInvoice("INV-1001", "client-b", "20", epoch))
}

func testLatestNumber(t *testing.T, s invoice.Store) {
	ctx := context.Background()

	_, ok, err := s.LatestNumber(ctx, "INV-")
	require.NoError(t, err)
	assert.False(t, ok)

	insert(t, s, NewInvoice("INV-1001", "c", "1", epoch))
	insert(t, s, NewInvoice("INV-1010", "c", "1", epoch))
	insert(t, s, NewInvoice("INV-abc", "c", "1", epoch))
	insert(t, s, NewInvoice("X-5000", "c", "1", epoch))
	insert(t, s, NewInvoice("INV-99x", "c", "1", epoch))
	deleted := insert(t, s, NewInvoice("INV-1020", "c", "1", epoch))
	require.NoError(t, s.SoftDelete(ctx, deleted.ID, epoch))

	n, ok, err := s.LatestNumber(ctx, "INV-")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1020), n, "deleted numbers still count")
}

func testUpdate(t *testing.T, s invoice.Store) {
	ctx := context.Background()
	inv := insert(t, s, NewInvoice("INV-1001", "client-a", "10", epoch))

	changed := *inv
	changed.InvoiceNumber = "INV-9999"
	changed.ClientID = "client-b"
	changed.TotalAmount = decimal.RequireFromString("99.99")
	changed.Status = models.StatusPaid
	changed.UpdatedAt = epoch.Add(time.Hour)
	returned, err := s.Update(ctx, &changed)
	require.NoError(t, err)
	assert.Equal(t, "INV-1001", returned.InvoiceNumber)
	assert.Equal(t, models.StatusPaid, returned.Status)

	got, err := s.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-1001", got.InvoiceNumber, "number is immutable")
	assert.Equal(t, "client-b", got.ClientID)
	assert.Equal(t, models.StatusPaid, got.Status)
	assertDecimal(t, "99.99", got.TotalAmount)
	assert.True(t, epoch.Equal(got.CreatedAt))

	// an empty status keeps whatever is stored
	_, err = s.CompareAndSetStatus(ctx, inv.ID, models.StatusPaid, models.StatusUnpaid, epoch)
	require.NoError(t, err)
	changed.Status = ""
	changed.Notes = "status untouched"
	returned, err = s.Update(ctx, &changed)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnpaid, returned.Status)
	assert.Equal(t, "status untouched", returned.Notes)

	missing := NewInvoice("INV-2000", "c", "1", epoch)
	_, err = s.Update(ctx, missing)
	assert.ErrorIs(t, err, invoice.ErrNotFound)

	require.NoError(t, s.SoftDelete(ctx, inv.ID, epoch))
	_, err = s.Update(ctx, &changed)
	assert.ErrorIs(t, err, invoice.ErrNotFound)
}

func testCompareAndSetStatus(t *testing.T, s invoice.Store) {
	ctx := context.Background()
	inv := insert(t, s, NewInvoice("INV-1001", "c", "10", epoch))
	at := epoch.Add(time.Minute)

	got, err := s.CompareAndSetStatus(ctx, inv.ID, models.StatusPending, models.StatusPaid, at)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, got.Status)
	assert.True(t, at.Equal(got.UpdatedAt))

	_, err = s.CompareAndSetStatus(ctx, inv.ID, models.StatusPending, models.StatusPaid, at)
	assert.ErrorIs(t, err, invoice.ErrStatusChanged)

	_, err = s.CompareAndSetStatus(ctx, uuid.NewString(), models.StatusPending, models.StatusPaid, at)
	assert.ErrorIs(t, err, invoice.ErrNotFound)

	require.NoError(t, s.SoftDelete(ctx, inv.ID, at))
	_, err = s.CompareAndSetStatus(ctx, inv.ID, models.StatusPaid, models.StatusUnpaid, at)
	assert.ErrorIs(t, err, invoice.ErrNotFound)
}

func testSoftDelete(t *testing.T, s invoice.Store) {
	ctx := context.Background()
	inv := insert(t, s, NewInvoice("INV-1001", "c", "10", epoch))

	require.NoError(t, s.SoftDelete(ctx, inv.ID, epoch))
	assert.ErrorIs(t, s.SoftDelete(ctx, inv.ID, epoch), invoice.ErrAlreadyDeleted)
	assert.ErrorIs(t, s.SoftDelete(ctx, uuid.NewString(), epoch), invoice.ErrNotFound)

	got, err := s.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
}

func testMarkOverdue(t *testing.T, s invoice.Store) {
	ctx := context.Background()
	now := epoch

	past := insert(t, s, NewInvoice("INV-1001", "c", "10", now.AddDate(0, 0, -1)))
	unpaid := NewInvoice("INV-1002", "c", "10", now.AddDate(0, 0, -2))
	unpaid.Status = models.StatusUnpaid
	insert(t, s, unpaid)
	paid := NewInvoice("INV-1003", "c", "10", now.AddDate(0, 0, -1))
	paid.Status = models.StatusPaid
	insert(t, s, paid)
	future := insert(t, s, NewInvoice("INV-1004", "c", "10", now.AddDate(0, 0, 1)))
	dueNow := insert(t, s, NewInvoice("INV-1005", "c", "10", now))
	deleted := insert(t, s, NewInvoice("INV-1006", "c", "10", now.AddDate(0, 0, -1)))
	require.NoError(t, s.SoftDelete(ctx, deleted.ID, now))

	n, err := s.MarkOverdue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.MarkOverdue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "sweep is idempotent")

	for id, want := range map[string]models.Status{
		past.ID:    models.StatusOverdue,
		unpaid.ID:  models.StatusOverdue,
		paid.ID:    models.StatusPaid,
		future.ID:  models.StatusPending,
		dueNow.ID:  models.StatusPending,
		deleted.ID: models.StatusPending,
	} {
		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, got.InvoiceNumber)
	}
}

func testAggregate(t *testing.T, s invoice.Store) {
	ctx := context.Background()

	paid := NewInvoice("INV-1001", "client-a", "100.10", epoch)
	paid.Status = models.StatusPaid
	insert(t, s, paid)
	insert(t, s, NewInvoice("INV-1002", "client-a", "50.25", epoch))
	insert(t, s, NewInvoice("INV-1003", "client-b", "20", epoch))
	deleted := insert(t, s, NewInvoice("INV-1004", "client-a", "1000", epoch))
	require.NoError(t, s.SoftDelete(ctx, deleted.ID, epoch))

	base := invoice.Filter{}
	totals, err := s.Aggregate(ctx, []invoice.Filter{
		base,
		base.WithStatus(models.StatusPaid),
		{ClientID: "client-a"},
		base.WithStatus(models.StatusPaid).WithStatus(models.StatusPending),
		{NumberContains: "inv-100"},
	})
	require.NoError(t, err)
	require.Len(t, totals, 5)

	assert.Equal(t, int64(3), totals[0].Count)
	assertDecimal(t, "170.35", totals[0].Sum)
	assert.Equal(t, int64(1), totals[1].Count)
	assertDecimal(t, "100.10", totals[1].Sum)
	assert.Equal(t, int64(2), totals[2].Count)
	assertDecimal(t, "150.35", totals[2].Sum)
	assert.Equal(t, int64(0), totals[3].Count, "disjoint status selection matches nothing")
	assertDecimal(t, "0", totals[3].Sum)
	assert.Equal(t, int64(3), totals[4].Count)
}

func testPage(t *testing.T, s invoice.Store) {
	ctx := context.Background()

	for i, total := range []string{"30", "10", "50", "20", "40"} {
		inv := NewInvoice("INV-"+string(rune('1'+i))+"000", "client-a", total, epoch)
		inv.CreatedAt = epoch.Add(time.Duration(i) * time.Hour)
		insert(t, s, inv)
	}
	other := NewInvoice("INV-9000", "client-b", "1", epoch)
	insert(t, s, other)

	page, err := s.Page(ctx, invoice.Filter{ClientID: "client-a"}, invoice.PageOptions{
		Page: 2, Limit: 2, SortBy: invoice.SortTotal,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.TotalRecords)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Invoices, 2)
	assertDecimal(t, "30", page.Invoices[0].ConvertedTotalAmount)
	assertDecimal(t, "40", page.Invoices[1].ConvertedTotalAmount)

	// default: newest first
	page, err = s.Page(ctx, invoice.Filter{ClientID: "client-a"}, invoice.PageOptions{})
	require.NoError(t, err)
	assert.Equal(t, 10, page.Limit)
	require.Len(t, page.Invoices, 5)
	assert.Equal(t, "INV-5000", page.Invoices[0].InvoiceNumber)

	page, err = s.Page(ctx, invoice.Filter{NumberContains: "inv-9"}, invoice.PageOptions{})
	require.NoError(t, err)
	require.Len(t, page.Invoices, 1)
	assert.Equal(t, other.ID, page.Invoices[0].ID)

	page, err = s.Page(ctx, invoice.Filter{ClientID: "nobody"}, invoice.PageOptions{})
	require.NoError(t, err)
	assert.Empty(t, page.Invoices)
	assert.Equal(t, 0, page.TotalPages)

	page, err = s.Page(ctx, invoice.Filter{NumberContains: "%"}, invoice.PageOptions{})
	require.NoError(t, err)
	assert.Empty(t, page.Invoices, "LIKE wildcards are matched literally")
}
