package invoice_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"invoices/internal/invoice"
	"invoices/pkg/models"
)

func TestFilter_BuildersDoNotMutateReceiver(t *testing.T) {
	base := invoice.Filter{ClientID: "client-a"}

	paid := base.WithStatus(models.StatusPaid)
	overdue := invoice.OverdueBucket(base, testNow)

	assert.Nil(t, base.Statuses)
	assert.Nil(t, base.ExcludedStatuses)
	assert.True(t, base.DueBefore.IsZero())
	assert.Equal(t, []models.Status{models.StatusPaid}, paid.Statuses)
	assert.Equal(t, []models.Status{models.StatusPaid}, overdue.ExcludedStatuses)
	assert.Equal(t, testNow, overdue.DueBefore)
}

func TestFilter_WithStatusIntersects(t *testing.T) {
	f := invoice.Filter{}.WithStatus(models.StatusPaid, models.StatusPending)

	narrowed := f.WithStatus(models.StatusPending, models.StatusOverdue)
	assert.Equal(t, []models.Status{models.StatusPending}, narrowed.Statuses)

	empty := f.WithStatus(models.StatusOverdue)
	assert.NotNil(t, empty.Statuses)
	assert.Empty(t, empty.Statuses)
	assert.False(t, empty.Matches(&models.Invoice{Status: models.StatusOverdue}))
}

func TestFilter_WithDueBeforeTightens(t *testing.T) {
	early := testNow.Add(-time.Hour)

	f := invoice.Filter{}.WithDueBefore(testNow).WithDueBefore(early)
	assert.Equal(t, early, f.DueBefore)

	f = invoice.Filter{}.WithDueBefore(early).WithDueBefore(testNow)
	assert.Equal(t, early, f.DueBefore)
}

func TestFilter_Matches(t *testing.T) {
	inv := &models.Invoice{
		InvoiceNumber: "INV-1042",
		ClientID:      "client-a",
		InvoiceDate:   testNow.AddDate(0, 0, -10),
		DueDate:       testNow.AddDate(0, 0, -1),
		Status:        models.StatusPending,
	}

	tests := []struct {
		name   string
		filter invoice.Filter
		want   bool
	}{
		{name: "empty", filter: invoice.Filter{}, want: true},
		{name: "client match", filter: invoice.Filter{ClientID: "client-a"}, want: true},
		{name: "client mismatch", filter: invoice.Filter{ClientID: "client-b"}, want: false},
		{name: "status match", filter: invoice.Filter{}.WithStatus(models.StatusPending), want: true},
		{name: "status excluded", filter: invoice.Filter{}.WithoutStatus(models.StatusPending), want: false},
		{name: "overdue bucket", filter: invoice.OverdueBucket(invoice.Filter{}, testNow), want: true},
		{name: "due exactly at bound", filter: invoice.Filter{DueBefore: inv.DueDate}, want: false},
		{name: "invoice date inside range", filter: invoice.Filter{InvoiceFrom: inv.InvoiceDate, InvoiceTo: inv.InvoiceDate}, want: true},
		{name: "invoice date before range", filter: invoice.Filter{InvoiceFrom: testNow}, want: false},
		{name: "invoice date after range", filter: invoice.Filter{InvoiceTo: testNow.AddDate(0, 0, -20)}, want: false},
		{name: "search case-insensitive", filter: invoice.Filter{NumberContains: "inv-10"}, want: true},
		{name: "search miss", filter: invoice.Filter{NumberContains: "2000"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(inv))
		})
	}

	deleted := *inv
	deleted.IsDeleted = true
	assert.False(t, invoice.Filter{}.Matches(&deleted), "deleted invoices never match")
}

func TestPageOptions_Normalize(t *testing.T) {
	opts := invoice.PageOptions{}.Normalize()
	assert.Equal(t, 1, opts.Page)
	assert.Equal(t, 10, opts.Limit)
	assert.Equal(t, invoice.SortCreatedAt, opts.SortBy)
	assert.True(t, opts.Desc)

	opts = invoice.PageOptions{Page: 3, Limit: 500, SortBy: invoice.SortTotal}.Normalize()
	assert.Equal(t, 100, opts.Limit)
	assert.Equal(t, 200, opts.Offset())
	assert.False(t, opts.Desc)

	opts = invoice.PageOptions{SortBy: "client_id; DROP TABLE invoices"}.Normalize()
	assert.Equal(t, invoice.SortCreatedAt, opts.SortBy)
}

func TestNewPage(t *testing.T) {
	opts := invoice.PageOptions{Page: 2, Limit: 10}.Normalize()

	page := invoice.NewPage(nil, opts, 21)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, int64(21), page.TotalRecords)
	assert.NotNil(t, page.Invoices)

	page = invoice.NewPage(nil, opts, 0)
	assert.Equal(t, 0, page.TotalPages)
}
