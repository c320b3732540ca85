package invoice

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"invoices/pkg/models"
)

// Store is the persistence port of the engine. Implementations live in
// internal/store and must enforce that no two non-deleted invoices share an
// InvoiceNumber, reporting a violation from Insert as ErrNumberTaken.
type Store interface {
	// Get returns the invoice with id, including soft-deleted ones.
	// Returns ErrNotFound when no row exists.
	Get(ctx context.Context, id string) (*models.Invoice, error)

	// NumberTaken reports whether a non-deleted invoice holds number.
	NumberTaken(ctx context.Context, number string) (bool, error)

	// LatestNumber returns the highest numeric suffix among all invoice numbers
	// of the form <prefix><digits>, deleted rows included. ok is false when none match.
	LatestNumber(ctx context.Context, prefix string) (n int64, ok bool, err error)

	// Insert stores a new invoice.
	Insert(ctx context.Context, inv *models.Invoice) error

	// Update overwrites the mutable fields of a non-deleted invoice and returns
	// the stored row. An empty Status keeps the stored status, so a concurrent
	// sweep is not undone. Returns ErrNotFound when the row is missing or deleted.
	Update(ctx context.Context, inv *models.Invoice) (*models.Invoice, error)

	// CompareAndSetStatus moves a non-deleted invoice from one status to another.
	// Returns ErrStatusChanged when the stored status is not from, ErrNotFound when
	// the row is missing or deleted.
	CompareAndSetStatus(ctx context.Context, id string, from, to models.Status, at time.Time) (*models.Invoice, error)

	// SoftDelete flags an invoice as deleted. Returns ErrNotFound when missing
	// and ErrAlreadyDeleted when already flagged.
	SoftDelete(ctx context.Context, id string, at time.Time) error

	// MarkOverdue sets status overdue on every non-deleted, non-paid invoice
	// due before now, returning the number of rows touched.
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)

	// Aggregate returns count and converted sum for each filter, in order,
	// computed against a single snapshot.
	Aggregate(ctx context.Context, filters []Filter) ([]Totals, error)

	// Page returns one sorted page of non-deleted invoices matching filter.
	Page(ctx context.Context, filter Filter, opts PageOptions) (*Page, error)
}

// Totals is the count and converted sum of a set of invoices.
type Totals struct {
	Count int64
	Sum   decimal.Decimal
}

// Sort fields accepted by PageOptions.SortBy.
const (
	SortCreatedAt     = "created_at"
	SortInvoiceDate   = "invoice_date"
	SortDueDate       = "due_date"
	SortTotal         = "total"
	SortInvoiceNumber = "invoice_number"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// PageOptions controls sorting and pagination of Store.Page.
type PageOptions struct {
	Page   int
	Limit  int
	SortBy string
	Desc   bool
}

// Normalize fills defaults: page 1, limit 10 (max 100), newest first.
func (o PageOptions) Normalize() PageOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 {
		o.Limit = defaultPageLimit
	}
	if o.Limit > maxPageLimit {
		o.Limit = maxPageLimit
	}
	switch o.SortBy {
	case SortCreatedAt, SortInvoiceDate, SortDueDate, SortTotal, SortInvoiceNumber:
	default:
		o.SortBy = SortCreatedAt
		o.Desc = true
	}
	return o
}

// Offset is the number of rows skipped before the page.
func (o PageOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// Page is one page of invoices.
type Page struct {
	Invoices     []*models.Invoice
	Page         int
	Limit        int
	TotalPages   int
	TotalRecords int64
}

// NewPage fills the page counters from the total record count.
func NewPage(invoices []*models.Invoice, opts PageOptions, total int64) *Page {
	pages := 0
	if total > 0 {
		pages = int((total + int64(opts.Limit) - 1) / int64(opts.Limit))
	}
	if invoices == nil {
		invoices = []*models.Invoice{}
	}
	return &Page{
		Invoices:     invoices,
		Page:         opts.Page,
		Limit:        opts.Limit,
		TotalPages:   pages,
		TotalRecords: total,
	}
}
