package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"invoices/pkg/models"
)

// InvoiceService defines the operations the lifecycle engine exposes to its callers
type InvoiceService interface {
	// Create validates the input, allocates a number, converts the total and stores the invoice
	Create(ctx context.Context, input InvoiceInput) (*models.Invoice, error)

	// Update replaces the mutable fields of an existing invoice and re-converts its total
	Update(ctx context.Context, id string, input InvoiceInput) (*models.Invoice, error)

	// ToggleStatus flips an invoice between paid and not paid
	ToggleStatus(ctx context.Context, id string) (*models.Invoice, error)

	// Delete soft-deletes an invoice
	Delete(ctx context.Context, id string) error

	// Get returns a single non-deleted invoice
	Get(ctx context.Context, id string) (*models.Invoice, error)

	// List runs the overdue sweep, then returns the dashboard summary and one page of invoices
	List(ctx context.Context, req ListRequest) (*ListResult, error)

	// NextNumber suggests the number the next create would receive
	NextNumber(ctx context.Context) (string, error)
}

// InvoiceInput carries the caller-supplied fields for create and update
type InvoiceInput struct {
	InvoiceNumber string          `json:"invoice_number,omitempty"` // Optional on create, must match on update
	ClientID      string          `json:"client_id"`
	InvoiceDate   time.Time       `json:"invoice_date"`
	DueDate       time.Time       `json:"due_date"`
	Items         []models.Item   `json:"items"`
	SubTotal      decimal.Decimal `json:"sub_total"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      models.Currency `json:"currency"`
	Status        models.Status   `json:"status,omitempty"` // Defaults to pending on create
	Notes         string          `json:"notes,omitempty"`
}

// ListRequest selects and pages invoices for listing and reporting
type ListRequest struct {
	ClientID string
	Status   []models.Status // Selection for the custom bucket and the page
	From     time.Time       // Invoice date lower bound (inclusive), zero for none
	To       time.Time       // Invoice date upper bound (inclusive), zero for none
	Search   string          // Substring of the invoice number

	Page   int
	Limit  int
	SortBy string // created_at, invoice_date, due_date, total, invoice_number
	Desc   bool
}

// BucketTotals is the count and converted sum of one reporting bucket
type BucketTotals struct {
	Count int64           `json:"count"`
	Sum   decimal.Decimal `json:"sum"`
}

// Dashboard holds the per-status summary shown next to a listing
type Dashboard struct {
	Total   BucketTotals `json:"total"`
	Paid    BucketTotals `json:"paid"`
	Pending BucketTotals `json:"pending"`
	Overdue BucketTotals `json:"overdue"`
	Custom  BucketTotals `json:"custom"`

	Currency string    `json:"currency"` // Reporting currency of every Sum
	AsOf     time.Time `json:"as_of"`
}

// ListResult is one page of invoices plus the summary computed after the sweep
type ListResult struct {
	Invoices     []*models.Invoice `json:"invoices"`
	Page         int               `json:"page"`
	Limit        int               `json:"limit"`
	TotalPages   int               `json:"total_pages"`
	TotalRecords int64             `json:"total_records"`
	Summary      Dashboard         `json:"summary"`

	// Swept is the number of invoices moved to overdue before reading
	Swept int64 `json:"swept"`
	// SweepError is set when the sweep failed and the page reflects stored statuses
	SweepError string `json:"sweep_error,omitempty"`
}
