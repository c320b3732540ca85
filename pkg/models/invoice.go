package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the payment state of an invoice.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusUnpaid  Status = "unpaid"
	StatusOverdue Status = "overdue"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusUnpaid, StatusOverdue:
		return true
	}
	return false
}

// Currency describes the currency an invoice is billed in.
// Only Code takes part in conversion; the rest is display metadata.
type Currency struct {
	Code   string `json:"code"`
	Symbol string `json:"symbol,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Item is a single billed line.
type Item struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

type Invoice struct {
	// Identity
	ID            string `json:"id"`             // Assigned on create, immutable
	InvoiceNumber string `json:"invoice_number"` // INV-<integer>, unique among non-deleted invoices
	ClientID      string `json:"client_id"`      // Foreign reference, not owned here

	// Dates
	InvoiceDate time.Time `json:"invoice_date"`
	DueDate     time.Time `json:"due_date"`

	// Amounts in the invoice's own currency
	Items       []Item          `json:"items"`
	SubTotal    decimal.Decimal `json:"sub_total"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    Currency        `json:"currency"`

	// TotalAmount expressed in the reporting currency, recomputed on every write
	ConvertedTotalAmount decimal.Decimal `json:"converted_total_amount"`

	Status    Status `json:"status"`
	IsDeleted bool   `json:"is_deleted"`

	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOverdueAt reports whether the invoice is unpaid and past due at now.
func (inv *Invoice) IsOverdueAt(now time.Time) bool {
	return inv.Status != StatusPaid && inv.DueDate.Before(now)
}
