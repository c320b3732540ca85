package invoice

import (
	"strings"
	"time"

	"invoices/pkg/models"
)

// Filter selects non-deleted invoices. Deleted rows never match.
//
// Filters are values: every With* method returns a new Filter and leaves the
// receiver untouched, so bucket filters can be derived from one base filter
// in any order.
type Filter struct {
	ClientID string

	// Statuses restricts to these statuses. nil means any status; an empty
	// non-nil slice matches nothing.
	Statuses []models.Status

	// ExcludedStatuses removes these statuses.
	ExcludedStatuses []models.Status

	// DueBefore keeps invoices with due_date strictly before it. Zero means no bound.
	DueBefore time.Time

	// InvoiceFrom and InvoiceTo bound invoice_date inclusively. Zero means no bound.
	InvoiceFrom time.Time
	InvoiceTo   time.Time

	// NumberContains keeps invoices whose number contains it (case-insensitive).
	NumberContains string
}

// WithStatus narrows the filter to statuses. When the filter already restricts
// statuses the result is the intersection.
func (f Filter) WithStatus(statuses ...models.Status) Filter {
	if f.Statuses == nil {
		f.Statuses = append([]models.Status{}, statuses...)
		return f
	}
	kept := make([]models.Status, 0, len(f.Statuses))
	for _, s := range f.Statuses {
		if containsStatus(statuses, s) {
			kept = append(kept, s)
		}
	}
	f.Statuses = kept
	return f
}

// WithoutStatus excludes statuses in addition to any already excluded.
func (f Filter) WithoutStatus(statuses ...models.Status) Filter {
	excluded := make([]models.Status, 0, len(f.ExcludedStatuses)+len(statuses))
	excluded = append(excluded, f.ExcludedStatuses...)
	excluded = append(excluded, statuses...)
	f.ExcludedStatuses = excluded
	return f
}

// WithDueBefore keeps invoices due strictly before t, tightening an existing bound.
func (f Filter) WithDueBefore(t time.Time) Filter {
	if f.DueBefore.IsZero() || t.Before(f.DueBefore) {
		f.DueBefore = t
	}
	return f
}

// Matches evaluates the filter against a single invoice.
func (f Filter) Matches(inv *models.Invoice) bool {
	if inv.IsDeleted {
		return false
	}
	if f.ClientID != "" && inv.ClientID != f.ClientID {
		return false
	}
	if f.Statuses != nil && !containsStatus(f.Statuses, inv.Status) {
		return false
	}
	if containsStatus(f.ExcludedStatuses, inv.Status) {
		return false
	}
	if !f.DueBefore.IsZero() && !inv.DueDate.Before(f.DueBefore) {
		return false
	}
	if !f.InvoiceFrom.IsZero() && inv.InvoiceDate.Before(f.InvoiceFrom) {
		return false
	}
	if !f.InvoiceTo.IsZero() && inv.InvoiceDate.After(f.InvoiceTo) {
		return false
	}
	if f.NumberContains != "" &&
		!strings.Contains(strings.ToLower(inv.InvoiceNumber), strings.ToLower(f.NumberContains)) {
		return false
	}
	return true
}

func containsStatus(statuses []models.Status, s models.Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}
