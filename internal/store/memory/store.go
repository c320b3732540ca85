// Package memory provides an in-process invoice.Store.
//
// It enforces the same unique-number constraint as the Postgres store and is
// used for tests and for running the CLI without a database (STORE_DRIVER=memory).
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"invoices/internal/invoice"
	"invoices/pkg/models"
)

// Store keeps invoices in a map guarded by a RWMutex.
type Store struct {
	mu       sync.RWMutex
	invoices map[string]*models.Invoice
	numbers  map[string]string // live invoice number -> id

	// failSweep, when set, is returned by MarkOverdue.
	failSweep error
}

var _ invoice.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		invoices: make(map[string]*models.Invoice),
		numbers:  make(map[string]string),
	}
}

// FailSweep makes subsequent MarkOverdue calls return err. Pass nil to reset.
func (s *Store) FailSweep(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSweep = err
}

// Get returns a copy of the invoice with id.
func (s *Store) Get(_ context.Context, id string) (*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[id]
	if !ok {
		return nil, invoice.ErrNotFound
	}
	return clone(inv), nil
}

// NumberTaken reports whether a live invoice holds number.
func (s *Store) NumberTaken(_ context.Context, number string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.numbers[number]
	return ok, nil
}

// LatestNumber scans every invoice number, deleted ones included.
func (s *Store) LatestNumber(_ context.Context, prefix string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest int64
		found  bool
	)
	for _, inv := range s.invoices {
		n, ok := invoice.ParseNumber(prefix, inv.InvoiceNumber)
		if !ok {
			continue
		}
		if !found || n > latest {
			latest = n
			found = true
		}
	}
	return latest, found, nil
}

// Insert stores a copy of inv, rejecting a number held by a live invoice.
func (s *Store) Insert(_ context.Context, inv *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.numbers[inv.InvoiceNumber]; taken {
		return invoice.ErrNumberTaken
	}
	s.invoices[inv.ID] = clone(inv)
	s.numbers[inv.InvoiceNumber] = inv.ID
	return nil
}

// Update overwrites a live invoice. The stored number and creation time are kept.
func (s *Store) Update(_ context.Context, inv *models.Invoice) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.invoices[inv.ID]
	if !ok || current.IsDeleted {
		return nil, invoice.ErrNotFound
	}
	updated := clone(inv)
	updated.InvoiceNumber = current.InvoiceNumber
	updated.CreatedAt = current.CreatedAt
	updated.IsDeleted = false
	if updated.Status == "" {
		updated.Status = current.Status
	}
	s.invoices[inv.ID] = updated
	return clone(updated), nil
}

// CompareAndSetStatus moves a live invoice from one status to another.
func (s *Store) CompareAndSetStatus(_ context.Context, id string, from, to models.Status, at time.Time) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok || inv.IsDeleted {
		return nil, invoice.ErrNotFound
	}
	if inv.Status != from {
		return nil, invoice.ErrStatusChanged
	}
	inv.Status = to
	inv.UpdatedAt = at
	return clone(inv), nil
}

// SoftDelete flags the invoice and frees its number for explicit reuse.
func (s *Store) SoftDelete(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return invoice.ErrNotFound
	}
	if inv.IsDeleted {
		return invoice.ErrAlreadyDeleted
	}
	inv.IsDeleted = true
	inv.UpdatedAt = at
	if s.numbers[inv.InvoiceNumber] == id {
		delete(s.numbers, inv.InvoiceNumber)
	}
	return nil
}

// MarkOverdue moves every live, non-paid invoice due before now to overdue.
// Invoices already overdue are not counted.
func (s *Store) MarkOverdue(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failSweep != nil {
		return 0, s.failSweep
	}

	var n int64
	for _, inv := range s.invoices {
		if inv.IsDeleted || inv.Status == models.StatusOverdue || !inv.IsOverdueAt(now) {
			continue
		}
		inv.Status = models.StatusOverdue
		inv.UpdatedAt = now
		n++
	}
	return n, nil
}

// Aggregate evaluates every filter under one read lock.
func (s *Store) Aggregate(_ context.Context, filters []invoice.Filter) ([]invoice.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make([]invoice.Totals, len(filters))
	for i := range totals {
		totals[i].Sum = decimal.Zero
	}
	for _, inv := range s.invoices {
		for i, f := range filters {
			if f.Matches(inv) {
				totals[i].Count++
				totals[i].Sum = totals[i].Sum.Add(inv.ConvertedTotalAmount)
			}
		}
	}
	return totals, nil
}

// Page sorts matching invoices and slices out one page.
func (s *Store) Page(_ context.Context, filter invoice.Filter, opts invoice.PageOptions) (*invoice.Page, error) {
	opts = opts.Normalize()

	s.mu.RLock()
	matched := make([]*models.Invoice, 0)
	for _, inv := range s.invoices {
		if filter.Matches(inv) {
			matched = append(matched, clone(inv))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		c := compare(matched[i], matched[j], opts.SortBy)
		if c == 0 {
			c = strings.Compare(matched[i].ID, matched[j].ID)
		}
		if opts.Desc {
			return c > 0
		}
		return c < 0
	})

	total := int64(len(matched))
	start := opts.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + opts.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return invoice.NewPage(matched[start:end], opts, total), nil
}

func compare(a, b *models.Invoice, field string) int {
	switch field {
	case invoice.SortInvoiceDate:
		return a.InvoiceDate.Compare(b.InvoiceDate)
	case invoice.SortDueDate:
		return a.DueDate.Compare(b.DueDate)
	case invoice.SortTotal:
		return a.ConvertedTotalAmount.Cmp(b.ConvertedTotalAmount)
	case invoice.SortInvoiceNumber:
		return strings.Compare(a.InvoiceNumber, b.InvoiceNumber)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func clone(inv *models.Invoice) *models.Invoice {
	c := *inv
	if inv.Items != nil {
		c.Items = append([]models.Item(nil), inv.Items...)
	}
	return &c
}
