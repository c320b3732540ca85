package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"invoices/internal/logger"
	"invoices/pkg/models"
)

// maxToggleAttempts bounds the compare-and-set loop in Toggle.
const maxToggleAttempts = 3

// NextStatus is the user toggle: paid becomes unpaid, everything else becomes paid.
// pending, unpaid and overdue are all "not paid" for this purpose.
func NextStatus(current models.Status) models.Status {
	if current == models.StatusPaid {
		return models.StatusUnpaid
	}
	return models.StatusPaid
}

// Lifecycle owns every status transition: the user toggle, the overdue sweep
// and the soft delete.
type Lifecycle struct {
	store Store
	log   zerolog.Logger
}

// NewLifecycle creates a Lifecycle over store.
func NewLifecycle(store Store) *Lifecycle {
	return &Lifecycle{
		store: store,
		log:   logger.WithComponent("lifecycle"),
	}
}

// Toggle flips the invoice between paid and not paid.
func (l *Lifecycle) Toggle(ctx context.Context, id string, now time.Time) (*models.Invoice, error) {
	const op = "ToggleStatus"

	for attempt := 1; ; attempt++ {
		current, err := l.load(ctx, op, id)
		if err != nil {
			return nil, err
		}

		next := NextStatus(current.Status)
		updated, err := l.store.CompareAndSetStatus(ctx, id, current.Status, next, now)
		switch {
		case err == nil:
			log := logger.WithInvoice("lifecycle", id, updated.InvoiceNumber)
			log.Info().
				Str("from", string(current.Status)).
				Str("to", string(next)).
				Msg("Invoice status toggled")
			return updated, nil
		case errors.Is(err, ErrStatusChanged) && attempt < maxToggleAttempts:
			l.log.Debug().
				Str("id", id).
				Int("attempt", attempt).
				Msg("Status changed concurrently, retrying toggle")
			continue
		case errors.Is(err, ErrStatusChanged):
			l.log.Warn().
				Str("id", id).
				Int("attempts", attempt).
				Msg("Giving up toggle after concurrent status changes")
			return nil, newError(ErrBusy, op, fmt.Sprintf("id %q changed %d times", id, attempt), err)
		case errors.Is(err, ErrNotFound):
			return nil, NotFound(op, id)
		default:
			return nil, wrapStore(op, err)
		}
	}
}

// Sweep moves every unpaid, non-deleted invoice due before now to overdue.
// Invoices already overdue are left alone and nothing is ever moved back, so
// running it twice at the same instant changes nothing the second time.
func (l *Lifecycle) Sweep(ctx context.Context, now time.Time) (int64, error) {
	const op = "Sweep"

	n, err := l.store.MarkOverdue(ctx, now)
	if err != nil {
		l.log.Error().Err(err).Time("now", now).Msg("Overdue sweep failed")
		return 0, wrapStore(op, err)
	}

	l.log.Debug().Int64("affected", n).Time("now", now).Msg("Overdue sweep completed")
	return n, nil
}

// Delete soft-deletes the invoice. There is no way back.
func (l *Lifecycle) Delete(ctx context.Context, id string, now time.Time) error {
	const op = "Delete"

	err := l.store.SoftDelete(ctx, id, now)
	switch {
	case err == nil:
		l.log.Info().Str("id", id).Msg("Invoice deleted")
		return nil
	case errors.Is(err, ErrAlreadyDeleted):
		return newError(ErrAlreadyDeleted, op, "id "+id, nil)
	case errors.Is(err, ErrNotFound):
		return NotFound(op, id)
	default:
		return wrapStore(op, err)
	}
}

// load fetches a live invoice, treating deleted rows as missing.
func (l *Lifecycle) load(ctx context.Context, op, id string) (*models.Invoice, error) {
	inv, err := l.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, NotFound(op, id)
	}
	if err != nil {
		return nil, wrapStore(op, err)
	}
	if inv.IsDeleted {
		return nil, NotFound(op, id)
	}
	return inv, nil
}
