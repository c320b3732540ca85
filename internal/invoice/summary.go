package invoice

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"invoices/pkg/models"
	"invoices/pkg/services"
)

// Bucket filters. Each derives a new Filter from base without touching it.

// PaidBucket selects paid invoices.
func PaidBucket(base Filter) Filter {
	return base.WithStatus(models.StatusPaid)
}

// PendingBucket selects pending invoices.
func PendingBucket(base Filter) Filter {
	return base.WithStatus(models.StatusPending)
}

// OverdueBucket selects invoices that are not paid and due before now,
// whatever status is stored.
func OverdueBucket(base Filter, now time.Time) Filter {
	return base.WithoutStatus(models.StatusPaid).WithDueBefore(now)
}

// Aggregator computes per-bucket counts and converted sums.
type Aggregator struct {
	store    Store
	currency string
}

// NewAggregator creates an Aggregator reporting sums in currency.
func NewAggregator(store Store, currency string) *Aggregator {
	return &Aggregator{store: store, currency: currency}
}

// Summarize returns the count and converted sum of invoices matching base.
func (a *Aggregator) Summarize(ctx context.Context, base Filter) (Totals, error) {
	totals, err := a.aggregate(ctx, "Summarize", []Filter{base})
	if err != nil {
		return Totals{}, err
	}
	return totals[0], nil
}

// Dashboard computes the total, paid, pending, overdue and custom buckets in a
// single store call so they all describe the same snapshot.
func (a *Aggregator) Dashboard(ctx context.Context, base, custom Filter, now time.Time) (services.Dashboard, error) {
	filters := []Filter{
		base,
		PaidBucket(base),
		PendingBucket(base),
		OverdueBucket(base, now),
		custom,
	}

	totals, err := a.aggregate(ctx, "Dashboard", filters)
	if err != nil {
		return services.Dashboard{}, err
	}

	return services.Dashboard{
		Total:    toBucket(totals[0]),
		Paid:     toBucket(totals[1]),
		Pending:  toBucket(totals[2]),
		Overdue:  toBucket(totals[3]),
		Custom:   toBucket(totals[4]),
		Currency: a.currency,
		AsOf:     now,
	}, nil
}

func (a *Aggregator) aggregate(ctx context.Context, op string, filters []Filter) ([]Totals, error) {
	totals, err := a.store.Aggregate(ctx, filters)
	if err != nil {
		return nil, wrapStore(op, err)
	}
	if len(totals) != len(filters) {
		return nil, fmt.Errorf("invoice: %s: store returned %d buckets for %d filters", op, len(totals), len(filters))
	}
	return totals, nil
}

func toBucket(t Totals) services.BucketTotals {
	sum := t.Sum
	if t.Count == 0 {
		sum = decimal.Zero
	}
	return services.BucketTotals{Count: t.Count, Sum: sum.Round(2)}
}
