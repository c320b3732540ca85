package invoice_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoices/internal/invoice"
	"invoices/internal/store/memory"
	"invoices/pkg/models"
	"invoices/pkg/services"
)

func TestNextStatus(t *testing.T) {
	tests := map[models.Status]models.Status{
		models.StatusPaid:    models.StatusUnpaid,
		models.StatusUnpaid:  models.StatusPaid,
		models.StatusPending: models.StatusPaid,
		models.StatusOverdue: models.StatusPaid,
	}
	for from, want := range tests {
		assert.Equal(t, want, invoice.NextStatus(from), "from %s", from)
	}
}

func TestToggle_IsAnInvolution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	in := input("client-a", "100", 10)
	in.Status = models.StatusUnpaid
	inv := f.create(t, in)

	once, err := f.engine.ToggleStatus(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, once.Status)

	twice, err := f.engine.ToggleStatus(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnpaid, twice.Status)
}

func TestToggle_PendingCollapsesToUnpaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv := f.create(t, input("client-a", "100", 10))
	require.Equal(t, models.StatusPending, inv.Status)

	_, err := f.engine.ToggleStatus(ctx, inv.ID)
	require.NoError(t, err)
	back, err := f.engine.ToggleStatus(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnpaid, back.Status, "pending is not reachable through toggle")
}

func TestToggle_OverdueBecomesPaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv := f.create(t, input("client-a", "100", -1))

	_, err := f.engine.Sweep(ctx)
	require.NoError(t, err)

	toggled, err := f.engine.ToggleStatus(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, toggled.Status)
}

func TestToggle_MissingOrDeleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.engine.ToggleStatus(ctx, "no-such-id")
	assert.ErrorIs(t, err, invoice.ErrNotFound)

	inv := f.create(t, input("client-a", "100", 10))
	require.NoError(t, f.engine.Delete(ctx, inv.ID))

	_, err = f.engine.ToggleStatus(ctx, inv.ID)
	assert.ErrorIs(t, err, invoice.ErrNotFound)
}

// racingStore changes the status underneath the first compare-and-set.
type racingStore struct {
	*memory.Store
	once sync.Once
}

func (s *racingStore) CompareAndSetStatus(ctx context.Context, id string, from, to models.Status, at time.Time) (*models.Invoice, error) {
	raced := false
	s.once.Do(func() {
		_, err := s.Store.CompareAndSetStatus(ctx, id, from, models.StatusOverdue, at)
		raced = err == nil
	})
	if raced {
		return nil, invoice.ErrStatusChanged
	}
	return s.Store.CompareAndSetStatus(ctx, id, from, to, at)
}

func TestToggle_RetriesOnConcurrentChange(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	f := newFixtureWithStore(t, mem, &racingStore{Store: mem})

	in := input("client-a", "100", 10)
	in.Status = models.StatusUnpaid
	inv := f.create(t, in)

	toggled, err := f.engine.ToggleStatus(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, toggled.Status, "toggle re-reads the raced overdue status")
}

// contendedStore reports a concurrent status change on every compare-and-set.
type contendedStore struct {
	*memory.Store
	calls int
}

func (s *contendedStore) CompareAndSetStatus(context.Context, string, models.Status, models.Status, time.Time) (*models.Invoice, error) {
	s.calls++
	return nil, invoice.ErrStatusChanged
}

func TestToggle_GivesUpWithBusyKind(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	contended := &contendedStore{Store: mem}
	f := newFixtureWithStore(t, mem, contended)
	inv := f.create(t, input("client-a", "100", 10))

	_, err := f.engine.ToggleStatus(ctx, inv.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, invoice.ErrBusy)
	assert.ErrorIs(t, err, invoice.ErrStatusChanged)

	var engineErr *invoice.Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, invoice.ErrBusy, engineErr.Kind)
	assert.Equal(t, "ToggleStatus", engineErr.Op)
	assert.Equal(t, 3, contended.calls)

	got, err := f.engine.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestSweep_Scenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a := f.create(t, input("client-a", "100", -1))
	b := f.create(t, input("client-a", "200", 1))
	paid := input("client-a", "300", -1)
	paid.Status = models.StatusPaid
	c := f.create(t, paid)

	result, err := f.engine.List(ctx, services.ListRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Swept)
	assert.Empty(t, result.SweepError)

	for id, want := range map[string]models.Status{
		a.ID: models.StatusOverdue,
		b.ID: models.StatusPending,
		c.ID: models.StatusPaid,
	} {
		got, err := f.engine.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status)
	}

	assert.Equal(t, int64(1), result.Summary.Pending.Count)
	assert.Equal(t, int64(1), result.Summary.Overdue.Count)
	assert.Equal(t, int64(1), result.Summary.Paid.Count)
	assert.Equal(t, int64(3), result.Summary.Total.Count)
	assert.Equal(t, "100.00", result.Summary.Overdue.Sum.StringFixed(2))
	assert.Equal(t, "300.00", result.Summary.Paid.Sum.StringFixed(2))
}

func TestSweep_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.create(t, input("client-a", "100", -1))
	f.create(t, input("client-a", "100", -2))
	f.create(t, input("client-a", "100", 5))

	n, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	page, err := f.store.Page(ctx, invoice.Filter{}.WithStatus(models.StatusOverdue), invoice.PageOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.TotalRecords)
}

func TestSweep_FollowsTheClock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv := f.create(t, input("client-a", "100", 3))

	n, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	f.clock.Set(testNow.AddDate(0, 0, 4))
	n, err = f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := f.engine.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOverdue, got.Status)
}

func TestSweep_DoesNotRevertEditedDueDate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv := f.create(t, input("client-a", "100", -1))
	_, err := f.engine.Sweep(ctx)
	require.NoError(t, err)

	in := input("client-a", "100", 30)
	_, err = f.engine.Update(ctx, inv.ID, in)
	require.NoError(t, err)

	_, err = f.engine.Sweep(ctx)
	require.NoError(t, err)
	got, err := f.engine.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOverdue, got.Status)
}

// sweepingStore runs the overdue sweep right before an update is written.
type sweepingStore struct {
	*memory.Store
	at time.Time
}

func (s *sweepingStore) Update(ctx context.Context, inv *models.Invoice) (*models.Invoice, error) {
	if _, err := s.Store.MarkOverdue(ctx, s.at); err != nil {
		return nil, err
	}
	return s.Store.Update(ctx, inv)
}

func TestUpdate_KeepsStatusSetBySweepInBetween(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	f := newFixtureWithStore(t, mem, &sweepingStore{Store: mem, at: testNow})

	inv := f.create(t, input("client-a", "100", -1))
	require.Equal(t, models.StatusPending, inv.Status)

	in := input("client-a", "150", -1)
	in.Notes = "amended"
	updated, err := f.engine.Update(ctx, inv.ID, in)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOverdue, updated.Status)
	assert.Equal(t, "amended", updated.Notes)

	got, err := f.engine.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOverdue, got.Status)
	assert.Equal(t, "150.00", got.TotalAmount.StringFixed(2))

	// an explicit status still wins
	in.Status = models.StatusPaid
	updated, err = f.engine.Update(ctx, inv.ID, in)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, updated.Status)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv := f.create(t, input("client-a", "100", 10))

	require.NoError(t, f.engine.Delete(ctx, inv.ID))

	err := f.engine.Delete(ctx, inv.ID)
	assert.ErrorIs(t, err, invoice.ErrAlreadyDeleted)

	err = f.engine.Delete(ctx, "missing")
	assert.ErrorIs(t, err, invoice.ErrNotFound)

	_, err = f.engine.Get(ctx, inv.ID)
	assert.ErrorIs(t, err, invoice.ErrNotFound)

	var engineErr *invoice.Error
	require.True(t, errors.As(err, &engineErr))
	assert.Equal(t, "Get", engineErr.Op)
}
