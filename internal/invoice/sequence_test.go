package invoice_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoices/internal/invoice"
	"invoices/internal/store/memory"
	"invoices/internal/store/storetest"
)

func TestSequence_AllocateFromEmptyStore(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seq := invoice.NewSequence(store, invoice.DefaultSequenceConfig())

	number, err := seq.Allocate(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "INV-1001", number)

	require.NoError(t, store.Insert(ctx, storetest.NewInvoice(number, "c", "10", testNow)))

	number, err = seq.Allocate(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "INV-1002", number)
}

func TestSequence_AllocateIgnoresForeignNumbers(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for _, n := range []string{"INV-0007", "INV-12a", "X-99999", "inv-5000", "INV-"} {
		require.NoError(t, store.Insert(ctx, storetest.NewInvoice(n, "c", "10", testNow)))
	}
	seq := invoice.NewSequence(store, invoice.DefaultSequenceConfig())

	number, err := seq.Allocate(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "INV-1001", number, "numbers below base do not lower the sequence")

	require.NoError(t, store.Insert(ctx, storetest.NewInvoice("INV-4000", "c", "10", testNow)))
	number, err = seq.Allocate(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "INV-4001", number)
}

func TestSequence_DeletedNumbersAreNotReissued(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	latest := storetest.NewInvoice("INV-1500", "c", "10", testNow)
	require.NoError(t, store.Insert(ctx, latest))
	require.NoError(t, store.SoftDelete(ctx, latest.ID, testNow))

	number, err := invoice.NewSequence(store, invoice.DefaultSequenceConfig()).Allocate(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "INV-1501", number)
}

func TestSequence_AllocateExplicitCandidate(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Insert(ctx, storetest.NewInvoice("INV-2000", "c", "10", testNow)))
	seq := invoice.NewSequence(store, invoice.DefaultSequenceConfig())

	number, err := seq.Allocate(ctx, " INV-3000 ")
	require.NoError(t, err)
	assert.Equal(t, "INV-3000", number)

	_, err = seq.Allocate(ctx, "INV-2000")
	assert.ErrorIs(t, err, invoice.ErrConflict)

	_, err = seq.Allocate(ctx, "2000")
	assert.ErrorIs(t, err, invoice.ErrValidation)

	var validationErr *invoice.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "invoice_number", validationErr.Field)
}

func TestSequence_CustomScheme(t *testing.T) {
	seq := invoice.NewSequence(memory.New(), invoice.SequenceConfig{Prefix: "BILL/", Base: 1})

	number, err := seq.Allocate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "BILL/1", number)

	n, ok := seq.Parse("BILL/42")
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		number string
		want   int64
		ok     bool
	}{
		{number: "INV-1001", want: 1001, ok: true},
		{number: "INV-0001", want: 1, ok: true},
		{number: "INV-", ok: false},
		{number: "INV-+12", ok: false},
		{number: "INV-1٢", ok: false},
		{number: "INV-99999999999999999999", ok: false},
		{number: "XINV-1", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			n, ok := invoice.ParseNumber("INV-", tt.number)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, n)
		})
	}
}
