package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoices/pkg/models"
	"invoices/pkg/services"
)

func TestParseDate(t *testing.T) {
	d, err := parseDate("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = parseDate("2024-03-01T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, 8, d.UTC().Hour())

	d, err = parseDate("  ")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = parseDate("01.03.2024")
	assert.Error(t, err)
}

func TestReadInvoiceInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoice.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"client_id": "acme",
		"invoice_date": "2024-02-01",
		"due_date": "2024-03-01",
		"items": [{"description": "Consulting", "quantity": 2, "unit_price": "50", "amount": "100"}],
		"sub_total": 100,
		"tax_amount": "19.00",
		"total_amount": "119.00",
		"currency": {"code": "EUR", "symbol": "€"},
		"status": "unpaid"
	}`), 0o644))

	input, err := readInvoiceInput(path)
	require.NoError(t, err)
	assert.Equal(t, "acme", input.ClientID)
	assert.Equal(t, "2024-03-01", input.DueDate.Format("2006-01-02"))
	assert.Equal(t, "119.00", input.TotalAmount.StringFixed(2))
	assert.Equal(t, "EUR", input.Currency.Code)
	assert.Equal(t, models.StatusUnpaid, input.Status)
	require.Len(t, input.Items, 1)
	assert.Equal(t, "2", input.Items[0].Quantity.String())

	_, err = readInvoiceInput(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "input file not found")
}

func newListFlagsCommand(args ...string) (*cobra.Command, error) {
	c := &cobra.Command{Use: "test"}
	addListFlags(c)
	return c, c.ParseFlags(args)
}

func TestListRequestFromFlags(t *testing.T) {
	c, err := newListFlagsCommand("--client", "acme", "--status", "paid,Unpaid", "--from", "2024-01-01", "--search", "10")
	require.NoError(t, err)

	req, err := listRequestFromFlags(c)
	require.NoError(t, err)
	assert.Equal(t, "acme", req.ClientID)
	assert.Equal(t, []models.Status{models.StatusPaid, models.StatusUnpaid}, req.Status)
	assert.Equal(t, 2024, req.From.Year())
	assert.True(t, req.To.IsZero())
	assert.Equal(t, "10", req.Search)

	c, err = newListFlagsCommand("--status", "cancelled")
	require.NoError(t, err)
	_, err = listRequestFromFlags(c)
	assert.ErrorContains(t, err, "invalid --status")

	c, err = newListFlagsCommand("--from", "2024-02-01", "--to", "2024-01-01")
	require.NoError(t, err)
	_, err = listRequestFromFlags(c)
	assert.Error(t, err)
}

func TestNextNumberCommand_MemoryStore(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("FX_PROVIDER", "static")
	t.Setenv("NUMBER_PREFIX", "BILL-")
	t.Setenv("NUMBER_BASE", "500")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"next-number"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "BILL-500\n", out.String())
}

func TestNewConverter_StaticRates(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("FX_PROVIDER", "static")
	t.Setenv("FX_STATIC_RATES", "EUR=1.10")

	a, err := newApp(t.Context())
	require.NoError(t, err)
	defer a.Close()

	in, err := readInvoiceInputFromString(t, `{
		"client_id": "acme", "invoice_date": "2024-02-01", "due_date": "2024-03-01",
		"total_amount": 10, "currency": {"code": "EUR"}
	}`)
	require.NoError(t, err)

	inv, err := a.engine.Create(t.Context(), in)
	require.NoError(t, err)
	assert.Equal(t, "11.00", inv.ConvertedTotalAmount.StringFixed(2))
	assert.Equal(t, "INV-1001", inv.InvoiceNumber)
}

func readInvoiceInputFromString(t *testing.T, body string) (services.InvoiceInput, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "invoice.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return readInvoiceInput(path)
}
