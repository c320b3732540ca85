package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoices.log")
	t.Cleanup(func() { _ = Setup(DefaultConfig()) })

	require.NoError(t, Setup(LogConfig{Level: "debug", Format: "json", Output: path}))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	log := WithInvoice("lifecycle", "id-1", "INV-1001")
	log.Info().Msg("Invoice toggled")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "lifecycle", entry["component"])
	assert.Equal(t, "INV-1001", entry["invoice_number"])
	assert.Equal(t, "Invoice toggled", entry["message"])
}

func TestSetup_InvalidLevel(t *testing.T) {
	assert.Error(t, Setup(LogConfig{Level: "loud"}))
}
