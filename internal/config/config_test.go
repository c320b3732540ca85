package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, "USD", cfg.ReportingCurrency)
	assert.Equal(t, FXHTTP, cfg.FXProvider)
	assert.Equal(t, 5*time.Second, cfg.FXTimeout)
	assert.Equal(t, "INV-", cfg.NumberPrefix)
	assert.Equal(t, int64(1001), cfg.NumberBase)
	assert.Equal(t, time.Minute, cfg.SweepInterval)

	engine := cfg.EngineConfig()
	assert.Equal(t, "INV-", engine.Sequence.Prefix)
	assert.Equal(t, int64(1001), engine.Sequence.Base)
	assert.Equal(t, "USD", engine.ReportingCurrency)

	gateway := cfg.GatewayConfig()
	assert.Equal(t, "USD", gateway.Target)
	assert.Equal(t, 5*time.Minute, gateway.CacheTTL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/invoices?sslmode=disable")
	t.Setenv("DB_MAX_CONNS", "4")
	t.Setenv("REPORTING_CURRENCY", "eur")
	t.Setenv("FX_PROVIDER", "static")
	t.Setenv("FX_STATIC_RATES", "USD=0.92")
	t.Setenv("NUMBER_PREFIX", "BILL-")
	t.Setenv("NUMBER_BASE", "1")
	t.Setenv("SWEEP_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "EUR", cfg.ReportingCurrency)
	assert.Equal(t, FXStatic, cfg.FXProvider)
	assert.Equal(t, int32(4), cfg.PostgresConfig().MaxConns)
	assert.Equal(t, "BILL-", cfg.EngineConfig().Sequence.Prefix)
	assert.Equal(t, int64(1), cfg.EngineConfig().Sequence.Base)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "postgres without url", env: map[string]string{"STORE_DRIVER": "postgres", "DATABASE_URL": ""}},
		{name: "unknown driver", env: map[string]string{"STORE_DRIVER": "sqlite"}},
		{name: "unknown provider", env: map[string]string{"STORE_DRIVER": "memory", "FX_PROVIDER": "ecb"}},
		{name: "bad duration", env: map[string]string{"STORE_DRIVER": "memory", "FX_TIMEOUT": "soon"}},
		{name: "bad integer", env: map[string]string{"STORE_DRIVER": "memory", "NUMBER_BASE": "ten"}},
		{name: "zero base", env: map[string]string{"STORE_DRIVER": "memory", "NUMBER_BASE": "0"}},
		{name: "long currency", env: map[string]string{"STORE_DRIVER": "memory", "REPORTING_CURRENCY": "EURO"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
