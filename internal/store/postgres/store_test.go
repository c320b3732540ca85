package postgres_test

import (
	"testing"

	"invoices/internal/invoice"
	"invoices/internal/postgres/postgrestest"
	"invoices/internal/store/postgres"
	"invoices/internal/store/storetest"
)

func TestStore(t *testing.T) {
	db := postgrestest.Start(t)

	storetest.Run(t, func(t *testing.T) invoice.Store {
		db.Truncate(t)
		return postgres.New(db.Pool)
	})
}
