// Package postgrestest starts a throwaway PostgreSQL for integration tests.
package postgrestest

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"invoices/internal/postgres"
)

// Container wraps a migrated PostgreSQL container and a pool connected to it.
type Container struct {
	Container *tcpostgres.PostgresContainer
	DSN       string
	Pool      *pgxpool.Pool
}

// Start runs postgres:16-alpine, applies the embedded migrations and registers
// cleanup on t. It skips the test in -short mode or when Docker is unavailable.
func Start(t *testing.T) *Container {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("invoices"),
		tcpostgres.WithUsername("invoices"),
		tcpostgres.WithPassword("invoices"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	c := &Container{Container: pgContainer}
	t.Cleanup(func() { c.cleanup(t) })

	c.DSN, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	if err := postgres.RunMigrations(c.DSN); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	c.Pool, err = postgres.NewPool(ctx, postgres.Config{URL: c.DSN, MaxConns: 10})
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	return c
}

// Truncate empties the invoices table between subtests.
func (c *Container) Truncate(t *testing.T) {
	t.Helper()
	if _, err := c.Pool.Exec(context.Background(), `TRUNCATE invoices`); err != nil {
		t.Fatalf("failed to truncate invoices: %v", err)
	}
}

func (c *Container) cleanup(t *testing.T) {
	t.Helper()

	if c.Pool != nil {
		c.Pool.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Container.Terminate(ctx); err != nil {
		t.Logf("warning: failed to terminate postgres container: %v", err)
	}
}
