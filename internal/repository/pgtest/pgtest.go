// Package pgtest provides a migrated Postgres pool for repository integration tests.
package pgtest

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"commercetools-b2b/internal/migrate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Pool returns a migrated pool. TEST_DB_DSN wins when set; otherwise a
// throwaway Postgres container is started. The test is skipped when neither
// is available.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		if testing.Short() {
			t.Skip("integration test skipped in -short mode")
		}
		var err error
		dsn, err = startContainer(ctx, t)
		if err != nil {
			t.Skipf("postgres unavailable: %v", err)
		}
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("connect db: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("ping db: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := migrate.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	Reset(t, pool)
	return pool
}

// Reset truncates every table.
func Reset(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	const q = `TRUNCATE quotes, quote_requests, orders, cart_lines, carts, products, states, business_units, stores, tokens, customers, projects CASCADE`
	if _, err := pool.Exec(context.Background(), q); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

// Project inserts a project and returns its id.
func Project(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()
	var id string
	err := pool.QueryRow(context.Background(),
		`INSERT INTO projects (key, name) VALUES (gen_random_uuid()::text, 'Test') RETURNING id::text`).Scan(&id)
	if err != nil {
		t.Fatalf("insert project: %v", err)
	}
	return id
}

func startContainer(ctx context.Context, t *testing.T) (dsn string, err error) {
	t.Helper()
	defer func() {
		// testcontainers panics when no docker daemon is reachable
		if r := recover(); r != nil {
			err = errNoDocker
		}
	}()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("commerce_test"),
		postgres.WithUsername("commerce"),
		postgres.WithPassword("commerce"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return "", err
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})
	return container.ConnectionString(ctx, "sslmode=disable")
}

var errNoDocker = errors.New("docker daemon not reachable")
