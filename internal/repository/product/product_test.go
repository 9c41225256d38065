package product

import (
	"context"
	"errors"
	"testing"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/repository/pgtest"
)

func TestPostgres_ListAndGet(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Pool(t)
	projectID := pgtest.Project(t, pool)

	var pid string
	err := pool.QueryRow(ctx, `
		INSERT INTO products (project_id, key, sku, name, description, price_cents, currency, attributes)
		VALUES ($1, 'p1', 'SKU1', 'Prod 1', 'desc', 100, 'USD', '{"interval": 30}'::jsonb)
		RETURNING id::text
	`, projectID).Scan(&pid)
	if err != nil {
		t.Fatalf("insert product: %v", err)
	}

	repo := NewPostgres(pool, nil)

	list, err := repo.ListByProject(ctx, projectID)
	if err != nil {
		t.Fatalf("ListByProject: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 product, got %d", len(list))
	}

	got, err := repo.GetByID(ctx, projectID, pid)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ID != pid || got.ProjectID != projectID {
		t.Fatalf("unexpected product %+v", got)
	}

	bySKU, err := repo.GetBySKU(ctx, projectID, "SKU1")
	if err != nil {
		t.Fatalf("GetBySKU: %v", err)
	}
	if bySKU.ID != pid || bySKU.Attributes["interval"] != float64(30) {
		t.Fatalf("unexpected product by sku %+v", bySKU)
	}

	if _, err := repo.GetBySKU(ctx, projectID, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgres_Upsert(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Pool(t)
	projectID := pgtest.Project(t, pool)

	repo := NewPostgres(pool, nil)

	p, err := repo.Upsert(ctx, domain.Product{
		ProjectID:  projectID,
		Key:        "p1",
		SKU:        "SKU1",
		Name:       "Prod 1",
		PriceCents: 100,
		Currency:   "USD",
	})
	if err != nil {
		t.Fatalf("Upsert insert: %v", err)
	}
	if p.ID == "" {
		t.Fatalf("expected ID set")
	}

	updated, err := repo.Upsert(ctx, domain.Product{
		ProjectID:   projectID,
		Key:         "p1",
		SKU:         "SKU-NEW",
		Name:        "Prod 1 updated",
		Description: "new desc",
		PriceCents:  200,
		Currency:    "USD",
		Attributes:  map[string]interface{}{"images": []string{"https://example.com/1.jpg"}},
	})
	if err != nil {
		t.Fatalf("Upsert update: %v", err)
	}
	if updated.ID != p.ID {
		t.Fatalf("expected same ID after update")
	}
	if updated.SKU != "SKU-NEW" || updated.Description != "new desc" || updated.PriceCents != 200 {
		t.Fatalf("unexpected updated product %+v", updated)
	}
}
