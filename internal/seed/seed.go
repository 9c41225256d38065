package seed

import (
	"context"
	"fmt"
	"io"
	"log"

	"commercetools-b2b/internal/domain"
	burepo "commercetools-b2b/internal/repository/businessunit"
	productrepo "commercetools-b2b/internal/repository/product"
	staterepo "commercetools-b2b/internal/repository/state"
	storerepo "commercetools-b2b/internal/repository/store"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProjectKey is the project the seed data lives in.
const ProjectKey = "demo"

type productSeed struct {
	Key         string
	SKU         string
	Name        string
	Description string
	PriceCents  int64
	Currency    string
	// IntervalDays marks a subscription product.
	IntervalDays int
}

var products = []productSeed{
	{Key: "demo-shirt", SKU: "SKU-DEMO-TSHIRT", Name: "Demo T-Shirt", Description: "Soft cotton tee for demo purposes", PriceCents: 1999, Currency: "USD"},
	{Key: "demo-mug", SKU: "SKU-DEMO-MUG", Name: "Demo Mug", Description: "Ceramic mug with demo logo", PriceCents: 1299, Currency: "USD"},
	{Key: "demo-coffee", SKU: "SKU-DEMO-COFFEE", Name: "Office Coffee Beans", Description: "1kg of beans delivered every month", PriceCents: 2499, Currency: "USD", IntervalDays: 30},
	{Key: "demo-paper", SKU: "SKU-DEMO-PAPER", Name: "Printer Paper Box", Description: "Ten reams delivered every two weeks", PriceCents: 3999, Currency: "USD", IntervalDays: 14},
}

var stores = []domain.Store{
	{Key: "demo-store", Name: "Demo Store", DistributionChannels: []string{"demo-warehouse"}, Countries: []string{"US"}},
	{Key: "demo-prebuy", Name: "Demo Pre-Buy Store", IsPreBuy: true, DistributionChannels: []string{"demo-warehouse"}, Countries: []string{"US"}},
}

// Orders above 500 USD go through review.
const reviewRule = `[{"name":"large-orders","expression":{">":[{"var":"cart.totalPrice"},500]}}]`

var units = []domain.BusinessUnit{
	{
		Key:             "demo-company",
		Name:            "Demo Company",
		UnitType:        "Company",
		TopLevelUnitKey: "demo-company",
		StoreKeys:       []string{"demo-store", "demo-prebuy"},
		Custom:          domain.CustomFields{domain.FieldWorkflows: reviewRule},
	},
	{
		Key:             "demo-division",
		Name:            "Demo Purchasing Division",
		UnitType:        "Division",
		ParentUnitKey:   "demo-company",
		TopLevelUnitKey: "demo-company",
		StoreKeys:       []string{"demo-store"},
	},
}

var states = []domain.State{
	{Key: "pending-review", Type: "OrderState", Initial: true, Transitions: []domain.StateKey{"approved", "rejected"}},
	{Key: "approved", Type: "OrderState"},
	{Key: "rejected", Type: "OrderState"},
}

// Apply inserts basic seed data for manual testing. Every write is an upsert,
// so it can be re-run.
func Apply(ctx context.Context, pool *pgxpool.Pool, logger *log.Logger) error {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	projectID, err := ensureProject(ctx, pool, ProjectKey, "Demo Project")
	if err != nil {
		return fmt.Errorf("ensure project: %w", err)
	}

	productRepo := productrepo.NewPostgres(pool, logger)
	for _, p := range products {
		if err := upsertProduct(ctx, productRepo, projectID, p); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.Key, err)
		}
	}

	storeRepo := storerepo.NewPostgres(pool)
	for _, s := range stores {
		s.ProjectID = projectID
		if _, err := storeRepo.Upsert(ctx, s); err != nil {
			return fmt.Errorf("upsert store %s: %w", s.Key, err)
		}
	}

	unitRepo := burepo.NewPostgres(pool)
	for _, u := range units {
		u.ProjectID = projectID
		if err := u.Validate(); err != nil {
			return err
		}
		if _, err := unitRepo.Upsert(ctx, u); err != nil {
			return fmt.Errorf("upsert business unit %s: %w", u.Key, err)
		}
	}

	stateRepo := staterepo.NewPostgres(pool)
	for _, s := range states {
		s.ProjectID = projectID
		if _, err := stateRepo.Upsert(ctx, s); err != nil {
			return fmt.Errorf("upsert state %s: %w", s.Key, err)
		}
	}

	logger.Printf("seed: project=%s products=%d stores=%d units=%d states=%d", ProjectKey, len(products), len(stores), len(units), len(states))
	return nil
}

func ensureProject(ctx context.Context, pool *pgxpool.Pool, key, name string) (string, error) {
	const q = `
INSERT INTO projects (key, name)
VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET name = EXCLUDED.name
RETURNING id::text
`
	var id string
	if err := pool.QueryRow(ctx, q, key, name).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func upsertProduct(ctx context.Context, repo productrepo.Repository, projectID string, p productSeed) error {
	attrs := map[string]interface{}{}
	if p.IntervalDays > 0 {
		attrs["interval"] = p.IntervalDays
	}
	_, err := repo.Upsert(ctx, domain.Product{
		ProjectID:   projectID,
		Key:         p.Key,
		SKU:         p.SKU,
		Name:        p.Name,
		Description: p.Description,
		PriceCents:  p.PriceCents,
		Currency:    p.Currency,
		Attributes:  attrs,
	})
	return err
}
