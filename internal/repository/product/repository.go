package product

import (
	"context"

	"commercetools-b2b/internal/domain"
)

type Repository interface {
	ListByProject(ctx context.Context, projectID string) ([]domain.Product, error)
	GetByID(ctx context.Context, projectID, id string) (*domain.Product, error)
	GetBySKU(ctx context.Context, projectID, sku string) (*domain.Product, error)
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}
