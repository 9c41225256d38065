package order

import (
	"context"

	"commercetools-b2b/internal/domain"
)

// Filter narrows order listings.
type Filter struct {
	ProjectID       string
	CustomerID      string
	BusinessUnitKey string
	Limit           int
	Offset          int
}

// Repository persists order snapshots. Only the state slots, return info and
// custom fields change after creation.
type Repository interface {
	// Create inserts the order. A second order for the same cart fails with
	// domain.ErrAlreadyExists.
	Create(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetByID(ctx context.Context, projectID, id string) (*domain.Order, error)
	GetByOrderNumber(ctx context.Context, projectID, orderNumber string) (*domain.Order, error)
	GetByCartID(ctx context.Context, projectID, cartID string) (*domain.Order, error)
	List(ctx context.Context, f Filter) ([]domain.Order, int, error)
	Save(ctx context.Context, order domain.Order, expectedVersion int) (*domain.Order, error)
}
