package cart

import (
	"context"
	"time"

	"commercetools-b2b/internal/domain"
)

// ActiveQuery selects the single active cart of an owner within a business unit / store scope.
type ActiveQuery struct {
	ProjectID       string
	CustomerID      string
	AnonymousID     string
	BusinessUnitKey string
	StoreKey        string
}

// Repository persists carts. Every write is conditional on the caller's version.
type Repository interface {
	Create(ctx context.Context, cart domain.Cart) (*domain.Cart, error)
	GetByID(ctx context.Context, projectID, id string) (*domain.Cart, error)
	FindActive(ctx context.Context, q ActiveQuery) (*domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart, expectedVersion int) (*domain.Cart, error)
	Delete(ctx context.Context, projectID, id string, expectedVersion int) error
	AssignCustomerToAnonymous(ctx context.Context, projectID, anonymousID, customerID string) (*domain.Cart, error)
	ListSubscriptionsByOrder(ctx context.Context, projectID, orderID string) ([]domain.Cart, error)
	ListDueSubscriptions(ctx context.Context, before time.Time, limit int) ([]domain.Cart, error)
}
