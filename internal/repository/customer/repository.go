package customer

import (
	"context"

	"commercetools-b2b/internal/domain"
)

// Repository persists and fetches customers.
type Repository interface {
	Create(ctx context.Context, c domain.Customer) (*domain.Customer, error)
	// CreateWithCart creates the customer and claims the active anonymous cart
	// in one transaction. It fails with domain.ErrCartNotAssignable when no
	// active cart belongs to anonymousID.
	CreateWithCart(ctx context.Context, c domain.Customer, anonymousID string) (*domain.Customer, error)
	GetByEmail(ctx context.Context, projectID, email string) (*domain.Customer, error)
	GetByID(ctx context.Context, projectID, id string) (*domain.Customer, error)
	MarkEmailVerified(ctx context.Context, projectID, id string) (*domain.Customer, error)
	UpdatePassword(ctx context.Context, projectID, id, passwordHash string) error
}
