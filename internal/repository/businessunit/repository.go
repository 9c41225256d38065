package businessunit

import (
	"context"

	"commercetools-b2b/internal/domain"
)

// Repository reads and writes business units.
type Repository interface {
	GetByKey(ctx context.Context, projectID, key string) (*domain.BusinessUnit, error)
	// ListByAssociate returns the units the customer is an associate of, oldest first.
	ListByAssociate(ctx context.Context, projectID, customerID string) ([]domain.BusinessUnit, error)
	Upsert(ctx context.Context, unit domain.BusinessUnit) (*domain.BusinessUnit, error)
}
