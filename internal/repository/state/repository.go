package state

import (
	"context"

	"commercetools-b2b/internal/domain"
)

// Repository stores workflow state definitions. Keys are free-form per project.
type Repository interface {
	GetByKey(ctx context.Context, projectID string, key domain.StateKey) (*domain.State, error)
	Upsert(ctx context.Context, state domain.State) (*domain.State, error)
}
