package store

import (
	"context"

	"commercetools-b2b/internal/domain"
)

type Repository interface {
	GetByKey(ctx context.Context, projectID, key string) (*domain.Store, error)
	Upsert(ctx context.Context, store domain.Store) (*domain.Store, error)
}
