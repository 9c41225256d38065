package token

import (
	"context"
	"time"
)

// Token is an opaque bearer credential. Exactly one of CustomerID and
// AnonymousID is set; Kind separates access, refresh and one-time tokens.
type Token struct {
	Token       string
	ProjectID   string
	CustomerID  *string
	AnonymousID *string
	Kind        string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

type Repository interface {
	Create(ctx context.Context, token Token) error
	Get(ctx context.Context, token string) (*Token, error)
	Delete(ctx context.Context, token string) error
	// DeleteExpired prunes tokens that expired before the cutoff and reports how many went.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
