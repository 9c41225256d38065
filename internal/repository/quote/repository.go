package quote

import (
	"context"

	"commercetools-b2b/internal/domain"
)

// Repository persists quote requests and their 1:1 quotes. The two carry
// independent version counters.
type Repository interface {
	CreateRequest(ctx context.Context, qr domain.QuoteRequest) (*domain.QuoteRequest, error)
	GetRequest(ctx context.Context, projectID, id string) (*domain.QuoteRequest, error)
	SaveRequest(ctx context.Context, qr domain.QuoteRequest, expectedVersion int) (*domain.QuoteRequest, error)
	QueryRequests(ctx context.Context, projectID string, f domain.QuoteFilter) ([]domain.QuoteRequest, int, error)

	CreateQuote(ctx context.Context, q domain.Quote) (*domain.Quote, error)
	GetQuote(ctx context.Context, projectID, id string) (*domain.Quote, error)
	GetQuoteByRequest(ctx context.Context, projectID, quoteRequestID string) (*domain.Quote, error)
	SaveQuote(ctx context.Context, q domain.Quote, expectedVersion int) (*domain.Quote, error)
	QueryQuotes(ctx context.Context, projectID string, f domain.QuoteFilter) ([]domain.Quote, int, error)
}
