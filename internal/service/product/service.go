package product

import (
	"context"
	"strings"

	"commercetools-b2b/internal/domain"
	productrepo "commercetools-b2b/internal/repository/product"
	"github.com/samber/lo"
)

// Service exposes the product catalogue buyers add line items from.
type Service struct {
	repo productrepo.Repository
}

func New(repo productrepo.Repository) *Service {
	return &Service{repo: repo}
}

type ListInput struct {
	Limit  int
	Cursor string
	// SubscriptionsOnly keeps products that carry a recurrence interval.
	SubscriptionsOnly bool
	Interval          func(domain.Product) (int, bool)
}

// List pages through the project's products in store order.
func (s *Service) List(ctx context.Context, projectID string, in ListInput) (domain.Page[domain.Product], error) {
	offset, err := domain.ParseCursor(in.Cursor)
	if err != nil {
		return domain.Page[domain.Product]{}, err
	}
	limit := domain.NormalizeLimit(in.Limit)
	all, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return domain.Page[domain.Product]{}, err
	}
	if in.SubscriptionsOnly && in.Interval != nil {
		all = lo.Filter(all, func(p domain.Product, _ int) bool {
			_, ok := in.Interval(p)
			return ok
		})
	}
	total := len(all)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	return domain.NewPage(all[offset:end], limit, offset, total), nil
}

func (s *Service) Get(ctx context.Context, projectID, id string) (*domain.Product, error) {
	return s.repo.GetByID(ctx, projectID, id)
}

func (s *Service) GetBySKU(ctx context.Context, projectID, sku string) (*domain.Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, domain.NewValidation("sku", "sku required")
	}
	return s.repo.GetBySKU(ctx, projectID, sku)
}
