package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/mapper"
	cartrepo "commercetools-b2b/internal/repository/cart"
	productrepo "commercetools-b2b/internal/repository/product"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type cartRepo interface {
	Create(ctx context.Context, cart domain.Cart) (*domain.Cart, error)
	GetByID(ctx context.Context, projectID, id string) (*domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart, expectedVersion int) (*domain.Cart, error)
	ListSubscriptionsByOrder(ctx context.Context, projectID, orderID string) ([]domain.Cart, error)
}

type productRepo interface {
	GetBySKU(ctx context.Context, projectID, sku string) (*domain.Product, error)
}

// Scheduler turns the subscription lines of a placed order into the carts of
// the next delivery cycle, one cart per subscribed SKU.
type Scheduler struct {
	carts    cartRepo
	products productRepo
	mapper   mapper.ProductMapper
	logger   *log.Logger
	now      func() time.Time
}

func NewScheduler(carts cartrepo.Repository, products productrepo.Repository, m mapper.ProductMapper, logger *log.Logger) *Scheduler {
	if m == nil {
		m = mapper.DefaultProduct{}
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Scheduler{carts: carts, products: products, mapper: m, logger: logger, now: time.Now}
}

// MaterializeNextCycle creates a subscription cart for every distinct SKU
// among the order's subscription lines. SKUs that already have a complete
// cart linked to the order are skipped and half-built ones are finished, so
// the call can be repeated after a partial failure. Steps are separate
// versioned writes; the first failing step is returned.
func (s *Scheduler) MaterializeNextCycle(ctx context.Context, order domain.Order, distributionChannel string) ([]domain.Cart, error) {
	lines := lo.Filter(order.LineItems, func(l domain.LineItem, _ int) bool { return l.IsSubscription() })
	if len(lines) == 0 {
		return nil, nil
	}
	groups := lo.GroupBy(lines, func(l domain.LineItem) string { return l.SKU })
	skus := lo.Uniq(lo.Map(lines, func(l domain.LineItem, _ int) string { return l.SKU }))

	linked, err := s.carts.ListSubscriptionsByOrder(ctx, order.ProjectID, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list subscription carts of order %s: %w", order.ID, err)
	}
	bySKU := lo.KeyBy(linked, func(c domain.Cart) string { return c.Custom.String(domain.FieldSubscriptionSKU) })

	origin, err := s.originCart(ctx, order)
	if err != nil {
		return nil, err
	}

	var created []domain.Cart
	for _, sku := range skus {
		existing, ok := bySKU[sku]
		if ok && existing.Custom.Bool(domain.FieldSubscriptionActive) {
			continue
		}
		var partial *domain.Cart
		if ok {
			partial = &existing
		}
		cart, err := s.materialize(ctx, order, origin, sku, groups[sku], distributionChannel, partial)
		if err != nil {
			return created, fmt.Errorf("subscription sku %s: %w", sku, err)
		}
		s.logger.Printf("subscription: materialized cart=%s order=%s sku=%s next=%s",
			cart.ID, order.ID, sku, cart.Custom.String(domain.FieldNextDeliveryDate))
		created = append(created, *cart)
	}
	return created, nil
}

// originCart loads the cart the order was placed from, or rebuilds its
// commerce record from the order when the cart is gone.
func (s *Scheduler) originCart(ctx context.Context, order domain.Order) (domain.Cart, error) {
	if order.CartID != "" {
		cart, err := s.carts.GetByID(ctx, order.ProjectID, order.CartID)
		if err == nil {
			return *cart, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Cart{}, fmt.Errorf("load origin cart %s: %w", order.CartID, err)
		}
	}
	return domain.Cart{
		ProjectID:             order.ProjectID,
		CustomerID:            order.CustomerID,
		CustomerEmail:         order.CustomerEmail,
		BusinessUnitKey:       order.BusinessUnitKey,
		StoreKey:              order.StoreKey,
		Currency:              order.Currency,
		Country:               order.Country,
		Locale:                order.Locale,
		Origin:                order.Origin,
		InventoryMode:         order.InventoryMode,
		ItemShippingAddresses: order.ItemShippingAddresses,
		ShippingAddress:       order.ShippingAddress,
		BillingAddress:        order.BillingAddress,
		Custom:                order.Custom,
	}, nil
}

func (s *Scheduler) materialize(ctx context.Context, order domain.Order, origin domain.Cart, sku string, group []domain.LineItem, channel string, partial *domain.Cart) (*domain.Cart, error) {
	product, err := s.products.GetBySKU(ctx, order.ProjectID, sku)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	now := s.now().UTC()
	interval, hasInterval := s.mapper.SubscriptionInterval(*product)
	next := now.AddDate(0, 0, -1)
	if hasInterval {
		next = now.AddDate(0, 0, interval)
	}

	cart := partial
	if cart == nil {
		cart, err = s.carts.Create(ctx, cloneForCycle(origin, order, product, sku, interval, now))
		if err != nil {
			return nil, fmt.Errorf("clone cart: %w", err)
		}
	}

	actions := make([]domain.CartAction, 0, len(cart.LineItems)+len(group)+3)
	for _, l := range cart.LineItems {
		actions = append(actions, domain.RemoveLineItem{LineItemID: l.ID})
	}
	for _, l := range group {
		actions = append(actions, domain.AddLineItem{
			Product:             *product,
			Quantity:            l.Quantity,
			DistributionChannel: channel,
			Custom:              l.Custom.Clone(),
		})
	}
	actions = append(actions,
		domain.SetCustomField{Field: domain.FieldNextDeliveryDate, Value: next.Format(time.RFC3339)},
		domain.SetCustomField{Field: domain.FieldSubscriptionActive, Value: true},
	)
	expected := cart.Version
	if err := cart.Apply(now, actions...); err != nil {
		return nil, err
	}
	saved, err := s.carts.Save(ctx, *cart, expected)
	if err != nil {
		return nil, fmt.Errorf("add lines to cart %s: %w", cart.ID, err)
	}
	return saved, nil
}

// cloneForCycle copies the origin cart's commerce record without its lines.
// The link fields are stamped at creation so a repeated run finds the cart;
// isActive stays false until the lines are in.
func cloneForCycle(origin domain.Cart, order domain.Order, product *domain.Product, sku string, interval int, now time.Time) domain.Cart {
	custom := origin.Custom.Clone()
	if custom == nil {
		custom = domain.CustomFields{}
	}
	custom[domain.FieldSubscription] = true
	custom[domain.FieldSubscriptionActive] = false
	custom[domain.FieldSubscriptionOrderID] = order.ID
	custom[domain.FieldSubscriptionProduct] = product.ID
	custom[domain.FieldSubscriptionSKU] = sku
	delete(custom, domain.FieldNextDeliveryDate)

	var shipping, billing *domain.Address
	if origin.ShippingAddress != nil {
		a := *origin.ShippingAddress
		shipping = &a
	}
	if origin.BillingAddress != nil {
		a := *origin.BillingAddress
		billing = &a
	}
	return domain.Cart{
		ID:                              uuid.NewString(),
		ProjectID:                       order.ProjectID,
		CustomerID:                      origin.CustomerID,
		AnonymousID:                     origin.AnonymousID,
		CustomerEmail:                   origin.CustomerEmail,
		BusinessUnitKey:                 origin.BusinessUnitKey,
		StoreKey:                        origin.StoreKey,
		Currency:                        origin.Currency,
		Country:                         origin.Country,
		Locale:                          origin.Locale,
		State:                           domain.CartStateActive,
		Origin:                          origin.Origin,
		InventoryMode:                   origin.InventoryMode,
		ItemShippingAddresses:           append([]domain.Address(nil), origin.ItemShippingAddresses...),
		ShippingAddress:                 shipping,
		BillingAddress:                  billing,
		Custom:                          custom,
		DeleteDaysAfterLastModification: interval + 1,
		CreatedAt:                       now,
		LastModifiedAt:                  now,
	}
}
