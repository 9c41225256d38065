package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/repository/memory"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const projectID = "proj-1"

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func subLine(id, sku string, qty int) domain.LineItem {
	return domain.LineItem{
		ID: id, SKU: sku, Quantity: qty, Currency: "USD", UnitPriceCents: 500,
		Custom: domain.CustomFields{domain.FieldParentLineItemID: "bundle-1", domain.FieldSubscription: true},
	}
}

func fixtures() (*memory.Carts, *memory.Products, domain.Order) {
	customerID := "cust-1"
	addr := domain.Address{FirstName: gofakeit.FirstName(), City: gofakeit.City(), Country: "US"}
	origin := domain.Cart{
		ID: "origin", ProjectID: projectID, CustomerID: &customerID, CustomerEmail: "buyer@example.com",
		BusinessUnitKey: "acme", StoreKey: "acme-store", Currency: "USD", Country: "US",
		State: domain.CartStateOrdered, Origin: domain.OriginCustomer, InventoryMode: domain.InventoryModeReserveOnOrder,
		ShippingAddress: &addr, BillingAddress: &addr,
	}
	carts := memory.NewCarts(origin)
	products := memory.NewProducts(
		domain.Product{ID: "p-s1", ProjectID: projectID, SKU: "S1", Currency: "USD", PriceCents: 1200, Attributes: map[string]interface{}{"interval": 30}},
		domain.Product{ID: "p-s2", ProjectID: projectID, SKU: "S2", Currency: "USD", PriceCents: 800},
	)
	order := domain.Order{
		ID: "order-1", ProjectID: projectID, CartID: "origin", CustomerID: &customerID,
		BusinessUnitKey: "acme", StoreKey: "acme-store", Currency: "USD",
		LineItems: []domain.LineItem{
			{ID: "bundle-1", SKU: "BUNDLE", Quantity: 1, Currency: "USD"},
			subLine("l1", "S1", 1),
			subLine("l2", "S1", 2),
			subLine("l3", "S2", 1),
			{ID: "plain", SKU: "S1", Quantity: 4, Currency: "USD"},
		},
	}
	return carts, products, order
}

func newScheduler(carts *memory.Carts, products *memory.Products) *Scheduler {
	s := NewScheduler(carts, products, nil, nil)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestMaterializeNextCycle_OneCartPerSKU(t *testing.T) {
	carts, products, order := fixtures()
	s := newScheduler(carts, products)

	created, err := s.MaterializeNextCycle(context.Background(), order, "warehouse-eu")

	require.NoError(t, err)
	require.Len(t, created, 2)
	bySKU := map[string]domain.Cart{}
	for _, c := range created {
		bySKU[c.Custom.String(domain.FieldSubscriptionSKU)] = c
	}

	s1 := bySKU["S1"]
	next, err := time.Parse(time.RFC3339, s1.Custom.String(domain.FieldNextDeliveryDate))
	require.NoError(t, err)
	assert.WithinDuration(t, fixedNow.AddDate(0, 0, 30), next, time.Second)
	assert.Equal(t, 31, s1.DeleteDaysAfterLastModification)
	require.Len(t, s1.LineItems, 2, "only the subscription lines of the group are re-added")
	for _, l := range s1.LineItems {
		assert.Equal(t, "warehouse-eu", l.DistributionChannel)
		assert.Equal(t, int64(1200), l.UnitPriceCents)
		assert.True(t, l.IsSubscription())
	}
	assert.Equal(t, 3, s1.TotalLineItemQuantity())

	s2 := bySKU["S2"]
	next, err = time.Parse(time.RFC3339, s2.Custom.String(domain.FieldNextDeliveryDate))
	require.NoError(t, err)
	assert.WithinDuration(t, fixedNow.AddDate(0, 0, -1), next, time.Second)
	assert.Equal(t, 1, s2.DeleteDaysAfterLastModification)

	for _, c := range created {
		assert.True(t, c.IsSubscription())
		assert.True(t, c.Custom.Bool(domain.FieldSubscriptionActive))
		assert.Equal(t, "order-1", c.Custom.String(domain.FieldSubscriptionOrderID))
		assert.Equal(t, domain.CartStateActive, c.State)
		require.NotNil(t, c.CustomerID)
		assert.Equal(t, "cust-1", *c.CustomerID)
		assert.Equal(t, "acme", c.BusinessUnitKey)
		assert.NotNil(t, c.ShippingAddress)
	}
	assert.Equal(t, "p-s1", s1.Custom.String(domain.FieldSubscriptionProduct))
	assert.Equal(t, "p-s2", s2.Custom.String(domain.FieldSubscriptionProduct))
}

func TestMaterializeNextCycle_RepeatIsIdempotent(t *testing.T) {
	carts, products, order := fixtures()
	s := newScheduler(carts, products)
	ctx := context.Background()

	_, err := s.MaterializeNextCycle(ctx, order, "")
	require.NoError(t, err)
	again, err := s.MaterializeNextCycle(ctx, order, "")
	require.NoError(t, err)

	assert.Empty(t, again)
	linked, err := carts.ListSubscriptionsByOrder(ctx, projectID, "order-1")
	require.NoError(t, err)
	assert.Len(t, linked, 2)
}

func TestMaterializeNextCycle_FinishesHalfBuiltCart(t *testing.T) {
	carts, products, order := fixtures()
	ctx := context.Background()
	s := newScheduler(carts, products)
	origin, err := carts.GetByID(ctx, projectID, "origin")
	require.NoError(t, err)
	p, err := products.GetBySKU(ctx, projectID, "S2")
	require.NoError(t, err)
	half, err := carts.Create(ctx, cloneForCycle(*origin, order, p, "S2", 0, fixedNow))
	require.NoError(t, err)

	created, err := s.MaterializeNextCycle(ctx, order, "")

	require.NoError(t, err)
	require.Len(t, created, 2)
	linked, err := carts.ListSubscriptionsByOrder(ctx, projectID, "order-1")
	require.NoError(t, err)
	assert.Len(t, linked, 2, "the half-built cart is reused")
	finished, err := carts.GetByID(ctx, projectID, half.ID)
	require.NoError(t, err)
	assert.True(t, finished.Custom.Bool(domain.FieldSubscriptionActive))
	assert.Len(t, finished.LineItems, 1)
}

func TestMaterializeNextCycle_NoSubscriptionLines(t *testing.T) {
	carts, products, order := fixtures()
	order.LineItems = order.LineItems[:1]

	created, err := newScheduler(carts, products).MaterializeNextCycle(context.Background(), order, "")

	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Zero(t, carts.Calls["Create"])
}

func TestMaterializeNextCycle_RebuildsFromOrderWhenCartIsGone(t *testing.T) {
	_, products, order := fixtures()
	carts := memory.NewCarts()
	order.ShippingAddress = &domain.Address{City: "Tallinn", Country: "EE"}

	created, err := newScheduler(carts, products).MaterializeNextCycle(context.Background(), order, "")

	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "Tallinn", created[0].ShippingAddress.City)
}

func TestMaterializeNextCycle_MissingProductSurfacesError(t *testing.T) {
	carts, _, order := fixtures()
	products := memory.NewProducts()

	_, err := newScheduler(carts, products).MaterializeNextCycle(context.Background(), order, "")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

type placerFunc func(ctx context.Context, cart domain.Cart) (*domain.Order, error)

func (f placerFunc) PlaceSubscriptionOrder(ctx context.Context, cart domain.Cart) (*domain.Order, error) {
	return f(ctx, cart)
}

func TestRunner_PlacesDueCartsAndContinuesOnFailure(t *testing.T) {
	due := func(id string, next time.Time, active bool) domain.Cart {
		return domain.Cart{
			ID: id, ProjectID: projectID, State: domain.CartStateActive, CreatedAt: next,
			Custom: domain.CustomFields{
				domain.FieldSubscription:       true,
				domain.FieldSubscriptionActive: active,
				domain.FieldNextDeliveryDate:   next.Format(time.RFC3339),
			},
		}
	}
	carts := memory.NewCarts(
		due("a", fixedNow.Add(-48*time.Hour), true),
		due("b", fixedNow.Add(-time.Hour), true),
		due("future", fixedNow.Add(time.Hour), true),
		due("paused", fixedNow.Add(-time.Hour), false),
	)
	var placed []string
	placer := placerFunc(func(_ context.Context, cart domain.Cart) (*domain.Order, error) {
		if cart.ID == "a" {
			return nil, errors.New("boom")
		}
		placed = append(placed, cart.ID)
		return &domain.Order{ID: "o-" + cart.ID}, nil
	})
	r := NewRunner(carts, placer, 10, nil)
	r.now = func() time.Time { return fixedNow }

	res, err := r.RunDue(context.Background())

	require.NoError(t, err)
	assert.Equal(t, RunResult{Due: 2, Placed: 1, Failed: 1}, res)
	assert.Equal(t, []string{"b"}, placed)
}
