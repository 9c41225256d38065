package order

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/identity"
	"commercetools-b2b/internal/notify"
	"commercetools-b2b/internal/repository/memory"
	"commercetools-b2b/internal/service/subscription"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const projectID = "proj-1"

type stubRouter struct {
	state  domain.StateKey
	review bool
	calls  int
}

func (r *stubRouter) ResolveReviewState(context.Context, string, domain.Cart, identity.Organization) (domain.StateKey, bool) {
	r.calls++
	return r.state, r.review
}

type failingScheduler struct{ calls int }

func (s *failingScheduler) MaterializeNextCycle(context.Context, domain.Order, string) ([]domain.Cart, error) {
	s.calls++
	return nil, errors.New("product service down")
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, msg notify.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, msg)
	return d.err
}

type OrderSuite struct {
	suite.Suite
	ctx        context.Context
	carts      *memory.Carts
	orders     *memory.Orders
	states     *memory.States
	router     *stubRouter
	dispatcher *recordingDispatcher
	logs       *bytes.Buffer
	svc        *Service
	idc        identity.Context
	now        time.Time
}

func TestOrderSuite(t *testing.T) {
	suite.Run(t, new(OrderSuite))
}

func readyCart(id string) domain.Cart {
	customerID := "cust-1"
	addr := domain.Address{FirstName: gofakeit.FirstName(), StreetName: gofakeit.Street(), City: gofakeit.City(), Country: "US"}
	c := domain.Cart{
		ID: id, ProjectID: projectID, CustomerID: &customerID, CustomerEmail: "buyer@example.com",
		BusinessUnitKey: "acme", StoreKey: "acme-store", Currency: "USD", Locale: "en-US",
		State: domain.CartStateActive, Origin: domain.OriginCustomer, InventoryMode: domain.InventoryModeReserveOnOrder,
		LineItems: []domain.LineItem{
			{ID: "l1", SKU: "A", Quantity: 3, Currency: "USD", UnitPriceCents: 1000},
			{ID: "l2", SKU: "B", Quantity: 1, Currency: "USD", UnitPriceCents: 400},
		},
		ShippingAddress: &addr,
		BillingAddress:  &addr,
	}
	c.Recalculate()
	return c
}

func (s *OrderSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 4, 10, 30, 15, 123456000, time.UTC)
	s.carts = memory.NewCarts(readyCart("cart-1"))
	s.orders = memory.NewOrders()
	s.states = memory.NewStates(
		domain.State{Key: "pending-review", ProjectID: projectID, Type: "OrderState", Transitions: []domain.StateKey{"approved", "rejected"}},
		domain.State{Key: "approved", ProjectID: projectID, Type: "OrderState"},
		domain.State{Key: "rejected", ProjectID: projectID, Type: "OrderState"},
		domain.State{Key: "shipped", ProjectID: projectID, Type: "OrderState"},
	)
	s.router = &stubRouter{}
	s.dispatcher = &recordingDispatcher{}
	s.logs = &bytes.Buffer{}
	logger := log.New(s.logs, "", 0)
	s.svc = New(s.orders, s.carts, s.states, s.router, nil, notify.NewNotifier(s.dispatcher, logger), logger)
	s.svc.now = func() time.Time { return s.now }
	s.idc = identity.Context{
		ProjectID:    projectID,
		Account:      &domain.Customer{ID: "cust-1", Email: "buyer@example.com"},
		Organization: identity.Organization{BusinessUnitKey: "acme", StoreKey: "acme-store"},
		Session:      &identity.Session{CartID: "cart-1"},
	}
}

func (s *OrderSuite) admin() identity.Context {
	idc := s.idc
	idc.Account = &domain.Customer{ID: "admin-1"}
	idc.Organization.IsAdmin = true
	return idc
}

func (s *OrderSuite) place() *domain.Order {
	o, err := s.svc.PlaceOrder(s.ctx, s.idc, PlaceOrderInput{Version: 1})
	s.Require().NoError(err)
	return o
}

func (s *OrderSuite) TestPlaceOrder_Confirmed() {
	o := s.place()

	s.Equal(domain.OrderStateConfirmed, o.OrderState)
	s.True(o.State.IsZero())
	s.Equal("20260504-1030-15123456", o.OrderNumber)
	s.Equal(int64(3400), o.TotalCents)
	s.Equal("cart-1", o.CartID)
	s.Empty(s.idc.Session.CartID)

	cart, err := s.carts.GetByID(s.ctx, projectID, "cart-1")
	s.Require().NoError(err)
	s.Equal(domain.CartStateOrdered, cart.State)

	s.Require().Len(s.dispatcher.sent, 1)
	msg := s.dispatcher.sent[0]
	s.Equal(notify.KindOrderConfirmation, msg.Kind)
	s.Equal("buyer@example.com", msg.To)
	s.Equal(o.OrderNumber, msg.Data["orderNumber"])
}

func (s *OrderSuite) TestPlaceOrder_ReviewStateStamped() {
	s.router.state, s.router.review = "pending-review", true

	o := s.place()

	s.Equal(domain.StateKey("pending-review"), o.State)
	s.Equal(domain.OrderStateOpen, o.OrderState)
}

func (s *OrderSuite) TestPlaceOrder_PreBuyIsOpenRegardlessOfReview() {
	c := readyCart("prebuy")
	c.Custom = domain.CustomFields{domain.FieldPreBuyCart: true}
	c.InventoryMode = domain.InventoryModeNone

	for _, review := range []bool{false, true} {
		s.router.state, s.router.review = "pending-review", review
		s.carts = memory.NewCarts(c)
		s.svc.carts = s.carts
		s.svc.orders = memory.NewOrders()

		o, err := s.svc.PlaceOrder(s.ctx, s.idc, PlaceOrderInput{CartID: "prebuy"})

		s.Require().NoError(err)
		s.Equal(domain.OrderStateOpen, o.OrderState, "review=%v", review)
		s.True(o.IsPreBuy)
	}
}

func (s *OrderSuite) TestPlaceOrder_NotReady() {
	cases := map[string]func(c *domain.Cart){
		"no lines":         func(c *domain.Cart) { c.LineItems = nil },
		"no shipping":      func(c *domain.Cart) { c.ShippingAddress = nil },
		"no billing":       func(c *domain.Cart) { c.BillingAddress = nil },
		"currency drift":   func(c *domain.Cart) { c.LineItems[0].Currency = "EUR" },
		"no cart currency": func(c *domain.Cart) { c.Currency = "" },
	}
	for name, mutate := range cases {
		s.Run(name, func() {
			c := readyCart("cart-x")
			mutate(&c)
			s.svc.carts = memory.NewCarts(c)

			_, err := s.svc.PlaceOrder(s.ctx, s.idc, PlaceOrderInput{CartID: "cart-x"})

			s.ErrorIs(err, domain.ErrValidation)
			s.Zero(s.router.calls, "no routing for a cart that is not ready")
		})
	}
}

func (s *OrderSuite) TestPlaceOrder_PreBuySkipsCurrencyCheck() {
	c := readyCart("prebuy")
	c.Custom = domain.CustomFields{domain.FieldPreBuyCart: true}
	c.LineItems[0].Currency = "EUR"
	s.svc.carts = memory.NewCarts(c)

	_, err := s.svc.PlaceOrder(s.ctx, s.idc, PlaceOrderInput{CartID: "prebuy"})

	s.NoError(err)
}

func (s *OrderSuite) TestPlaceOrder_Preconditions() {
	anon := s.idc
	anon.Account = nil
	_, err := s.svc.PlaceOrder(s.ctx, anon, PlaceOrderInput{})
	s.ErrorIs(err, domain.ErrAuthRequired)

	_, err = s.svc.PlaceOrder(s.ctx, s.idc, PlaceOrderInput{Version: 9})
	s.ErrorIs(err, domain.ErrConflict)

	stranger := s.idc
	stranger.Account = &domain.Customer{ID: "cust-2"}
	_, err = s.svc.PlaceOrder(s.ctx, stranger, PlaceOrderInput{CartID: "cart-1"})
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *OrderSuite) TestPlaceOrder_RepeatReturnsSameOrder() {
	first := s.place()

	again, err := s.svc.PlaceOrder(s.ctx, s.idc, PlaceOrderInput{CartID: "cart-1"})

	s.Require().NoError(err)
	s.Equal(first.ID, again.ID)
	s.Len(s.dispatcher.sent, 1)
}

// racingCarts lets another writer bump the first cart it hands out.
type racingCarts struct {
	*memory.Carts
	raced bool
}

func (c *racingCarts) GetByID(ctx context.Context, projectID, id string) (*domain.Cart, error) {
	snapshot, err := c.Carts.GetByID(ctx, projectID, id)
	if err != nil || c.raced {
		return snapshot, err
	}
	c.raced = true
	bumped := *snapshot
	bumped.LineItems = append([]domain.LineItem(nil), snapshot.LineItems...)
	bumped.LineItems[0].Quantity = 50
	bumped.Recalculate()
	if _, err := c.Carts.Save(ctx, bumped, snapshot.Version); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *OrderSuite) TestPlaceOrder_ConcurrentCartChangeWritesNothing() {
	s.svc.carts = &racingCarts{Carts: s.carts}

	_, err := s.svc.PlaceOrder(s.ctx, s.idc, PlaceOrderInput{})
	s.Require().ErrorIs(err, domain.ErrConflict)
	_, err = s.orders.GetByCartID(s.ctx, projectID, "cart-1")
	s.ErrorIs(err, domain.ErrNotFound)
	s.Empty(s.dispatcher.sent)

	o, err := s.svc.PlaceOrder(s.ctx, s.idc, PlaceOrderInput{})
	s.Require().NoError(err)
	cart, err := s.carts.GetByID(s.ctx, projectID, "cart-1")
	s.Require().NoError(err)
	s.Equal(domain.CartStateOrdered, cart.State)
	s.Equal(50, o.LineItems[0].Quantity)
	s.Equal(cart.LineItems[0].Quantity, o.LineItems[0].Quantity)
	s.Equal(cart.TotalCents, o.TotalCents)
}

func (s *OrderSuite) TestPlaceOrder_ResumesClaimedCartWithoutOrder() {
	claimed := readyCart("cart-1")
	claimed.State = domain.CartStateOrdered
	s.carts = memory.NewCarts(claimed)
	s.svc.carts = s.carts

	o, err := s.svc.PlaceOrder(s.ctx, s.idc, PlaceOrderInput{CartID: "cart-1", PurchaseOrderNumber: " PO-7 "})

	s.Require().NoError(err)
	s.Equal("cart-1", o.CartID)
	s.Equal("PO-7", o.PurchaseOrderNumber)
	s.Equal(claimed.TotalCents, o.TotalCents)
	s.Equal(1, s.router.calls)
	s.Empty(s.idc.Session.CartID)
}

func (s *OrderSuite) TestPlaceOrder_RedrawsCollidingOrderNumber() {
	other := draftFromCart(readyCart("cart-other"), s.now)
	_, err := s.orders.Create(s.ctx, other)
	s.Require().NoError(err)

	o := s.place()

	s.Equal("cart-1", o.CartID)
	s.NotEqual(other.OrderNumber, o.OrderNumber)
	s.Contains(s.logs.String(), "order: number collision number="+other.OrderNumber)
}

func (s *OrderSuite) TestPlaceOrder_SchedulerAndNotifierFailuresAreLogged() {
	sched := &failingScheduler{}
	s.svc.scheduler = sched
	s.dispatcher.err = errors.New("smtp down")

	o := s.place()

	s.NotNil(o)
	s.Equal(1, sched.calls)
	s.Contains(s.logs.String(), "order: materialize subscriptions order="+o.ID)
	s.Contains(s.logs.String(), "notify: dispatch order-confirmation")
}

func (s *OrderSuite) TestPlaceOrder_MaterializesSubscriptions() {
	c := readyCart("cart-1")
	c.LineItems = append(c.LineItems, domain.LineItem{
		ID: "sub", SKU: "S1", Quantity: 1, Currency: "USD", UnitPriceCents: 900,
		Custom: domain.CustomFields{domain.FieldParentLineItemID: "l1", domain.FieldSubscription: true},
	})
	s.carts = memory.NewCarts(c)
	s.svc.carts = s.carts
	products := memory.NewProducts(domain.Product{ID: "p-s1", ProjectID: projectID, SKU: "S1", Currency: "USD", PriceCents: 900, Attributes: map[string]interface{}{"interval": 14}})
	s.svc.scheduler = subscription.NewScheduler(s.carts, products, nil, nil)
	s.idc.Organization.DistributionChannel = "dc-1"

	o := s.place()

	subs, err := s.carts.ListSubscriptionsByOrder(s.ctx, projectID, o.ID)
	s.Require().NoError(err)
	s.Require().Len(subs, 1)
	s.Equal("dc-1", subs[0].LineItems[0].DistributionChannel)
}

func (s *OrderSuite) TestMaterializeSubscriptions_RerunIsIdempotent() {
	c := readyCart("cart-1")
	c.LineItems = append(c.LineItems, domain.LineItem{
		ID: "sub", SKU: "S1", Quantity: 2, Currency: "USD", UnitPriceCents: 900,
		Custom: domain.CustomFields{domain.FieldParentLineItemID: "l1", domain.FieldSubscription: true},
	})
	s.carts = memory.NewCarts(c)
	s.svc.carts = s.carts
	o := s.place()

	_, err := s.svc.MaterializeSubscriptions(s.ctx, projectID, o.OrderNumber, "")
	s.ErrorIs(err, domain.ErrValidation)

	products := memory.NewProducts(domain.Product{ID: "p-s1", ProjectID: projectID, SKU: "S1", Currency: "USD", PriceCents: 900, Attributes: map[string]interface{}{"interval": 7}})
	s.svc.scheduler = subscription.NewScheduler(s.carts, products, nil, nil)

	first, err := s.svc.MaterializeSubscriptions(s.ctx, projectID, o.OrderNumber, "dc-9")
	s.Require().NoError(err)
	s.Require().Len(first, 1)

	again, err := s.svc.MaterializeSubscriptions(s.ctx, projectID, o.OrderNumber, "dc-9")
	s.Require().NoError(err)
	s.Empty(again)
	linked, err := s.carts.ListSubscriptionsByOrder(s.ctx, projectID, o.ID)
	s.Require().NoError(err)
	s.Require().Len(linked, 1)
	s.Equal(first[0].ID, linked[0].ID)

	_, err = s.svc.MaterializeSubscriptions(s.ctx, projectID, "missing", "")
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *OrderSuite) TestPlaceSubscriptionOrder() {
	c := readyCart("sub-cart")
	c.Custom = domain.CustomFields{domain.FieldSubscription: true, domain.FieldSubscriptionActive: true}
	s.svc.carts = memory.NewCarts(c)

	o, err := s.svc.PlaceSubscriptionOrder(s.ctx, c)
	s.Require().NoError(err)
	s.Equal("sub-cart", o.CartID)

	_, err = s.svc.PlaceSubscriptionOrder(s.ctx, readyCart("cart-1"))
	s.ErrorIs(err, domain.ErrValidation)
}

func (s *OrderSuite) TestReturnItems() {
	o := s.place()

	returned, err := s.svc.ReturnItems(s.ctx, s.idc, o.OrderNumber, o.Version, []ReturnItemInput{
		{LineItemID: "l1", Quantity: 2, Comment: "damaged"},
	})

	s.Require().NoError(err)
	s.Require().Len(returned.ReturnInfo, 1)
	info := returned.ReturnInfo[0]
	s.NotEmpty(info.ReturnTrackingID)
	s.Equal(s.now, info.ReturnDate)
	s.Equal("Returned", info.Items[0].ShipmentState)
	s.Equal(o.Version+1, returned.Version)

	_, err = s.svc.ReturnItems(s.ctx, s.idc, o.OrderNumber, o.Version, []ReturnItemInput{{LineItemID: "l1", Quantity: 1}})
	s.ErrorIs(err, domain.ErrConflict, "stale version")

	_, err = s.svc.ReturnItems(s.ctx, s.idc, o.OrderNumber, returned.Version, []ReturnItemInput{{LineItemID: "l1", Quantity: 2}})
	s.ErrorIs(err, domain.ErrValidation, "only one unit left")

	_, err = s.svc.ReturnItems(s.ctx, s.idc, o.OrderNumber, returned.Version, []ReturnItemInput{{LineItemID: "nope", Quantity: 1}})
	s.ErrorIs(err, domain.ErrValidation)
}

func (s *OrderSuite) TestTransitionOrderState() {
	s.router.state, s.router.review = "pending-review", true
	o := s.place()

	_, err := s.svc.TransitionOrderState(s.ctx, s.idc, o.OrderNumber, 0, "approved")
	s.ErrorIs(err, domain.ErrValidation, "buyers cannot approve")

	_, err = s.svc.TransitionOrderState(s.ctx, s.admin(), o.OrderNumber, 0, "shipped")
	s.ErrorIs(err, domain.ErrInvalidTransition)

	_, err = s.svc.TransitionOrderState(s.ctx, s.admin(), o.OrderNumber, 0, "made-up")
	s.ErrorIs(err, domain.ErrValidation)

	moved, err := s.svc.TransitionOrderState(s.ctx, s.admin(), o.OrderNumber, o.Version, "approved")
	s.Require().NoError(err)
	s.Equal(domain.StateKey("approved"), moved.State)

	again, err := s.svc.TransitionOrderState(s.ctx, s.admin(), o.OrderNumber, 0, "shipped")
	s.Require().NoError(err, "approved lists no transitions")
	s.Equal(domain.StateKey("shipped"), again.State)
}

func (s *OrderSuite) TestUpdateOrderState() {
	o := s.place()

	done, err := s.svc.UpdateOrderState(s.ctx, s.admin(), o.OrderNumber, o.Version, domain.OrderStateComplete)
	s.Require().NoError(err)
	s.Equal(domain.OrderStateComplete, done.OrderState)

	_, err = s.svc.UpdateOrderState(s.ctx, s.admin(), o.OrderNumber, 0, domain.OrderStateOpen)
	s.ErrorIs(err, domain.ErrInvalidTransition)

	_, err = s.svc.UpdateOrderState(s.ctx, s.admin(), o.OrderNumber, o.Version, domain.OrderStateCancelled)
	s.ErrorIs(err, domain.ErrConflict)
}

func TestList_ScopesAndPaginates(t *testing.T) {
	ctx := context.Background()
	orders := memory.NewOrders()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, owner := range []string{"cust-1", "cust-1", "cust-1", "cust-2"} {
		id := owner
		_, err := orders.Create(ctx, domain.Order{
			ID: gofakeit.UUID(), ProjectID: projectID, CartID: gofakeit.UUID(), CustomerID: &id,
			BusinessUnitKey: "acme", OrderNumber: domain.NewOrderNumber(base.Add(time.Duration(i) * time.Hour)),
		})
		require.NoError(t, err)
	}
	svc := New(orders, memory.NewCarts(), memory.NewStates(), nil, nil, nil, nil)
	idc := identity.Context{ProjectID: projectID, Account: &domain.Customer{ID: "cust-1"}, Organization: identity.Organization{BusinessUnitKey: "acme"}}

	page, err := svc.List(ctx, idc, ListInput{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, "offset:2", page.NextCursor)
	assert.Greater(t, page.Results[0].OrderNumber, page.Results[1].OrderNumber)

	page, err = svc.List(ctx, idc, ListInput{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Count)
	assert.Empty(t, page.NextCursor)

	idc.Organization.IsAdmin = true
	page, err = svc.List(ctx, idc, ListInput{})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
}
