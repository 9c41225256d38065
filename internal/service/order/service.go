package order

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/identity"
	"commercetools-b2b/internal/notify"
	cartrepo "commercetools-b2b/internal/repository/cart"
	orderrepo "commercetools-b2b/internal/repository/order"
	staterepo "commercetools-b2b/internal/repository/state"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type orderRepo interface {
	Create(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetByID(ctx context.Context, projectID, id string) (*domain.Order, error)
	GetByOrderNumber(ctx context.Context, projectID, orderNumber string) (*domain.Order, error)
	GetByCartID(ctx context.Context, projectID, cartID string) (*domain.Order, error)
	List(ctx context.Context, f orderrepo.Filter) ([]domain.Order, int, error)
	Save(ctx context.Context, order domain.Order, expectedVersion int) (*domain.Order, error)
}

type cartRepo interface {
	GetByID(ctx context.Context, projectID, id string) (*domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart, expectedVersion int) (*domain.Cart, error)
}

// ReviewRouter decides whether a cart needs review before confirmation.
type ReviewRouter interface {
	ResolveReviewState(ctx context.Context, projectID string, cart domain.Cart, org identity.Organization) (domain.StateKey, bool)
}

// CycleMaterializer builds the next subscription carts of a placed order.
type CycleMaterializer interface {
	MaterializeNextCycle(ctx context.Context, order domain.Order, distributionChannel string) ([]domain.Cart, error)
}

// Service turns checkout-ready carts into orders and manages their lifecycle.
type Service struct {
	orders    orderRepo
	carts     cartRepo
	states    staterepo.Repository
	router    ReviewRouter
	scheduler CycleMaterializer
	notifier  *notify.Notifier
	logger    *log.Logger
	now       func() time.Time
}

func New(orders orderrepo.Repository, carts cartrepo.Repository, states staterepo.Repository, router ReviewRouter, scheduler CycleMaterializer, notifier *notify.Notifier, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{
		orders:    orders,
		carts:     carts,
		states:    states,
		router:    router,
		scheduler: scheduler,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// PlaceOrderInput names the cart to check out. CartID falls back to the
// session cart; Version is checked when set.
type PlaceOrderInput struct {
	CartID              string `json:"id"`
	Version             int    `json:"version"`
	PurchaseOrderNumber string `json:"purchaseOrderNumber"`
}

// PlaceOrder converts the caller's cart into an order. Placing an already
// ordered cart returns the existing order.
func (s *Service) PlaceOrder(ctx context.Context, idc identity.Context, in PlaceOrderInput) (*domain.Order, error) {
	if idc.AccountID() == "" && idc.AnonymousID == "" {
		return nil, domain.ErrAuthRequired
	}
	sess := idc.Sess()
	cartID := in.CartID
	if cartID == "" {
		cartID = sess.CartID
	}
	if cartID == "" {
		return nil, domain.NewValidation("id", "cart required")
	}
	cart, err := s.carts.GetByID(ctx, idc.ProjectID, cartID)
	if err != nil {
		return nil, err
	}
	if !idc.CanAccess(*cart) {
		return nil, domain.ErrNotFound
	}
	if in.Version > 0 && in.Version != cart.Version {
		return nil, domain.NewConflict("cart", cart.ID, in.Version, cart.Version)
	}

	org := idc.Organization
	if org.BusinessUnitKey == "" {
		org.BusinessUnitKey = cart.BusinessUnitKey
	}
	poNumber := strings.TrimSpace(in.PurchaseOrderNumber)
	var order *domain.Order
	if cart.State == domain.CartStateOrdered {
		order, err = s.orders.GetByCartID(ctx, idc.ProjectID, cart.ID)
		if errors.Is(err, domain.ErrNotFound) {
			// claimed by an attempt that never wrote its order
			order, err = s.record(ctx, *cart, org, poNumber)
		}
	} else {
		order, err = s.place(ctx, *cart, org, poNumber)
	}
	if err != nil {
		return nil, err
	}
	if sess.CartID == cart.ID {
		sess.ClearCart()
	}
	return order, nil
}

// PlaceSubscriptionOrder places an order from a due subscription cart on the
// merchant's behalf, scoped to the cart's own business unit and store.
func (s *Service) PlaceSubscriptionOrder(ctx context.Context, cart domain.Cart) (*domain.Order, error) {
	if !cart.IsSubscription() {
		return nil, domain.NewValidationCode("InvalidOperation", "custom", fmt.Sprintf("cart %s is not a subscription cart", cart.ID))
	}
	org := identity.Organization{BusinessUnitKey: cart.BusinessUnitKey, StoreKey: cart.StoreKey}
	if len(cart.LineItems) > 0 {
		org.DistributionChannel = cart.LineItems[0].DistributionChannel
	}
	return s.place(ctx, cart, org, "")
}

// CheckReady reports why a cart cannot be checked out, or nil.
func CheckReady(cart domain.Cart) error {
	if cart.State != domain.CartStateActive {
		return domain.NewValidationCode("InvalidOperation", "cartState", fmt.Sprintf("cart is %s", cart.State))
	}
	if len(cart.LineItems) == 0 {
		return domain.NewValidationCode("InvalidOperation", "lineItems", "cart has no line items")
	}
	if cart.ShippingAddress == nil {
		return domain.NewValidationCode("MissingShippingAddress", "shippingAddress", "shipping address required")
	}
	if cart.BillingAddress == nil {
		return domain.NewValidationCode("MissingBillingAddress", "billingAddress", "billing address required")
	}
	if cart.IsPreBuy() {
		return nil
	}
	if cart.Currency == "" {
		return domain.NewValidationCode("InvalidOperation", "currency", "cart has no currency")
	}
	for _, l := range cart.LineItems {
		if l.Currency != "" && !strings.EqualFold(l.Currency, cart.Currency) {
			return domain.NewValidationCode("CurrencyMismatch", "lineItems", fmt.Sprintf("line item %s is priced in %s, cart uses %s", l.ID, l.Currency, cart.Currency))
		}
		if l.Quantity <= 0 {
			return domain.NewValidationCode("InvalidOperation", "lineItems", fmt.Sprintf("line item %s has no quantity", l.ID))
		}
	}
	return nil
}

// place claims the cart with a versioned write before the order exists, so
// the order is always built from the cart version it consumed.
func (s *Service) place(ctx context.Context, cart domain.Cart, org identity.Organization, poNumber string) (*domain.Order, error) {
	if err := CheckReady(cart); err != nil {
		return nil, err
	}
	expected := cart.Version
	if err := cart.Apply(s.now().UTC(), domain.ChangeCartState{State: domain.CartStateOrdered}); err != nil {
		return nil, err
	}
	claimed, err := s.carts.Save(ctx, cart, expected)
	if err != nil {
		return nil, fmt.Errorf("mark cart %s ordered: %w", cart.ID, err)
	}
	return s.record(ctx, *claimed, org, poNumber)
}

// record writes the order for a cart already in state Ordered.
func (s *Service) record(ctx context.Context, cart domain.Cart, org identity.Organization, poNumber string) (*domain.Order, error) {
	now := s.now().UTC()
	draft := draftFromCart(cart, now)
	draft.PurchaseOrderNumber = poNumber

	var review domain.StateKey
	needsReview := false
	if s.router != nil {
		review, needsReview = s.router.ResolveReviewState(ctx, cart.ProjectID, cart, org)
	}
	switch {
	case needsReview:
		draft.State = review
		draft.OrderState = domain.OrderStateOpen
	case cart.IsPreBuy():
		draft.OrderState = domain.OrderStateOpen
	default:
		draft.OrderState = domain.OrderStateConfirmed
	}

	order, err := s.create(ctx, draft)
	if err != nil {
		return nil, err
	}
	s.logger.Printf("order: placed order=%s number=%s cart=%s orderState=%s state=%s",
		order.ID, order.OrderNumber, cart.ID, order.OrderState, order.State)

	if s.scheduler != nil {
		channel := org.DistributionChannel
		if channel == "" && len(order.LineItems) > 0 {
			channel = order.LineItems[0].DistributionChannel
		}
		if _, err := s.scheduler.MaterializeNextCycle(ctx, *order, channel); err != nil {
			s.logger.Printf("order: materialize subscriptions order=%s err=%v", order.ID, err)
		}
	}

	s.notifier.Notify(ctx, notify.Message{
		Kind:      notify.KindOrderConfirmation,
		ProjectID: order.ProjectID,
		To:        order.CustomerEmail,
		Locale:    order.Locale,
		Data: map[string]interface{}{
			"orderId":     order.ID,
			"orderNumber": order.OrderNumber,
			"totalCents":  order.TotalCents,
			"currency":    order.Currency,
		},
	})
	return order, nil
}

// create inserts draft. A duplicate cart returns the order already written
// for it; a duplicate order number is drawn again once.
func (s *Service) create(ctx context.Context, draft domain.Order) (*domain.Order, error) {
	for attempt := 0; ; attempt++ {
		order, err := s.orders.Create(ctx, draft)
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return order, err
		}
		existing, getErr := s.orders.GetByCartID(ctx, draft.ProjectID, draft.CartID)
		if getErr == nil {
			return existing, nil
		}
		if !errors.Is(getErr, domain.ErrNotFound) || attempt > 0 {
			return nil, err
		}
		s.logger.Printf("order: number collision number=%s cart=%s", draft.OrderNumber, draft.CartID)
		draft.OrderNumber = domain.NewOrderNumber(draft.CreatedAt.Add(time.Microsecond))
	}
}

func draftFromCart(cart domain.Cart, now time.Time) domain.Order {
	return domain.Order{
		ID:                    uuid.NewString(),
		ProjectID:             cart.ProjectID,
		OrderNumber:           domain.NewOrderNumber(now),
		CartID:                cart.ID,
		CustomerID:            cart.CustomerID,
		CustomerEmail:         cart.CustomerEmail,
		BusinessUnitKey:       cart.BusinessUnitKey,
		StoreKey:              cart.StoreKey,
		Currency:              cart.Currency,
		Country:               cart.Country,
		Locale:                cart.Locale,
		Origin:                cart.Origin,
		InventoryMode:         cart.InventoryMode,
		IsPreBuy:              cart.IsPreBuy(),
		LineItems:             cart.LineItems,
		ItemShippingAddresses: cart.ItemShippingAddresses,
		ShippingAddress:       cart.ShippingAddress,
		BillingAddress:        cart.BillingAddress,
		Custom:                cart.Custom.Clone(),
		TotalCents:            cart.TotalCents,
		CreatedAt:             now,
		LastModifiedAt:        now,
	}
}

// Get returns an order visible to the caller.
func (s *Service) Get(ctx context.Context, idc identity.Context, id string) (*domain.Order, error) {
	if _, err := idc.RequireAccount(); err != nil {
		return nil, err
	}
	o, err := s.orders.GetByID(ctx, idc.ProjectID, id)
	if err != nil {
		return nil, err
	}
	if !visible(idc, *o) {
		return nil, domain.ErrNotFound
	}
	return o, nil
}

// GetByOrderNumber returns an order visible to the caller.
func (s *Service) GetByOrderNumber(ctx context.Context, idc identity.Context, orderNumber string) (*domain.Order, error) {
	if _, err := idc.RequireAccount(); err != nil {
		return nil, err
	}
	o, err := s.orders.GetByOrderNumber(ctx, idc.ProjectID, orderNumber)
	if err != nil {
		return nil, err
	}
	if !visible(idc, *o) {
		return nil, domain.ErrNotFound
	}
	return o, nil
}

func visible(idc identity.Context, o domain.Order) bool {
	if o.CustomerID != nil && *o.CustomerID == idc.AccountID() {
		return true
	}
	return canManage(idc, o)
}

// canManage: admins and superusers of the order's business unit.
func canManage(idc identity.Context, o domain.Order) bool {
	org := idc.Organization
	return (org.IsAdmin || org.SuperUser) && o.BusinessUnitKey != "" && o.BusinessUnitKey == org.BusinessUnitKey
}

type ListInput struct {
	Limit  int
	Cursor string
}

// List pages through the orders of the caller's business unit. Buyers see
// their own orders; admins and superusers see the whole unit.
func (s *Service) List(ctx context.Context, idc identity.Context, in ListInput) (domain.Page[domain.Order], error) {
	account, err := idc.RequireAccount()
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	offset, err := domain.ParseCursor(in.Cursor)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	f := orderrepo.Filter{
		ProjectID:       idc.ProjectID,
		BusinessUnitKey: idc.Organization.BusinessUnitKey,
		Limit:           domain.NormalizeLimit(in.Limit),
		Offset:          offset,
	}
	if !idc.Organization.IsAdmin && !idc.Organization.SuperUser {
		f.CustomerID = account.ID
	}
	orders, total, err := s.orders.List(ctx, f)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	return domain.NewPage(orders, f.Limit, f.Offset, total), nil
}

// ReturnItemInput is one line of a return request.
type ReturnItemInput struct {
	LineItemID    string `json:"lineItemId"`
	Quantity      int    `json:"quantity"`
	Comment       string `json:"comment"`
	ShipmentState string `json:"shipmentState"`
}

// ReturnItems appends a return record with a server-assigned date and
// tracking id. Quantities may not exceed what is left to return.
func (s *Service) ReturnItems(ctx context.Context, idc identity.Context, orderNumber string, version int, items []ReturnItemInput) (*domain.Order, error) {
	if len(items) == 0 {
		return nil, domain.NewValidation("items", "at least one item required")
	}
	o, err := s.GetByOrderNumber(ctx, idc, orderNumber)
	if err != nil {
		return nil, err
	}
	if version > 0 && version != o.Version {
		return nil, domain.NewConflict("order", o.ID, version, o.Version)
	}
	if o.OrderState == domain.OrderStateCancelled {
		return nil, domain.NewValidationCode("InvalidOperation", "orderState", "cancelled orders cannot be returned")
	}

	requested := map[string]int{}
	returnItems := make([]domain.ReturnItem, 0, len(items))
	for i, it := range items {
		field := fmt.Sprintf("items[%d]", i)
		line, ok := o.LineItem(it.LineItemID)
		if !ok {
			return nil, domain.NewValidation(field+".lineItemId", fmt.Sprintf("line item %q not in order", it.LineItemID))
		}
		if it.Quantity <= 0 {
			return nil, domain.NewValidation(field+".quantity", "quantity must be positive")
		}
		requested[line.ID] += it.Quantity
		if remaining := line.Quantity - o.ReturnedQuantity(line.ID); requested[line.ID] > remaining {
			return nil, domain.NewValidationCode("InvalidReturnQuantity", field+".quantity",
				fmt.Sprintf("only %d of line item %s left to return", remaining, line.ID))
		}
		shipment := strings.TrimSpace(it.ShipmentState)
		if shipment == "" {
			shipment = "Returned"
		}
		returnItems = append(returnItems, domain.ReturnItem{
			ID:            uuid.NewString(),
			LineItemID:    line.ID,
			Quantity:      it.Quantity,
			Comment:       strings.TrimSpace(it.Comment),
			ShipmentState: shipment,
		})
	}

	now := s.now().UTC()
	expected := o.Version
	o.ReturnInfo = append(o.ReturnInfo, domain.ReturnInfo{
		ReturnTrackingID: uuid.NewString(),
		ReturnDate:       now,
		Items:            returnItems,
	})
	o.LastModifiedAt = now
	return s.orders.Save(ctx, *o, expected)
}

// TransitionOrderState moves the order's workflow state slot to stateKey.
// The target must be a stored state definition and the current state's
// definition must list it as a transition.
func (s *Service) TransitionOrderState(ctx context.Context, idc identity.Context, orderNumber string, version int, stateKey domain.StateKey) (*domain.Order, error) {
	if stateKey.IsZero() {
		return nil, domain.NewValidation("state", "state key required")
	}
	o, err := s.managed(ctx, idc, orderNumber, version)
	if err != nil {
		return nil, err
	}
	if o.State == stateKey {
		return o, nil
	}
	if _, err := s.states.GetByKey(ctx, o.ProjectID, stateKey); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewValidationCode("UnknownState", "state", fmt.Sprintf("state %q is not defined", stateKey))
		}
		return nil, err
	}
	if !o.State.IsZero() {
		current, err := s.states.GetByKey(ctx, o.ProjectID, o.State)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if current != nil && !current.Allows(stateKey) {
			return nil, domain.NewTransition("order", o.State.String(), stateKey.String())
		}
	}
	expected := o.Version
	o.State = stateKey
	o.LastModifiedAt = s.now().UTC()
	saved, err := s.orders.Save(ctx, *o, expected)
	if err != nil {
		return nil, err
	}
	s.logger.Printf("order: transition order=%s state=%s", saved.ID, saved.State)
	return saved, nil
}

var terminalOrderStates = []domain.OrderState{domain.OrderStateComplete, domain.OrderStateCancelled}

// UpdateOrderState sets the order state slot. Complete and Cancelled are final.
func (s *Service) UpdateOrderState(ctx context.Context, idc identity.Context, orderNumber string, version int, next domain.OrderState) (*domain.Order, error) {
	next = domain.OrderState(strings.TrimSpace(string(next)))
	if next == "" {
		return nil, domain.NewValidation("orderState", "order state required")
	}
	o, err := s.managed(ctx, idc, orderNumber, version)
	if err != nil {
		return nil, err
	}
	if o.OrderState == next {
		return o, nil
	}
	if lo.Contains(terminalOrderStates, o.OrderState) {
		return nil, domain.NewTransition("order", string(o.OrderState), string(next))
	}
	expected := o.Version
	o.OrderState = next
	o.LastModifiedAt = s.now().UTC()
	return s.orders.Save(ctx, *o, expected)
}

func (s *Service) managed(ctx context.Context, idc identity.Context, orderNumber string, version int) (*domain.Order, error) {
	o, err := s.GetByOrderNumber(ctx, idc, orderNumber)
	if err != nil {
		return nil, err
	}
	if !canManage(idc, *o) {
		return nil, domain.NewValidationCode("InsufficientScope", "businessUnit", "business unit admin role required")
	}
	if version > 0 && version != o.Version {
		return nil, domain.NewConflict("order", o.ID, version, o.Version)
	}
	return o, nil
}

// MaterializeSubscriptions re-runs the subscription scheduler for a placed
// order on the merchant's behalf. Carts already built for the order are kept.
func (s *Service) MaterializeSubscriptions(ctx context.Context, projectID, orderNumber, distributionChannel string) ([]domain.Cart, error) {
	if s.scheduler == nil {
		return nil, domain.NewValidationCode("InvalidOperation", "subscriptions", "subscription scheduling is not configured")
	}
	o, err := s.orders.GetByOrderNumber(ctx, projectID, orderNumber)
	if err != nil {
		return nil, err
	}
	if distributionChannel == "" {
		for _, l := range o.LineItems {
			if l.DistributionChannel != "" {
				distributionChannel = l.DistributionChannel
				break
			}
		}
	}
	return s.scheduler.MaterializeNextCycle(ctx, *o, distributionChannel)
}
