// Package memory holds map-backed repositories with the same versioning and
// uniqueness rules as the Postgres adapters. Services use them in tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"commercetools-b2b/internal/domain"
	cartrepo "commercetools-b2b/internal/repository/cart"
	orderrepo "commercetools-b2b/internal/repository/order"
	"github.com/samber/lo"
)

func cloneCart(c domain.Cart) domain.Cart {
	c.LineItems = cloneLines(c.LineItems)
	c.ItemShippingAddresses = append([]domain.Address(nil), c.ItemShippingAddresses...)
	c.Custom = c.Custom.Clone()
	if c.CustomerID != nil {
		id := *c.CustomerID
		c.CustomerID = &id
	}
	if c.AnonymousID != nil {
		id := *c.AnonymousID
		c.AnonymousID = &id
	}
	return c
}

func cloneLines(lines []domain.LineItem) []domain.LineItem {
	if lines == nil {
		return nil
	}
	out := make([]domain.LineItem, len(lines))
	for i, l := range lines {
		l.Custom = l.Custom.Clone()
		l.ShippingDetails = append([]domain.ItemShippingTarget(nil), l.ShippingDetails...)
		out[i] = l
	}
	return out
}

// Carts implements cart.Repository.
type Carts struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
	// Calls counts writes by method name.
	Calls map[string]int
}

func NewCarts(seed ...domain.Cart) *Carts {
	r := &Carts{carts: map[string]domain.Cart{}, Calls: map[string]int{}}
	for _, c := range seed {
		if c.Version == 0 {
			c.Version = 1
		}
		r.carts[c.ID] = cloneCart(c)
	}
	return r
}

func (r *Carts) Create(_ context.Context, cart domain.Cart) (*domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls["Create"]++
	if _, exists := r.carts[cart.ID]; exists {
		return nil, domain.ErrAlreadyExists
	}
	cart.Version = 1
	if cart.LastModifiedAt.IsZero() {
		cart.LastModifiedAt = cart.CreatedAt
	}
	r.carts[cart.ID] = cloneCart(cart)
	out := cloneCart(cart)
	return &out, nil
}

func (r *Carts) GetByID(_ context.Context, projectID, id string) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.carts[id]
	if !ok || c.ProjectID != projectID {
		return nil, domain.ErrNotFound
	}
	out := cloneCart(c)
	return &out, nil
}

func (r *Carts) FindActive(_ context.Context, q cartrepo.ActiveQuery) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *domain.Cart
	for _, c := range r.carts {
		if c.ProjectID != q.ProjectID || c.State != domain.CartStateActive || c.IsSubscription() {
			continue
		}
		if c.BusinessUnitKey != q.BusinessUnitKey || c.StoreKey != q.StoreKey {
			continue
		}
		if q.CustomerID != "" {
			if c.CustomerID == nil || *c.CustomerID != q.CustomerID {
				continue
			}
		} else if c.AnonymousID == nil || *c.AnonymousID != q.AnonymousID {
			continue
		}
		if best == nil || c.LastModifiedAt.After(best.LastModifiedAt) {
			cp := cloneCart(c)
			best = &cp
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return best, nil
}

func (r *Carts) Save(_ context.Context, cart domain.Cart, expectedVersion int) (*domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls["Save"]++
	current, ok := r.carts[cart.ID]
	if !ok || current.ProjectID != cart.ProjectID {
		return nil, domain.ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, domain.NewConflict("cart", cart.ID, expectedVersion, current.Version)
	}
	// currency, scope and origin are fixed at creation
	cart.Currency = current.Currency
	cart.BusinessUnitKey = current.BusinessUnitKey
	cart.StoreKey = current.StoreKey
	cart.Origin = current.Origin
	cart.InventoryMode = current.InventoryMode
	cart.CreatedAt = current.CreatedAt
	cart.Version = current.Version + 1
	r.carts[cart.ID] = cloneCart(cart)
	out := cloneCart(cart)
	return &out, nil
}

func (r *Carts) Delete(_ context.Context, projectID, id string, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls["Delete"]++
	current, ok := r.carts[id]
	if !ok || current.ProjectID != projectID {
		return domain.ErrNotFound
	}
	if current.Version != expectedVersion {
		return domain.NewConflict("cart", id, expectedVersion, current.Version)
	}
	delete(r.carts, id)
	return nil
}

func (r *Carts) AssignCustomerToAnonymous(_ context.Context, projectID, anonymousID, customerID string) (*domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.carts {
		if c.ProjectID != projectID || c.State != domain.CartStateActive || c.AnonymousID == nil || *c.AnonymousID != anonymousID {
			continue
		}
		cust := customerID
		c.CustomerID = &cust
		c.AnonymousID = nil
		c.Version++
		r.carts[id] = c
		out := cloneCart(c)
		return &out, nil
	}
	return nil, domain.ErrNotFound
}

func (r *Carts) ListSubscriptionsByOrder(_ context.Context, projectID, orderID string) ([]domain.Cart, error) {
	return r.filter(func(c domain.Cart) bool {
		return c.ProjectID == projectID && c.IsSubscription() && c.Custom.String(domain.FieldSubscriptionOrderID) == orderID
	}, 0), nil
}

func (r *Carts) ListDueSubscriptions(_ context.Context, before time.Time, limit int) ([]domain.Cart, error) {
	return r.filter(func(c domain.Cart) bool {
		if c.State != domain.CartStateActive || !c.IsSubscription() || !c.Custom.Bool(domain.FieldSubscriptionActive) {
			return false
		}
		next, err := time.Parse(time.RFC3339Nano, c.Custom.String(domain.FieldNextDeliveryDate))
		return err == nil && !next.After(before)
	}, limit), nil
}

// All returns every stored cart ordered by creation time.
func (r *Carts) All() []domain.Cart {
	return r.filter(func(domain.Cart) bool { return true }, 0)
}

func (r *Carts) filter(keep func(domain.Cart) bool, limit int) []domain.Cart {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Cart
	for _, c := range r.carts {
		if keep(c) {
			out = append(out, cloneCart(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Orders implements order.Repository.
type Orders struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

func NewOrders() *Orders {
	return &Orders{orders: map[string]domain.Order{}}
}

func (r *Orders) Create(_ context.Context, o domain.Order) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.orders {
		if existing.ProjectID != o.ProjectID {
			continue
		}
		if existing.CartID == o.CartID || existing.OrderNumber == o.OrderNumber {
			return nil, domain.ErrAlreadyExists
		}
	}
	o.Version = 1
	o.LineItems = cloneLines(o.LineItems)
	r.orders[o.ID] = o
	out := o
	out.LineItems = cloneLines(o.LineItems)
	return &out, nil
}

func (r *Orders) find(match func(domain.Order) bool) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if match(o) {
			o.LineItems = cloneLines(o.LineItems)
			o.ReturnInfo = append([]domain.ReturnInfo(nil), o.ReturnInfo...)
			return &o, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *Orders) GetByID(_ context.Context, projectID, id string) (*domain.Order, error) {
	return r.find(func(o domain.Order) bool { return o.ProjectID == projectID && o.ID == id })
}

func (r *Orders) GetByOrderNumber(_ context.Context, projectID, orderNumber string) (*domain.Order, error) {
	return r.find(func(o domain.Order) bool { return o.ProjectID == projectID && o.OrderNumber == orderNumber })
}

func (r *Orders) GetByCartID(_ context.Context, projectID, cartID string) (*domain.Order, error) {
	return r.find(func(o domain.Order) bool { return o.ProjectID == projectID && o.CartID == cartID })
}

func (r *Orders) List(_ context.Context, f orderrepo.Filter) ([]domain.Order, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := lo.Filter(lo.Values(r.orders), func(o domain.Order, _ int) bool {
		if o.ProjectID != f.ProjectID {
			return false
		}
		if f.CustomerID != "" && (o.CustomerID == nil || *o.CustomerID != f.CustomerID) {
			return false
		}
		return f.BusinessUnitKey == "" || o.BusinessUnitKey == f.BusinessUnitKey
	})
	sort.Slice(matched, func(i, j int) bool { return matched[i].OrderNumber > matched[j].OrderNumber })
	return page(matched, f.Limit, f.Offset), len(matched), nil
}

func (r *Orders) Save(_ context.Context, o domain.Order, expectedVersion int) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.orders[o.ID]
	if !ok || current.ProjectID != o.ProjectID {
		return nil, domain.ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, domain.NewConflict("order", o.ID, expectedVersion, current.Version)
	}
	current.OrderState = o.OrderState
	current.State = o.State
	current.ReturnInfo = append([]domain.ReturnInfo(nil), o.ReturnInfo...)
	current.Custom = o.Custom.Clone()
	current.LastModifiedAt = o.LastModifiedAt
	current.Version++
	r.orders[o.ID] = current
	return &current, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// Quotes implements quote.Repository.
type Quotes struct {
	mu       sync.RWMutex
	requests map[string]domain.QuoteRequest
	quotes   map[string]domain.Quote
}

func NewQuotes() *Quotes {
	return &Quotes{requests: map[string]domain.QuoteRequest{}, quotes: map[string]domain.Quote{}}
}

func (r *Quotes) CreateRequest(_ context.Context, qr domain.QuoteRequest) (*domain.QuoteRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.requests[qr.ID]; exists {
		return nil, domain.ErrAlreadyExists
	}
	qr.Version = 1
	qr.Quote = nil
	r.requests[qr.ID] = qr
	return &qr, nil
}

func (r *Quotes) GetRequest(_ context.Context, projectID, id string) (*domain.QuoteRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	qr, ok := r.requests[id]
	if !ok || qr.ProjectID != projectID {
		return nil, domain.ErrNotFound
	}
	qr.Quote = r.quoteFor(id)
	return &qr, nil
}

func (r *Quotes) quoteFor(requestID string) *domain.Quote {
	for _, q := range r.quotes {
		if q.QuoteRequestID == requestID {
			return &q
		}
	}
	return nil
}

func (r *Quotes) SaveRequest(_ context.Context, qr domain.QuoteRequest, expectedVersion int) (*domain.QuoteRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.requests[qr.ID]
	if !ok || current.ProjectID != qr.ProjectID {
		return nil, domain.ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, domain.NewConflict("quote-request", qr.ID, expectedVersion, current.Version)
	}
	current.State = qr.State
	current.BuyerComment = qr.BuyerComment
	current.LastModifiedAt = qr.LastModifiedAt
	current.Version++
	r.requests[qr.ID] = current
	current.Quote = r.quoteFor(qr.ID)
	return &current, nil
}

func (r *Quotes) QueryRequests(_ context.Context, projectID string, f domain.QuoteFilter) ([]domain.QuoteRequest, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reqStates, quoteStates, _ := f.SplitStates()
	var matched []domain.QuoteRequest
	for _, qr := range r.requests {
		q := r.quoteFor(qr.ID)
		if qr.ProjectID != projectID || !matchScope(f, qr.ID, qr.CustomerID, qr.BusinessUnitKey) {
			continue
		}
		if len(f.States) > 0 && !lo.Contains(reqStates, qr.State) && (q == nil || !lo.Contains(quoteStates, q.State)) {
			continue
		}
		qr.Quote = q
		matched = append(matched, qr)
	}
	sortNewestFirst(matched, func(qr domain.QuoteRequest) (time.Time, string) { return qr.CreatedAt, qr.ID })
	return page(matched, f.Limit, f.Offset), len(matched), nil
}

func (r *Quotes) CreateQuote(_ context.Context, q domain.Quote) (*domain.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.quoteFor(q.QuoteRequestID) != nil {
		return nil, domain.ErrAlreadyExists
	}
	q.Version = 1
	r.quotes[q.ID] = q
	return &q, nil
}

func (r *Quotes) GetQuote(_ context.Context, projectID, id string) (*domain.Quote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.quotes[id]
	if !ok || q.ProjectID != projectID {
		return nil, domain.ErrNotFound
	}
	return &q, nil
}

func (r *Quotes) GetQuoteByRequest(_ context.Context, projectID, quoteRequestID string) (*domain.Quote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q := r.quoteFor(quoteRequestID)
	if q == nil || q.ProjectID != projectID {
		return nil, domain.ErrNotFound
	}
	return q, nil
}

func (r *Quotes) SaveQuote(_ context.Context, q domain.Quote, expectedVersion int) (*domain.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.quotes[q.ID]
	if !ok || current.ProjectID != q.ProjectID {
		return nil, domain.ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, domain.NewConflict("quote", q.ID, expectedVersion, current.Version)
	}
	current.State = q.State
	current.BuyerComment = q.BuyerComment
	current.SellerComment = q.SellerComment
	current.ValidTo = q.ValidTo
	current.QuotationCartID = q.QuotationCartID
	current.LineItems = cloneLines(q.LineItems)
	current.TotalCents = q.TotalCents
	current.LastModifiedAt = q.LastModifiedAt
	current.Version++
	r.quotes[q.ID] = current
	return &current, nil
}

func (r *Quotes) QueryQuotes(_ context.Context, projectID string, f domain.QuoteFilter) ([]domain.Quote, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reqStates, quoteStates, _ := f.SplitStates()
	var matched []domain.Quote
	for _, q := range r.quotes {
		if q.ProjectID != projectID || !matchScope(f, q.ID, q.CustomerID, q.BusinessUnitKey) {
			continue
		}
		if len(f.States) > 0 && !lo.Contains(quoteStates, q.State) && !lo.Contains(reqStates, r.requests[q.QuoteRequestID].State) {
			continue
		}
		matched = append(matched, q)
	}
	sortNewestFirst(matched, func(q domain.Quote) (time.Time, string) { return q.CreatedAt, q.ID })
	return page(matched, f.Limit, f.Offset), len(matched), nil
}

func matchScope(f domain.QuoteFilter, id, customerID, unitKey string) bool {
	if len(f.IDs) > 0 && !lo.Contains(f.IDs, id) {
		return false
	}
	if f.CustomerID != "" && customerID != f.CustomerID {
		return false
	}
	return f.BusinessUnitKey == "" || unitKey == f.BusinessUnitKey
}

func sortNewestFirst[T any](items []T, key func(T) (time.Time, string)) {
	sort.Slice(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if ti.Equal(tj) {
			return idi < idj
		}
		return ti.After(tj)
	})
}

// Products implements product.Repository.
type Products struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

func NewProducts(seed ...domain.Product) *Products {
	r := &Products{products: map[string]domain.Product{}}
	for _, p := range seed {
		r.products[p.ID] = p
	}
	return r
}

func (r *Products) ListByProject(_ context.Context, projectID string) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := lo.Filter(lo.Values(r.products), func(p domain.Product, _ int) bool { return p.ProjectID == projectID })
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (r *Products) GetByID(_ context.Context, projectID, id string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok || p.ProjectID != projectID {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *Products) GetBySKU(_ context.Context, projectID, sku string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.products {
		if p.ProjectID == projectID && strings.EqualFold(p.SKU, sku) {
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *Products) Upsert(_ context.Context, p domain.Product) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
	return &p, nil
}

// States implements state.Repository.
type States struct {
	mu     sync.RWMutex
	states map[domain.StateKey]domain.State
}

func NewStates(seed ...domain.State) *States {
	r := &States{states: map[domain.StateKey]domain.State{}}
	for _, s := range seed {
		r.states[s.Key] = s
	}
	return r
}

func (r *States) GetByKey(_ context.Context, projectID string, key domain.StateKey) (*domain.State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[key]
	if !ok || s.ProjectID != projectID {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (r *States) Upsert(_ context.Context, s domain.State) (*domain.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[s.Key] = s
	return &s, nil
}

// BusinessUnits implements businessunit.Repository.
type BusinessUnits struct {
	mu    sync.RWMutex
	units map[string]domain.BusinessUnit
}

func NewBusinessUnits(seed ...domain.BusinessUnit) *BusinessUnits {
	r := &BusinessUnits{units: map[string]domain.BusinessUnit{}}
	for _, u := range seed {
		r.units[u.Key] = u
	}
	return r
}

func (r *BusinessUnits) GetByKey(_ context.Context, projectID, key string) (*domain.BusinessUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[key]
	if !ok || u.ProjectID != projectID {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (r *BusinessUnits) ListByAssociate(_ context.Context, projectID, customerID string) ([]domain.BusinessUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := lo.Filter(lo.Values(r.units), func(u domain.BusinessUnit, _ int) bool {
		_, ok := u.Associate(customerID)
		return ok && u.ProjectID == projectID
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *BusinessUnits) Upsert(_ context.Context, u domain.BusinessUnit) (*domain.BusinessUnit, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u.Version = r.units[u.Key].Version + 1
	r.units[u.Key] = u
	return &u, nil
}
