// Package mapper converts domain entities to their commercetools wire shapes
// and to the derived inputs other components consume. Each entity has its own
// capability interface; components receive the implementation they need at
// construction time.
package mapper

import (
	"time"

	"commercetools-b2b/internal/domain"
)

// CartMapper shapes carts and orders.
type CartMapper interface {
	Cart(cart domain.Cart) Cart
	Order(order domain.Order) Order
	// RuleInput is the data context workflow rules evaluate against.
	RuleInput(cart domain.Cart) (map[string]interface{}, error)
}

// AccountMapper shapes customers.
type AccountMapper interface {
	Customer(c domain.Customer) Customer
}

// ProductMapper shapes products and reads subscription attributes.
type ProductMapper interface {
	Product(p domain.Product) Product
	// SubscriptionInterval returns the recurrence in days when the product carries one.
	SubscriptionInterval(p domain.Product) (days int, ok bool)
}

// QuoteMapper shapes quote entities and freezes carts into quote requests.
type QuoteMapper interface {
	QuoteRequest(qr domain.QuoteRequest) QuoteRequest
	Quote(q domain.Quote) Quote
	RequestFromCart(cart domain.Cart, comment string, now time.Time) domain.QuoteRequest
}

// Set bundles one implementation per entity.
type Set struct {
	Cart    CartMapper
	Account AccountMapper
	Product ProductMapper
	Quote   QuoteMapper
}

// Default returns the commercetools-shaped implementations.
func Default() Set {
	return Set{
		Cart:    DefaultCart{},
		Account: DefaultAccount{},
		Product: DefaultProduct{},
		Quote:   DefaultQuote{},
	}
}
