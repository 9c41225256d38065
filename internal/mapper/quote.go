package mapper

import (
	"time"

	"commercetools-b2b/internal/domain"
	"github.com/google/uuid"
)

// DefaultQuote renders quote requests and quotes.
type DefaultQuote struct{}

func (DefaultQuote) QuoteRequest(qr domain.QuoteRequest) QuoteRequest {
	out := QuoteRequest{
		Type:                  "QuoteRequest",
		ID:                    qr.ID,
		Version:               qr.Version,
		CreatedAt:             qr.CreatedAt,
		LastModifiedAt:        qr.LastModifiedAt,
		QuoteRequestState:     string(qr.State),
		Comment:               qr.BuyerComment,
		Customer:              Reference{TypeID: "customer", ID: qr.CustomerID},
		BusinessUnit:          keyRef("business-unit", qr.BusinessUnitKey),
		Store:                 keyRef("store", qr.StoreKey),
		LineItems:             lineItems(qr.LineItems, qr.Currency),
		TotalPrice:            centPrecision(qr.Currency, qr.TotalCents),
		ShippingAddress:       address(qr.ShippingAddress),
		BillingAddress:        address(qr.BillingAddress),
		ItemShippingAddresses: addresses(qr.ItemShippingAddresses),
	}
	if qr.CartID != "" {
		out.Cart = &Reference{TypeID: "cart", ID: qr.CartID}
	}
	if qr.Quote != nil {
		q := DefaultQuote{}.Quote(*qr.Quote)
		out.Quote = &q
	}
	return out
}

func (DefaultQuote) Quote(q domain.Quote) Quote {
	out := Quote{
		Type:           "Quote",
		ID:             q.ID,
		Version:        q.Version,
		CreatedAt:      q.CreatedAt,
		LastModifiedAt: q.LastModifiedAt,
		QuoteState:     string(q.State),
		QuoteRequest:   Reference{TypeID: "quote-request", ID: q.QuoteRequestID},
		Customer:       Reference{TypeID: "customer", ID: q.CustomerID},
		BusinessUnit:   keyRef("business-unit", q.BusinessUnitKey),
		Store:          keyRef("store", q.StoreKey),
		BuyerComment:   q.BuyerComment,
		SellerComment:  q.SellerComment,
		ValidTo:        q.ValidTo,
		LineItems:      lineItems(q.LineItems, q.Currency),
		TotalPrice:     centPrecision(q.Currency, q.TotalCents),
	}
	if q.QuotationCartID != "" {
		out.QuotationCart = &Reference{TypeID: "cart", ID: q.QuotationCartID}
	}
	return out
}

// RequestFromCart freezes the cart contents into a new Submitted request.
// Line items are copied so later cart edits cannot leak into the snapshot.
func (DefaultQuote) RequestFromCart(cart domain.Cart, comment string, now time.Time) domain.QuoteRequest {
	customerID := ""
	if cart.CustomerID != nil {
		customerID = *cart.CustomerID
	}
	lines := make([]domain.LineItem, len(cart.LineItems))
	for i, l := range cart.LineItems {
		l.Custom = l.Custom.Clone()
		l.ShippingDetails = append([]domain.ItemShippingTarget(nil), l.ShippingDetails...)
		lines[i] = l
	}
	return domain.QuoteRequest{
		ID:                    uuid.NewString(),
		ProjectID:             cart.ProjectID,
		Version:               1,
		CustomerID:            customerID,
		CustomerEmail:         cart.CustomerEmail,
		BusinessUnitKey:       cart.BusinessUnitKey,
		StoreKey:              cart.StoreKey,
		CartID:                cart.ID,
		BuyerComment:          comment,
		State:                 domain.QuoteRequestSubmitted,
		Currency:              cart.Currency,
		LineItems:             lines,
		ItemShippingAddresses: append([]domain.Address(nil), cart.ItemShippingAddresses...),
		ShippingAddress:       cart.ShippingAddress,
		BillingAddress:        cart.BillingAddress,
		TotalCents:            cart.TotalCents,
		CreatedAt:             now,
		LastModifiedAt:        now,
	}
}
