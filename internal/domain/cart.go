package domain

import (
	"strings"
	"time"
)

// CartState mirrors the commercetools cart states used by this service.
type CartState string

const (
	CartStateActive  CartState = "Active"
	CartStateOrdered CartState = "Ordered"
	CartStateFrozen  CartState = "Frozen"
	CartStateDeleted CartState = "Deleted"
)

// Origin tags who initiated a cart or order.
type Origin string

const (
	OriginCustomer Origin = "Customer"
	OriginMerchant Origin = "Merchant"
)

// InventoryMode controls stock reservation on order placement.
type InventoryMode string

const (
	InventoryModeNone           InventoryMode = "None"
	InventoryModeReserveOnOrder InventoryMode = "ReserveOnOrder"
)

// Custom field names stamped on carts and line items.
const (
	FieldPreBuyCart          = "isPreBuyCart"
	FieldSubscription        = "isSubscription"
	FieldSubscriptionActive  = "isActive"
	FieldSubscriptionOrderID = "originalOrderId"
	FieldSubscriptionProduct = "subscriptionProductId"
	FieldSubscriptionSKU     = "subscriptionSku"
	FieldNextDeliveryDate    = "nextDeliveryDate"
	FieldParentLineItemID    = "parentId"
)

// Address is a postal address. Key identifies it inside a cart's item shipping address set.
type Address struct {
	ID           string `json:"id,omitempty"`
	Key          string `json:"key,omitempty"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	StreetName   string `json:"streetName,omitempty"`
	StreetNumber string `json:"streetNumber,omitempty"`
	PostalCode   string `json:"postalCode,omitempty"`
	City         string `json:"city,omitempty"`
	Country      string `json:"country,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Department   string `json:"department,omitempty"`
}

// ItemShippingTarget assigns a quantity of a line item to an address key.
type ItemShippingTarget struct {
	AddressKey string `json:"addressKey"`
	Quantity   int    `json:"quantity"`
}

// CustomFields is free-form custom data attached to carts and line items.
type CustomFields map[string]interface{}

// Bool reads a boolean field, treating absent or malformed values as false.
func (f CustomFields) Bool(name string) bool {
	if f == nil {
		return false
	}
	switch v := f[name].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

// String reads a string field.
func (f CustomFields) String(name string) string {
	if f == nil {
		return ""
	}
	if v, ok := f[name].(string); ok {
		return v
	}
	return ""
}

// Clone returns a shallow copy.
func (f CustomFields) Clone() CustomFields {
	if f == nil {
		return nil
	}
	out := make(CustomFields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

type LineItem struct {
	ID                   string                 `json:"id"`
	ProductID            string                 `json:"productId"`
	ProductKey           string                 `json:"productKey,omitempty"`
	Name                 string                 `json:"name,omitempty"`
	SKU                  string                 `json:"sku"`
	VariantID            int                    `json:"variantId"`
	Quantity             int                    `json:"quantity"`
	Currency             string                 `json:"currency"`
	UnitPriceCents       int64                  `json:"unitPriceCents"`
	DiscountedPriceCents *int64                 `json:"discountedPriceCents,omitempty"`
	TotalCents           int64                  `json:"totalCents"`
	DistributionChannel  string                 `json:"distributionChannel,omitempty"`
	IsGift               bool                   `json:"isGift,omitempty"`
	ShippingDetails      []ItemShippingTarget   `json:"shippingDetails,omitempty"`
	Custom               CustomFields           `json:"custom,omitempty"`
	Snapshot             map[string]interface{} `json:"snapshot,omitempty"`
	AddedAt              time.Time              `json:"addedAt"`
}

// ParentLineItemID returns the bundle parent this item is attached to, if any.
func (l LineItem) ParentLineItemID() string {
	return l.Custom.String(FieldParentLineItemID)
}

// IsSubscription reports whether the item is a subscription member of a bundle.
func (l LineItem) IsSubscription() bool {
	return l.ParentLineItemID() != "" && l.Custom.Bool(FieldSubscription)
}

// EffectiveUnitPrice is the discounted price when present, else the unit price.
func (l LineItem) EffectiveUnitPrice() int64 {
	if l.DiscountedPriceCents != nil {
		return *l.DiscountedPriceCents
	}
	return l.UnitPriceCents
}

func (l *LineItem) recalculate() {
	if l.IsGift {
		l.TotalCents = 0
		return
	}
	l.TotalCents = l.EffectiveUnitPrice() * int64(l.Quantity)
}

type Cart struct {
	ID                              string        `json:"id"`
	ProjectID                       string        `json:"-"`
	Version                         int           `json:"version"`
	CustomerID                      *string       `json:"customerId,omitempty"`
	AnonymousID                     *string       `json:"-"`
	CustomerEmail                   string        `json:"customerEmail,omitempty"`
	BusinessUnitKey                 string        `json:"businessUnitKey,omitempty"`
	StoreKey                        string        `json:"storeKey,omitempty"`
	Currency                        string        `json:"currency"`
	Country                         string        `json:"country,omitempty"`
	Locale                          string        `json:"locale,omitempty"`
	State                           CartState     `json:"cartState"`
	Origin                          Origin        `json:"origin"`
	InventoryMode                   InventoryMode `json:"inventoryMode"`
	LineItems                       []LineItem    `json:"lineItems"`
	ItemShippingAddresses           []Address     `json:"itemShippingAddresses"`
	ShippingAddress                 *Address      `json:"shippingAddress,omitempty"`
	BillingAddress                  *Address      `json:"billingAddress,omitempty"`
	Custom                          CustomFields  `json:"custom,omitempty"`
	DeleteDaysAfterLastModification int           `json:"deleteDaysAfterLastModification,omitempty"`
	TotalCents                      int64         `json:"totalCents"`
	CreatedAt                       time.Time     `json:"createdAt"`
	LastModifiedAt                  time.Time     `json:"lastModifiedAt"`
}

// IsPreBuy reports whether the cart was created in a pre-buy store.
func (c Cart) IsPreBuy() bool {
	return c.Custom.Bool(FieldPreBuyCart)
}

// IsSubscription reports whether the cart was generated by the subscription scheduler.
func (c Cart) IsSubscription() bool {
	return c.Custom.Bool(FieldSubscription)
}

// OwnedBy reports whether accountID or anonymousID owns the cart.
func (c Cart) OwnedBy(accountID, anonymousID string) bool {
	if accountID != "" && c.CustomerID != nil && *c.CustomerID == accountID {
		return true
	}
	if anonymousID != "" && c.AnonymousID != nil && *c.AnonymousID == anonymousID {
		return true
	}
	return false
}

// LineItem finds a line item by id.
func (c *Cart) LineItem(id string) (*LineItem, bool) {
	for i := range c.LineItems {
		if c.LineItems[i].ID == id {
			return &c.LineItems[i], true
		}
	}
	return nil, false
}

// ItemShippingAddress finds an address in the item shipping address set by key.
func (c Cart) ItemShippingAddress(key string) (Address, bool) {
	for _, a := range c.ItemShippingAddresses {
		if a.Key == key {
			return a, true
		}
	}
	return Address{}, false
}

// TotalLineItemQuantity sums all line item quantities.
func (c Cart) TotalLineItemQuantity() int {
	total := 0
	for _, l := range c.LineItems {
		total += l.Quantity
	}
	return total
}

// Recalculate refreshes line and cart totals.
func (c *Cart) Recalculate() {
	var total int64
	for i := range c.LineItems {
		c.LineItems[i].recalculate()
		total += c.LineItems[i].TotalCents
	}
	c.TotalCents = total
}
