package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CartAction is a single update action applied to a cart in memory before a versioned write.
type CartAction interface {
	Name() string
	apply(c *Cart, now time.Time) error
}

// Apply runs actions in order and recalculates totals. The cart is left
// partially modified when an action fails; callers discard it.
func (c *Cart) Apply(now time.Time, actions ...CartAction) error {
	for _, a := range actions {
		if err := a.apply(c, now); err != nil {
			return fmt.Errorf("%s: %w", a.Name(), err)
		}
	}
	c.Recalculate()
	c.LastModifiedAt = now
	return nil
}

type AddLineItem struct {
	Product             Product
	Quantity            int
	DistributionChannel string
	Custom              CustomFields
}

func (AddLineItem) Name() string { return "addLineItem" }

func (a AddLineItem) apply(c *Cart, now time.Time) error {
	if a.Quantity <= 0 {
		return NewValidation("quantity", "quantity must be positive")
	}
	if a.Product.Currency != "" && c.Currency != "" && !strings.EqualFold(a.Product.Currency, c.Currency) {
		return NewValidationCode("CurrencyMismatch", "sku", fmt.Sprintf("product %s is priced in %s, cart uses %s", a.Product.SKU, a.Product.Currency, c.Currency))
	}
	if len(a.Custom) == 0 {
		for i := range c.LineItems {
			l := &c.LineItems[i]
			if l.SKU == a.Product.SKU && l.DistributionChannel == a.DistributionChannel && len(l.Custom) == 0 {
				l.Quantity += a.Quantity
				l.ShippingDetails = nil
				return nil
			}
		}
	}
	currency := a.Product.Currency
	if currency == "" {
		currency = c.Currency
	}
	c.LineItems = append(c.LineItems, LineItem{
		ID:                  uuid.NewString(),
		ProductID:           a.Product.ID,
		ProductKey:          a.Product.Key,
		Name:                a.Product.Name,
		SKU:                 a.Product.SKU,
		VariantID:           1,
		Quantity:            a.Quantity,
		Currency:            currency,
		UnitPriceCents:      a.Product.PriceCents,
		DistributionChannel: a.DistributionChannel,
		Custom:              a.Custom.Clone(),
		Snapshot:            a.Product.Snapshot(),
		AddedAt:             now,
	})
	return nil
}

type ChangeLineItemQuantity struct {
	LineItemID string
	Quantity   int
}

func (ChangeLineItemQuantity) Name() string { return "changeLineItemQuantity" }

func (a ChangeLineItemQuantity) apply(c *Cart, now time.Time) error {
	if a.Quantity < 0 {
		return NewValidation("quantity", "quantity must not be negative")
	}
	if a.Quantity == 0 {
		return RemoveLineItem{LineItemID: a.LineItemID}.apply(c, now)
	}
	line, ok := c.LineItem(a.LineItemID)
	if !ok {
		return ErrNotFound
	}
	line.Quantity = a.Quantity
	line.ShippingDetails = nil
	return nil
}

type RemoveLineItem struct {
	LineItemID string
}

func (RemoveLineItem) Name() string { return "removeLineItem" }

func (a RemoveLineItem) apply(c *Cart, _ time.Time) error {
	for i := range c.LineItems {
		if c.LineItems[i].ID == a.LineItemID {
			c.LineItems = append(c.LineItems[:i], c.LineItems[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

type SetShippingAddress struct {
	Address *Address
}

func (SetShippingAddress) Name() string { return "setShippingAddress" }

func (a SetShippingAddress) apply(c *Cart, _ time.Time) error {
	c.ShippingAddress = a.Address
	return nil
}

type SetBillingAddress struct {
	Address *Address
}

func (SetBillingAddress) Name() string { return "setBillingAddress" }

func (a SetBillingAddress) apply(c *Cart, _ time.Time) error {
	c.BillingAddress = a.Address
	return nil
}

type SetCountry struct {
	Country string
}

func (SetCountry) Name() string { return "setCountry" }

func (a SetCountry) apply(c *Cart, _ time.Time) error {
	c.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	return nil
}

type SetLocale struct {
	Locale string
}

func (SetLocale) Name() string { return "setLocale" }

func (a SetLocale) apply(c *Cart, _ time.Time) error {
	c.Locale = strings.TrimSpace(a.Locale)
	return nil
}

type SetCustomerEmail struct {
	Email string
}

func (SetCustomerEmail) Name() string { return "setCustomerEmail" }

func (a SetCustomerEmail) apply(c *Cart, _ time.Time) error {
	c.CustomerEmail = strings.ToLower(strings.TrimSpace(a.Email))
	return nil
}

type SetCustomerID struct {
	CustomerID string
}

func (SetCustomerID) Name() string { return "setCustomerId" }

func (a SetCustomerID) apply(c *Cart, _ time.Time) error {
	if a.CustomerID == "" {
		c.CustomerID = nil
		return nil
	}
	id := a.CustomerID
	c.CustomerID = &id
	c.AnonymousID = nil
	return nil
}

type AddItemShippingAddress struct {
	Address Address
}

func (AddItemShippingAddress) Name() string { return "addItemShippingAddress" }

func (a AddItemShippingAddress) apply(c *Cart, _ time.Time) error {
	key := strings.TrimSpace(a.Address.Key)
	if key == "" {
		return NewValidation("address.key", "item shipping address requires a key")
	}
	if _, exists := c.ItemShippingAddress(key); exists {
		return NewValidationCode("DuplicateField", "address.key", fmt.Sprintf("address %q already present", key))
	}
	addr := a.Address
	addr.Key = key
	c.ItemShippingAddresses = append(c.ItemShippingAddresses, addr)
	return nil
}

type SetLineItemShippingDetails struct {
	LineItemID string
	Targets    []ItemShippingTarget
}

func (SetLineItemShippingDetails) Name() string { return "setLineItemShippingDetails" }

func (a SetLineItemShippingDetails) apply(c *Cart, _ time.Time) error {
	line, ok := c.LineItem(a.LineItemID)
	if !ok {
		return ErrNotFound
	}
	sum := 0
	targets := make([]ItemShippingTarget, 0, len(a.Targets))
	for _, t := range a.Targets {
		if _, ok := c.ItemShippingAddress(t.AddressKey); !ok {
			return NewValidationCode("InvalidItemShippingDetails", "addressKey", fmt.Sprintf("address %q is not an item shipping address of the cart", t.AddressKey))
		}
		sum += t.Quantity
		targets = append(targets, t)
	}
	if sum != line.Quantity {
		return NewValidationCode("InvalidItemShippingDetails", "targets", fmt.Sprintf("target quantities sum to %d, line item quantity is %d", sum, line.Quantity))
	}
	line.ShippingDetails = targets
	return nil
}

type SetCustomField struct {
	Field string
	Value interface{}
}

func (SetCustomField) Name() string { return "setCustomField" }

func (a SetCustomField) apply(c *Cart, _ time.Time) error {
	if c.Custom == nil {
		c.Custom = CustomFields{}
	}
	if a.Value == nil {
		delete(c.Custom, a.Field)
		return nil
	}
	c.Custom[a.Field] = a.Value
	return nil
}

type SetDeleteDaysAfterLastModification struct {
	Days int
}

func (SetDeleteDaysAfterLastModification) Name() string { return "setDeleteDaysAfterLastModification" }

func (a SetDeleteDaysAfterLastModification) apply(c *Cart, _ time.Time) error {
	if a.Days <= 0 {
		return NewValidation("deleteDaysAfterLastModification", "must be positive")
	}
	c.DeleteDaysAfterLastModification = a.Days
	return nil
}

type ChangeCartState struct {
	State CartState
}

func (ChangeCartState) Name() string { return "changeCartState" }

func (a ChangeCartState) apply(c *Cart, _ time.Time) error {
	if c.State != CartStateActive && a.State != CartStateActive {
		return NewTransition("cart", string(c.State), string(a.State))
	}
	c.State = a.State
	return nil
}
