package mapper

import (
	"encoding/json"
	"strconv"
	"strings"

	"commercetools-b2b/internal/domain"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// DefaultCart renders carts and orders in the commercetools shape.
type DefaultCart struct{}

func (DefaultCart) Cart(cart domain.Cart) Cart {
	customerID := ""
	if cart.CustomerID != nil {
		customerID = *cart.CustomerID
	}
	anonymousID := ""
	if cart.AnonymousID != nil {
		anonymousID = *cart.AnonymousID
	}
	state := string(cart.State)
	if state == "" {
		state = string(domain.CartStateActive)
	}
	shippingMode := "Single"
	if len(cart.ItemShippingAddresses) > 0 {
		shippingMode = "Multiple"
	}
	actor := actorFor(customerID)
	return Cart{
		Type:                            "Cart",
		ID:                              cart.ID,
		Version:                         cart.Version,
		CreatedAt:                       cart.CreatedAt,
		LastModifiedAt:                  cart.LastModifiedAt,
		CreatedBy:                       actor,
		LastModifiedBy:                  actor,
		CustomerID:                      customerID,
		CustomerEmail:                   cart.CustomerEmail,
		AnonymousID:                     anonymousID,
		BusinessUnit:                    keyRef("business-unit", cart.BusinessUnitKey),
		Store:                           keyRef("store", cart.StoreKey),
		Country:                         cart.Country,
		Locale:                          cart.Locale,
		LineItems:                       lineItems(cart.LineItems, cart.Currency),
		CartState:                       state,
		TotalPrice:                      centPrecision(cart.Currency, cart.TotalCents),
		TotalLineItemQuantity:           cart.TotalLineItemQuantity(),
		ShippingAddress:                 address(cart.ShippingAddress),
		BillingAddress:                  address(cart.BillingAddress),
		ItemShippingAddresses:           addresses(cart.ItemShippingAddresses),
		ShippingMode:                    shippingMode,
		InventoryMode:                   string(cart.InventoryMode),
		TaxMode:                         "Platform",
		Origin:                          string(cart.Origin),
		DeleteDaysAfterLastModification: cart.DeleteDaysAfterLastModification,
		Custom:                          custom(cart.Custom),
	}
}

func (DefaultCart) Order(o domain.Order) Order {
	customerID := ""
	if o.CustomerID != nil {
		customerID = *o.CustomerID
	}
	var state *Reference
	if !o.State.IsZero() {
		state = &Reference{TypeID: "state", Key: o.State.String()}
	}
	returns := lo.Map(o.ReturnInfo, func(info domain.ReturnInfo, _ int) ReturnInfo {
		return ReturnInfo{
			ReturnTrackingID: info.ReturnTrackingID,
			ReturnDate:       info.ReturnDate,
			Items: lo.Map(info.Items, func(item domain.ReturnItem, _ int) ReturnItem {
				return ReturnItem{
					ID:            item.ID,
					Type:          "LineItemReturnItem",
					LineItemID:    item.LineItemID,
					Quantity:      item.Quantity,
					Comment:       item.Comment,
					ShipmentState: item.ShipmentState,
					PaymentState:  "Initial",
				}
			}),
		}
	})
	return Order{
		Type:                  "Order",
		ID:                    o.ID,
		Version:               o.Version,
		OrderNumber:           o.OrderNumber,
		PurchaseOrderNumber:   o.PurchaseOrderNumber,
		CreatedAt:             o.CreatedAt,
		LastModifiedAt:        o.LastModifiedAt,
		CustomerID:            customerID,
		CustomerEmail:         o.CustomerEmail,
		BusinessUnit:          keyRef("business-unit", o.BusinessUnitKey),
		Store:                 keyRef("store", o.StoreKey),
		Cart:                  &Reference{TypeID: "cart", ID: o.CartID},
		Country:               o.Country,
		Locale:                o.Locale,
		LineItems:             lineItems(o.LineItems, o.Currency),
		TotalPrice:            centPrecision(o.Currency, o.TotalCents),
		OrderState:            string(o.OrderState),
		State:                 state,
		ShippingAddress:       address(o.ShippingAddress),
		BillingAddress:        address(o.BillingAddress),
		ItemShippingAddresses: addresses(o.ItemShippingAddresses),
		ReturnInfo:            returns,
		InventoryMode:         string(o.InventoryMode),
		Origin:                string(o.Origin),
		Custom:                custom(o.Custom),
	}
}

type ruleLineItem struct {
	ID                  string                 `json:"id"`
	SKU                 string                 `json:"sku"`
	ProductKey          string                 `json:"productKey"`
	Quantity            int                    `json:"quantity"`
	Price               float64                `json:"price"`
	TotalPrice          float64                `json:"totalPrice"`
	DistributionChannel string                 `json:"distributionChannel"`
	IsGift              bool                   `json:"isGift"`
	Custom              map[string]interface{} `json:"custom"`
}

type ruleCart struct {
	ID                    string                 `json:"id"`
	Currency              string                 `json:"currency"`
	Country               string                 `json:"country"`
	BusinessUnitKey       string                 `json:"businessUnitKey"`
	StoreKey              string                 `json:"storeKey"`
	Origin                string                 `json:"origin"`
	CustomerEmail         string                 `json:"customerEmail"`
	TotalPrice            float64                `json:"totalPrice"`
	TotalCents            int64                  `json:"totalCents"`
	TotalLineItemQuantity int                    `json:"totalLineItemQuantity"`
	LineItemCount         int                    `json:"lineItemCount"`
	IsPreBuy              bool                   `json:"isPreBuy"`
	LineItems             []ruleLineItem         `json:"lineItems"`
	Custom                map[string]interface{} `json:"custom"`
}

// RuleInput exposes amounts in major units so rules read "totalPrice > 5000"
// as currency, not cents. The result is plain JSON data.
func (DefaultCart) RuleInput(cart domain.Cart) (map[string]interface{}, error) {
	rc := ruleCart{
		ID:                    cart.ID,
		Currency:              cart.Currency,
		Country:               cart.Country,
		BusinessUnitKey:       cart.BusinessUnitKey,
		StoreKey:              cart.StoreKey,
		Origin:                string(cart.Origin),
		CustomerEmail:         cart.CustomerEmail,
		TotalPrice:            majorUnits(cart.TotalCents),
		TotalCents:            cart.TotalCents,
		TotalLineItemQuantity: cart.TotalLineItemQuantity(),
		LineItemCount:         len(cart.LineItems),
		IsPreBuy:              cart.IsPreBuy(),
		Custom:                orEmpty(cart.Custom),
		LineItems: lo.Map(cart.LineItems, func(l domain.LineItem, _ int) ruleLineItem {
			return ruleLineItem{
				ID:                  l.ID,
				SKU:                 l.SKU,
				ProductKey:          l.ProductKey,
				Quantity:            l.Quantity,
				Price:               majorUnits(l.EffectiveUnitPrice()),
				TotalPrice:          majorUnits(l.TotalCents),
				DistributionChannel: l.DistributionChannel,
				IsGift:              l.IsGift,
				Custom:              orEmpty(l.Custom),
			}
		}),
	}
	raw, err := json.Marshal(map[string]interface{}{"cart": rc})
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func majorUnits(cents int64) float64 {
	return decimal.New(cents, -2).InexactFloat64()
}

func orEmpty(f domain.CustomFields) map[string]interface{} {
	if f == nil {
		return map[string]interface{}{}
	}
	return f
}

func lineItems(lines []domain.LineItem, currency string) []LineItem {
	out := make([]LineItem, 0, len(lines))
	for _, line := range lines {
		out = append(out, lineItem(line, currency))
	}
	return out
}

func lineItem(line domain.LineItem, cartCurrency string) LineItem {
	snap := parseSnapshot(line.Snapshot)
	name := line.Name
	if name == "" {
		name = snap.productName
	}
	if name == "" {
		name = line.ProductKey
	}
	slug := snap.productSlug
	if slug == "" {
		slug = line.ProductKey
	}
	currency := line.Currency
	if currency == "" {
		currency = cartCurrency
	}
	price := Price{Value: centPrecision(currency, line.UnitPriceCents)}

	out := LineItem{
		ID:         line.ID,
		ProductID:  line.ProductID,
		ProductKey: line.ProductKey,
		Name:       map[string]string{"en": name},
		Variant: Variant{
			ID:         line.VariantID,
			SKU:        line.SKU,
			Prices:     []Price{price},
			Images:     images(snap.images),
			Assets:     []interface{}{},
			Attributes: []Attribute{},
		},
		Price:        price,
		Quantity:     line.Quantity,
		TotalPrice:   centPrecision(currency, line.TotalCents),
		LineItemMode: "Standard",
		PriceMode:    "Platform",
		Custom:       custom(line.Custom),
		AddedAt:      line.AddedAt,
	}
	if slug != "" {
		out.ProductSlug = map[string]string{"en": slug}
	}
	if line.IsGift {
		out.LineItemMode = "GiftLineItem"
	}
	if line.DiscountedPriceCents != nil {
		m := centPrecision(currency, *line.DiscountedPriceCents)
		out.DiscountedPrice = &m
	}
	if line.DistributionChannel != "" {
		out.DistributionChannel = &Reference{TypeID: "channel", Key: line.DistributionChannel}
	}
	if len(line.ShippingDetails) > 0 {
		sum := 0
		targets := lo.Map(line.ShippingDetails, func(t domain.ItemShippingTarget, _ int) ItemShippingTarget {
			sum += t.Quantity
			return ItemShippingTarget{AddressKey: t.AddressKey, Quantity: t.Quantity}
		})
		out.ShippingDetails = &ItemShippingDetails{Targets: targets, Valid: sum == line.Quantity}
	}
	return out
}

type lineSnapshot struct {
	productName string
	productSlug string
	images      []string
}

func parseSnapshot(raw map[string]interface{}) lineSnapshot {
	var out lineSnapshot
	if raw == nil {
		return out
	}
	if v, ok := raw["productName"].(string); ok {
		out.productName = v
	}
	if v, ok := raw["productSlug"].(string); ok {
		out.productSlug = v
	}
	out.images = stringList(raw["images"])
	return out
}

func stringList(raw interface{}) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func images(urls []string) []Image {
	out := []Image{}
	for _, u := range urls {
		if strings.TrimSpace(u) != "" {
			out = append(out, Image{URL: u})
		}
	}
	return out
}

func keyRef(typeID, key string) *Reference {
	if key == "" {
		return nil
	}
	return &Reference{TypeID: typeID, Key: key}
}

func address(a *domain.Address) *Address {
	if a == nil {
		return nil
	}
	out := Address(*a)
	return &out
}

func addresses(in []domain.Address) []Address {
	return lo.Map(in, func(a domain.Address, _ int) Address { return Address(a) })
}

func custom(fields domain.CustomFields) *CustomFields {
	if len(fields) == 0 {
		return nil
	}
	return &CustomFields{Fields: fields}
}

// intAttribute reads a numeric attribute stored as a JSON number or numeric string.
func intAttribute(attrs map[string]interface{}, name string) (int, bool) {
	switch v := attrs[name].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	case map[string]interface{}:
		// enum / lenum attribute values carry a key
		if key, ok := v["key"].(string); ok {
			n, err := strconv.Atoi(key)
			return n, err == nil
		}
	}
	return 0, false
}
