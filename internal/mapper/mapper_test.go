package mapper_test

import (
	"encoding/json"
	"testing"
	"time"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/mapper"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCart() domain.Cart {
	customerID := "cust-1"
	discounted := int64(900)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	c := domain.Cart{
		ID:              "cart-1",
		Version:         3,
		CustomerID:      &customerID,
		BusinessUnitKey: "acme",
		StoreKey:        "acme-store",
		Currency:        "USD",
		Country:         "US",
		State:           domain.CartStateActive,
		Origin:          domain.OriginCustomer,
		InventoryMode:   domain.InventoryModeReserveOnOrder,
		LineItems: []domain.LineItem{
			{
				ID:                   "line-1",
				ProductID:            "prod-1",
				ProductKey:           "drill",
				SKU:                  "DRL-1",
				VariantID:            1,
				Quantity:             2,
				UnitPriceCents:       1000,
				DiscountedPriceCents: &discounted,
				DistributionChannel:  "wholesale",
				ShippingDetails:      []domain.ItemShippingTarget{{AddressKey: "a", Quantity: 1}},
				Snapshot:             map[string]interface{}{"productName": "Drill", "images": []interface{}{"https://img/1.png", " "}},
			},
			{ID: "line-2", SKU: "GFT-1", Quantity: 1, UnitPriceCents: 500, IsGift: true},
		},
		ItemShippingAddresses: []domain.Address{{Key: "a", Country: "US"}},
		Custom:                domain.CustomFields{domain.FieldPreBuyCart: true},
		CreatedAt:             now,
		LastModifiedAt:        now,
	}
	c.Recalculate()
	return c
}

func TestCart_RendersCommercetoolsShape(t *testing.T) {
	out := mapper.DefaultCart{}.Cart(sampleCart())

	assert.Equal(t, "Cart", out.Type)
	assert.Equal(t, "Multiple", out.ShippingMode)
	assert.Equal(t, &mapper.Reference{TypeID: "business-unit", Key: "acme"}, out.BusinessUnit)
	assert.Equal(t, int64(1800), out.TotalPrice.CentAmount)
	assert.Equal(t, 3, out.TotalLineItemQuantity)
	require.NotNil(t, out.CreatedBy)
	assert.Equal(t, "cust-1", out.CreatedBy.Customer.ID)

	first := out.LineItems[0]
	assert.Equal(t, map[string]string{"en": "Drill"}, first.Name)
	assert.Equal(t, []mapper.Image{{URL: "https://img/1.png"}}, first.Variant.Images)
	require.NotNil(t, first.DiscountedPrice)
	assert.Equal(t, int64(900), first.DiscountedPrice.CentAmount)
	require.NotNil(t, first.ShippingDetails)
	assert.False(t, first.ShippingDetails.Valid, "one of two units targeted")
	assert.Equal(t, "GiftLineItem", out.LineItems[1].LineItemMode)
}

func TestCart_JSONIsStable(t *testing.T) {
	c := sampleCart()
	c.LineItems = c.LineItems[1:]
	c.ItemShippingAddresses = nil
	c.CustomerID = nil
	c.Custom = nil
	c.Recalculate()

	raw, err := json.Marshal(mapper.DefaultCart{}.Cart(c))
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &got))

	want := map[string]interface{}{
		"type":           "Cart",
		"id":             "cart-1",
		"version":        float64(3),
		"createdAt":      "2026-05-01T10:00:00Z",
		"lastModifiedAt": "2026-05-01T10:00:00Z",
		"businessUnit":   map[string]interface{}{"typeId": "business-unit", "key": "acme"},
		"store":          map[string]interface{}{"typeId": "store", "key": "acme-store"},
		"country":        "US",
		"lineItems": []interface{}{map[string]interface{}{
			"id":        "line-2",
			"productId": "",
			"name":      map[string]interface{}{"en": ""},
			"variant": map[string]interface{}{
				"id":         float64(0),
				"sku":        "GFT-1",
				"prices":     []interface{}{map[string]interface{}{"value": money(500)}},
				"images":     []interface{}{},
				"assets":     []interface{}{},
				"attributes": []interface{}{},
			},
			"price":        map[string]interface{}{"value": money(500)},
			"quantity":     float64(1),
			"totalPrice":   money(0),
			"lineItemMode": "GiftLineItem",
			"priceMode":    "Platform",
			"addedAt":      "0001-01-01T00:00:00Z",
		}},
		"cartState":             "Active",
		"totalPrice":            money(0),
		"totalLineItemQuantity": float64(1),
		"itemShippingAddresses": []interface{}{},
		"shippingMode":          "Single",
		"inventoryMode":         "ReserveOnOrder",
		"taxMode":               "Platform",
		"origin":                "Customer",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("cart json mismatch (-want +got):\n%s", diff)
	}
}

func money(cents float64) map[string]interface{} {
	return map[string]interface{}{"type": "centPrecision", "currencyCode": "USD", "centAmount": cents, "fractionDigits": float64(2)}
}

func TestRuleInput_UsesMajorUnitsAndPlainJSON(t *testing.T) {
	in, err := mapper.DefaultCart{}.RuleInput(sampleCart())
	require.NoError(t, err)

	cart, ok := in["cart"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 18.0, cart["totalPrice"])
	assert.Equal(t, float64(1800), cart["totalCents"])
	assert.Equal(t, true, cart["isPreBuy"])
	assert.Equal(t, "acme", cart["businessUnitKey"])

	lines := cart["lineItems"].([]interface{})
	require.Len(t, lines, 2)
	assert.Equal(t, 9.0, lines[0].(map[string]interface{})["price"])
	assert.Equal(t, map[string]interface{}{}, lines[1].(map[string]interface{})["custom"])
}

func TestOrder_StateReference(t *testing.T) {
	o := domain.Order{ID: "o-1", CartID: "cart-1", Currency: "EUR", OrderState: domain.OrderStateOpen, State: "pending-review"}

	out := mapper.DefaultCart{}.Order(o)

	assert.Equal(t, &mapper.Reference{TypeID: "state", Key: "pending-review"}, out.State)
	assert.Equal(t, &mapper.Reference{TypeID: "cart", ID: "cart-1"}, out.Cart)
	assert.Equal(t, "Open", out.OrderState)
	assert.Empty(t, out.ReturnInfo)
}

func TestSubscriptionInterval(t *testing.T) {
	m := mapper.DefaultProduct{}
	cases := []struct {
		name  string
		attrs map[string]interface{}
		days  int
		ok    bool
	}{
		{"number", map[string]interface{}{"interval": float64(30)}, 30, true},
		{"string", map[string]interface{}{"interval": " 14 "}, 14, true},
		{"enum", map[string]interface{}{"interval": map[string]interface{}{"key": "7", "label": "Weekly"}}, 7, true},
		{"zero", map[string]interface{}{"interval": 0}, 0, false},
		{"garbage", map[string]interface{}{"interval": "monthly"}, 0, false},
		{"missing", nil, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			days, ok := m.SubscriptionInterval(domain.Product{Attributes: tc.attrs})
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.days, days)
		})
	}
}

func TestProduct_SkipsImagesAttribute(t *testing.T) {
	p := domain.Product{
		Key: "Power Drill", SKU: "DRL-1", Name: "Drill", Currency: "USD", PriceCents: 1999,
		Attributes: map[string]interface{}{"interval": 30, "images": []string{"https://img/1.png"}, "color": "red"},
	}

	out := mapper.DefaultProduct{}.Product(p)

	assert.Equal(t, map[string]string{"en": "power-drill"}, out.Slug)
	assert.Equal(t, []mapper.Attribute{{Name: "color", Value: "red"}, {Name: "interval", Value: 30}}, out.MasterVariant.Attributes)
	assert.Len(t, out.MasterVariant.Images, 1)
}

func TestCustomer_MasksPassword(t *testing.T) {
	out := mapper.DefaultAccount{}.Customer(domain.Customer{ID: "c", Email: "a@b.c", PasswordHash: "$2a$10$abcdef"})

	assert.Equal(t, 1, out.Version)
	assert.Regexp(t, `^\*\*\*\*.{4}$`, out.Password)
	assert.Equal(t, []string{}, out.ShippingAddressIDs)
}

func TestRequestFromCart_CopiesSnapshot(t *testing.T) {
	c := sampleCart()
	now := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)

	qr := mapper.DefaultQuote{}.RequestFromCart(c, "bulk please", now)
	c.LineItems[0].Custom = domain.CustomFields{"x": 1}
	c.LineItems[0].ShippingDetails[0].Quantity = 99

	assert.NotEmpty(t, qr.ID)
	assert.Equal(t, domain.QuoteRequestSubmitted, qr.State)
	assert.Equal(t, "cust-1", qr.CustomerID)
	assert.Equal(t, "cart-1", qr.CartID)
	assert.Equal(t, int64(1800), qr.TotalCents)
	assert.Nil(t, qr.LineItems[0].Custom)
	assert.Equal(t, 1, qr.LineItems[0].ShippingDetails[0].Quantity)

	wire := mapper.DefaultQuote{}.QuoteRequest(qr)
	assert.Equal(t, "bulk please", wire.Comment)
	assert.Equal(t, mapper.Reference{TypeID: "customer", ID: "cust-1"}, wire.Customer)
}

func TestPage_ConvertsResults(t *testing.T) {
	p := domain.NewPage([]domain.Quote{{ID: "q1", Currency: "USD"}}, 1, 0, 3)

	out := mapper.Page(p, mapper.DefaultQuote{}.Quote)

	assert.Equal(t, "offset:1", out.NextCursor)
	assert.Equal(t, 3, out.Total)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "q1", out.Results[0].ID)
}
