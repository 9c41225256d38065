package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/identity"
	"commercetools-b2b/internal/repository/memory"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const projectID = "proj-1"

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func buyer() identity.Context {
	return identity.Context{
		ProjectID: projectID,
		Account:   &domain.Customer{ID: "cust-1", Email: "buyer@example.com"},
		Organization: identity.Organization{
			BusinessUnitKey:     "acme",
			StoreKey:            "acme-store",
			DistributionChannel: "wholesale",
		},
		Session: &identity.Session{Currency: "USD", Country: "US", Locale: "en-US"},
	}
}

func newConsolidator(repo *memory.Carts) *Consolidator {
	c := NewConsolidator(repo, "USD", nil)
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestGetOrCreateActiveCart_CreatesScopedCart(t *testing.T) {
	repo := memory.NewCarts()
	idc := buyer()

	cart, err := newConsolidator(repo).GetOrCreateActiveCart(context.Background(), idc)

	require.NoError(t, err)
	assert.Equal(t, "acme", cart.BusinessUnitKey)
	assert.Equal(t, "acme-store", cart.StoreKey)
	assert.Equal(t, "USD", cart.Currency)
	assert.Equal(t, "cust-1", *cart.CustomerID)
	assert.Equal(t, "buyer@example.com", cart.CustomerEmail)
	assert.Equal(t, domain.OriginCustomer, cart.Origin)
	assert.Equal(t, domain.InventoryModeReserveOnOrder, cart.InventoryMode)
	assert.False(t, cart.IsPreBuy())
	assert.Equal(t, cart.ID, idc.Session.CartID)
	assert.True(t, idc.Session.Changed())
}

func TestGetOrCreateActiveCart_IsIdempotent(t *testing.T) {
	repo := memory.NewCarts()
	svc := newConsolidator(repo)

	first, err := svc.GetOrCreateActiveCart(context.Background(), buyer())
	require.NoError(t, err)
	second, err := svc.GetOrCreateActiveCart(context.Background(), buyer())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, 1, repo.Calls["Create"])
	assert.Zero(t, repo.Calls["Save"])
}

func TestGetOrCreateActiveCart_PreBuyAndSuperUser(t *testing.T) {
	idc := buyer()
	idc.Organization.IsPreBuyStore = true
	idc.Organization.SuperUser = true

	cart, err := newConsolidator(memory.NewCarts()).GetOrCreateActiveCart(context.Background(), idc)

	require.NoError(t, err)
	assert.Equal(t, domain.OriginMerchant, cart.Origin)
	assert.Equal(t, domain.InventoryModeNone, cart.InventoryMode)
	assert.True(t, cart.IsPreBuy())
}

func TestGetOrCreateActiveCart_CurrencyDriftRecreates(t *testing.T) {
	customerID := "cust-1"
	stale := domain.Cart{
		ID: "old", ProjectID: projectID, CustomerID: &customerID, BusinessUnitKey: "acme", StoreKey: "acme-store",
		Currency: "EUR", State: domain.CartStateActive, CreatedAt: fixedNow.Add(-time.Hour),
	}
	repo := memory.NewCarts(stale)

	cart, err := newConsolidator(repo).GetOrCreateActiveCart(context.Background(), buyer())

	require.NoError(t, err)
	assert.NotEqual(t, "old", cart.ID)
	assert.Equal(t, "USD", cart.Currency)
	assert.Equal(t, 1, repo.Calls["Delete"])
	_, err = repo.GetByID(context.Background(), projectID, "old")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetOrCreateActiveCart_LocaleDriftPatchesInPlace(t *testing.T) {
	customerID := "cust-1"
	existing := domain.Cart{
		ID: "c1", ProjectID: projectID, CustomerID: &customerID, BusinessUnitKey: "acme", StoreKey: "acme-store",
		Currency: "USD", Country: "CA", Locale: "fr-CA", State: domain.CartStateActive, CreatedAt: fixedNow,
	}
	repo := memory.NewCarts(existing)

	cart, err := newConsolidator(repo).GetOrCreateActiveCart(context.Background(), buyer())

	require.NoError(t, err)
	assert.Equal(t, "c1", cart.ID)
	assert.Equal(t, 2, cart.Version)
	assert.Equal(t, "US", cart.Country)
	assert.Equal(t, "en-US", cart.Locale)
}

func TestGetOrCreateActiveCart_IgnoresSubscriptionCarts(t *testing.T) {
	customerID := "cust-1"
	sub := domain.Cart{
		ID: "sub", ProjectID: projectID, CustomerID: &customerID, BusinessUnitKey: "acme", StoreKey: "acme-store",
		Currency: "USD", State: domain.CartStateActive, Custom: domain.CustomFields{domain.FieldSubscription: true},
	}
	idc := buyer()
	idc.Session.CartID = "sub"

	cart, err := newConsolidator(memory.NewCarts(sub)).GetOrCreateActiveCart(context.Background(), idc)

	require.NoError(t, err)
	assert.NotEqual(t, "sub", cart.ID)
}

func TestGetOrCreateActiveCart_Preconditions(t *testing.T) {
	svc := newConsolidator(memory.NewCarts())

	idc := buyer()
	idc.Organization.StoreKey = ""
	_, err := svc.GetOrCreateActiveCart(context.Background(), idc)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.GetOrCreateActiveCart(context.Background(), identity.Context{ProjectID: projectID})
	assert.ErrorIs(t, err, domain.ErrAuthRequired)

	idc = buyer()
	idc.Session.Currency = "XYZ1"
	_, err = svc.GetOrCreateActiveCart(context.Background(), idc)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func cartWithLine(qty int) domain.Cart {
	customerID := "cust-1"
	c := domain.Cart{
		ID: "c1", ProjectID: projectID, CustomerID: &customerID, BusinessUnitKey: "acme", StoreKey: "acme-store",
		Currency: "USD", State: domain.CartStateActive,
		LineItems: []domain.LineItem{{ID: "line-a", SKU: "A", Quantity: qty, UnitPriceCents: 100}},
	}
	c.Recalculate()
	return c
}

func fakeAddress(key string) domain.Address {
	return domain.Address{
		Key:        key,
		FirstName:  gofakeit.FirstName(),
		LastName:   gofakeit.LastName(),
		StreetName: gofakeit.Street(),
		City:       gofakeit.City(),
		PostalCode: gofakeit.Zip(),
		Country:    "US",
	}
}

func TestSplitLineItem_DistributesAcrossAddresses(t *testing.T) {
	repo := memory.NewCarts(cartWithLine(3))
	s := NewSplitter(repo)

	cart, err := s.SplitLineItem(context.Background(), buyer(), SplitInput{
		CartID:     "c1",
		Version:    1,
		LineItemID: "line-a",
		Targets:    []SplitTarget{{Address: fakeAddress("X"), Quantity: 1}, {Address: fakeAddress("Y"), Quantity: 2}},
	})

	require.NoError(t, err)
	line, ok := cart.LineItem("line-a")
	require.True(t, ok)
	sum := 0
	for _, target := range line.ShippingDetails {
		_, present := cart.ItemShippingAddress(target.AddressKey)
		assert.True(t, present, "address %s registered", target.AddressKey)
		sum += target.Quantity
	}
	assert.Equal(t, 3, sum)
	assert.Len(t, line.ShippingDetails, 2)
	assert.Len(t, cart.ItemShippingAddresses, 2)
	// two address registrations plus the shipping details write
	assert.Equal(t, 3, repo.Calls["Save"])
	assert.Equal(t, 4, cart.Version)
}

func TestSplitLineItem_ReusesPresentAddresses(t *testing.T) {
	c := cartWithLine(2)
	c.ItemShippingAddresses = []domain.Address{fakeAddress("X")}
	repo := memory.NewCarts(c)

	cart, err := NewSplitter(repo).SplitLineItem(context.Background(), buyer(), SplitInput{
		CartID:     "c1",
		LineItemID: "line-a",
		Targets:    []SplitTarget{{Address: domain.Address{Key: "X"}, Quantity: 1}, {Address: fakeAddress("Z"), Quantity: 1}},
	})

	require.NoError(t, err)
	assert.Len(t, cart.ItemShippingAddresses, 2)
	assert.Equal(t, 2, repo.Calls["Save"])
}

func TestSplitLineItem_RejectsBeforeWriting(t *testing.T) {
	cases := []struct {
		name    string
		targets []SplitTarget
	}{
		{"sum mismatch", []SplitTarget{{Address: fakeAddress("X"), Quantity: 1}, {Address: fakeAddress("Y"), Quantity: 1}}},
		{"missing key", []SplitTarget{{Address: domain.Address{}, Quantity: 3}}},
		{"duplicate key", []SplitTarget{{Address: fakeAddress("X"), Quantity: 1}, {Address: fakeAddress("X"), Quantity: 2}}},
		{"zero quantity", []SplitTarget{{Address: fakeAddress("X"), Quantity: 3}, {Address: fakeAddress("Y"), Quantity: 0}}},
		{"empty", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := memory.NewCarts(cartWithLine(3))
			_, err := NewSplitter(repo).SplitLineItem(context.Background(), buyer(), SplitInput{CartID: "c1", LineItemID: "line-a", Targets: tc.targets})
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Zero(t, repo.Calls["Save"])
		})
	}
}

func TestSplitLineItem_StaleVersionAndForeignCart(t *testing.T) {
	repo := memory.NewCarts(cartWithLine(1))
	s := NewSplitter(repo)
	in := SplitInput{CartID: "c1", Version: 7, LineItemID: "line-a", Targets: []SplitTarget{{Address: fakeAddress("X"), Quantity: 1}}}

	_, err := s.SplitLineItem(context.Background(), buyer(), in)
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, 1, conflict.Actual)

	stranger := buyer()
	stranger.Account = &domain.Customer{ID: "someone-else"}
	in.Version = 0
	_, err = s.SplitLineItem(context.Background(), stranger, in)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdate_AppliesActionsInOneWrite(t *testing.T) {
	repo := memory.NewCarts(cartWithLine(1))
	products := memory.NewProducts(domain.Product{ID: "p-b", ProjectID: projectID, Key: "bolt", SKU: "B", Name: "Bolt", PriceCents: 250, Currency: "USD"})
	svc := New(repo, products)
	addr := fakeAddress("home")

	cart, err := svc.Update(context.Background(), buyer(), "c1", UpdateInput{
		Version: 1,
		Actions: []UpdateAction{
			{Action: "addLineItem", SKU: "B", Quantity: 4},
			{Action: "changeLineItemQuantity", LineItemID: "line-a", Quantity: 2},
			{Action: "setShippingAddress", Address: &addr},
			{Action: "setBillingAddress", Address: &addr},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, cart.Version)
	require.Len(t, cart.LineItems, 2)
	assert.Equal(t, "wholesale", cart.LineItems[1].DistributionChannel)
	assert.Equal(t, int64(2*100+4*250), cart.TotalCents)
	assert.NotNil(t, cart.ShippingAddress)
	assert.Equal(t, 1, repo.Calls["Save"])
}

func TestUpdate_Rejections(t *testing.T) {
	svc := New(memory.NewCarts(cartWithLine(1)), memory.NewProducts())

	_, err := svc.Update(context.Background(), buyer(), "c1", UpdateInput{Version: 2, Actions: []UpdateAction{{Action: "removeLineItem", LineItemID: "line-a"}}})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = svc.Update(context.Background(), buyer(), "c1", UpdateInput{Version: 1, Actions: []UpdateAction{{Action: "addLineItem", SKU: "missing", Quantity: 1}}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Update(context.Background(), buyer(), "c1", UpdateInput{Version: 1, Actions: []UpdateAction{{Action: "setCustomField", Name: domain.FieldPreBuyCart, Value: true}}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Update(context.Background(), buyer(), "c1", UpdateInput{Version: 1, Actions: []UpdateAction{{Action: "explode"}}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
