package cart_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/repository/cart"
	"commercetools-b2b/internal/repository/pgtest"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCart(projectID string) domain.Cart {
	anon := gofakeit.UUID()
	now := time.Now().UTC().Truncate(time.Millisecond)
	c := domain.Cart{
		ID:                              uuid.NewString(),
		ProjectID:                       projectID,
		AnonymousID:                     &anon,
		BusinessUnitKey:                 "acme",
		StoreKey:                        "main",
		Currency:                        "USD",
		Country:                         "US",
		Locale:                          "en-US",
		State:                           domain.CartStateActive,
		Origin:                          domain.OriginCustomer,
		InventoryMode:                   domain.InventoryModeReserveOnOrder,
		CreatedAt:                       now,
		LastModifiedAt:                  now,
		DeleteDaysAfterLastModification: 90,
	}
	err := c.Apply(now, domain.AddLineItem{
		Product:  domain.Product{ID: uuid.NewString(), Key: "bolt", SKU: "SKU-1", Name: "Bolt", PriceCents: 250, Currency: "USD"},
		Quantity: 4,
	})
	if err != nil {
		panic(err)
	}
	return c
}

func TestPostgres_CreateAndGet(t *testing.T) {
	pool := pgtest.Pool(t)
	projectID := pgtest.Project(t, pool)
	repo := cart.NewPostgres(pool)
	ctx := context.Background()

	created, err := repo.Create(ctx, newCart(projectID))
	require.NoError(t, err)
	assert.Equal(t, 1, created.Version)
	require.Len(t, created.LineItems, 1)
	assert.Equal(t, int64(1000), created.TotalCents)
	assert.Equal(t, "SKU-1", created.LineItems[0].SKU)

	_, err = repo.GetByID(ctx, projectID, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgres_SaveChecksVersion(t *testing.T) {
	pool := pgtest.Pool(t)
	projectID := pgtest.Project(t, pool)
	repo := cart.NewPostgres(pool)
	ctx := context.Background()

	created, err := repo.Create(ctx, newCart(projectID))
	require.NoError(t, err)

	updated := *created
	require.NoError(t, updated.Apply(time.Now(), domain.ChangeLineItemQuantity{LineItemID: created.LineItems[0].ID, Quantity: 10}))
	saved, err := repo.Save(ctx, updated, created.Version)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Version)
	assert.Equal(t, 10, saved.LineItems[0].Quantity)

	_, err = repo.Save(ctx, updated, created.Version)
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, 1, conflict.Expected)
	assert.Equal(t, 2, conflict.Actual)

	err = repo.Delete(ctx, projectID, created.ID, 1)
	assert.ErrorIs(t, err, domain.ErrConflict)
	require.NoError(t, repo.Delete(ctx, projectID, created.ID, 2))
	assert.ErrorIs(t, repo.Delete(ctx, projectID, created.ID, 2), domain.ErrNotFound)
}

func TestPostgres_FindActiveIgnoresSubscriptionCarts(t *testing.T) {
	pool := pgtest.Pool(t)
	projectID := pgtest.Project(t, pool)
	repo := cart.NewPostgres(pool)
	ctx := context.Background()

	base := newCart(projectID)
	sub := newCart(projectID)
	sub.AnonymousID = base.AnonymousID
	sub.Custom = domain.CustomFields{domain.FieldSubscription: true}

	_, err := repo.Create(ctx, sub)
	require.NoError(t, err)

	q := cart.ActiveQuery{ProjectID: projectID, AnonymousID: *base.AnonymousID, BusinessUnitKey: "acme", StoreKey: "main"}
	_, err = repo.FindActive(ctx, q)
	require.ErrorIs(t, err, domain.ErrNotFound)

	created, err := repo.Create(ctx, base)
	require.NoError(t, err)
	found, err := repo.FindActive(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	q.StoreKey = "other"
	_, err = repo.FindActive(ctx, q)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgres_DueSubscriptions(t *testing.T) {
	pool := pgtest.Pool(t)
	projectID := pgtest.Project(t, pool)
	repo := cart.NewPostgres(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	due := newCart(projectID)
	due.Custom = domain.CustomFields{
		domain.FieldSubscription:        true,
		domain.FieldSubscriptionActive:  true,
		domain.FieldSubscriptionOrderID: "order-1",
		domain.FieldNextDeliveryDate:    now.Add(-time.Hour).Format(time.RFC3339),
	}
	later := newCart(projectID)
	later.Custom = domain.CustomFields{
		domain.FieldSubscription:        true,
		domain.FieldSubscriptionActive:  true,
		domain.FieldSubscriptionOrderID: "order-1",
		domain.FieldNextDeliveryDate:    now.Add(48 * time.Hour).Format(time.RFC3339),
	}
	_, err := repo.Create(ctx, due)
	require.NoError(t, err)
	_, err = repo.Create(ctx, later)
	require.NoError(t, err)

	carts, err := repo.ListDueSubscriptions(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, carts, 1)
	assert.Equal(t, due.ID, carts[0].ID)

	byOrder, err := repo.ListSubscriptionsByOrder(ctx, projectID, "order-1")
	require.NoError(t, err)
	assert.Len(t, byOrder, 2)
}
