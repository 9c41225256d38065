package customer

import (
	"context"
	"log"
	"os"
	"testing"

	"commercetools-b2b/internal/identity"
	cartrepo "commercetools-b2b/internal/repository/cart"
	customerrepo "commercetools-b2b/internal/repository/customer"
	"commercetools-b2b/internal/repository/pgtest"
	tokenrepo "commercetools-b2b/internal/repository/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignupAndLogin_Integration(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Pool(t)
	projectID := pgtest.Project(t, pool)

	repo := customerrepo.NewPostgres(pool, log.New(os.Stdout, "[test] ", log.LstdFlags))
	svc := New(repo, tokenrepo.NewPostgres(pool), cartrepo.NewPostgres(pool), nil, nil)

	password := "Abcdefg1"
	idc := identity.Context{ProjectID: projectID, Session: &identity.Session{}}
	cust, err := svc.Signup(ctx, idc, SignupInput{
		Email:     "integration@example.com",
		Password:  password,
		FirstName: "Int",
		LastName:  "User",
		Addresses: []AddressInput{
			{Country: "US", StreetName: "Main", PostalCode: "00000", City: "Testville"},
		},
		DefaultShippingAddress: intPtr(0),
		DefaultBillingAddress:  intPtr(0),
	})
	require.NoError(t, err)
	require.NotEmpty(t, cust.ID)
	assert.Equal(t, cust.Addresses[0].ID, cust.DefaultShippingAddressID)

	idc.AnonymousID = "anon-without-cart"
	_, access, refresh, err := svc.Login(ctx, idc, "integration@example.com", password)
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)

	found, err := svc.LookupByToken(ctx, projectID, access)
	require.NoError(t, err)
	assert.Equal(t, cust.ID, found.ID)
}

func intPtr(v int) *int {
	return &v
}
