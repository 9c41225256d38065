package customer_test

import (
	"context"
	"testing"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/repository/customer"
	"commercetools-b2b/internal/repository/pgtest"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeCustomer(projectID string) domain.Customer {
	return domain.Customer{
		ProjectID:    projectID,
		Email:        gofakeit.Email(),
		PasswordHash: "hash",
		FirstName:    gofakeit.FirstName(),
		LastName:     gofakeit.LastName(),
		Addresses:    []domain.CustomerAddress{{ID: "a1", Country: "US", City: gofakeit.City()}},
	}
}

func TestPostgres_CreateRejectsDuplicateEmail(t *testing.T) {
	pool := pgtest.Pool(t)
	projectID := pgtest.Project(t, pool)
	repo := customer.NewPostgres(pool, nil)
	ctx := context.Background()

	c := fakeCustomer(projectID)
	created, err := repo.Create(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 1, created.Version)
	assert.False(t, created.IsEmailVerified)
	require.Len(t, created.Addresses, 1)

	_, err = repo.Create(ctx, c)
	assert.ErrorIs(t, err, domain.ErrAccountAlreadyExists)

	verified, err := repo.MarkEmailVerified(ctx, projectID, created.ID)
	require.NoError(t, err)
	assert.True(t, verified.IsEmailVerified)
	assert.Equal(t, 2, verified.Version)
}

func TestPostgres_CreateWithCart(t *testing.T) {
	pool := pgtest.Pool(t)
	projectID := pgtest.Project(t, pool)
	repo := customer.NewPostgres(pool, nil)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `INSERT INTO carts (id, project_id, anonymous_id, currency) VALUES (gen_random_uuid(), $1, 'anon-1', 'USD')`, projectID)
	require.NoError(t, err)

	created, err := repo.CreateWithCart(ctx, fakeCustomer(projectID), "anon-1")
	require.NoError(t, err)

	var owner string
	require.NoError(t, pool.QueryRow(ctx, `SELECT customer_id::text FROM carts WHERE project_id = $1`, projectID).Scan(&owner))
	assert.Equal(t, created.ID, owner)

	c := fakeCustomer(projectID)
	_, err = repo.CreateWithCart(ctx, c, "anon-1")
	assert.ErrorIs(t, err, domain.ErrCartNotAssignable)
	_, err = repo.GetByEmail(ctx, projectID, c.Email)
	assert.ErrorIs(t, err, domain.ErrNotFound, "customer insert must roll back with the failed claim")
}
