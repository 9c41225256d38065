package businessunit_test

import (
	"context"
	"testing"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/repository/businessunit"
	"commercetools-b2b/internal/repository/pgtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgres_UpsertAndListByAssociate(t *testing.T) {
	pool := pgtest.Pool(t)
	projectID := pgtest.Project(t, pool)
	repo := businessunit.NewPostgres(pool)
	ctx := context.Background()

	root, err := repo.Upsert(ctx, domain.BusinessUnit{
		ProjectID:       projectID,
		Key:             "acme",
		Name:            "Acme",
		TopLevelUnitKey: "acme",
		Associates:      []domain.Associate{{CustomerID: "c-1", Roles: []string{domain.RoleAdmin}}},
		StoreKeys:       []string{"main"},
		Custom:          domain.CustomFields{domain.FieldWorkflows: `[{"name":"big","expression":{">":[{"var":"cart.totalCents"},100]}}]`},
	})
	require.NoError(t, err)
	assert.Equal(t, "Company", root.UnitType)

	_, err = repo.Upsert(ctx, domain.BusinessUnit{
		ProjectID:       projectID,
		Key:             "acme-east",
		Name:            "Acme East",
		ParentUnitKey:   "acme",
		TopLevelUnitKey: "acme",
		Associates:      []domain.Associate{{CustomerID: "c-2", Roles: []string{domain.RoleBuyer}}},
	})
	require.NoError(t, err)

	_, err = repo.Upsert(ctx, domain.BusinessUnit{ProjectID: projectID, Key: "orphan", Name: "Orphan", TopLevelUnitKey: "acme"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	units, err := repo.ListByAssociate(ctx, projectID, "c-1")
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "acme", units[0].Key)
	assert.True(t, units[0].IsRootAdmin("c-1"))

	got, err := repo.GetByKey(ctx, projectID, "acme")
	require.NoError(t, err)
	rules, err := got.WorkflowRules()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "big", rules[0].Name)
}
