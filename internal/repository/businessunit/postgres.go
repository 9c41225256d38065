package businessunit

import (
	"context"
	"encoding/json"

	"commercetools-b2b/internal/db"
	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/repository/pgjson"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

const unitColumns = `id::text, project_id::text, version, key, name, unit_type, parent_unit_key, top_level_unit_key,
       associates, store_keys, custom, created_at`

func (r *postgresRepo) GetByKey(ctx context.Context, projectID, key string) (*domain.BusinessUnit, error) {
	return scanUnit(r.pool.QueryRow(ctx, `SELECT `+unitColumns+` FROM business_units WHERE project_id = $1 AND key = $2`, projectID, key))
}

func (r *postgresRepo) ListByAssociate(ctx context.Context, projectID, customerID string) ([]domain.BusinessUnit, error) {
	filter, err := json.Marshal([]map[string]string{{"customerId": customerID}})
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+unitColumns+`
FROM business_units
WHERE project_id = $1 AND associates @> $2::jsonb
ORDER BY created_at ASC
`, projectID, filter)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	var units []domain.BusinessUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, *u)
	}
	return units, db.Classify(rows.Err())
}

func (r *postgresRepo) Upsert(ctx context.Context, unit domain.BusinessUnit) (*domain.BusinessUnit, error) {
	if err := unit.Validate(); err != nil {
		return nil, err
	}
	associates, err := pgjson.MarshalList(unit.Associates)
	if err != nil {
		return nil, err
	}
	stores, err := pgjson.MarshalList(unit.StoreKeys)
	if err != nil {
		return nil, err
	}
	custom, err := pgjson.MarshalObject(unit.Custom)
	if err != nil {
		return nil, err
	}
	unitType := unit.UnitType
	if unitType == "" {
		unitType = "Company"
		if !unit.IsTopLevel() {
			unitType = "Division"
		}
	}
	const q = `
INSERT INTO business_units (project_id, key, name, unit_type, parent_unit_key, top_level_unit_key, associates, store_keys, custom)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (project_id, key) DO UPDATE SET
    name = EXCLUDED.name,
    unit_type = EXCLUDED.unit_type,
    parent_unit_key = EXCLUDED.parent_unit_key,
    top_level_unit_key = EXCLUDED.top_level_unit_key,
    associates = EXCLUDED.associates,
    store_keys = EXCLUDED.store_keys,
    custom = EXCLUDED.custom,
    version = business_units.version + 1
RETURNING ` + unitColumns
	return scanUnit(r.pool.QueryRow(ctx, q, unit.ProjectID, unit.Key, unit.Name, unitType, unit.ParentUnitKey,
		unit.TopLevelUnitKey, associates, stores, custom))
}

func scanUnit(row pgx.Row) (*domain.BusinessUnit, error) {
	var u domain.BusinessUnit
	var associates, stores, custom []byte
	if err := row.Scan(&u.ID, &u.ProjectID, &u.Version, &u.Key, &u.Name, &u.UnitType, &u.ParentUnitKey,
		&u.TopLevelUnitKey, &associates, &stores, &custom, &u.CreatedAt); err != nil {
		return nil, db.Classify(err)
	}
	if err := pgjson.Unmarshal(associates, &u.Associates); err != nil {
		return nil, err
	}
	if err := pgjson.Unmarshal(stores, &u.StoreKeys); err != nil {
		return nil, err
	}
	if err := pgjson.Unmarshal(custom, &u.Custom); err != nil {
		return nil, err
	}
	return &u, nil
}
