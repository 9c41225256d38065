package store

import (
	"context"

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

const storeColumns = `id::text, project_id::text, key, name, is_pre_buy, distribution_channels, countries, created_at`

func (r *postgresRepo) GetByKey(ctx context.Context, projectID, key string) (*domain.Store, error) {
	return scanStore(r.pool.QueryRow(ctx, `SELECT `+storeColumns+` FROM stores WHERE project_id = $1 AND key = $2`, projectID, key))
}

func (r *postgresRepo) Upsert(ctx context.Context, s domain.Store) (*domain.Store, error) {
	channels, err := pgjson.MarshalList(s.DistributionChannels)
	if err != nil {
		return nil, err
	}
	countries, err := pgjson.MarshalList(s.Countries)
	if err != nil {
		return nil, err
	}
	const q = `
INSERT INTO stores (project_id, key, name, is_pre_buy, distribution_channels, countries)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (project_id, key) DO UPDATE SET
    name = EXCLUDED.name,
    is_pre_buy = EXCLUDED.is_pre_buy,
    distribution_channels = EXCLUDED.distribution_channels,
    countries = EXCLUDED.countries
RETURNING ` + storeColumns
	return scanStore(r.pool.QueryRow(ctx, q, s.ProjectID, s.Key, s.Name, s.IsPreBuy, channels, countries))
}

func scanStore(row pgx.Row) (*domain.Store, error) {
	var s domain.Store
	var channels, countries []byte
	if err := row.Scan(&s.ID, &s.ProjectID, &s.Key, &s.Name, &s.IsPreBuy, &channels, &countries, &s.CreatedAt); err != nil {
		return nil, db.Classify(err)
	}
	if err := pgjson.Unmarshal(channels, &s.DistributionChannels); err != nil {
		return nil, err
	}
	if err := pgjson.Unmarshal(countries, &s.Countries); err != nil {
		return nil, err
	}
	return &s, nil
}
