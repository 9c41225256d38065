package product

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"commercetools-b2b/internal/db"
	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/repository/pgjson"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

const productColumns = `id::text, project_id::text, key, sku, name, description, price_cents, currency, attributes, created_at`

func (r *postgresRepo) ListByProject(ctx context.Context, projectID string) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		r.logger.Printf("product repo: list project_id=%s error=%v", projectID, err)
		return nil, db.Classify(err)
	}
	defer rows.Close()

	var result []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		r.logger.Printf("product repo: list rows project_id=%s error=%v", projectID, err)
		return nil, db.Classify(err)
	}
	return result, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, projectID, id string) (*domain.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE project_id = $1 AND id::text = $2`, projectID, id))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		r.logger.Printf("product repo: get project_id=%s id=%s error=%v", projectID, id, err)
	}
	return p, err
}

func (r *postgresRepo) GetBySKU(ctx context.Context, projectID, sku string) (*domain.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE project_id = $1 AND sku = $2`, projectID, sku))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		r.logger.Printf("product repo: get project_id=%s sku=%s error=%v", projectID, sku, err)
	}
	return p, err
}

func (r *postgresRepo) Upsert(ctx context.Context, product domain.Product) (*domain.Product, error) {
	attrs, err := pgjson.MarshalObject(product.Attributes)
	if err != nil {
		return nil, err
	}
	const q = `
INSERT INTO products (id, project_id, key, sku, name, description, price_cents, currency, attributes)
VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (project_id, key) DO UPDATE SET
    sku = EXCLUDED.sku,
    name = EXCLUDED.name,
    description = EXCLUDED.description,
    price_cents = EXCLUDED.price_cents,
    currency = EXCLUDED.currency,
    attributes = EXCLUDED.attributes
RETURNING ` + productColumns
	res, err := scanProduct(r.pool.QueryRow(ctx, q,
		product.ID,
		product.ProjectID,
		product.Key,
		product.SKU,
		product.Name,
		product.Description,
		product.PriceCents,
		product.Currency,
		attrs,
	))
	if err != nil {
		r.logger.Printf("product repo: upsert key=%s project_id=%s error=%v", product.Key, product.ProjectID, err)
		return nil, err
	}
	if product.ID != "" && res.ID != product.ID {
		return nil, fmt.Errorf("product repo: id mismatch for key=%s project_id=%s existing_id=%s import_id=%s", product.Key, product.ProjectID, res.ID, product.ID)
	}
	r.logger.Printf("product repo: upserted key=%s project_id=%s id=%s", res.Key, res.ProjectID, res.ID)
	return res, nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	var attrs []byte
	if err := row.Scan(&p.ID, &p.ProjectID, &p.Key, &p.SKU, &p.Name, &p.Description, &p.PriceCents, &p.Currency, &attrs, &p.CreatedAt); err != nil {
		return nil, db.Classify(err)
	}
	if err := pgjson.Unmarshal(attrs, &p.Attributes); err != nil {
		return nil, err
	}
	return &p, nil
}
