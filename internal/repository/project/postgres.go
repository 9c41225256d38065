package project

import (
	"context"

	"commercetools-b2b/internal/db"
	"commercetools-b2b/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

func (r *postgresRepo) GetByKey(ctx context.Context, key string) (*domain.Project, error) {
	const q = `
SELECT id::text, key, name, created_at
FROM projects
WHERE key = $1
`
	var p domain.Project
	if err := r.pool.QueryRow(ctx, q, key).Scan(&p.ID, &p.Key, &p.Name, &p.CreatedAt); err != nil {
		return nil, db.Classify(err)
	}
	return &p, nil
}

// Create inserts the project, returning the existing row when the key is taken.
func (r *postgresRepo) Create(ctx context.Context, project *domain.Project) (*domain.Project, error) {
	const q = `
INSERT INTO projects (key, name)
VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET name = EXCLUDED.name
RETURNING id::text, key, name, created_at
`
	var out domain.Project
	if err := r.pool.QueryRow(ctx, q, project.Key, project.Name).Scan(&out.ID, &out.Key, &out.Name, &out.CreatedAt); err != nil {
		return nil, db.Classify(err)
	}
	return &out, nil
}
