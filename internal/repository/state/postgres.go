package state

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

func (r *postgresRepo) GetByKey(ctx context.Context, projectID string, key domain.StateKey) (*domain.State, error) {
	const q = `
SELECT id::text, project_id::text, key, type, initial, transitions
FROM states
WHERE project_id = $1 AND key = $2
`
	return scanState(r.pool.QueryRow(ctx, q, projectID, key.String()))
}

func (r *postgresRepo) Upsert(ctx context.Context, s domain.State) (*domain.State, error) {
	transitions, err := pgjson.MarshalList(s.Transitions)
	if err != nil {
		return nil, err
	}
	stateType := s.Type
	if stateType == "" {
		stateType = "OrderState"
	}
	const q = `
INSERT INTO states (project_id, key, type, initial, transitions)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (project_id, key) DO UPDATE SET
    type = EXCLUDED.type,
    initial = EXCLUDED.initial,
    transitions = EXCLUDED.transitions
RETURNING id::text, project_id::text, key, type, initial, transitions
`
	return scanState(r.pool.QueryRow(ctx, q, s.ProjectID, s.Key.String(), stateType, s.Initial, transitions))
}

func scanState(row pgx.Row) (*domain.State, error) {
	var s domain.State
	var key string
	var transitions []byte
	if err := row.Scan(&s.ID, &s.ProjectID, &key, &s.Type, &s.Initial, &transitions); err != nil {
		return nil, db.Classify(err)
	}
	s.Key = domain.StateKey(key)
	if err := pgjson.Unmarshal(transitions, &s.Transitions); err != nil {
		return nil, err
	}
	return &s, nil
}
