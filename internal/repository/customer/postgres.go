package customer

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"

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

// NewPostgres returns a Repository backed by Postgres.
func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

const customerColumns = `id::text, project_id::text, version, email, password_hash, first_name, last_name, date_of_birth, addresses,
       default_shipping_address_id, default_billing_address_id, shipping_address_ids, billing_address_ids,
       is_email_verified, created_at`

const insertCustomer = `
INSERT INTO customers (
    project_id, email, password_hash, first_name, last_name, date_of_birth, addresses,
    default_shipping_address_id, default_billing_address_id, shipping_address_ids, billing_address_ids
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + customerColumns

func (r *postgresRepo) Create(ctx context.Context, c domain.Customer) (*domain.Customer, error) {
	args, err := insertArgs(c)
	if err != nil {
		return nil, err
	}
	return r.scanCustomer(r.pool.QueryRow(ctx, insertCustomer, args...))
}

func (r *postgresRepo) CreateWithCart(ctx context.Context, c domain.Customer, anonymousID string) (*domain.Customer, error) {
	args, err := insertArgs(c)
	if err != nil {
		return nil, err
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, db.Classify(err)
	}
	defer tx.Rollback(ctx)

	created, err := r.scanCustomer(tx.QueryRow(ctx, insertCustomer, args...))
	if err != nil {
		return nil, err
	}
	cmd, err := tx.Exec(ctx, `
UPDATE carts
SET customer_id = $1, anonymous_id = NULL, customer_email = $2, version = version + 1, last_modified_at = now()
WHERE project_id = $3 AND anonymous_id = $4 AND state = 'Active'
`, created.ID, created.Email, c.ProjectID, anonymousID)
	if err != nil {
		return nil, db.Classify(err)
	}
	if cmd.RowsAffected() == 0 {
		r.logger.Printf("customer repo: anonymous cart not assignable anonymous_id=%s", anonymousID)
		return nil, domain.ErrCartNotAssignable
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, db.Classify(err)
	}
	return created, nil
}

func (r *postgresRepo) GetByEmail(ctx context.Context, projectID, email string) (*domain.Customer, error) {
	const q = `SELECT ` + customerColumns + `
FROM customers
WHERE project_id = $1 AND lower(email) = lower($2)
LIMIT 1
`
	return r.scanCustomer(r.pool.QueryRow(ctx, q, projectID, email))
}

func (r *postgresRepo) GetByID(ctx context.Context, projectID, id string) (*domain.Customer, error) {
	const q = `SELECT ` + customerColumns + `
FROM customers
WHERE project_id = $1 AND id::text = $2
LIMIT 1
`
	return r.scanCustomer(r.pool.QueryRow(ctx, q, projectID, id))
}

func (r *postgresRepo) MarkEmailVerified(ctx context.Context, projectID, id string) (*domain.Customer, error) {
	const q = `
UPDATE customers SET is_email_verified = true, version = version + 1
WHERE project_id = $1 AND id::text = $2
RETURNING ` + customerColumns
	return r.scanCustomer(r.pool.QueryRow(ctx, q, projectID, id))
}

func (r *postgresRepo) UpdatePassword(ctx context.Context, projectID, id, passwordHash string) error {
	cmd, err := r.pool.Exec(ctx, `
UPDATE customers SET password_hash = $3, version = version + 1
WHERE project_id = $1 AND id::text = $2
`, projectID, id, passwordHash)
	if err != nil {
		return db.Classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func insertArgs(c domain.Customer) ([]interface{}, error) {
	addrJSON, err := pgjson.MarshalList(c.Addresses)
	if err != nil {
		return nil, err
	}
	shipJSON, err := pgjson.MarshalList(c.ShippingAddressIDs)
	if err != nil {
		return nil, err
	}
	billJSON, err := pgjson.MarshalList(c.BillingAddressIDs)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		c.ProjectID,
		strings.ToLower(c.Email),
		c.PasswordHash,
		c.FirstName,
		c.LastName,
		c.DateOfBirth,
		addrJSON,
		c.DefaultShippingAddressID,
		c.DefaultBillingAddressID,
		shipJSON,
		billJSON,
	}, nil
}

func (r *postgresRepo) scanCustomer(row pgx.Row) (*domain.Customer, error) {
	var c domain.Customer
	var addrJSON, shipJSON, billJSON []byte
	err := row.Scan(
		&c.ID,
		&c.ProjectID,
		&c.Version,
		&c.Email,
		&c.PasswordHash,
		&c.FirstName,
		&c.LastName,
		&c.DateOfBirth,
		&addrJSON,
		&c.DefaultShippingAddressID,
		&c.DefaultBillingAddressID,
		&shipJSON,
		&billJSON,
		&c.IsEmailVerified,
		&c.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, &domain.UpstreamError{Status: 409, Code: db.CodeUniqueViolation, Message: "duplicate customer email", Err: domain.ErrAccountAlreadyExists}
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			r.logger.Printf("customer repo: scan error=%v", err)
		}
		return nil, db.Classify(err)
	}
	if err := pgjson.Unmarshal(addrJSON, &c.Addresses); err != nil {
		r.logger.Printf("customer repo: decode addresses id=%s err=%v", c.ID, err)
		return nil, err
	}
	if err := pgjson.Unmarshal(shipJSON, &c.ShippingAddressIDs); err != nil {
		r.logger.Printf("customer repo: decode shipping ids id=%s err=%v", c.ID, err)
		return nil, err
	}
	if err := pgjson.Unmarshal(billJSON, &c.BillingAddressIDs); err != nil {
		r.logger.Printf("customer repo: decode billing ids id=%s err=%v", c.ID, err)
		return nil, err
	}
	return &c, nil
}
