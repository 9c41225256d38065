package cart

import (
	"context"
	"errors"
	"time"

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

const cartColumns = `id::text, project_id::text, version, customer_id::text, anonymous_id, customer_email,
       business_unit_key, store_key, currency, country, locale, state, origin, inventory_mode,
       shipping_address, billing_address, item_shipping_addresses, custom, delete_days, total_cents,
       created_at, last_modified_at`

func (r *postgresRepo) Create(ctx context.Context, cart domain.Cart) (*domain.Cart, error) {
	row, err := encodeCart(cart)
	if err != nil {
		return nil, err
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, db.Classify(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
INSERT INTO carts (id, project_id, version, customer_id, anonymous_id, customer_email, business_unit_key, store_key,
                   currency, country, locale, state, origin, inventory_mode, shipping_address, billing_address,
                   item_shipping_addresses, custom, delete_days, total_cents, created_at, last_modified_at)
VALUES ($1, $2, 1, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $20)
`, cart.ID, cart.ProjectID, cart.CustomerID, cart.AnonymousID, cart.CustomerEmail, cart.BusinessUnitKey, cart.StoreKey,
		cart.Currency, cart.Country, cart.Locale, string(cart.State), string(cart.Origin), string(cart.InventoryMode),
		row.shipping, row.billing, row.itemAddresses, row.custom, cart.DeleteDaysAfterLastModification, cart.TotalCents,
		cart.CreatedAt); err != nil {
		return nil, db.Classify(err)
	}
	if err := insertLines(ctx, tx, cart.ID, cart.LineItems); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, db.Classify(err)
	}
	return r.GetByID(ctx, cart.ProjectID, cart.ID)
}

func (r *postgresRepo) GetByID(ctx context.Context, projectID, id string) (*domain.Cart, error) {
	return r.fetchCart(ctx, `SELECT `+cartColumns+` FROM carts WHERE project_id = $1 AND id::text = $2`, projectID, id)
}

func (r *postgresRepo) FindActive(ctx context.Context, q ActiveQuery) (*domain.Cart, error) {
	const base = `SELECT ` + cartColumns + `
FROM carts
WHERE project_id = $1 AND state = 'Active'
  AND business_unit_key = $3 AND store_key = $4
  AND COALESCE((custom->>'isSubscription')::boolean, false) = false
  AND `
	const tail = `
ORDER BY last_modified_at DESC
LIMIT 1
`
	if q.CustomerID != "" {
		return r.fetchCart(ctx, base+`customer_id::text = $2`+tail, q.ProjectID, q.CustomerID, q.BusinessUnitKey, q.StoreKey)
	}
	return r.fetchCart(ctx, base+`anonymous_id = $2`+tail, q.ProjectID, q.AnonymousID, q.BusinessUnitKey, q.StoreKey)
}

func (r *postgresRepo) Save(ctx context.Context, cart domain.Cart, expectedVersion int) (*domain.Cart, error) {
	row, err := encodeCart(cart)
	if err != nil {
		return nil, err
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, db.Classify(err)
	}
	defer tx.Rollback(ctx)

	var newVersion int
	err = tx.QueryRow(ctx, `
UPDATE carts
SET version = version + 1,
    customer_id = $4,
    anonymous_id = $5,
    customer_email = $6,
    country = $7,
    locale = $8,
    state = $9,
    shipping_address = $10,
    billing_address = $11,
    item_shipping_addresses = $12,
    custom = $13,
    delete_days = $14,
    total_cents = $15,
    last_modified_at = $16
WHERE project_id = $1 AND id::text = $2 AND version = $3
RETURNING version
`, cart.ProjectID, cart.ID, expectedVersion, cart.CustomerID, cart.AnonymousID, cart.CustomerEmail, cart.Country,
		cart.Locale, string(cart.State), row.shipping, row.billing, row.itemAddresses, row.custom,
		cart.DeleteDaysAfterLastModification, cart.TotalCents, cart.LastModifiedAt).Scan(&newVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, staleOrMissing(ctx, tx, cart.ProjectID, cart.ID, expectedVersion)
	}
	if err != nil {
		return nil, db.Classify(err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cart_lines WHERE cart_id::text = $1`, cart.ID); err != nil {
		return nil, db.Classify(err)
	}
	if err := insertLines(ctx, tx, cart.ID, cart.LineItems); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, db.Classify(err)
	}
	return r.GetByID(ctx, cart.ProjectID, cart.ID)
}

func (r *postgresRepo) Delete(ctx context.Context, projectID, id string, expectedVersion int) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return db.Classify(err)
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `DELETE FROM carts WHERE project_id = $1 AND id::text = $2 AND version = $3`, projectID, id, expectedVersion)
	if err != nil {
		return db.Classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return staleOrMissing(ctx, tx, projectID, id, expectedVersion)
	}
	return db.Classify(tx.Commit(ctx))
}

func (r *postgresRepo) AssignCustomerToAnonymous(ctx context.Context, projectID, anonymousID, customerID string) (*domain.Cart, error) {
	const q = `
UPDATE carts
SET customer_id = $1,
    anonymous_id = NULL,
    version = version + 1,
    last_modified_at = now()
WHERE project_id = $2 AND anonymous_id = $3 AND state = 'Active'
RETURNING id::text
`
	var cartID string
	if err := r.pool.QueryRow(ctx, q, customerID, projectID, anonymousID).Scan(&cartID); err != nil {
		return nil, db.Classify(err)
	}
	return r.GetByID(ctx, projectID, cartID)
}

func (r *postgresRepo) ListSubscriptionsByOrder(ctx context.Context, projectID, orderID string) ([]domain.Cart, error) {
	return r.fetchCarts(ctx, `SELECT `+cartColumns+`
FROM carts
WHERE project_id = $1
  AND COALESCE((custom->>'isSubscription')::boolean, false)
  AND custom->>'originalOrderId' = $2
ORDER BY created_at ASC
`, projectID, orderID)
}

func (r *postgresRepo) ListDueSubscriptions(ctx context.Context, before time.Time, limit int) ([]domain.Cart, error) {
	return r.fetchCarts(ctx, `SELECT `+cartColumns+`
FROM carts
WHERE state = 'Active'
  AND COALESCE((custom->>'isSubscription')::boolean, false)
  AND COALESCE((custom->>'isActive')::boolean, false)
  AND (custom->>'nextDeliveryDate')::timestamptz <= $1
ORDER BY (custom->>'nextDeliveryDate')::timestamptz ASC
LIMIT $2
`, before, limit)
}

func (r *postgresRepo) fetchCart(ctx context.Context, cartQuery string, args ...interface{}) (*domain.Cart, error) {
	carts, err := r.fetchCarts(ctx, cartQuery, args...)
	if err != nil {
		return nil, err
	}
	if len(carts) == 0 {
		return nil, domain.ErrNotFound
	}
	return &carts[0], nil
}

func (r *postgresRepo) fetchCarts(ctx context.Context, cartQuery string, args ...interface{}) ([]domain.Cart, error) {
	rows, err := r.pool.Query(ctx, cartQuery, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	var carts []domain.Cart
	for rows.Next() {
		c, err := scanCart(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		carts = append(carts, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}

	for i := range carts {
		lines, err := r.fetchLines(ctx, carts[i].ID)
		if err != nil {
			return nil, err
		}
		carts[i].LineItems = lines
	}
	return carts, nil
}

func (r *postgresRepo) fetchLines(ctx context.Context, cartID string) ([]domain.LineItem, error) {
	const linesQuery = `
SELECT id::text, product_id::text, product_key, name, sku, variant_id, quantity, currency, unit_price_cents,
       discounted_price_cents, total_cents, distribution_channel, is_gift, shipping_details, custom, snapshot, created_at
FROM cart_lines
WHERE cart_id::text = $1
ORDER BY position ASC
`
	rows, err := r.pool.Query(ctx, linesQuery, cartID)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	lines := []domain.LineItem{}
	for rows.Next() {
		var line domain.LineItem
		var shipping, custom, snapshot []byte
		if err := rows.Scan(
			&line.ID,
			&line.ProductID,
			&line.ProductKey,
			&line.Name,
			&line.SKU,
			&line.VariantID,
			&line.Quantity,
			&line.Currency,
			&line.UnitPriceCents,
			&line.DiscountedPriceCents,
			&line.TotalCents,
			&line.DistributionChannel,
			&line.IsGift,
			&shipping,
			&custom,
			&snapshot,
			&line.AddedAt,
		); err != nil {
			return nil, db.Classify(err)
		}
		if err := pgjson.Unmarshal(shipping, &line.ShippingDetails); err != nil {
			return nil, err
		}
		if err := pgjson.Unmarshal(custom, &line.Custom); err != nil {
			return nil, err
		}
		if err := pgjson.Unmarshal(snapshot, &line.Snapshot); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return lines, nil
}

func scanCart(row pgx.Row) (domain.Cart, error) {
	var c domain.Cart
	var state, origin, inventoryMode string
	var shipping, billing, itemAddresses, custom []byte
	if err := row.Scan(
		&c.ID,
		&c.ProjectID,
		&c.Version,
		&c.CustomerID,
		&c.AnonymousID,
		&c.CustomerEmail,
		&c.BusinessUnitKey,
		&c.StoreKey,
		&c.Currency,
		&c.Country,
		&c.Locale,
		&state,
		&origin,
		&inventoryMode,
		&shipping,
		&billing,
		&itemAddresses,
		&custom,
		&c.DeleteDaysAfterLastModification,
		&c.TotalCents,
		&c.CreatedAt,
		&c.LastModifiedAt,
	); err != nil {
		return c, db.Classify(err)
	}
	c.State = domain.CartState(state)
	c.Origin = domain.Origin(origin)
	c.InventoryMode = domain.InventoryMode(inventoryMode)
	for _, f := range []struct {
		raw []byte
		dst interface{}
	}{
		{shipping, &c.ShippingAddress},
		{billing, &c.BillingAddress},
		{itemAddresses, &c.ItemShippingAddresses},
		{custom, &c.Custom},
	} {
		if err := pgjson.Unmarshal(f.raw, f.dst); err != nil {
			return c, err
		}
	}
	return c, nil
}

type encodedCart struct {
	shipping, billing, itemAddresses, custom []byte
}

func encodeCart(c domain.Cart) (encodedCart, error) {
	var out encodedCart
	var err error
	if out.shipping, err = pgjson.Marshal(c.ShippingAddress); err != nil {
		return out, err
	}
	if out.billing, err = pgjson.Marshal(c.BillingAddress); err != nil {
		return out, err
	}
	if out.itemAddresses, err = pgjson.MarshalList(c.ItemShippingAddresses); err != nil {
		return out, err
	}
	if out.custom, err = pgjson.MarshalObject(c.Custom); err != nil {
		return out, err
	}
	return out, nil
}

func insertLines(ctx context.Context, tx pgx.Tx, cartID string, lines []domain.LineItem) error {
	if len(lines) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, line := range lines {
		shipping, err := pgjson.MarshalList(line.ShippingDetails)
		if err != nil {
			return err
		}
		custom, err := pgjson.MarshalObject(line.Custom)
		if err != nil {
			return err
		}
		snapshot, err := pgjson.MarshalObject(line.Snapshot)
		if err != nil {
			return err
		}
		batch.Queue(`
INSERT INTO cart_lines (id, cart_id, position, product_id, product_key, name, sku, variant_id, quantity, currency,
                        unit_price_cents, discounted_price_cents, total_cents, distribution_channel, is_gift,
                        shipping_details, custom, snapshot, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
`, line.ID, cartID, i, line.ProductID, line.ProductKey, line.Name, line.SKU, line.VariantID, line.Quantity, line.Currency,
			line.UnitPriceCents, line.DiscountedPriceCents, line.TotalCents, line.DistributionChannel, line.IsGift,
			shipping, custom, snapshot, line.AddedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return db.Classify(err)
	}
	return nil
}

func staleOrMissing(ctx context.Context, tx pgx.Tx, projectID, id string, expected int) error {
	var current int
	err := tx.QueryRow(ctx, `SELECT version FROM carts WHERE project_id = $1 AND id::text = $2`, projectID, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return db.Classify(err)
	}
	return domain.NewConflict("cart", id, expected, current)
}
