package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

const orderColumns = `id::text, project_id::text, version, order_number, purchase_order_number, cart_id::text, customer_id::text,
       customer_email, business_unit_key, store_key, currency, country, locale, order_state, state_key, origin,
       inventory_mode, is_pre_buy, line_items, item_shipping_addresses, shipping_address, billing_address,
       return_info, custom, total_cents, created_at, last_modified_at`

func (r *postgresRepo) Create(ctx context.Context, o domain.Order) (*domain.Order, error) {
	enc, err := encodeOrder(o)
	if err != nil {
		return nil, err
	}
	const q = `
INSERT INTO orders (id, project_id, version, order_number, purchase_order_number, cart_id, customer_id, customer_email,
                    business_unit_key, store_key, currency, country, locale, order_state, state_key, origin,
                    inventory_mode, is_pre_buy, line_items, item_shipping_addresses, shipping_address, billing_address,
                    return_info, custom, total_cents, created_at, last_modified_at)
VALUES ($1, $2, 1, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $25)
RETURNING ` + orderColumns
	created, err := scanOrder(r.pool.QueryRow(ctx, q,
		o.ID, o.ProjectID, o.OrderNumber, o.PurchaseOrderNumber, o.CartID, o.CustomerID, o.CustomerEmail,
		o.BusinessUnitKey, o.StoreKey, o.Currency, o.Country, o.Locale, string(o.OrderState), o.State.String(),
		string(o.Origin), string(o.InventoryMode), o.IsPreBuy, enc.lines, enc.itemAddresses, enc.shipping,
		enc.billing, enc.returns, enc.custom, o.TotalCents, o.CreatedAt))
	if err != nil {
		var upstream *domain.UpstreamError
		if errors.As(err, &upstream) && upstream.Code == db.CodeUniqueViolation {
			return nil, fmt.Errorf("order for cart %s: %w", o.CartID, domain.ErrAlreadyExists)
		}
		return nil, err
	}
	return created, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, projectID, id string) (*domain.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE project_id = $1 AND id::text = $2`, projectID, id))
}

func (r *postgresRepo) GetByOrderNumber(ctx context.Context, projectID, orderNumber string) (*domain.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE project_id = $1 AND order_number = $2`, projectID, orderNumber))
}

func (r *postgresRepo) GetByCartID(ctx context.Context, projectID, cartID string) (*domain.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE project_id = $1 AND cart_id::text = $2`, projectID, cartID))
}

func (r *postgresRepo) List(ctx context.Context, f Filter) ([]domain.Order, int, error) {
	where := []string{"project_id = $1"}
	args := []interface{}{f.ProjectID}
	if f.CustomerID != "" {
		args = append(args, f.CustomerID)
		where = append(where, fmt.Sprintf("customer_id::text = $%d", len(args)))
	}
	if f.BusinessUnitKey != "" {
		args = append(args, f.BusinessUnitKey)
		where = append(where, fmt.Sprintf("business_unit_key = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, db.Classify(err)
	}

	args = append(args, f.Limit, f.Offset)
	q := fmt.Sprintf(`SELECT %s FROM orders WHERE %s ORDER BY order_number DESC LIMIT $%d OFFSET $%d`,
		orderColumns, cond, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, db.Classify(err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, db.Classify(err)
	}
	return orders, total, nil
}

func (r *postgresRepo) Save(ctx context.Context, o domain.Order, expectedVersion int) (*domain.Order, error) {
	enc, err := encodeOrder(o)
	if err != nil {
		return nil, err
	}
	const q = `
UPDATE orders
SET version = version + 1,
    order_state = $4,
    state_key = $5,
    return_info = $6,
    custom = $7,
    last_modified_at = $8
WHERE project_id = $1 AND id::text = $2 AND version = $3
RETURNING ` + orderColumns
	saved, err := scanOrder(r.pool.QueryRow(ctx, q, o.ProjectID, o.ID, expectedVersion, string(o.OrderState),
		o.State.String(), enc.returns, enc.custom, o.LastModifiedAt))
	if errors.Is(err, domain.ErrNotFound) {
		current, getErr := r.GetByID(ctx, o.ProjectID, o.ID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, domain.NewConflict("order", o.ID, expectedVersion, current.Version)
	}
	return saved, err
}

type encodedOrder struct {
	lines, itemAddresses, shipping, billing, returns, custom []byte
}

func encodeOrder(o domain.Order) (encodedOrder, error) {
	var enc encodedOrder
	var err error
	if enc.lines, err = pgjson.MarshalList(o.LineItems); err != nil {
		return enc, err
	}
	if enc.itemAddresses, err = pgjson.MarshalList(o.ItemShippingAddresses); err != nil {
		return enc, err
	}
	if enc.shipping, err = pgjson.Marshal(o.ShippingAddress); err != nil {
		return enc, err
	}
	if enc.billing, err = pgjson.Marshal(o.BillingAddress); err != nil {
		return enc, err
	}
	if enc.returns, err = pgjson.MarshalList(o.ReturnInfo); err != nil {
		return enc, err
	}
	if enc.custom, err = pgjson.MarshalObject(o.Custom); err != nil {
		return enc, err
	}
	return enc, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var orderState, stateKey, origin, inventoryMode string
	var lines, itemAddresses, shipping, billing, returns, custom []byte
	if err := row.Scan(
		&o.ID,
		&o.ProjectID,
		&o.Version,
		&o.OrderNumber,
		&o.PurchaseOrderNumber,
		&o.CartID,
		&o.CustomerID,
		&o.CustomerEmail,
		&o.BusinessUnitKey,
		&o.StoreKey,
		&o.Currency,
		&o.Country,
		&o.Locale,
		&orderState,
		&stateKey,
		&origin,
		&inventoryMode,
		&o.IsPreBuy,
		&lines,
		&itemAddresses,
		&shipping,
		&billing,
		&returns,
		&custom,
		&o.TotalCents,
		&o.CreatedAt,
		&o.LastModifiedAt,
	); err != nil {
		return nil, db.Classify(err)
	}
	o.OrderState = domain.OrderState(orderState)
	o.State = domain.StateKey(stateKey)
	o.Origin = domain.Origin(origin)
	o.InventoryMode = domain.InventoryMode(inventoryMode)
	for _, f := range []struct {
		raw []byte
		dst interface{}
	}{
		{lines, &o.LineItems},
		{itemAddresses, &o.ItemShippingAddresses},
		{shipping, &o.ShippingAddress},
		{billing, &o.BillingAddress},
		{returns, &o.ReturnInfo},
		{custom, &o.Custom},
	} {
		if err := pgjson.Unmarshal(f.raw, f.dst); err != nil {
			return nil, err
		}
	}
	return &o, nil
}
