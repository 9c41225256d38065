package quote

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
	"github.com/samber/lo"
)

type postgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) Repository {
	return &postgresRepo{pool: pool}
}

const requestColumns = `qr.id::text, qr.project_id::text, qr.version, qr.customer_id::text, qr.customer_email,
       qr.business_unit_key, qr.store_key, qr.cart_id::text, qr.buyer_comment, qr.state, qr.currency,
       qr.line_items, qr.item_shipping_addresses, qr.shipping_address, qr.billing_address, qr.total_cents,
       qr.created_at, qr.last_modified_at`

const quoteColumns = `q.id::text, q.project_id::text, q.version, q.quote_request_id::text, q.customer_id::text,
       q.business_unit_key, q.store_key, q.state, q.buyer_comment, q.seller_comment, q.valid_to,
       COALESCE(q.quotation_cart_id::text, ''), q.currency, q.line_items, q.total_cents, q.created_at, q.last_modified_at`

func (r *postgresRepo) CreateRequest(ctx context.Context, qr domain.QuoteRequest) (*domain.QuoteRequest, error) {
	lines, err := pgjson.MarshalList(qr.LineItems)
	if err != nil {
		return nil, err
	}
	addresses, err := pgjson.MarshalList(qr.ItemShippingAddresses)
	if err != nil {
		return nil, err
	}
	shipping, err := pgjson.Marshal(qr.ShippingAddress)
	if err != nil {
		return nil, err
	}
	billing, err := pgjson.Marshal(qr.BillingAddress)
	if err != nil {
		return nil, err
	}
	const q = `
INSERT INTO quote_requests AS qr (id, project_id, version, customer_id, customer_email, business_unit_key, store_key, cart_id,
                                  buyer_comment, state, currency, line_items, item_shipping_addresses, shipping_address,
                                  billing_address, total_cents, created_at, last_modified_at)
VALUES ($1, $2, 1, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
RETURNING ` + requestColumns
	return scanRequest(r.pool.QueryRow(ctx, q, qr.ID, qr.ProjectID, qr.CustomerID, qr.CustomerEmail, qr.BusinessUnitKey,
		qr.StoreKey, qr.CartID, qr.BuyerComment, string(qr.State), qr.Currency, lines, addresses, shipping, billing,
		qr.TotalCents, qr.CreatedAt))
}

func (r *postgresRepo) GetRequest(ctx context.Context, projectID, id string) (*domain.QuoteRequest, error) {
	qr, err := scanRequest(r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM quote_requests qr WHERE qr.project_id = $1 AND qr.id::text = $2`, projectID, id))
	if err != nil {
		return nil, err
	}
	quote, err := r.GetQuoteByRequest(ctx, projectID, qr.ID)
	switch {
	case err == nil:
		qr.Quote = quote
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	return qr, nil
}

func (r *postgresRepo) SaveRequest(ctx context.Context, qr domain.QuoteRequest, expectedVersion int) (*domain.QuoteRequest, error) {
	const q = `
UPDATE quote_requests AS qr
SET version = version + 1, state = $4, buyer_comment = $5, last_modified_at = $6
WHERE qr.project_id = $1 AND qr.id::text = $2 AND qr.version = $3
RETURNING ` + requestColumns
	saved, err := scanRequest(r.pool.QueryRow(ctx, q, qr.ProjectID, qr.ID, expectedVersion, string(qr.State), qr.BuyerComment, qr.LastModifiedAt))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, r.staleOrMissing(ctx, "quote_requests", "quote-request", qr.ProjectID, qr.ID, expectedVersion)
	}
	if err != nil {
		return nil, err
	}
	saved.Quote = qr.Quote
	return saved, nil
}

func (r *postgresRepo) QueryRequests(ctx context.Context, projectID string, f domain.QuoteFilter) ([]domain.QuoteRequest, int, error) {
	cond, args := buildFilter(projectID, f, "qr", "q")
	from := `FROM quote_requests qr LEFT JOIN quotes q ON q.quote_request_id = qr.id WHERE ` + cond

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) `+from, args...).Scan(&total); err != nil {
		return nil, 0, db.Classify(err)
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s %s ORDER BY qr.created_at DESC, qr.id LIMIT $%d OFFSET $%d`,
		requestColumns, from, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, db.Classify(err)
	}
	defer rows.Close()

	requests := []domain.QuoteRequest{}
	for rows.Next() {
		qr, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		requests = append(requests, *qr)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, db.Classify(err)
	}
	return requests, total, nil
}

func (r *postgresRepo) CreateQuote(ctx context.Context, quote domain.Quote) (*domain.Quote, error) {
	lines, err := pgjson.MarshalList(quote.LineItems)
	if err != nil {
		return nil, err
	}
	const q = `
INSERT INTO quotes AS q (id, project_id, version, quote_request_id, customer_id, business_unit_key, store_key, state,
                         buyer_comment, seller_comment, valid_to, quotation_cart_id, currency, line_items, total_cents,
                         created_at, last_modified_at)
VALUES ($1, $2, 1, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, '')::uuid, $12, $13, $14, $15, $15)
RETURNING ` + quoteColumns
	return scanQuote(r.pool.QueryRow(ctx, q, quote.ID, quote.ProjectID, quote.QuoteRequestID, quote.CustomerID,
		quote.BusinessUnitKey, quote.StoreKey, string(quote.State), quote.BuyerComment, quote.SellerComment,
		quote.ValidTo, quote.QuotationCartID, quote.Currency, lines, quote.TotalCents, quote.CreatedAt))
}

func (r *postgresRepo) GetQuote(ctx context.Context, projectID, id string) (*domain.Quote, error) {
	return scanQuote(r.pool.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes q WHERE q.project_id = $1 AND q.id::text = $2`, projectID, id))
}

func (r *postgresRepo) GetQuoteByRequest(ctx context.Context, projectID, quoteRequestID string) (*domain.Quote, error) {
	return scanQuote(r.pool.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes q WHERE q.project_id = $1 AND q.quote_request_id::text = $2`, projectID, quoteRequestID))
}

func (r *postgresRepo) SaveQuote(ctx context.Context, quote domain.Quote, expectedVersion int) (*domain.Quote, error) {
	lines, err := pgjson.MarshalList(quote.LineItems)
	if err != nil {
		return nil, err
	}
	const q = `
UPDATE quotes AS q
SET version = version + 1,
    state = $4,
    buyer_comment = $5,
    seller_comment = $6,
    valid_to = $7,
    quotation_cart_id = NULLIF($8, '')::uuid,
    line_items = $9,
    total_cents = $10,
    last_modified_at = $11
WHERE q.project_id = $1 AND q.id::text = $2 AND q.version = $3
RETURNING ` + quoteColumns
	saved, err := scanQuote(r.pool.QueryRow(ctx, q, quote.ProjectID, quote.ID, expectedVersion, string(quote.State),
		quote.BuyerComment, quote.SellerComment, quote.ValidTo, quote.QuotationCartID, lines, quote.TotalCents,
		quote.LastModifiedAt))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, r.staleOrMissing(ctx, "quotes", "quote", quote.ProjectID, quote.ID, expectedVersion)
	}
	return saved, err
}

func (r *postgresRepo) QueryQuotes(ctx context.Context, projectID string, f domain.QuoteFilter) ([]domain.Quote, int, error) {
	cond, args := buildFilter(projectID, f, "q", "qr")
	from := `FROM quotes q JOIN quote_requests qr ON qr.id = q.quote_request_id WHERE ` + cond

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) `+from, args...).Scan(&total); err != nil {
		return nil, 0, db.Classify(err)
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s %s ORDER BY q.created_at DESC, q.id LIMIT $%d OFFSET $%d`,
		quoteColumns, from, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, db.Classify(err)
	}
	defer rows.Close()

	quotes := []domain.Quote{}
	for rows.Next() {
		quote, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		quotes = append(quotes, *quote)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, db.Classify(err)
	}
	return quotes, total, nil
}

// buildFilter renders the shared quote filter. self is the alias of the listed
// entity, other the alias of its 1:1 counterpart. Mixed states match when the
// request is in one of the request states or the quote in one of the quote states.
func buildFilter(projectID string, f domain.QuoteFilter, self, other string) (string, []interface{}) {
	where := []string{self + ".project_id = $1"}
	args := []interface{}{projectID}
	add := func(expr string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(expr, len(args)))
	}
	if f.CustomerID != "" {
		add(self+".customer_id::text = $%d", f.CustomerID)
	}
	if f.BusinessUnitKey != "" {
		add(self+".business_unit_key = $%d", f.BusinessUnitKey)
	}
	if len(f.IDs) > 0 {
		add(self+".id::text = ANY($%d)", f.IDs)
	}

	requestStates, quoteStates, _ := f.SplitStates()
	qrAlias, qAlias := self, other
	if self == "q" {
		qrAlias, qAlias = other, self
	}
	var stateConds []string
	if len(requestStates) > 0 {
		args = append(args, lo.Map(requestStates, func(s domain.QuoteRequestState, _ int) string { return string(s) }))
		stateConds = append(stateConds, fmt.Sprintf("%s.state = ANY($%d)", qrAlias, len(args)))
	}
	if len(quoteStates) > 0 {
		args = append(args, lo.Map(quoteStates, func(s domain.QuoteState, _ int) string { return string(s) }))
		stateConds = append(stateConds, fmt.Sprintf("%s.state = ANY($%d)", qAlias, len(args)))
	}
	if len(stateConds) > 0 {
		where = append(where, "("+strings.Join(stateConds, " OR ")+")")
	}
	return strings.Join(where, " AND "), args
}

func (r *postgresRepo) staleOrMissing(ctx context.Context, table, entity, projectID, id string, expected int) error {
	var current int
	err := r.pool.QueryRow(ctx, `SELECT version FROM `+table+` WHERE project_id = $1 AND id::text = $2`, projectID, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return db.Classify(err)
	}
	return domain.NewConflict(entity, id, expected, current)
}

func scanRequest(row pgx.Row) (*domain.QuoteRequest, error) {
	var qr domain.QuoteRequest
	var state string
	var lines, addresses, shipping, billing []byte
	if err := row.Scan(&qr.ID, &qr.ProjectID, &qr.Version, &qr.CustomerID, &qr.CustomerEmail, &qr.BusinessUnitKey,
		&qr.StoreKey, &qr.CartID, &qr.BuyerComment, &state, &qr.Currency, &lines, &addresses, &shipping, &billing,
		&qr.TotalCents, &qr.CreatedAt, &qr.LastModifiedAt); err != nil {
		return nil, db.Classify(err)
	}
	qr.State = domain.QuoteRequestState(state)
	if err := pgjson.Unmarshal(lines, &qr.LineItems); err != nil {
		return nil, err
	}
	if err := pgjson.Unmarshal(addresses, &qr.ItemShippingAddresses); err != nil {
		return nil, err
	}
	if err := pgjson.Unmarshal(shipping, &qr.ShippingAddress); err != nil {
		return nil, err
	}
	if err := pgjson.Unmarshal(billing, &qr.BillingAddress); err != nil {
		return nil, err
	}
	return &qr, nil
}

func scanQuote(row pgx.Row) (*domain.Quote, error) {
	var q domain.Quote
	var state string
	var lines []byte
	if err := row.Scan(&q.ID, &q.ProjectID, &q.Version, &q.QuoteRequestID, &q.CustomerID, &q.BusinessUnitKey,
		&q.StoreKey, &state, &q.BuyerComment, &q.SellerComment, &q.ValidTo, &q.QuotationCartID, &q.Currency,
		&lines, &q.TotalCents, &q.CreatedAt, &q.LastModifiedAt); err != nil {
		return nil, db.Classify(err)
	}
	q.State = domain.QuoteState(state)
	if err := pgjson.Unmarshal(lines, &q.LineItems); err != nil {
		return nil, err
	}
	return &q, nil
}
