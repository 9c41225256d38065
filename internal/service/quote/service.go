// Package quote drives quote requests and quotes through their negotiation
// states. Buyer operations take the caller's identity; seller operations are
// scoped by project only.
package quote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/identity"
	"commercetools-b2b/internal/mapper"
	quoterepo "commercetools-b2b/internal/repository/quote"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type quoteRepo interface {
	CreateRequest(ctx context.Context, qr domain.QuoteRequest) (*domain.QuoteRequest, error)
	GetRequest(ctx context.Context, projectID, id string) (*domain.QuoteRequest, error)
	SaveRequest(ctx context.Context, qr domain.QuoteRequest, expectedVersion int) (*domain.QuoteRequest, error)
	QueryRequests(ctx context.Context, projectID string, f domain.QuoteFilter) ([]domain.QuoteRequest, int, error)
	CreateQuote(ctx context.Context, q domain.Quote) (*domain.Quote, error)
	GetQuote(ctx context.Context, projectID, id string) (*domain.Quote, error)
	GetQuoteByRequest(ctx context.Context, projectID, quoteRequestID string) (*domain.Quote, error)
	SaveQuote(ctx context.Context, q domain.Quote, expectedVersion int) (*domain.Quote, error)
	QueryQuotes(ctx context.Context, projectID string, f domain.QuoteFilter) ([]domain.Quote, int, error)
}

type cartRepo interface {
	Create(ctx context.Context, cart domain.Cart) (*domain.Cart, error)
	GetByID(ctx context.Context, projectID, id string) (*domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart, expectedVersion int) (*domain.Cart, error)
	Delete(ctx context.Context, projectID, id string, expectedVersion int) error
}

type Service struct {
	quotes quoteRepo
	carts  cartRepo
	mapper mapper.QuoteMapper
	logger *log.Logger
	now    func() time.Time
}

func New(quotes quoterepo.Repository, carts cartRepo, m mapper.QuoteMapper, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if m == nil {
		m = mapper.DefaultQuote{}
	}
	return &Service{quotes: quotes, carts: carts, mapper: m, logger: logger, now: time.Now}
}

// CreateRequestInput converts cart CartID, at Version when set, into a quote request.
type CreateRequestInput struct {
	CartID  string `json:"cartId"`
	Version int    `json:"version"`
	Comment string `json:"comment"`
}

// CreateQuoteRequest freezes the cart into a Submitted quote request and
// deletes the cart. The session cart pointer is cleared when it named it.
func (s *Service) CreateQuoteRequest(ctx context.Context, idc identity.Context, in CreateRequestInput) (*domain.QuoteRequest, error) {
	account, err := idc.RequireAccount()
	if err != nil {
		return nil, err
	}
	cartID := in.CartID
	if cartID == "" {
		cartID = idc.Sess().CartID
	}
	if cartID == "" {
		return nil, domain.NewValidation("cartId", "cart required")
	}
	cart, err := s.carts.GetByID(ctx, idc.ProjectID, cartID)
	if err != nil {
		return nil, err
	}
	if !idc.CanAccess(*cart) {
		return nil, domain.ErrNotFound
	}
	if in.Version > 0 && in.Version != cart.Version {
		return nil, domain.NewConflict("cart", cart.ID, in.Version, cart.Version)
	}
	if cart.State != domain.CartStateActive {
		return nil, domain.NewValidationCode("InvalidOperation", "cartState", fmt.Sprintf("cart is %s", cart.State))
	}
	if len(cart.LineItems) == 0 {
		return nil, domain.NewValidationCode("InvalidOperation", "lineItems", "cart has no line items")
	}

	qr := s.mapper.RequestFromCart(*cart, strings.TrimSpace(in.Comment), s.now().UTC())
	if qr.CustomerID == "" {
		qr.CustomerID = account.ID
	}
	if qr.CustomerEmail == "" {
		qr.CustomerEmail = account.Email
	}
	created, err := s.quotes.CreateRequest(ctx, qr)
	if err != nil {
		return nil, err
	}
	if err := s.carts.Delete(ctx, idc.ProjectID, cart.ID, cart.Version); err != nil {
		return nil, fmt.Errorf("delete cart %s after quote request %s: %w", cart.ID, created.ID, err)
	}
	if sess := idc.Sess(); sess.CartID == cart.ID {
		sess.ClearCart()
	}
	return created, nil
}

// GetQuoteRequest returns a request visible to the caller.
func (s *Service) GetQuoteRequest(ctx context.Context, idc identity.Context, id string) (*domain.QuoteRequest, error) {
	if _, err := idc.RequireAccount(); err != nil {
		return nil, err
	}
	qr, err := s.quotes.GetRequest(ctx, idc.ProjectID, id)
	if err != nil {
		return nil, err
	}
	if !visible(idc, qr.CustomerID, qr.BusinessUnitKey) {
		return nil, domain.ErrNotFound
	}
	return qr, nil
}

// GetQuote returns a quote visible to the caller.
func (s *Service) GetQuote(ctx context.Context, idc identity.Context, id string) (*domain.Quote, error) {
	if _, err := idc.RequireAccount(); err != nil {
		return nil, err
	}
	q, err := s.quotes.GetQuote(ctx, idc.ProjectID, id)
	if err != nil {
		return nil, err
	}
	if !visible(idc, q.CustomerID, q.BusinessUnitKey) {
		return nil, domain.ErrNotFound
	}
	return q, nil
}

// visible: the requester, or an admin / superuser of the same business unit.
func visible(idc identity.Context, customerID, unitKey string) bool {
	if customerID != "" && customerID == idc.AccountID() {
		return true
	}
	org := idc.Organization
	return (org.IsAdmin || org.SuperUser) && unitKey != "" && unitKey == org.BusinessUnitKey
}

// CancelQuoteRequest moves a Submitted, InProgress or Sent request to Cancelled.
func (s *Service) CancelQuoteRequest(ctx context.Context, idc identity.Context, id string, version int) (*domain.QuoteRequest, error) {
	qr, err := s.GetQuoteRequest(ctx, idc, id)
	if err != nil {
		return nil, err
	}
	if version > 0 && version != qr.Version {
		return nil, domain.NewConflict("quote-request", qr.ID, version, qr.Version)
	}
	return s.moveRequest(ctx, *qr, domain.QuoteRequestCancelled)
}

func (s *Service) moveRequest(ctx context.Context, qr domain.QuoteRequest, next domain.QuoteRequestState) (*domain.QuoteRequest, error) {
	if !qr.State.CanTransition(next) {
		return nil, domain.NewTransition("quote-request", string(qr.State), string(next))
	}
	expected := qr.Version
	qr.State = next
	qr.LastModifiedAt = s.now().UTC()
	return s.quotes.SaveRequest(ctx, qr, expected)
}

// quoteFor loads a quote for a buyer mutation and checks the version.
func (s *Service) quoteFor(ctx context.Context, idc identity.Context, id string, version int) (*domain.Quote, error) {
	q, err := s.GetQuote(ctx, idc, id)
	if err != nil {
		return nil, err
	}
	if version > 0 && version != q.Version {
		return nil, domain.NewConflict("quote", q.ID, version, q.Version)
	}
	return q, nil
}

// pending reports why q cannot leave Pending for to.
func (s *Service) pending(q domain.Quote, to domain.QuoteState) error {
	if q.State != domain.QuotePending {
		return domain.NewTransition("quote", string(q.State), string(to))
	}
	if q.Expired(s.now().UTC()) {
		return domain.NewValidationCode("QuoteExpired", "validTo", fmt.Sprintf("quote %s expired at %s", q.ID, q.ValidTo.Format(time.RFC3339)))
	}
	return nil
}

func (s *Service) moveQuote(ctx context.Context, q domain.Quote, to domain.QuoteState) (*domain.Quote, error) {
	if err := s.pending(q, to); err != nil {
		return nil, err
	}
	expected := q.Version
	q.State = to
	q.LastModifiedAt = s.now().UTC()
	return s.quotes.SaveQuote(ctx, q, expected)
}

// requestFor loads the request behind q and checks it can reach next.
func (s *Service) requestFor(ctx context.Context, q domain.Quote, next domain.QuoteRequestState) (*domain.QuoteRequest, error) {
	qr, err := s.quotes.GetRequest(ctx, q.ProjectID, q.QuoteRequestID)
	if err != nil {
		return nil, fmt.Errorf("load quote request %s: %w", q.QuoteRequestID, err)
	}
	if qr.State != next && !qr.State.CanTransition(next) {
		return nil, domain.NewTransition("quote-request", string(qr.State), string(next))
	}
	return qr, nil
}

// AcceptQuote moves a Pending quote and its request to Accepted. The
// quotation cart is handed to the caller's account and becomes the session
// cart. An Accepted quote whose cart or request was left behind by an
// interrupted accept is finished instead of rejected.
func (s *Service) AcceptQuote(ctx context.Context, idc identity.Context, id string, version int) (*domain.Quote, error) {
	account, err := idc.RequireAccount()
	if err != nil {
		return nil, err
	}
	q, err := s.quoteFor(ctx, idc, id, version)
	if err != nil {
		return nil, err
	}
	var cart *domain.Cart
	if q.QuotationCartID != "" {
		if cart, err = s.carts.GetByID(ctx, idc.ProjectID, q.QuotationCartID); err != nil {
			return nil, fmt.Errorf("load quotation cart %s: %w", q.QuotationCartID, err)
		}
	}
	if q.State == domain.QuoteAccepted {
		return s.resumeAccept(ctx, idc, account, q, cart)
	}

	if err := s.pending(*q, domain.QuoteAccepted); err != nil {
		return nil, err
	}
	if _, err := s.requestFor(ctx, *q, domain.QuoteRequestAccepted); err != nil {
		return nil, err
	}
	if err := s.bindCart(ctx, cart, account); err != nil {
		return nil, err
	}
	accepted, err := s.moveQuote(ctx, *q, domain.QuoteAccepted)
	if err != nil {
		return nil, err
	}
	if err := s.followRequest(ctx, *accepted, domain.QuoteRequestAccepted); err != nil {
		return nil, err
	}
	if cart != nil {
		idc.Sess().SetCart(cart.ID)
	}
	return accepted, nil
}

func (s *Service) resumeAccept(ctx context.Context, idc identity.Context, account *domain.Customer, q *domain.Quote, cart *domain.Cart) (*domain.Quote, error) {
	rejected := domain.NewTransition("quote", string(q.State), string(domain.QuoteAccepted))
	if cart != nil && cart.CustomerID != nil && *cart.CustomerID != account.ID {
		return nil, rejected
	}
	qr, err := s.quotes.GetRequest(ctx, q.ProjectID, q.QuoteRequestID)
	if err != nil {
		return nil, fmt.Errorf("load quote request %s: %w", q.QuoteRequestID, err)
	}
	cartBound := cart == nil || cart.CustomerID != nil
	if cartBound && qr.State == domain.QuoteRequestAccepted {
		return nil, rejected
	}
	if err := s.bindCart(ctx, cart, account); err != nil {
		return nil, err
	}
	if err := s.followRequest(ctx, *q, domain.QuoteRequestAccepted); err != nil {
		return nil, err
	}
	if cart != nil {
		idc.Sess().SetCart(cart.ID)
	}
	s.logger.Printf("quote: resumed accept quote=%s request=%s", q.ID, qr.ID)
	return q, nil
}

// bindCart assigns an unowned quotation cart to account. A cart already
// owned by account is left as is.
func (s *Service) bindCart(ctx context.Context, cart *domain.Cart, account *domain.Customer) error {
	if cart == nil {
		return nil
	}
	if cart.CustomerID != nil {
		if *cart.CustomerID == account.ID {
			return nil
		}
		return domain.NewValidationCode("InvalidOperation", "quotationCart", fmt.Sprintf("quotation cart %s belongs to another customer", cart.ID))
	}
	expected := cart.Version
	if err := cart.Apply(s.now().UTC(),
		domain.SetCustomerEmail{Email: account.Email},
		domain.SetCustomerID{CustomerID: account.ID},
	); err != nil {
		return err
	}
	saved, err := s.carts.Save(ctx, *cart, expected)
	if err != nil {
		return fmt.Errorf("assign quotation cart %s: %w", cart.ID, err)
	}
	*cart = *saved
	return nil
}

// DeclineQuote moves a Pending quote to Declined, rejecting the request, or
// to DeclinedForRenegotiation, which keeps the request open for another round.
// Nothing is written when the request can no longer follow.
func (s *Service) DeclineQuote(ctx context.Context, idc identity.Context, id string, version int, forRenegotiation bool) (*domain.Quote, error) {
	q, err := s.quoteFor(ctx, idc, id, version)
	if err != nil {
		return nil, err
	}
	to, follow := domain.QuoteDeclined, domain.QuoteRequestRejected
	if forRenegotiation {
		to, follow = domain.QuoteDeclinedForRenegotiation, domain.QuoteRequestInProgress
	}
	if err := s.pending(*q, to); err != nil {
		return nil, err
	}
	if _, err := s.requestFor(ctx, *q, follow); err != nil {
		return nil, err
	}
	declined, err := s.moveQuote(ctx, *q, to)
	if err != nil || forRenegotiation {
		return declined, err
	}
	if err := s.followRequest(ctx, *declined, follow); err != nil {
		return nil, err
	}
	return declined, nil
}

// RenegotiateQuote attaches a new buyer comment to a quote declined for
// renegotiation and hands its request back to the seller. The request keeps
// its identity.
func (s *Service) RenegotiateQuote(ctx context.Context, idc identity.Context, id string, version int, comment string) (*domain.Quote, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, domain.NewValidation("buyerComment", "comment required")
	}
	q, err := s.quoteFor(ctx, idc, id, version)
	if err != nil {
		return nil, err
	}
	if q.State != domain.QuoteDeclinedForRenegotiation {
		return nil, domain.NewTransition("quote", string(q.State), "Renegotiation")
	}
	expected := q.Version
	q.BuyerComment = comment
	q.LastModifiedAt = s.now().UTC()
	saved, err := s.quotes.SaveQuote(ctx, *q, expected)
	if err != nil {
		return nil, err
	}

	qr, err := s.quotes.GetRequest(ctx, saved.ProjectID, saved.QuoteRequestID)
	if err != nil {
		return nil, err
	}
	reqExpected := qr.Version
	qr.BuyerComment = comment
	qr.LastModifiedAt = saved.LastModifiedAt
	if qr.State.CanTransition(domain.QuoteRequestInProgress) {
		qr.State = domain.QuoteRequestInProgress
	}
	if _, err := s.quotes.SaveRequest(ctx, *qr, reqExpected); err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Service) followRequest(ctx context.Context, q domain.Quote, next domain.QuoteRequestState) error {
	qr, err := s.requestFor(ctx, q, next)
	if err != nil || qr.State == next {
		return err
	}
	_, err = s.moveRequest(ctx, *qr, next)
	return err
}

// QueryInput filters listings. States may mix request and quote states.
type QueryInput struct {
	IDs    []string
	States []string
	Limit  int
	Cursor string
}

func (s *Service) filter(idc identity.Context, in QueryInput) (domain.QuoteFilter, error) {
	account, err := idc.RequireAccount()
	if err != nil {
		return domain.QuoteFilter{}, err
	}
	offset, err := domain.ParseCursor(in.Cursor)
	if err != nil {
		return domain.QuoteFilter{}, err
	}
	f := domain.QuoteFilter{
		BusinessUnitKey: idc.Organization.BusinessUnitKey,
		IDs:             lo.Compact(lo.Uniq(in.IDs)),
		States:          lo.Compact(in.States),
		Limit:           domain.NormalizeLimit(in.Limit),
		Offset:          offset,
	}
	if _, _, unknown := f.SplitStates(); len(unknown) > 0 {
		return domain.QuoteFilter{}, domain.NewValidation("states", "unknown states: "+strings.Join(unknown, ", "))
	}
	if !idc.Organization.IsAdmin && !idc.Organization.SuperUser {
		f.CustomerID = account.ID
	}
	return f, nil
}

// Query lists quotes visible to the caller.
func (s *Service) Query(ctx context.Context, idc identity.Context, in QueryInput) (domain.Page[domain.Quote], error) {
	f, err := s.filter(idc, in)
	if err != nil {
		return domain.Page[domain.Quote]{}, err
	}
	results, total, err := s.quotes.QueryQuotes(ctx, idc.ProjectID, f)
	if err != nil {
		return domain.Page[domain.Quote]{}, err
	}
	return domain.NewPage(results, f.Limit, f.Offset, total), nil
}

// QueryQuoteRequests lists quote requests visible to the caller.
func (s *Service) QueryQuoteRequests(ctx context.Context, idc identity.Context, in QueryInput) (domain.Page[domain.QuoteRequest], error) {
	f, err := s.filter(idc, in)
	if err != nil {
		return domain.Page[domain.QuoteRequest]{}, err
	}
	results, total, err := s.quotes.QueryRequests(ctx, idc.ProjectID, f)
	if err != nil {
		return domain.Page[domain.QuoteRequest]{}, err
	}
	return domain.NewPage(results, f.Limit, f.Offset, total), nil
}

// TransitionQuoteRequest applies a seller-side request move: InProgress or Closed.
func (s *Service) TransitionQuoteRequest(ctx context.Context, projectID, id string, version int, next domain.QuoteRequestState) (*domain.QuoteRequest, error) {
	if next != domain.QuoteRequestInProgress && next != domain.QuoteRequestClosed {
		return nil, domain.NewValidation("quoteRequestState", fmt.Sprintf("sellers cannot move a request to %q", next))
	}
	qr, err := s.quotes.GetRequest(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if version > 0 && version != qr.Version {
		return nil, domain.NewConflict("quote-request", qr.ID, version, qr.Version)
	}
	return s.moveRequest(ctx, *qr, next)
}

// LinePrice is a negotiated unit price for one request line.
type LinePrice struct {
	LineItemID     string `json:"lineItemId"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

type SendQuoteInput struct {
	QuoteRequestID string      `json:"quoteRequestId"`
	Version        int         `json:"version"`
	SellerComment  string      `json:"sellerComment"`
	ValidTo        *time.Time  `json:"validTo"`
	Prices         []LinePrice `json:"prices"`
}

// SendQuote answers a request with a Pending quote and a quotation cart at
// the negotiated prices, then moves the request to Sent. After a
// renegotiation the existing quote is refreshed instead of created.
func (s *Service) SendQuote(ctx context.Context, projectID string, in SendQuoteInput) (*domain.Quote, error) {
	qr, err := s.quotes.GetRequest(ctx, projectID, in.QuoteRequestID)
	if err != nil {
		return nil, err
	}
	if in.Version > 0 && in.Version != qr.Version {
		return nil, domain.NewConflict("quote-request", qr.ID, in.Version, qr.Version)
	}
	if !qr.State.CanTransition(domain.QuoteRequestSent) {
		return nil, domain.NewTransition("quote-request", string(qr.State), string(domain.QuoteRequestSent))
	}
	existing, err := s.quotes.GetQuoteByRequest(ctx, projectID, qr.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.State != domain.QuoteDeclinedForRenegotiation {
		return nil, domain.NewTransition("quote", string(existing.State), string(domain.QuotePending))
	}
	now := s.now().UTC()
	if in.ValidTo != nil && !in.ValidTo.After(now) {
		return nil, domain.NewValidation("validTo", "validTo must be in the future")
	}
	lines, err := negotiatedLines(qr.LineItems, in.Prices)
	if err != nil {
		return nil, err
	}

	cart, err := s.carts.Create(ctx, quotationCart(*qr, lines, now))
	if err != nil {
		return nil, fmt.Errorf("create quotation cart: %w", err)
	}

	var sent *domain.Quote
	if existing == nil {
		sent, err = s.quotes.CreateQuote(ctx, domain.Quote{
			ID:              uuid.NewString(),
			ProjectID:       projectID,
			QuoteRequestID:  qr.ID,
			CustomerID:      qr.CustomerID,
			BusinessUnitKey: qr.BusinessUnitKey,
			StoreKey:        qr.StoreKey,
			State:           domain.QuotePending,
			BuyerComment:    qr.BuyerComment,
			SellerComment:   strings.TrimSpace(in.SellerComment),
			ValidTo:         in.ValidTo,
			QuotationCartID: cart.ID,
			Currency:        qr.Currency,
			LineItems:       cart.LineItems,
			TotalCents:      cart.TotalCents,
			CreatedAt:       now,
			LastModifiedAt:  now,
		})
	} else {
		q := *existing
		expected := q.Version
		q.State = domain.QuotePending
		q.SellerComment = strings.TrimSpace(in.SellerComment)
		q.ValidTo = in.ValidTo
		q.QuotationCartID = cart.ID
		q.LineItems = cart.LineItems
		q.TotalCents = cart.TotalCents
		q.LastModifiedAt = now
		sent, err = s.quotes.SaveQuote(ctx, q, expected)
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.moveRequest(ctx, *qr, domain.QuoteRequestSent); err != nil {
		return nil, err
	}
	s.logger.Printf("quote: sent quote=%s request=%s cart=%s", sent.ID, qr.ID, cart.ID)
	return sent, nil
}

// WithdrawQuote lets the seller retract a Pending quote.
func (s *Service) WithdrawQuote(ctx context.Context, projectID, id string, version int) (*domain.Quote, error) {
	q, err := s.quotes.GetQuote(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if version > 0 && version != q.Version {
		return nil, domain.NewConflict("quote", q.ID, version, q.Version)
	}
	if q.State != domain.QuotePending {
		return nil, domain.NewTransition("quote", string(q.State), string(domain.QuoteWithdrawn))
	}
	expected := q.Version
	q.State = domain.QuoteWithdrawn
	q.LastModifiedAt = s.now().UTC()
	return s.quotes.SaveQuote(ctx, *q, expected)
}

func negotiatedLines(lines []domain.LineItem, prices []LinePrice) ([]domain.LineItem, error) {
	byLine := make(map[string]int64, len(prices))
	for i, p := range prices {
		if p.UnitPriceCents < 0 {
			return nil, domain.NewValidation(fmt.Sprintf("prices[%d].unitPriceCents", i), "price must not be negative")
		}
		if !lo.ContainsBy(lines, func(l domain.LineItem) bool { return l.ID == p.LineItemID }) {
			return nil, domain.NewValidation(fmt.Sprintf("prices[%d].lineItemId", i), fmt.Sprintf("line item %q not in request", p.LineItemID))
		}
		byLine[p.LineItemID] = p.UnitPriceCents
	}
	out := make([]domain.LineItem, len(lines))
	for i, l := range lines {
		l.Custom = l.Custom.Clone()
		if price, ok := byLine[l.ID]; ok {
			negotiated := price
			l.DiscountedPriceCents = &negotiated
		}
		out[i] = l
	}
	return out, nil
}

// quotationCart is owned by nobody until the buyer accepts the quote.
func quotationCart(qr domain.QuoteRequest, lines []domain.LineItem, now time.Time) domain.Cart {
	cart := domain.Cart{
		ID:                    uuid.NewString(),
		ProjectID:             qr.ProjectID,
		BusinessUnitKey:       qr.BusinessUnitKey,
		StoreKey:              qr.StoreKey,
		Currency:              qr.Currency,
		State:                 domain.CartStateActive,
		Origin:                domain.OriginMerchant,
		InventoryMode:         domain.InventoryModeReserveOnOrder,
		LineItems:             lines,
		ItemShippingAddresses: append([]domain.Address(nil), qr.ItemShippingAddresses...),
		ShippingAddress:       qr.ShippingAddress,
		BillingAddress:        qr.BillingAddress,
		Custom:                domain.CustomFields{"quoteRequestId": qr.ID},
		CreatedAt:             now,
		LastModifiedAt:        now,
	}
	cart.Recalculate()
	return cart
}
