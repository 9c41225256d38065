package cart

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
	cartrepo "commercetools-b2b/internal/repository/cart"
	"github.com/google/uuid"
	"golang.org/x/text/currency"
)

type cartRepo interface {
	Create(ctx context.Context, cart domain.Cart) (*domain.Cart, error)
	GetByID(ctx context.Context, projectID, id string) (*domain.Cart, error)
	FindActive(ctx context.Context, q cartrepo.ActiveQuery) (*domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart, expectedVersion int) (*domain.Cart, error)
	Delete(ctx context.Context, projectID, id string, expectedVersion int) error
}

// Consolidator keeps at most one active cart per owner and organization scope.
type Consolidator struct {
	repo            cartRepo
	defaultCurrency string
	logger          *log.Logger
	now             func() time.Time
}

func NewConsolidator(repo cartrepo.Repository, defaultCurrency string, logger *log.Logger) *Consolidator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Consolidator{repo: repo, defaultCurrency: defaultCurrency, logger: logger, now: time.Now}
}

// GetOrCreateActiveCart returns the caller's active cart for its business
// unit and store, creating one when none exists. A cart whose currency no
// longer matches the session is deleted and replaced; country and locale
// drift is patched in place. The session cart pointer follows the result.
func (c *Consolidator) GetOrCreateActiveCart(ctx context.Context, idc identity.Context) (*domain.Cart, error) {
	if idc.AccountID() == "" && idc.AnonymousID == "" {
		return nil, domain.ErrAuthRequired
	}
	if err := idc.RequireOrganization(); err != nil {
		return nil, err
	}
	sess := idc.Sess()
	cur, err := c.sessionCurrency(sess.Currency)
	if err != nil {
		return nil, err
	}

	existing, err := c.find(ctx, idc)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		cart, err := c.reconcile(ctx, *existing, cur, sess)
		if err != nil {
			return nil, err
		}
		if cart != nil {
			sess.SetCart(cart.ID)
			return cart, nil
		}
	}

	created, err := c.repo.Create(ctx, c.newCart(idc, cur))
	if err != nil {
		return nil, err
	}
	sess.SetCart(created.ID)
	return created, nil
}

// find prefers the cart the session already points at, then the most
// recently modified active cart in scope.
func (c *Consolidator) find(ctx context.Context, idc identity.Context) (*domain.Cart, error) {
	org := idc.Organization
	if id := idc.Sess().CartID; id != "" {
		cart, err := c.repo.GetByID(ctx, idc.ProjectID, id)
		switch {
		case err == nil:
			if idc.Owns(*cart) && inScope(*cart, org) {
				return cart, nil
			}
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}

	cart, err := c.repo.FindActive(ctx, cartrepo.ActiveQuery{
		ProjectID:       idc.ProjectID,
		CustomerID:      idc.AccountID(),
		AnonymousID:     idc.AnonymousID,
		BusinessUnitKey: org.BusinessUnitKey,
		StoreKey:        org.StoreKey,
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return cart, err
}

func inScope(cart domain.Cart, org identity.Organization) bool {
	return cart.State == domain.CartStateActive &&
		!cart.IsSubscription() &&
		cart.BusinessUnitKey == org.BusinessUnitKey &&
		cart.StoreKey == org.StoreKey
}

// reconcile returns nil when the cart had to be discarded.
func (c *Consolidator) reconcile(ctx context.Context, cart domain.Cart, cur string, sess *identity.Session) (*domain.Cart, error) {
	if !strings.EqualFold(cart.Currency, cur) {
		if err := c.repo.Delete(ctx, cart.ProjectID, cart.ID, cart.Version); err != nil {
			return nil, fmt.Errorf("discard cart %s in %s: %w", cart.ID, cart.Currency, err)
		}
		c.logger.Printf("cart: discarded cart=%s currency=%s session_currency=%s", cart.ID, cart.Currency, cur)
		return nil, nil
	}

	var actions []domain.CartAction
	if sess.Country != "" && !strings.EqualFold(cart.Country, sess.Country) {
		actions = append(actions, domain.SetCountry{Country: sess.Country})
	}
	if sess.Locale != "" && cart.Locale != sess.Locale {
		actions = append(actions, domain.SetLocale{Locale: sess.Locale})
	}
	if len(actions) == 0 {
		return &cart, nil
	}
	expected := cart.Version
	if err := cart.Apply(c.now().UTC(), actions...); err != nil {
		return nil, err
	}
	return c.repo.Save(ctx, cart, expected)
}

func (c *Consolidator) newCart(idc identity.Context, cur string) domain.Cart {
	now := c.now().UTC()
	org := idc.Organization
	sess := idc.Sess()
	cart := domain.Cart{
		ID:                    uuid.NewString(),
		ProjectID:             idc.ProjectID,
		BusinessUnitKey:       org.BusinessUnitKey,
		StoreKey:              org.StoreKey,
		Currency:              cur,
		Country:               strings.ToUpper(sess.Country),
		Locale:                sess.Locale,
		State:                 domain.CartStateActive,
		Origin:                domain.OriginCustomer,
		InventoryMode:         domain.InventoryModeReserveOnOrder,
		LineItems:             []domain.LineItem{},
		ItemShippingAddresses: []domain.Address{},
		CreatedAt:             now,
		LastModifiedAt:        now,
	}
	if idc.Account != nil {
		id := idc.Account.ID
		cart.CustomerID = &id
		cart.CustomerEmail = idc.Account.Email
	} else {
		anon := idc.AnonymousID
		cart.AnonymousID = &anon
	}
	if org.SuperUser {
		cart.Origin = domain.OriginMerchant
	}
	if org.IsPreBuyStore {
		cart.InventoryMode = domain.InventoryModeNone
		cart.Custom = domain.CustomFields{domain.FieldPreBuyCart: true}
	}
	return cart
}

func (c *Consolidator) sessionCurrency(code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		code = c.defaultCurrency
	}
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", domain.NewValidation("currency", fmt.Sprintf("unknown currency %q", code))
	}
	return unit.String(), nil
}
