package identity

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"

	"commercetools-b2b/internal/domain"
)

// AccountTokens resolves customer access tokens.
type AccountTokens interface {
	LookupByToken(ctx context.Context, projectID, token string) (*domain.Customer, error)
}

// AnonymousTokens resolves anonymous access tokens to an anonymous id.
type AnonymousTokens interface {
	LookupByToken(ctx context.Context, projectID, token string) (string, error)
}

type BusinessUnits interface {
	GetByKey(ctx context.Context, projectID, key string) (*domain.BusinessUnit, error)
	ListByAssociate(ctx context.Context, projectID, customerID string) ([]domain.BusinessUnit, error)
}

type Stores interface {
	GetByKey(ctx context.Context, projectID, key string) (*domain.Store, error)
}

// Defaults fill in scope and locale values the session does not carry.
type Defaults struct {
	BusinessUnitKey     string
	StoreKey            string
	DistributionChannel string
	Currency            string
	Country             string
	Locale              string
}

// Request is the raw identity material extracted by the transport.
type Request struct {
	ProjectID    string
	AccessToken  string
	SessionToken string
	// Overrides requested explicitly by the caller; empty values keep the session's.
	BusinessUnitKey          string
	StoreKey                 string
	SuperUserBusinessUnitKey string
	Currency                 string
	Country                  string
	Locale                   string
}

// Resolver builds a Context from a Request.
type Resolver struct {
	accounts  AccountTokens
	anonymous AnonymousTokens
	units     BusinessUnits
	stores    Stores
	codec     *SessionCodec
	defaults  Defaults
	logger    *log.Logger
}

func NewResolver(accounts AccountTokens, anonymous AnonymousTokens, units BusinessUnits, stores Stores, codec *SessionCodec, defaults Defaults, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Resolver{
		accounts:  accounts,
		anonymous: anonymous,
		units:     units,
		stores:    stores,
		codec:     codec,
		defaults:  defaults,
		logger:    logger,
	}
}

// Resolve authenticates the bearer token and derives the organization scope.
// A present but unknown bearer token fails with domain.ErrAuthRequired; a
// tampered or expired session token is replaced by a fresh session.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Context, error) {
	sess := &Session{}
	if req.SessionToken != "" {
		decoded, err := r.codec.Decode(req.SessionToken)
		if err != nil {
			r.logger.Printf("identity: discarding session project_id=%s err=%v", req.ProjectID, err)
			sess.changed = true
		} else {
			*sess = decoded
		}
	}

	idc := Context{ProjectID: req.ProjectID, Session: sess}
	if req.AccessToken != "" {
		if err := r.authenticate(ctx, req, &idc); err != nil {
			return Context{}, err
		}
	}
	if idc.Account == nil && idc.AnonymousID == "" {
		idc.AnonymousID = sess.AnonymousID
	}
	if idc.Account != nil && sess.AnonymousID != "" {
		sess.AnonymousID = ""
		sess.changed = true
	}

	sess.set(&sess.BusinessUnitKey, req.BusinessUnitKey)
	sess.set(&sess.StoreKey, req.StoreKey)
	sess.set(&sess.SuperUserBusinessUnitKey, req.SuperUserBusinessUnitKey)
	sess.set(&sess.Currency, strings.ToUpper(req.Currency))
	sess.set(&sess.Country, strings.ToUpper(req.Country))
	sess.set(&sess.Locale, req.Locale)
	sess.fill(&sess.Currency, r.defaults.Currency)
	sess.fill(&sess.Country, r.defaults.Country)
	sess.fill(&sess.Locale, r.defaults.Locale)

	org, err := r.organization(ctx, idc)
	if err != nil {
		return Context{}, err
	}
	idc.Organization = org
	sess.set(&sess.BusinessUnitKey, org.BusinessUnitKey)
	sess.set(&sess.StoreKey, org.StoreKey)
	return idc, nil
}

func (r *Resolver) authenticate(ctx context.Context, req Request, idc *Context) error {
	account, err := r.accounts.LookupByToken(ctx, req.ProjectID, req.AccessToken)
	if err == nil {
		idc.Account = account
		return nil
	}
	anonID, anonErr := r.anonymous.LookupByToken(ctx, req.ProjectID, req.AccessToken)
	if anonErr == nil {
		idc.AnonymousID = anonID
		if idc.Session.AnonymousID != anonID {
			idc.Session.AnonymousID = anonID
			idc.Session.changed = true
		}
		return nil
	}
	r.logger.Printf("identity: rejected token project_id=%s err=%v", req.ProjectID, err)
	return domain.ErrAuthRequired
}

func (r *Resolver) organization(ctx context.Context, idc Context) (Organization, error) {
	sess := idc.Session
	var org Organization
	var unit *domain.BusinessUnit

	if idc.Account != nil {
		units, err := r.units.ListByAssociate(ctx, idc.ProjectID, idc.Account.ID)
		if err != nil {
			return org, err
		}
		for i := range units {
			if units[i].Key == sess.BusinessUnitKey {
				unit = &units[i]
				break
			}
		}
		if unit == nil && len(units) > 0 {
			unit = &units[0]
		}

		if key := sess.SuperUserBusinessUnitKey; key != "" {
			su, err := r.units.GetByKey(ctx, idc.ProjectID, key)
			switch {
			case err == nil:
				if a, ok := su.Associate(idc.Account.ID); ok && a.HasRole(domain.RoleSuperUser) {
					unit = su
					org.SuperUser = true
				} else {
					r.logger.Printf("identity: superuser scope denied bu=%s customer_id=%s", key, idc.Account.ID)
				}
			case errors.Is(err, domain.ErrNotFound):
				r.logger.Printf("identity: superuser bu not found bu=%s", key)
			default:
				return org, err
			}
			if !org.SuperUser {
				sess.SuperUserBusinessUnitKey = ""
				sess.changed = true
			}
		}
	}

	// accounts are scoped to units they belong to; everyone else to the default
	if idc.Account == nil && r.defaults.BusinessUnitKey != "" {
		u, err := r.units.GetByKey(ctx, idc.ProjectID, r.defaults.BusinessUnitKey)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return org, err
		}
		unit = u
	}
	if unit == nil {
		if sess.BusinessUnitKey != "" {
			r.logger.Printf("identity: business unit denied bu=%s account_id=%s", sess.BusinessUnitKey, idc.AccountID())
			sess.BusinessUnitKey = ""
			sess.changed = true
		}
		return org, nil
	}

	org.BusinessUnitKey = unit.Key
	if idc.Account != nil {
		org.IsAdmin = unit.IsAdmin(idc.Account.ID)
		org.IsRootAdmin = unit.IsRootAdmin(idc.Account.ID)
	}

	storeKey := sess.StoreKey
	if storeKey == "" || !unit.HasStore(storeKey) {
		storeKey = ""
		if len(unit.StoreKeys) > 0 {
			storeKey = unit.StoreKeys[0]
		} else if r.defaults.StoreKey != "" {
			storeKey = r.defaults.StoreKey
		}
	}
	if storeKey == "" {
		return org, nil
	}
	st, err := r.stores.GetByKey(ctx, idc.ProjectID, storeKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return org, nil
		}
		return org, err
	}
	org.StoreKey = st.Key
	org.IsPreBuyStore = st.IsPreBuy
	org.DistributionChannel = st.DefaultDistributionChannel(r.defaults.DistributionChannel)
	return org, nil
}
