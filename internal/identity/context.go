// Package identity carries the acting account, its organization scope and
// session state explicitly into every service call.
package identity

import "commercetools-b2b/internal/domain"

// Organization is the business unit / store scope an operation runs in.
type Organization struct {
	BusinessUnitKey     string
	StoreKey            string
	DistributionChannel string
	IsPreBuyStore       bool
	// SuperUser is set when the account acts on behalf of the business unit
	// through its superuser associate role.
	SuperUser   bool
	IsAdmin     bool
	IsRootAdmin bool
}

// Resolved reports whether both the business unit and the store are known.
func (o Organization) Resolved() bool {
	return o.BusinessUnitKey != "" && o.StoreKey != ""
}

// Context is the per-request identity. It is passed by value; the Session
// pointer is shared so services can move the session cart pointer.
type Context struct {
	ProjectID    string
	Account      *domain.Customer
	AnonymousID  string
	Organization Organization
	Session      *Session
}

// AccountID returns the account id or "" for anonymous callers.
func (c Context) AccountID() string {
	if c.Account == nil {
		return ""
	}
	return c.Account.ID
}

// RequireAccount returns the account or domain.ErrAuthRequired.
func (c Context) RequireAccount() (*domain.Customer, error) {
	if c.Account == nil {
		return nil, domain.ErrAuthRequired
	}
	return c.Account, nil
}

// RequireOrganization fails when the business unit or store is unresolved.
func (c Context) RequireOrganization() error {
	if !c.Organization.Resolved() {
		return domain.NewValidationCode("MissingOrganization", "businessUnit", "business unit and store must be resolved")
	}
	return nil
}

// Owns reports whether the caller owns the cart.
func (c Context) Owns(cart domain.Cart) bool {
	return cart.OwnedBy(c.AccountID(), c.AnonymousID)
}

// CanAccess reports whether the caller may read or modify the cart: it owns
// it, or it acts as superuser for the cart's business unit.
func (c Context) CanAccess(cart domain.Cart) bool {
	if c.Owns(cart) {
		return true
	}
	return c.Organization.SuperUser && cart.BusinessUnitKey != "" && cart.BusinessUnitKey == c.Organization.BusinessUnitKey
}

// Sess returns the session, never nil.
func (c Context) Sess() *Session {
	if c.Session == nil {
		return &Session{}
	}
	return c.Session
}
