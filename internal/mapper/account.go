package mapper

import (
	"encoding/base64"

	"commercetools-b2b/internal/domain"
	"github.com/samber/lo"
)

// DefaultAccount renders customers. Password hashes never leave the service
// in full; only a masked suffix is returned.
type DefaultAccount struct{}

func (DefaultAccount) Customer(c domain.Customer) Customer {
	version := c.Version
	if version == 0 {
		version = 1
	}
	return Customer{
		ID:             c.ID,
		Version:        version,
		CreatedAt:      c.CreatedAt,
		LastModifiedAt: c.CreatedAt,
		CreatedBy:      &Actor{ClientID: auditClientID},
		Email:          c.Email,
		FirstName:      c.FirstName,
		LastName:       c.LastName,
		DateOfBirth:    c.DateOfBirth,
		Password:       maskPassword(c.PasswordHash),
		Addresses: lo.Map(c.Addresses, func(a domain.CustomerAddress, _ int) Address {
			return Address(a.ToAddress())
		}),
		DefaultShippingAddressID: c.DefaultShippingAddressID,
		DefaultBillingAddressID:  c.DefaultBillingAddressID,
		ShippingAddressIDs:       nonNil(c.ShippingAddressIDs),
		BillingAddressIDs:        nonNil(c.BillingAddressIDs),
		IsEmailVerified:          c.IsEmailVerified,
		Stores:                   []interface{}{},
		AuthenticationMode:       "Password",
	}
}

func maskPassword(hash string) string {
	if hash == "" {
		return ""
	}
	enc := base64.StdEncoding.EncodeToString([]byte(hash))
	if len(enc) >= 4 {
		return "****" + enc[len(enc)-4:]
	}
	return "****"
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
