package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/identity"
	cartrepo "commercetools-b2b/internal/repository/cart"
)

// SplitTarget assigns Quantity units to Address. Address.Key identifies it
// within the cart's item shipping address set.
type SplitTarget struct {
	Address  domain.Address `json:"address"`
	Quantity int            `json:"quantity"`
}

type SplitInput struct {
	CartID string `json:"-"`
	// Version, when set, must equal the cart's current version.
	Version    int           `json:"version"`
	LineItemID string        `json:"lineItemId"`
	Targets    []SplitTarget `json:"targets"`
}

// Splitter distributes a line item across item shipping addresses.
type Splitter struct {
	repo cartRepo
	now  func() time.Time
}

func NewSplitter(repo cartrepo.Repository) *Splitter {
	return &Splitter{repo: repo, now: time.Now}
}

// SplitLineItem registers every target address missing from the cart, one
// versioned write each, then sets the line item's shipping details in a
// final write. A failure midway leaves the addresses already added; calling
// again with the same input resumes from there.
func (s *Splitter) SplitLineItem(ctx context.Context, idc identity.Context, in SplitInput) (*domain.Cart, error) {
	if err := validateTargets(in.Targets); err != nil {
		return nil, err
	}
	cart, err := s.repo.GetByID(ctx, idc.ProjectID, in.CartID)
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
	line, ok := cart.LineItem(in.LineItemID)
	if !ok {
		return nil, domain.NewValidation("lineItemId", fmt.Sprintf("line item %q not found", in.LineItemID))
	}
	sum := 0
	for _, t := range in.Targets {
		sum += t.Quantity
	}
	if sum != line.Quantity {
		return nil, domain.NewValidationCode("InvalidItemShippingDetails", "targets",
			fmt.Sprintf("target quantities sum to %d, line item quantity is %d", sum, line.Quantity))
	}

	for _, t := range in.Targets {
		key := strings.TrimSpace(t.Address.Key)
		if _, exists := cart.ItemShippingAddress(key); exists {
			continue
		}
		cart, err = s.write(ctx, *cart, domain.AddItemShippingAddress{Address: t.Address})
		if err != nil {
			return nil, err
		}
	}

	targets := make([]domain.ItemShippingTarget, 0, len(in.Targets))
	for _, t := range in.Targets {
		targets = append(targets, domain.ItemShippingTarget{AddressKey: strings.TrimSpace(t.Address.Key), Quantity: t.Quantity})
	}
	return s.write(ctx, *cart, domain.SetLineItemShippingDetails{LineItemID: in.LineItemID, Targets: targets})
}

func (s *Splitter) write(ctx context.Context, cart domain.Cart, action domain.CartAction) (*domain.Cart, error) {
	expected := cart.Version
	if err := cart.Apply(s.now().UTC(), action); err != nil {
		return nil, err
	}
	return s.repo.Save(ctx, cart, expected)
}

func validateTargets(targets []SplitTarget) error {
	if len(targets) == 0 {
		return domain.NewValidation("targets", "at least one target required")
	}
	seen := make(map[string]struct{}, len(targets))
	for i, t := range targets {
		key := strings.TrimSpace(t.Address.Key)
		if key == "" {
			return domain.NewValidation(fmt.Sprintf("targets[%d].address.key", i), "address key required")
		}
		if t.Quantity <= 0 {
			return domain.NewValidation(fmt.Sprintf("targets[%d].quantity", i), "quantity must be positive")
		}
		if _, dup := seen[key]; dup {
			return domain.NewValidationCode("DuplicateField", fmt.Sprintf("targets[%d].address.key", i), fmt.Sprintf("address %q listed twice", key))
		}
		seen[key] = struct{}{}
	}
	return nil
}
