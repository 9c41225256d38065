package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/identity"
	cartrepo "commercetools-b2b/internal/repository/cart"
)

// Service applies update actions to carts the caller can access.
type Service struct {
	repo        cartRepo
	productRepo productRepo
	now         func() time.Time
}

type productRepo interface {
	GetBySKU(ctx context.Context, projectID, sku string) (*domain.Product, error)
}

func New(repo cartrepo.Repository, productRepo productRepo) *Service {
	return &Service{repo: repo, productRepo: productRepo, now: time.Now}
}

type UpdateInput struct {
	Version int            `json:"version"`
	Actions []UpdateAction `json:"actions"`
}

type UpdateAction struct {
	Action              string                      `json:"action"`
	SKU                 string                      `json:"sku,omitempty"`
	LineItemID          string                      `json:"lineItemId,omitempty"`
	Quantity            int                         `json:"quantity,omitempty"`
	DistributionChannel string                      `json:"distributionChannel,omitempty"`
	Address             *domain.Address             `json:"address,omitempty"`
	Email               string                      `json:"email,omitempty"`
	Country             string                      `json:"country,omitempty"`
	Locale              string                      `json:"locale,omitempty"`
	Targets             []domain.ItemShippingTarget `json:"targets,omitempty"`
	Name                string                      `json:"name,omitempty"`
	Value               interface{}                 `json:"value,omitempty"`
	Days                int                         `json:"deleteDaysAfterLastModification,omitempty"`
	Custom              domain.CustomFields         `json:"custom,omitempty"`
}

var reservedFields = map[string]struct{}{
	domain.FieldPreBuyCart:          {},
	domain.FieldSubscription:        {},
	domain.FieldSubscriptionActive:  {},
	domain.FieldSubscriptionOrderID: {},
	domain.FieldSubscriptionProduct: {},
	domain.FieldSubscriptionSKU:     {},
	domain.FieldNextDeliveryDate:    {},
}

func (s *Service) Get(ctx context.Context, idc identity.Context, id string) (*domain.Cart, error) {
	cart, err := s.repo.GetByID(ctx, idc.ProjectID, id)
	if err != nil {
		return nil, err
	}
	if !idc.CanAccess(*cart) {
		return nil, domain.ErrNotFound
	}
	return cart, nil
}

// Update resolves every action up front, applies them in order and writes
// the cart once, conditional on in.Version.
func (s *Service) Update(ctx context.Context, idc identity.Context, cartID string, in UpdateInput) (*domain.Cart, error) {
	if len(in.Actions) == 0 {
		return nil, domain.NewValidation("actions", "actions required")
	}
	if in.Version <= 0 {
		return nil, domain.NewValidation("version", "version required")
	}
	cart, err := s.Get(ctx, idc, cartID)
	if err != nil {
		return nil, err
	}
	if cart.Version != in.Version {
		return nil, domain.NewConflict("cart", cart.ID, in.Version, cart.Version)
	}
	if cart.State != domain.CartStateActive {
		return nil, domain.NewValidationCode("InvalidOperation", "cartState", fmt.Sprintf("cart is %s", cart.State))
	}

	actions := make([]domain.CartAction, 0, len(in.Actions))
	for i, a := range in.Actions {
		action, err := s.resolve(ctx, idc, a)
		if err != nil {
			return nil, fmt.Errorf("actions[%d]: %w", i, err)
		}
		actions = append(actions, action)
	}
	if err := cart.Apply(s.now().UTC(), actions...); err != nil {
		return nil, err
	}
	return s.repo.Save(ctx, *cart, in.Version)
}

func (s *Service) resolve(ctx context.Context, idc identity.Context, a UpdateAction) (domain.CartAction, error) {
	switch strings.ToLower(strings.TrimSpace(a.Action)) {
	case "addlineitem":
		sku := strings.TrimSpace(a.SKU)
		if sku == "" {
			return nil, domain.NewValidation("sku", "sku required")
		}
		if s.productRepo == nil {
			return nil, errors.New("product repository unavailable")
		}
		product, err := s.productRepo.GetBySKU(ctx, idc.ProjectID, sku)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.NewValidation("sku", fmt.Sprintf("product %q not found", sku))
			}
			return nil, err
		}
		channel := a.DistributionChannel
		if channel == "" {
			channel = idc.Organization.DistributionChannel
		}
		return domain.AddLineItem{Product: *product, Quantity: a.Quantity, DistributionChannel: channel, Custom: a.Custom}, nil
	case "changelineitemquantity":
		if strings.TrimSpace(a.LineItemID) == "" {
			return nil, domain.NewValidation("lineItemId", "lineItemId required")
		}
		return domain.ChangeLineItemQuantity{LineItemID: a.LineItemID, Quantity: a.Quantity}, nil
	case "removelineitem":
		return domain.RemoveLineItem{LineItemID: a.LineItemID}, nil
	case "setshippingaddress":
		return domain.SetShippingAddress{Address: a.Address}, nil
	case "setbillingaddress":
		return domain.SetBillingAddress{Address: a.Address}, nil
	case "setcustomeremail":
		return domain.SetCustomerEmail{Email: a.Email}, nil
	case "setcountry":
		return domain.SetCountry{Country: a.Country}, nil
	case "setlocale":
		return domain.SetLocale{Locale: a.Locale}, nil
	case "additemshippingaddress":
		if a.Address == nil {
			return nil, domain.NewValidation("address", "address required")
		}
		return domain.AddItemShippingAddress{Address: *a.Address}, nil
	case "setlineitemshippingdetails":
		return domain.SetLineItemShippingDetails{LineItemID: a.LineItemID, Targets: a.Targets}, nil
	case "setcustomfield":
		if strings.TrimSpace(a.Name) == "" {
			return nil, domain.NewValidation("name", "field name required")
		}
		if _, ok := reservedFields[a.Name]; ok {
			return nil, domain.NewValidationCode("InvalidOperation", "name", fmt.Sprintf("field %q is managed by the service", a.Name))
		}
		return domain.SetCustomField{Field: a.Name, Value: a.Value}, nil
	case "setdeletedaysafterlastmodification":
		return domain.SetDeleteDaysAfterLastModification{Days: a.Days}, nil
	default:
		return nil, domain.NewValidationCode("InvalidOperation", "action", fmt.Sprintf("unsupported action %q", a.Action))
	}
}
