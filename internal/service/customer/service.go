package customer

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
	"commercetools-b2b/internal/notify"
	custrepo "commercetools-b2b/internal/repository/customer"
	tokenrepo "commercetools-b2b/internal/repository/token"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned when email/password do not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken indicates the provided token could not be validated.
	ErrInvalidToken = errors.New("invalid token")
)

type cartClaimer interface {
	AssignCustomerToAnonymous(ctx context.Context, projectID, anonymousID, customerID string) (*domain.Cart, error)
}

// Service handles customer signup, login and account verification flows.
type Service struct {
	repo        custrepo.Repository
	carts       cartClaimer
	tokens      *tokenManager
	notifier    *notify.Notifier
	logger      *log.Logger
	accessTTL   time.Duration
	refreshTTL  time.Duration
	verifyTTL   time.Duration
	resetTTL    time.Duration
	passwordMin int
}

// New creates a Service with sane defaults. carts may be nil, in which case
// anonymous carts are never claimed on login.
func New(repo custrepo.Repository, tokens tokenrepo.Repository, carts cartClaimer, notifier *notify.Notifier, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{
		repo:        repo,
		carts:       carts,
		tokens:      newTokenManager(tokens),
		notifier:    notifier,
		logger:      logger,
		accessTTL:   48 * time.Hour,
		refreshTTL:  30 * 24 * time.Hour,
		verifyTTL:   24 * time.Hour,
		resetTTL:    time.Hour,
		passwordMin: 8,
	}
}

// AddressInput mirrors incoming address payloads.
type AddressInput struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Country    string `json:"country"`
	StreetName string `json:"streetName"`
	PostalCode string `json:"postalCode"`
	City       string `json:"city"`
	Email      string `json:"email"`
	Department string `json:"department"`
}

// SignupInput captures fields expected by the signup endpoint.
type SignupInput struct {
	Email                  string         `json:"email"`
	Password               string         `json:"password"`
	FirstName              string         `json:"firstName"`
	LastName               string         `json:"lastName"`
	DateOfBirth            string         `json:"dateOfBirth"`
	Addresses              []AddressInput `json:"addresses"`
	DefaultShippingAddress *int           `json:"defaultShippingAddress"`
	DefaultBillingAddress  *int           `json:"defaultBillingAddress"`
}

// Signup registers a new customer within the caller's project. An anonymous
// caller's active cart is claimed in the same write; when that cart can no
// longer be assigned the account is created once more without it.
func (s *Service) Signup(ctx context.Context, idc identity.Context, in SignupInput) (*domain.Customer, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" {
		return nil, domain.NewValidation("email", "email required")
	}
	password := strings.TrimSpace(in.Password)
	if err := validatePassword(password, s.passwordMin); err != nil {
		return nil, err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	addresses := make([]domain.CustomerAddress, 0, len(in.Addresses))
	for _, a := range in.Addresses {
		addresses = append(addresses, domain.CustomerAddress{
			ID:         uuid.NewString(),
			FirstName:  a.FirstName,
			LastName:   a.LastName,
			Country:    strings.ToUpper(strings.TrimSpace(a.Country)),
			StreetName: a.StreetName,
			PostalCode: a.PostalCode,
			City:       a.City,
			Email:      a.Email,
			Department: a.Department,
		})
	}

	shippingID := addressIDFromIndex(addresses, in.DefaultShippingAddress)
	if shippingID == "" && len(addresses) > 0 {
		shippingID = addresses[0].ID
	}
	billingID := addressIDFromIndex(addresses, in.DefaultBillingAddress)
	if billingID == "" && len(addresses) > 0 {
		billingID = addresses[0].ID
	}

	customer := domain.Customer{
		ProjectID:                idc.ProjectID,
		Email:                    email,
		PasswordHash:             string(hashed),
		FirstName:                in.FirstName,
		LastName:                 in.LastName,
		DateOfBirth:              in.DateOfBirth,
		Addresses:                addresses,
		DefaultShippingAddressID: shippingID,
		DefaultBillingAddressID:  billingID,
	}
	if shippingID != "" {
		customer.ShippingAddressIDs = []string{shippingID}
	}
	if billingID != "" {
		customer.BillingAddressIDs = []string{billingID}
	}

	created, err := s.create(ctx, customer, idc.AnonymousID)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, notify.Message{
		Kind:      notify.KindAccountRegistered,
		ProjectID: created.ProjectID,
		To:        created.Email,
		Locale:    idc.Sess().Locale,
		Data:      map[string]interface{}{"customerId": created.ID, "firstName": created.FirstName},
	})
	if err := s.sendEmailConfirmation(ctx, *created, idc.Sess().Locale); err != nil {
		s.logger.Printf("customer: issue confirmation token customer=%s err=%v", created.ID, err)
	}
	return created, nil
}

func (s *Service) create(ctx context.Context, c domain.Customer, anonymousID string) (*domain.Customer, error) {
	if anonymousID == "" {
		return s.repo.Create(ctx, c)
	}
	created, err := s.repo.CreateWithCart(ctx, c, anonymousID)
	if errors.Is(err, domain.ErrCartNotAssignable) {
		s.logger.Printf("customer: signup without cart anonymous_id=%s err=%v", anonymousID, err)
		return s.repo.Create(ctx, c)
	}
	return created, err
}

// Login validates credentials and returns issued tokens plus the customer.
// An anonymous caller's active cart moves to the account and becomes the
// session cart.
func (s *Service) Login(ctx context.Context, idc identity.Context, email, password string) (*domain.Customer, string, string, error) {
	password = strings.TrimSpace(password)
	c, err := s.repo.GetByEmail(ctx, idc.ProjectID, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, "", "", ErrInvalidCredentials
		}
		return nil, "", "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return nil, "", "", ErrInvalidCredentials
	}

	access, err := s.tokens.Issue(ctx, c.ProjectID, c.ID, kindAccess, s.accessTTL)
	if err != nil {
		return nil, "", "", err
	}
	refresh, err := s.tokens.Issue(ctx, c.ProjectID, c.ID, kindRefresh, s.refreshTTL)
	if err != nil {
		return nil, "", "", err
	}

	if idc.AnonymousID != "" && s.carts != nil {
		cart, err := s.carts.AssignCustomerToAnonymous(ctx, c.ProjectID, idc.AnonymousID, c.ID)
		switch {
		case err == nil:
			idc.Sess().SetCart(cart.ID)
		case !errors.Is(err, domain.ErrNotFound):
			s.logger.Printf("customer: claim anonymous cart anonymous_id=%s customer=%s err=%v", idc.AnonymousID, c.ID, err)
		}
	}
	return c, access, refresh, nil
}

// LookupByToken returns the customer bound to a valid access token.
func (s *Service) LookupByToken(ctx context.Context, projectID, token string) (*domain.Customer, error) {
	meta, ok := s.tokens.Validate(ctx, token, kindAccess)
	if !ok || meta.ProjectID != projectID {
		return nil, ErrInvalidToken
	}
	c, err := s.repo.GetByID(ctx, projectID, meta.CustomerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return c, nil
}

// RequestEmailConfirmation sends a fresh confirmation link to the account.
func (s *Service) RequestEmailConfirmation(ctx context.Context, idc identity.Context) error {
	account, err := idc.RequireAccount()
	if err != nil {
		return err
	}
	if account.IsEmailVerified {
		return nil
	}
	return s.sendEmailConfirmation(ctx, *account, idc.Sess().Locale)
}

func (s *Service) sendEmailConfirmation(ctx context.Context, c domain.Customer, locale string) error {
	token, err := s.tokens.Issue(ctx, c.ProjectID, c.ID, kindEmailVerify, s.verifyTTL)
	if err != nil {
		return err
	}
	s.notifier.Notify(ctx, notify.Message{
		Kind:      notify.KindEmailConfirmation,
		ProjectID: c.ProjectID,
		To:        c.Email,
		Locale:    locale,
		Data:      map[string]interface{}{"customerId": c.ID, "token": token},
	})
	return nil
}

// ConfirmEmail marks the token's account as verified. Tokens are single use.
func (s *Service) ConfirmEmail(ctx context.Context, projectID, token string) (*domain.Customer, error) {
	meta, ok := s.tokens.Validate(ctx, token, kindEmailVerify)
	if !ok || meta.ProjectID != projectID {
		return nil, ErrInvalidToken
	}
	c, err := s.repo.MarkEmailVerified(ctx, projectID, meta.CustomerID)
	if err != nil {
		return nil, err
	}
	s.tokens.Revoke(ctx, token)
	return c, nil
}

// RequestPasswordReset mails a reset token when the email is registered.
// Unknown emails succeed silently.
func (s *Service) RequestPasswordReset(ctx context.Context, projectID, email, locale string) error {
	c, err := s.repo.GetByEmail(ctx, projectID, strings.TrimSpace(strings.ToLower(email)))
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	token, err := s.tokens.Issue(ctx, c.ProjectID, c.ID, kindPasswordReset, s.resetTTL)
	if err != nil {
		return err
	}
	s.notifier.Notify(ctx, notify.Message{
		Kind:      notify.KindPasswordReset,
		ProjectID: c.ProjectID,
		To:        c.Email,
		Locale:    locale,
		Data:      map[string]interface{}{"customerId": c.ID, "token": token},
	})
	return nil
}

// ResetPassword replaces the password of the token's account.
func (s *Service) ResetPassword(ctx context.Context, projectID, token, newPassword string) error {
	meta, ok := s.tokens.Validate(ctx, token, kindPasswordReset)
	if !ok || meta.ProjectID != projectID {
		return ErrInvalidToken
	}
	password := strings.TrimSpace(newPassword)
	if err := validatePassword(password, s.passwordMin); err != nil {
		return err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, projectID, meta.CustomerID, string(hashed)); err != nil {
		return err
	}
	s.tokens.Revoke(ctx, token)
	return nil
}

// AccessTTLSeconds exposes the access token lifetime in seconds.
func (s *Service) AccessTTLSeconds() int {
	return int(s.accessTTL.Seconds())
}

func addressIDFromIndex(addresses []domain.CustomerAddress, idx *int) string {
	if idx == nil {
		return ""
	}
	if *idx < 0 || *idx >= len(addresses) {
		return ""
	}
	return addresses[*idx].ID
}

func validatePassword(p string, min int) error {
	trimmed := strings.TrimSpace(p)
	if len(trimmed) < min {
		return domain.NewValidation("password", fmt.Sprintf("password must be at least %d characters", min))
	}
	hasUpper := false
	hasLower := false
	hasDigit := false
	for _, r := range trimmed {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return domain.NewValidation("password", "password must contain at least 1 uppercase letter, 1 lowercase letter, and 1 number")
	}
	return nil
}
