package anonymous

import (
	"context"
	"errors"
	"time"

	tokenrepo "commercetools-b2b/internal/repository/token"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Service issues tokens for shoppers without an account. The anonymous id
// scopes their carts until they sign up or log in.
type Service struct {
	tokens     *tokenManager
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func New(tokens tokenrepo.Repository) *Service {
	return &Service{
		tokens:     newTokenManager(tokens),
		accessTTL:  3 * time.Hour,
		refreshTTL: 30 * 24 * time.Hour,
	}
}

func (s *Service) Issue(ctx context.Context, projectID string) (accessToken, refreshToken, anonymousID string, err error) {
	anonID := uuid.NewString()
	accessToken, err = s.tokens.Issue(ctx, projectID, anonID, kindAccess, s.accessTTL)
	if err != nil {
		return "", "", "", err
	}
	refreshToken, err = s.tokens.Issue(ctx, projectID, anonID, kindRefresh, s.refreshTTL)
	if err != nil {
		return "", "", "", err
	}
	return accessToken, refreshToken, anonID, nil
}

func (s *Service) LookupByToken(ctx context.Context, projectID, token string) (string, error) {
	meta, ok := s.tokens.Validate(ctx, token)
	if !ok || meta.ProjectID != projectID {
		return "", ErrInvalidToken
	}
	return meta.AnonymousID, nil
}

func (s *Service) AccessTTLSeconds() int {
	return int(s.accessTTL.Seconds())
}
