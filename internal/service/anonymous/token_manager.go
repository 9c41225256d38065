package anonymous

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"commercetools-b2b/internal/domain"
	tokenrepo "commercetools-b2b/internal/repository/token"
)

const (
	kindAccess  = "anonymous-access"
	kindRefresh = "anonymous-refresh"
)

type tokenMeta struct {
	AnonymousID string
	ProjectID   string
	ExpiresAt   time.Time
}

// tokenManager persists anonymous tokens next to customer tokens, keyed by
// the anonymous id instead of a customer.
type tokenManager struct {
	repo tokenrepo.Repository
	now  func() time.Time
}

func newTokenManager(repo tokenrepo.Repository) *tokenManager {
	return &tokenManager{repo: repo, now: time.Now}
}

func (m *tokenManager) Issue(ctx context.Context, projectID, anonymousID, kind string, ttl time.Duration) (string, error) {
	expiresAt := m.now().Add(ttl)
	for i := 0; i < 5; i++ {
		token, err := randomToken()
		if err != nil {
			return "", err
		}
		anon := anonymousID
		err = m.repo.Create(ctx, tokenrepo.Token{
			Token:       token,
			ProjectID:   projectID,
			AnonymousID: &anon,
			Kind:        kind,
			ExpiresAt:   expiresAt,
		})
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return "", err
		}
	}
	return "", errors.New("token collision")
}

func (m *tokenManager) Validate(ctx context.Context, token string) (tokenMeta, bool) {
	meta, err := m.repo.Get(ctx, token)
	if err != nil {
		return tokenMeta{}, false
	}
	if meta.Kind != kindAccess || meta.AnonymousID == nil {
		return tokenMeta{}, false
	}
	if m.now().After(meta.ExpiresAt) {
		_ = m.repo.Delete(ctx, token)
		return tokenMeta{}, false
	}
	return tokenMeta{
		AnonymousID: *meta.AnonymousID,
		ProjectID:   meta.ProjectID,
		ExpiresAt:   meta.ExpiresAt,
	}, true
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
