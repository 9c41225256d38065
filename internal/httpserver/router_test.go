package httpserver

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/identity"
	"commercetools-b2b/internal/repository/memory"
	anonymoussvc "commercetools-b2b/internal/service/anonymous"
	"github.com/gin-gonic/gin"
)

type stubProjectRepo struct {
	project *domain.Project
	err     error
}

func (s *stubProjectRepo) GetByKey(_ context.Context, _ string) (*domain.Project, error) {
	return s.project, s.err
}

func TestProjectMiddleware_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &stubProjectRepo{
		project: &domain.Project{ID: "123", Key: "proj", Name: "Test"},
	}
	router := gin.New()
	router.Use(projectMiddleware(repo))
	router.GET("/projects/:projectKey/test", func(c *gin.Context) {
		p := c.Request.Context().Value(projectCtxKey)
		if p == nil {
			t.Fatalf("expected project in context")
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/projects/proj/test", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestIdentityFrom(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if idc := identityFrom(c); idc.Session == nil || idc.AccountID() != "" {
		t.Fatalf("expected empty identity with a session, got %+v", idc)
	}

	c.Set(identityCtxKey, identity.Context{ProjectID: "proj-id", Account: &domain.Customer{ID: "cust-id"}, Session: &identity.Session{}})
	if idc := identityFrom(c); idc.AccountID() != "cust-id" {
		t.Fatalf("expected stored identity, got %+v", idc)
	}
}

func TestProjectMiddleware_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &stubProjectRepo{err: domain.ErrNotFound}
	router := gin.New()
	router.Use(projectMiddleware(repo))
	router.GET("/projects/:projectKey/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/projects/missing/test", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestProjectMiddleware_Error(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &stubProjectRepo{err: errors.New("boom")}
	router := gin.New()
	router.Use(projectMiddleware(repo))
	router.GET("/projects/:projectKey/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/projects/proj/test", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
}

func TestProjectMiddleware_MissingKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &stubProjectRepo{}
	router := gin.New()
	router.Use(projectMiddleware(repo))
	router.GET("/projects/:projectKey/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/projects//test", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func logDiscard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type stubAnonymousSvc struct {
	tokens map[string]string
}

func (s *stubAnonymousSvc) Issue(_ context.Context, _ string) (string, string, string, error) {
	return "anon-access", "anon-refresh", "anon-1", nil
}

func (s *stubAnonymousSvc) AccessTTLSeconds() int { return 600 }

func (s *stubAnonymousSvc) LookupByToken(_ context.Context, _, token string) (string, error) {
	if id, ok := s.tokens[token]; ok {
		return id, nil
	}
	return "", anonymoussvc.ErrInvalidToken
}

type stubStores map[string]domain.Store

func (s stubStores) GetByKey(_ context.Context, _, key string) (*domain.Store, error) {
	st, ok := s[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &st, nil
}

var testCodec = identity.NewSessionCodec("test-secret", time.Hour)

// testDeps wires a real identity resolver over stub token services and an
// in-memory business unit "acme" where cust-id buys and admin-id administers.
// Anonymous callers fall back to "acme" as well.
func testDeps(auth *stubCustomerAuthSvc) Deps {
	units := memory.NewBusinessUnits(domain.BusinessUnit{
		ID: "bu-1", ProjectID: "proj-id", Key: "acme", TopLevelUnitKey: "acme",
		Associates: []domain.Associate{
			{CustomerID: "cust-id", Roles: []string{domain.RoleBuyer}},
			{CustomerID: "admin-id", Roles: []string{domain.RoleAdmin}},
		},
		StoreKeys: []string{"acme-store"},
	})
	stores := stubStores{"acme-store": {Key: "acme-store", ProjectID: "proj-id", DistributionChannels: []string{"dc-1"}}}
	anon := &stubAnonymousSvc{tokens: map[string]string{"anon-access": "anon-1"}}
	resolver := identity.NewResolver(auth, anon, units, stores, testCodec, identity.Defaults{BusinessUnitKey: "acme", Currency: "USD", Country: "US", Locale: "en-US"}, nil)
	return Deps{
		ProjectRepo:  &stubProjectRepo{project: &domain.Project{ID: "proj-id", Key: "proj-key"}},
		Resolver:     resolver,
		SessionCodec: testCodec,
		CustomerSvc:  auth,
		AnonymousSvc: anon,
	}
}

func TestBuildRouter_RequiresCoreDeps(t *testing.T) {
	deps := testDeps(&stubCustomerAuthSvc{})
	deps.SessionCodec = nil
	if _, err := buildRouter(logDiscard(), nil, deps); err == nil {
		t.Fatalf("expected error without session codec")
	}
	deps = testDeps(&stubCustomerAuthSvc{})
	deps.ProjectRepo = nil
	if _, err := buildRouter(logDiscard(), nil, deps); err == nil {
		t.Fatalf("expected error without project repo")
	}
}

func TestReadyz_WithoutDB(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router, err := buildRouter(logDiscard(), nil, testDeps(&stubCustomerAuthSvc{}))
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMerchantRoutes_RequireKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	deps := testDeps(&stubCustomerAuthSvc{})
	deps.OrderSvc = &stubOrderSvc{}
	deps.MerchantAPIKey = "merchant-secret"
	router, err := buildRouter(logDiscard(), nil, deps)
	if err != nil {
		t.Fatalf("build router: %v", err)
	}

	for key, want := range map[string]int{"": http.StatusUnauthorized, "wrong": http.StatusUnauthorized, "merchant-secret": http.StatusOK} {
		req := httptest.NewRequest(http.MethodPost, "/merchant/proj-key/orders/20260504-1030-00000001/subscriptions", nil)
		if key != "" {
			req.Header.Set(merchantKey, key)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("key %q: expected %d, got %d body=%s", key, want, rec.Code, rec.Body.String())
		}
	}
}
