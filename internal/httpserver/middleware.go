package httpserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"strings"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/identity"
	"github.com/gin-gonic/gin"
)

type ctxKey string

const projectCtxKey ctxKey = "project"

// identityCtxKey keys the resolved identity in the gin context, apart from
// the request context values typed as ctxKey.
const identityCtxKey = "identity"

const (
	sessionHeader = "X-Commerce-Session"
	merchantKey   = "X-Merchant-Key"
)

// projectMiddleware resolves :projectKey and stores the project on the request context.
func projectMiddleware(repo projectRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.Param("projectKey"))
		if key == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
				StatusCode: http.StatusBadRequest,
				Message:    "project key required",
				Errors:     []errorItem{{Code: "InvalidInput", Message: "project key required"}},
			})
			return
		}
		project, err := repo.GetByKey(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{
					StatusCode: http.StatusNotFound,
					Message:    "project " + key + " not found",
					Errors:     []errorItem{{Code: "ResourceNotFound", Message: "project " + key + " not found"}},
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
				StatusCode: http.StatusInternalServerError,
				Message:    "failed to load project",
				Errors:     []errorItem{{Code: "General", Message: "failed to load project"}},
			})
			return
		}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), projectCtxKey, project))
		c.Next()
	}
}

func projectFrom(c *gin.Context) *domain.Project {
	p, _ := c.Request.Context().Value(projectCtxKey).(*domain.Project)
	return p
}

// identityMiddleware resolves the caller's identity from the bearer token,
// the session header and the scope override headers.
func identityMiddleware(resolver identityResolver, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		project := projectFrom(c)
		if project == nil {
			writeError(c, logger, domain.ErrNotFound)
			return
		}
		idc, err := resolver.Resolve(c.Request.Context(), identity.Request{
			ProjectID:                project.ID,
			AccessToken:              bearerToken(c.GetHeader("Authorization")),
			SessionToken:             c.GetHeader(sessionHeader),
			BusinessUnitKey:          c.GetHeader("X-Business-Unit"),
			StoreKey:                 c.GetHeader("X-Store"),
			SuperUserBusinessUnitKey: c.GetHeader("X-Superuser-Business-Unit"),
			Currency:                 c.GetHeader("X-Currency"),
			Country:                  c.GetHeader("X-Country"),
			Locale:                   c.GetHeader("X-Locale"),
		})
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.Set(identityCtxKey, idc)
		c.Next()
	}
}

func identityFrom(c *gin.Context) identity.Context {
	v, ok := c.Get(identityCtxKey)
	if !ok {
		return identity.Context{Session: &identity.Session{}}
	}
	return v.(identity.Context)
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// merchantMiddleware guards seller-side endpoints with a shared API key. An
// empty configured key disables them.
func merchantMiddleware(apiKey string, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(merchantKey)
		if apiKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
			if got != "" {
				logger.Printf("http: rejected merchant key path=%s", c.FullPath())
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
				StatusCode: http.StatusUnauthorized,
				Message:    "merchant API key required",
				Errors:     []errorItem{{Code: "insufficient_scope", Message: "merchant API key required"}},
			})
			return
		}
		c.Next()
	}
}
