package httpserver

import (
	"errors"
	"log"
	"net/http"

	"commercetools-b2b/internal/domain"
	anonymoussvc "commercetools-b2b/internal/service/anonymous"
	customersvc "commercetools-b2b/internal/service/customer"
	"github.com/gin-gonic/gin"
)

type errorItem struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	Field          string `json:"field,omitempty"`
	CurrentVersion int    `json:"currentVersion,omitempty"`
}

type errorResponse struct {
	StatusCode int         `json:"statusCode"`
	Message    string      `json:"message"`
	Errors     []errorItem `json:"errors"`
}

// classify maps a service error onto a status and commercetools error item.
func classify(err error) (int, errorItem) {
	var (
		validation *domain.ValidationError
		conflict   *domain.ConflictError
		upstream   *domain.UpstreamError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, errorItem{Code: validation.Code, Message: err.Error(), Field: validation.Field}
	case errors.Is(err, domain.ErrAccountAlreadyExists):
		return http.StatusBadRequest, errorItem{Code: "DuplicateField", Message: "There is already an existing customer with the provided email.", Field: "email"}
	case errors.Is(err, customersvc.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorItem{Code: "invalid_customer_account_credentials", Message: "Customer account with the given credentials not found."}
	case errors.Is(err, customersvc.ErrInvalidToken), errors.Is(err, anonymoussvc.ErrInvalidToken):
		return http.StatusUnauthorized, errorItem{Code: "invalid_token", Message: "The token is invalid or expired."}
	case errors.Is(err, domain.ErrAuthRequired):
		return http.StatusUnauthorized, errorItem{Code: "invalid_token", Message: "A customer access token is required."}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorItem{Code: "ResourceNotFound", Message: "The resource could not be found."}
	case errors.As(err, &conflict):
		return http.StatusConflict, errorItem{Code: "ConcurrentModification", Message: err.Error(), CurrentVersion: conflict.Actual}
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, errorItem{Code: "ConcurrentModification", Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, errorItem{Code: "InvalidTransition", Message: err.Error()}
	case errors.As(err, &upstream):
		code := upstream.Code
		if code == "" {
			code = "General"
		}
		return http.StatusBadGateway, errorItem{Code: code, Message: upstream.Message}
	default:
		return http.StatusInternalServerError, errorItem{Code: "General", Message: "Internal server error."}
	}
}

func writeError(c *gin.Context, logger *log.Logger, err error) {
	status, item := classify(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Printf("http: %s %s status=%d err=%v", c.Request.Method, c.FullPath(), status, err)
	}
	c.AbortWithStatusJSON(status, errorResponse{
		StatusCode: status,
		Message:    item.Message,
		Errors:     []errorItem{item},
	})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
		StatusCode: http.StatusBadRequest,
		Message:    message,
		Errors:     []errorItem{{Code: "InvalidJsonInput", Message: message}},
	})
}
