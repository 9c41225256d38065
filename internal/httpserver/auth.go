package httpserver

import (
	"net/http"
	"strings"

	"commercetools-b2b/internal/mapper"
	customersvc "commercetools-b2b/internal/service/customer"
	"github.com/gin-gonic/gin"
)

type tokenRequest struct {
	GrantType string `form:"grant_type" binding:"required"`
	Username  string `form:"username" binding:"required"`
	Password  string `form:"password" binding:"required"`
	Scope     string `form:"scope"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	RefreshToken string `json:"refresh_token"`
}

type customerResponse struct {
	Customer mapper.Customer `json:"customer"`
}

type tokenValueRequest struct {
	TokenValue  string `json:"tokenValue"`
	NewPassword string `json:"newPassword"`
}

type passwordTokenRequest struct {
	Email string `json:"email"`
}

func (h *handlers) signup(c *gin.Context) {
	var req customersvc.SignupInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid signup payload")
		return
	}
	cust, err := h.deps.CustomerSvc.Signup(c.Request.Context(), identityFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusCreated, customerResponse{Customer: h.deps.Mappers.Account.Customer(*cust)})
}

func (h *handlers) customerToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "grant_type, username and password are required")
		return
	}
	if req.GrantType != "password" {
		badRequest(c, "unsupported grant_type "+req.GrantType)
		return
	}
	idc := identityFrom(c)
	cust, access, refresh, err := h.deps.CustomerSvc.Login(c.Request.Context(), idc, req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	scope := req.Scope
	if scope == "" {
		scope = "manage_my_profile:" + projectFrom(c).Key
	}
	h.respond(c, http.StatusOK, tokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    h.deps.CustomerSvc.AccessTTLSeconds(),
		Scope:        strings.TrimSpace(scope + " customer_id:" + cust.ID),
		RefreshToken: refresh,
	})
}

func (h *handlers) anonymousToken(c *gin.Context) {
	project := projectFrom(c)
	access, refresh, anonID, err := h.deps.AnonymousSvc.Issue(c.Request.Context(), project.ID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    h.deps.AnonymousSvc.AccessTTLSeconds(),
		Scope:        "manage_my_orders:" + project.Key + " anonymous_id:" + anonID,
		RefreshToken: refresh,
	})
}

func (h *handlers) me(c *gin.Context) {
	account, err := identityFrom(c).RequireAccount()
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, h.deps.Mappers.Account.Customer(*account))
}

func (h *handlers) requestEmailConfirmation(c *gin.Context) {
	if err := h.deps.CustomerSvc.RequestEmailConfirmation(c.Request.Context(), identityFrom(c)); err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusAccepted, gin.H{"status": "sent"})
}

func (h *handlers) confirmEmail(c *gin.Context) {
	var req tokenValueRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TokenValue == "" {
		badRequest(c, "tokenValue required")
		return
	}
	cust, err := h.deps.CustomerSvc.ConfirmEmail(c.Request.Context(), projectFrom(c).ID, req.TokenValue)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, h.deps.Mappers.Account.Customer(*cust))
}

// requestPasswordReset answers 202 whether or not the email is registered.
func (h *handlers) requestPasswordReset(c *gin.Context) {
	var req passwordTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		badRequest(c, "email required")
		return
	}
	idc := identityFrom(c)
	if err := h.deps.CustomerSvc.RequestPasswordReset(c.Request.Context(), idc.ProjectID, req.Email, idc.Sess().Locale); err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *handlers) resetPassword(c *gin.Context) {
	var req tokenValueRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TokenValue == "" {
		badRequest(c, "tokenValue and newPassword required")
		return
	}
	if err := h.deps.CustomerSvc.ResetPassword(c.Request.Context(), projectFrom(c).ID, req.TokenValue, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, gin.H{"status": "reset"})
}
