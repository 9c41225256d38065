package httpserver

import (
	"net/http"
	"strings"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/mapper"
	quotesvc "commercetools-b2b/internal/service/quote"
	"github.com/gin-gonic/gin"
)

type versionRequest struct {
	Version int `json:"version"`
}

type declineRequest struct {
	Version          int  `json:"version"`
	ForRenegotiation bool `json:"forRenegotiation"`
}

type renegotiateRequest struct {
	Version int    `json:"version"`
	Comment string `json:"buyerComment"`
}

type transitionRequestBody struct {
	Version           int                      `json:"version"`
	QuoteRequestState domain.QuoteRequestState `json:"quoteRequestState"`
}

func (h *handlers) createQuoteRequest(c *gin.Context) {
	var req quotesvc.CreateRequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid quote request payload")
		return
	}
	qr, err := h.deps.QuoteSvc.CreateQuoteRequest(c.Request.Context(), identityFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusCreated, h.deps.Mappers.Quote.QuoteRequest(*qr))
}

func (h *handlers) getQuoteRequest(c *gin.Context) {
	qr, err := h.deps.QuoteSvc.GetQuoteRequest(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, h.deps.Mappers.Quote.QuoteRequest(*qr))
}

func (h *handlers) cancelQuoteRequest(c *gin.Context) {
	var req versionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "version required")
		return
	}
	qr, err := h.deps.QuoteSvc.CancelQuoteRequest(c.Request.Context(), identityFrom(c), c.Param("id"), req.Version)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, h.deps.Mappers.Quote.QuoteRequest(*qr))
}

func (h *handlers) queryQuoteRequests(c *gin.Context) {
	page, err := h.deps.QuoteSvc.QueryQuoteRequests(c.Request.Context(), identityFrom(c), quoteQuery(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, mapper.Page(page, h.deps.Mappers.Quote.QuoteRequest))
}

func (h *handlers) getQuote(c *gin.Context) {
	q, err := h.deps.QuoteSvc.GetQuote(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, h.deps.Mappers.Quote.Quote(*q))
}

func (h *handlers) acceptQuote(c *gin.Context) {
	var req versionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "version required")
		return
	}
	q, err := h.deps.QuoteSvc.AcceptQuote(c.Request.Context(), identityFrom(c), c.Param("id"), req.Version)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, h.deps.Mappers.Quote.Quote(*q))
}

func (h *handlers) declineQuote(c *gin.Context) {
	var req declineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "version required")
		return
	}
	q, err := h.deps.QuoteSvc.DeclineQuote(c.Request.Context(), identityFrom(c), c.Param("id"), req.Version, req.ForRenegotiation)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, h.deps.Mappers.Quote.Quote(*q))
}

func (h *handlers) renegotiateQuote(c *gin.Context) {
	var req renegotiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "version required")
		return
	}
	q, err := h.deps.QuoteSvc.RenegotiateQuote(c.Request.Context(), identityFrom(c), c.Param("id"), req.Version, req.Comment)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, h.deps.Mappers.Quote.Quote(*q))
}

func (h *handlers) queryQuotes(c *gin.Context) {
	page, err := h.deps.QuoteSvc.Query(c.Request.Context(), identityFrom(c), quoteQuery(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, mapper.Page(page, h.deps.Mappers.Quote.Quote))
}

func (h *handlers) transitionQuoteRequest(c *gin.Context) {
	var req transitionRequestBody
	if err := c.ShouldBindJSON(&req); err != nil || req.QuoteRequestState == "" {
		badRequest(c, "quoteRequestState required")
		return
	}
	qr, err := h.deps.QuoteSvc.TransitionQuoteRequest(c.Request.Context(), projectFrom(c).ID, c.Param("id"), req.Version, req.QuoteRequestState)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, h.deps.Mappers.Quote.QuoteRequest(*qr))
}

func (h *handlers) sendQuote(c *gin.Context) {
	var req quotesvc.SendQuoteInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid quote payload")
		return
	}
	q, err := h.deps.QuoteSvc.SendQuote(c.Request.Context(), projectFrom(c).ID, req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, h.deps.Mappers.Quote.Quote(*q))
}

func (h *handlers) withdrawQuote(c *gin.Context) {
	var req versionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "version required")
		return
	}
	q, err := h.deps.QuoteSvc.WithdrawQuote(c.Request.Context(), projectFrom(c).ID, c.Param("id"), req.Version)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, h.deps.Mappers.Quote.Quote(*q))
}

func quoteQuery(c *gin.Context) quotesvc.QueryInput {
	return quotesvc.QueryInput{
		IDs:    queryList(c, "id"),
		States: queryList(c, "state"),
		Limit:  queryInt(c, "limit"),
		Cursor: c.Query("cursor"),
	}
}

// queryList accepts repeated and comma-separated values.
func queryList(c *gin.Context, name string) []string {
	var out []string
	for _, raw := range c.QueryArray(name) {
		for _, part := range strings.Split(raw, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
