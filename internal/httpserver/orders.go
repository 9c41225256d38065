package httpserver

import (
	"net/http"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/mapper"
	ordersvc "commercetools-b2b/internal/service/order"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

type returnItemsRequest struct {
	Version int                        `json:"version"`
	Items   []ordersvc.ReturnItemInput `json:"items"`
}

type orderStateRequest struct {
	Version    int               `json:"version"`
	State      domain.StateKey   `json:"state"`
	OrderState domain.OrderState `json:"orderState"`
}

type materializeRequest struct {
	DistributionChannel string `json:"distributionChannel"`
}

func (h *handlers) placeOrder(c *gin.Context) {
	var req ordersvc.PlaceOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid order payload")
		return
	}
	o, err := h.deps.OrderSvc.PlaceOrder(c.Request.Context(), identityFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusCreated, h.deps.Mappers.Cart.Order(*o))
}

func (h *handlers) listOrders(c *gin.Context) {
	page, err := h.deps.OrderSvc.List(c.Request.Context(), identityFrom(c), ordersvc.ListInput{
		Limit:  queryInt(c, "limit"),
		Cursor: c.Query("cursor"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, mapper.Page(page, h.deps.Mappers.Cart.Order))
}

func (h *handlers) getOrder(c *gin.Context) {
	o, err := h.deps.OrderSvc.Get(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, h.deps.Mappers.Cart.Order(*o))
}

func (h *handlers) getOrderByNumber(c *gin.Context) {
	o, err := h.deps.OrderSvc.GetByOrderNumber(c.Request.Context(), identityFrom(c), c.Param("orderNumber"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, h.deps.Mappers.Cart.Order(*o))
}

func (h *handlers) returnItems(c *gin.Context) {
	var req returnItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid return payload")
		return
	}
	o, err := h.deps.OrderSvc.ReturnItems(c.Request.Context(), identityFrom(c), c.Param("orderNumber"), req.Version, req.Items)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, h.deps.Mappers.Cart.Order(*o))
}

func (h *handlers) transitionOrderState(c *gin.Context) {
	var req orderStateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.State == "" {
		badRequest(c, "state required")
		return
	}
	o, err := h.deps.OrderSvc.TransitionOrderState(c.Request.Context(), identityFrom(c), c.Param("orderNumber"), req.Version, req.State)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, h.deps.Mappers.Cart.Order(*o))
}

func (h *handlers) updateOrderState(c *gin.Context) {
	var req orderStateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderState == "" {
		badRequest(c, "orderState required")
		return
	}
	o, err := h.deps.OrderSvc.UpdateOrderState(c.Request.Context(), identityFrom(c), c.Param("orderNumber"), req.Version, req.OrderState)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, h.deps.Mappers.Cart.Order(*o))
}

func (h *handlers) materializeSubscriptions(c *gin.Context) {
	var req materializeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid payload")
			return
		}
	}
	carts, err := h.deps.OrderSvc.MaterializeSubscriptions(c.Request.Context(), projectFrom(c).ID, c.Param("orderNumber"), req.DistributionChannel)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	results := lo.Map(carts, func(cart domain.Cart, _ int) mapper.Cart { return h.deps.Mappers.Cart.Cart(cart) })
	c.JSON(http.StatusOK, domain.NewPage(results, len(results), 0, len(results)))
}
