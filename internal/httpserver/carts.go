package httpserver

import (
	"net/http"
	"strconv"

	"commercetools-b2b/internal/mapper"
	cartsvc "commercetools-b2b/internal/service/cart"
	productsvc "commercetools-b2b/internal/service/product"
	"github.com/gin-gonic/gin"
)

func (h *handlers) activeCart(c *gin.Context) {
	cart, err := h.deps.ActiveCarts.GetOrCreateActiveCart(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, h.deps.Mappers.Cart.Cart(*cart))
}

func (h *handlers) getCart(c *gin.Context) {
	cart, err := h.deps.CartSvc.Get(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, h.deps.Mappers.Cart.Cart(*cart))
}

func (h *handlers) updateCart(c *gin.Context) {
	var req cartsvc.UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid update payload")
		return
	}
	cart, err := h.deps.CartSvc.Update(c.Request.Context(), identityFrom(c), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, h.deps.Mappers.Cart.Cart(*cart))
}

func (h *handlers) splitLineItem(c *gin.Context) {
	var req cartsvc.SplitInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid split payload")
		return
	}
	req.CartID = c.Param("id")
	cart, err := h.deps.Splitter.SplitLineItem(c.Request.Context(), identityFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, h.deps.Mappers.Cart.Cart(*cart))
}

func (h *handlers) listProducts(c *gin.Context) {
	page, err := h.deps.ProductSvc.List(c.Request.Context(), projectFrom(c).ID, productsvc.ListInput{
		Limit:             queryInt(c, "limit"),
		Cursor:            c.Query("cursor"),
		SubscriptionsOnly: c.Query("subscription") == "true",
		Interval:          h.deps.Subscription,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, mapper.Page(page, h.deps.Mappers.Product.Product))
}

func (h *handlers) getProduct(c *gin.Context) {
	p, err := h.deps.ProductSvc.Get(c.Request.Context(), projectFrom(c).ID, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, http.StatusOK, h.deps.Mappers.Product.Product(*p))
}

// queryInt reads a non-negative integer query parameter; malformed values read as 0.
func queryInt(c *gin.Context, name string) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
