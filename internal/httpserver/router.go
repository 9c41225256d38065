package httpserver

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/identity"
	"commercetools-b2b/internal/mapper"
	cartsvc "commercetools-b2b/internal/service/cart"
	customersvc "commercetools-b2b/internal/service/customer"
	ordersvc "commercetools-b2b/internal/service/order"
	productsvc "commercetools-b2b/internal/service/product"
	quotesvc "commercetools-b2b/internal/service/quote"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

type projectRepo interface {
	GetByKey(ctx context.Context, key string) (*domain.Project, error)
}

type identityResolver interface {
	Resolve(ctx context.Context, req identity.Request) (identity.Context, error)
}

type customerService interface {
	Signup(ctx context.Context, idc identity.Context, in customersvc.SignupInput) (*domain.Customer, error)
	Login(ctx context.Context, idc identity.Context, email, password string) (*domain.Customer, string, string, error)
	AccessTTLSeconds() int
	RequestEmailConfirmation(ctx context.Context, idc identity.Context) error
	ConfirmEmail(ctx context.Context, projectID, token string) (*domain.Customer, error)
	RequestPasswordReset(ctx context.Context, projectID, email, locale string) error
	ResetPassword(ctx context.Context, projectID, token, newPassword string) error
}

type anonymousService interface {
	Issue(ctx context.Context, projectID string) (accessToken, refreshToken, anonymousID string, err error)
	AccessTTLSeconds() int
}

type productService interface {
	List(ctx context.Context, projectID string, in productsvc.ListInput) (domain.Page[domain.Product], error)
	Get(ctx context.Context, projectID, id string) (*domain.Product, error)
}

type cartService interface {
	Get(ctx context.Context, idc identity.Context, id string) (*domain.Cart, error)
	Update(ctx context.Context, idc identity.Context, cartID string, in cartsvc.UpdateInput) (*domain.Cart, error)
}

type activeCartService interface {
	GetOrCreateActiveCart(ctx context.Context, idc identity.Context) (*domain.Cart, error)
}

type lineItemSplitter interface {
	SplitLineItem(ctx context.Context, idc identity.Context, in cartsvc.SplitInput) (*domain.Cart, error)
}

type quoteService interface {
	CreateQuoteRequest(ctx context.Context, idc identity.Context, in quotesvc.CreateRequestInput) (*domain.QuoteRequest, error)
	GetQuoteRequest(ctx context.Context, idc identity.Context, id string) (*domain.QuoteRequest, error)
	CancelQuoteRequest(ctx context.Context, idc identity.Context, id string, version int) (*domain.QuoteRequest, error)
	QueryQuoteRequests(ctx context.Context, idc identity.Context, in quotesvc.QueryInput) (domain.Page[domain.QuoteRequest], error)
	GetQuote(ctx context.Context, idc identity.Context, id string) (*domain.Quote, error)
	AcceptQuote(ctx context.Context, idc identity.Context, id string, version int) (*domain.Quote, error)
	DeclineQuote(ctx context.Context, idc identity.Context, id string, version int, forRenegotiation bool) (*domain.Quote, error)
	RenegotiateQuote(ctx context.Context, idc identity.Context, id string, version int, comment string) (*domain.Quote, error)
	Query(ctx context.Context, idc identity.Context, in quotesvc.QueryInput) (domain.Page[domain.Quote], error)
	TransitionQuoteRequest(ctx context.Context, projectID, id string, version int, next domain.QuoteRequestState) (*domain.QuoteRequest, error)
	SendQuote(ctx context.Context, projectID string, in quotesvc.SendQuoteInput) (*domain.Quote, error)
	WithdrawQuote(ctx context.Context, projectID, id string, version int) (*domain.Quote, error)
}

type orderService interface {
	PlaceOrder(ctx context.Context, idc identity.Context, in ordersvc.PlaceOrderInput) (*domain.Order, error)
	Get(ctx context.Context, idc identity.Context, id string) (*domain.Order, error)
	GetByOrderNumber(ctx context.Context, idc identity.Context, orderNumber string) (*domain.Order, error)
	List(ctx context.Context, idc identity.Context, in ordersvc.ListInput) (domain.Page[domain.Order], error)
	ReturnItems(ctx context.Context, idc identity.Context, orderNumber string, version int, items []ordersvc.ReturnItemInput) (*domain.Order, error)
	TransitionOrderState(ctx context.Context, idc identity.Context, orderNumber string, version int, stateKey domain.StateKey) (*domain.Order, error)
	UpdateOrderState(ctx context.Context, idc identity.Context, orderNumber string, version int, next domain.OrderState) (*domain.Order, error)
	MaterializeSubscriptions(ctx context.Context, projectID, orderNumber, distributionChannel string) ([]domain.Cart, error)
}

// Deps carries the services the router exposes. Optional services leave
// their routes unregistered when nil.
type Deps struct {
	ProjectRepo  projectRepo
	Resolver     identityResolver
	SessionCodec *identity.SessionCodec
	CustomerSvc  customerService
	AnonymousSvc anonymousService

	ProductSvc   productService
	CartSvc      cartService
	ActiveCarts  activeCartService
	Splitter     lineItemSplitter
	QuoteSvc     quoteService
	OrderSvc     orderService
	Mappers      mapper.Set
	Subscription func(domain.Product) (int, bool)

	MerchantAPIKey     string
	CORSAllowedOrigins []string
	// SchemaVersion, when set, gates readiness on a clean migration state.
	SchemaVersion func(ctx context.Context) (version uint, dirty bool, err error)
}

// buildRouter wires routes for the API.
func buildRouter(logger *log.Logger, db *pgxpool.Pool, deps Deps) (*gin.Engine, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	switch {
	case deps.ProjectRepo == nil:
		return nil, errors.New("project repository is required")
	case deps.Resolver == nil:
		return nil, errors.New("identity resolver is required")
	case deps.SessionCodec == nil:
		return nil, errors.New("session codec is required")
	case deps.CustomerSvc == nil:
		return nil, errors.New("customer service is required")
	}
	defaults := mapper.Default()
	if deps.Mappers.Cart == nil {
		deps.Mappers.Cart = defaults.Cart
	}
	if deps.Mappers.Account == nil {
		deps.Mappers.Account = defaults.Account
	}
	if deps.Mappers.Product == nil {
		deps.Mappers.Product = defaults.Product
	}
	if deps.Mappers.Quote == nil {
		deps.Mappers.Quote = defaults.Quote
	}
	if deps.Subscription == nil {
		deps.Subscription = deps.Mappers.Product.SubscriptionInterval
	}

	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())
	if len(deps.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.CORSAllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Authorization", "Content-Type", sessionHeader, "X-Business-Unit", "X-Store", "X-Superuser-Business-Unit", "X-Currency", "X-Country", "X-Locale"},
			ExposeHeaders:    []string{sessionHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db, deps.SchemaVersion))

	h := &handlers{deps: deps, logger: logger}
	project := projectMiddleware(deps.ProjectRepo)
	ident := identityMiddleware(deps.Resolver, logger)

	oauth := router.Group("/oauth/:projectKey", project)
	oauth.POST("/customers/token", ident, h.customerToken)
	if deps.AnonymousSvc != nil {
		oauth.POST("/anonymous/token", h.anonymousToken)
	}

	api := router.Group("/:projectKey", project, ident)
	api.POST("/me/signup", h.signup)
	api.GET("/me", h.me)
	api.POST("/me/email-confirmation", h.requestEmailConfirmation)
	api.POST("/me/email/confirm", h.confirmEmail)
	api.POST("/customers/password-token", h.requestPasswordReset)
	api.POST("/customers/password/reset", h.resetPassword)

	if deps.ProductSvc != nil {
		api.GET("/products", h.listProducts)
		api.GET("/products/:id", h.getProduct)
	}
	if deps.ActiveCarts != nil {
		api.GET("/me/active-cart", h.activeCart)
	}
	if deps.CartSvc != nil {
		api.GET("/me/carts/:id", h.getCart)
		api.POST("/me/carts/:id", h.updateCart)
	}
	if deps.Splitter != nil {
		api.POST("/me/carts/:id/split-line-item", h.splitLineItem)
	}
	if deps.QuoteSvc != nil {
		api.POST("/me/quote-requests", h.createQuoteRequest)
		api.GET("/me/quote-requests", h.queryQuoteRequests)
		api.GET("/me/quote-requests/:id", h.getQuoteRequest)
		api.POST("/me/quote-requests/:id/cancel", h.cancelQuoteRequest)
		api.GET("/me/quotes", h.queryQuotes)
		api.GET("/me/quotes/:id", h.getQuote)
		api.POST("/me/quotes/:id/accept", h.acceptQuote)
		api.POST("/me/quotes/:id/decline", h.declineQuote)
		api.POST("/me/quotes/:id/renegotiate", h.renegotiateQuote)
	}
	if deps.OrderSvc != nil {
		api.POST("/me/orders", h.placeOrder)
		api.GET("/me/orders", h.listOrders)
		api.GET("/me/orders/:id", h.getOrder)
		api.GET("/me/orders/order-number/:orderNumber", h.getOrderByNumber)
		api.POST("/me/orders/order-number/:orderNumber/returns", h.returnItems)
		api.POST("/me/orders/order-number/:orderNumber/state", h.transitionOrderState)
		api.POST("/me/orders/order-number/:orderNumber/order-state", h.updateOrderState)
	}

	merchant := router.Group("/merchant/:projectKey", merchantMiddleware(deps.MerchantAPIKey, logger), project)
	if deps.QuoteSvc != nil {
		merchant.POST("/quote-requests/:id/transition", h.transitionQuoteRequest)
		merchant.POST("/quotes", h.sendQuote)
		merchant.POST("/quotes/:id/withdraw", h.withdrawQuote)
	}
	if deps.OrderSvc != nil {
		merchant.POST("/orders/:orderNumber/subscriptions", h.materializeSubscriptions)
	}

	return router, nil
}

type handlers struct {
	deps   Deps
	logger *log.Logger
}

// respond writes body after re-issuing the session token when the request changed it.
func (h *handlers) respond(c *gin.Context, status int, body interface{}) {
	if err := h.reissueSession(c); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(status, body)
}

func (h *handlers) fail(c *gin.Context, err error) {
	if serr := h.reissueSession(c); serr != nil {
		h.logger.Printf("http: reissue session err=%v", serr)
	}
	writeError(c, h.logger, err)
}

func (h *handlers) reissueSession(c *gin.Context) error {
	sess := identityFrom(c).Session
	if sess == nil || !sess.Changed() {
		return nil
	}
	token, err := h.deps.SessionCodec.Encode(*sess)
	if err != nil {
		return err
	}
	c.Header(sessionHeader, token)
	return nil
}
