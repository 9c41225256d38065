package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"commercetools-b2b/internal/config"
	"commercetools-b2b/internal/db"
	"commercetools-b2b/internal/httpserver"
	"commercetools-b2b/internal/identity"
	"commercetools-b2b/internal/mapper"
	"commercetools-b2b/internal/migrate"
	"commercetools-b2b/internal/notify"
	burepo "commercetools-b2b/internal/repository/businessunit"
	cartrepo "commercetools-b2b/internal/repository/cart"
	customerrepo "commercetools-b2b/internal/repository/customer"
	orderrepo "commercetools-b2b/internal/repository/order"
	productrepo "commercetools-b2b/internal/repository/product"
	projectrepo "commercetools-b2b/internal/repository/project"
	quoterepo "commercetools-b2b/internal/repository/quote"
	staterepo "commercetools-b2b/internal/repository/state"
	storerepo "commercetools-b2b/internal/repository/store"
	tokenrepo "commercetools-b2b/internal/repository/token"
	anonymoussvc "commercetools-b2b/internal/service/anonymous"
	cartsvc "commercetools-b2b/internal/service/cart"
	customersvc "commercetools-b2b/internal/service/customer"
	ordersvc "commercetools-b2b/internal/service/order"
	productsvc "commercetools-b2b/internal/service/product"
	quotesvc "commercetools-b2b/internal/service/quote"
	"commercetools-b2b/internal/service/subscription"
	"commercetools-b2b/internal/service/workflow"
)

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect to db: %v", err)
	}
	defer dbpool.Close()

	mappers := mapper.Default()

	projectRepo := projectrepo.NewPostgres(dbpool)
	productRepo := productrepo.NewPostgres(dbpool, logger)
	customerRepo := customerrepo.NewPostgres(dbpool, logger)
	tokenRepo := tokenrepo.NewPostgres(dbpool)
	cartRepo := cartrepo.NewPostgres(dbpool)
	orderRepo := orderrepo.NewPostgres(dbpool)
	quoteRepo := quoterepo.NewPostgres(dbpool)
	stateRepo := staterepo.NewPostgres(dbpool)
	unitRepo := burepo.NewPostgres(dbpool)
	storeRepo := storerepo.NewPostgres(dbpool)

	var dispatcher notify.Dispatcher = notify.LogDispatcher{Logger: logger}
	if cfg.RedisAddr != "" {
		queue := notify.NewRedisQueue(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.NotificationQueue)
		defer queue.Close()
		if err := queue.Ping(ctx); err != nil {
			logger.Printf("notify: redis ping addr=%s err=%v", cfg.RedisAddr, err)
		}
		dispatcher = queue
	}
	notifier := notify.NewNotifier(dispatcher, logger)

	customerService := customersvc.New(customerRepo, tokenRepo, cartRepo, notifier, logger)
	anonymousService := anonymoussvc.New(tokenRepo)

	codec := identity.NewSessionCodec(cfg.SessionSecret, cfg.SessionTTL)
	resolver := identity.NewResolver(customerService, anonymousService, unitRepo, storeRepo, codec, identity.Defaults{
		BusinessUnitKey:     cfg.DefaultBusinessUnitKey,
		StoreKey:            cfg.DefaultStoreKey,
		DistributionChannel: cfg.DefaultDistributionChannel,
		Currency:            cfg.DefaultCurrency,
		Country:             cfg.DefaultCountry,
		Locale:              cfg.DefaultLocale,
	}, logger)

	reviewRouter := workflow.NewRouter(unitRepo, workflow.JSONLogicEvaluator{}, mappers.Cart, cfg.ReviewStateKey, logger)
	scheduler := subscription.NewScheduler(cartRepo, productRepo, mappers.Product, logger)

	srv, err := httpserver.New(cfg.HTTPAddr, logger, dbpool, httpserver.Deps{
		ProjectRepo:        projectRepo,
		Resolver:           resolver,
		SessionCodec:       codec,
		CustomerSvc:        customerService,
		AnonymousSvc:       anonymousService,
		ProductSvc:         productsvc.New(productRepo),
		CartSvc:            cartsvc.New(cartRepo, productRepo),
		ActiveCarts:        cartsvc.NewConsolidator(cartRepo, cfg.DefaultCurrency, logger),
		Splitter:           cartsvc.NewSplitter(cartRepo),
		QuoteSvc:           quotesvc.New(quoteRepo, cartRepo, mappers.Quote, logger),
		OrderSvc:           ordersvc.New(orderRepo, cartRepo, stateRepo, reviewRouter, scheduler, notifier, logger),
		Mappers:            mappers,
		MerchantAPIKey:     cfg.MerchantAPIKey,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		SchemaVersion: func(ctx context.Context) (uint, bool, error) {
			return migrate.Version(ctx, dbpool)
		},
	})
	if err != nil {
		logger.Fatalf("init server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("starting http server on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Printf("received signal %s, shutting down", sig)
	case err := <-serverErr:
		logger.Printf("server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	} else {
		logger.Printf("server stopped")
	}
}
