package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commercetools-b2b/internal/config"
	"commercetools-b2b/internal/db"
	"commercetools-b2b/internal/mapper"
	"commercetools-b2b/internal/notify"
	burepo "commercetools-b2b/internal/repository/businessunit"
	cartrepo "commercetools-b2b/internal/repository/cart"
	orderrepo "commercetools-b2b/internal/repository/order"
	productrepo "commercetools-b2b/internal/repository/product"
	staterepo "commercetools-b2b/internal/repository/state"
	tokenrepo "commercetools-b2b/internal/repository/token"
	ordersvc "commercetools-b2b/internal/service/order"
	"commercetools-b2b/internal/service/subscription"
	"commercetools-b2b/internal/service/workflow"
)

const batchSize = 100

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[scheduler] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect to db: %v", err)
	}
	defer dbpool.Close()

	mappers := mapper.Default()
	cartRepo := cartrepo.NewPostgres(dbpool)
	productRepo := productrepo.NewPostgres(dbpool, logger)

	var dispatcher notify.Dispatcher = notify.LogDispatcher{Logger: logger}
	if cfg.RedisAddr != "" {
		queue := notify.NewRedisQueue(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.NotificationQueue)
		defer queue.Close()
		dispatcher = queue
	}

	orders := ordersvc.New(
		orderrepo.NewPostgres(dbpool),
		cartRepo,
		staterepo.NewPostgres(dbpool),
		workflow.NewRouter(burepo.NewPostgres(dbpool), workflow.JSONLogicEvaluator{}, mappers.Cart, cfg.ReviewStateKey, logger),
		subscription.NewScheduler(cartRepo, productRepo, mappers.Product, logger),
		notify.NewNotifier(dispatcher, logger),
		logger,
	)
	runner := subscription.NewRunner(cartRepo, orders, batchSize, logger)

	job, err := subscription.NewJob(runner, cfg.SubscriptionCron, cfg.SubscriptionRunTimeout, logger)
	if err != nil {
		logger.Fatalf("init job: %v", err)
	}
	tokens := tokenrepo.NewPostgres(dbpool)
	err = job.AddTask("@daily", "prune-tokens", func(ctx context.Context) error {
		n, err := tokens.DeleteExpired(ctx, time.Now().UTC())
		if err == nil && n > 0 {
			logger.Printf("pruned %d expired tokens", n)
		}
		return err
	})
	if err != nil {
		logger.Fatalf("init job: %v", err)
	}
	job.Start()
	logger.Printf("placing due subscription orders on schedule %q", cfg.SubscriptionCron)

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stopCh
	logger.Printf("received signal %s, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := job.Stop(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}
