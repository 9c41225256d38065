package main

import (
	"context"
	"flag"
	"log"
	"os"

	"commercetools-b2b/internal/config"
	"commercetools-b2b/internal/db"
	"commercetools-b2b/internal/migrate"
)

func main() {
	statusOnly := flag.Bool("status", false, "report the applied schema version without migrating")
	flag.Parse()

	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[migrate] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if !*statusOnly {
		if err := migrate.Apply(ctx, pool); err != nil {
			logger.Fatalf("apply migrations: %v", err)
		}
	}

	version, dirty, err := migrate.Version(ctx, pool)
	if err != nil {
		logger.Fatalf("read schema version: %v", err)
	}
	logger.Printf("schema version=%d dirty=%t", version, dirty)
}
