package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"commercetools-b2b/internal/config"
	"commercetools-b2b/internal/db"
	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/importer"
	"commercetools-b2b/internal/repository/product"
	"commercetools-b2b/internal/repository/project"
)

func main() {
	var (
		filePath   string
		projectKey string
	)
	flag.StringVar(&filePath, "file", "", "Path to commercetools product CSV export (productType.key subscription needs variants.attributes.interval in days)")
	flag.StringVar(&projectKey, "project", "", "Project key to import into")
	flag.Parse()

	if filePath == "" || projectKey == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.FromEnv()
	logger := log.New(os.Stderr, "[importer] ", log.LstdFlags|log.LUTC)
	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	projRepo := project.NewPostgres(pool)
	proj, err := projRepo.GetByKey(ctx, projectKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			proj, err = ensureProject(ctx, projRepo, projectKey)
		}
		if err != nil {
			logger.Fatalf("ensure project %q: %v", projectKey, err)
		}
	}

	f, err := os.Open(filePath)
	if err != nil {
		logger.Fatalf("open file: %v", err)
	}
	defer f.Close()

	imp := importer.NewCSVImporter(f, product.NewPostgres(pool, logger), proj.ID, logger)

	start := time.Now()
	count, err := imp.Run(ctx)
	if err != nil {
		logger.Fatalf("import failed: %v", err)
	}

	fmt.Printf("Imported %d products into project %s in %s\n", count, projectKey, time.Since(start).Truncate(time.Millisecond))
}

func ensureProject(ctx context.Context, repo project.Repository, key string) (*domain.Project, error) {
	p := &domain.Project{
		Key:  key,
		Name: key,
	}
	created, err := repo.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	return created, nil
}
