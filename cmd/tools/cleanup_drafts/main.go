package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/config"
	"github.com/kapu/outreach-pipeline-go/internal/service/database"
	"github.com/kapu/outreach-pipeline-go/internal/service/imports"
	"github.com/kapu/outreach-pipeline-go/internal/service/media"
	"github.com/kapu/outreach-pipeline-go/internal/store"
)

// Deletes DRAFT imports older than the draft TTL together with their
// influencers and cached media. Meant for cron.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	postgresSvc, err := database.NewPostgresService(cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer postgresSvc.Close()

	var mediaCache imports.MediaCache
	if cfg.Storage.Enabled() {
		gcs, err := media.NewGCSObjectStore(ctx, cfg.Storage, logger)
		if err != nil {
			logger.Fatal("failed to create object store", zap.Error(err))
		}
		mediaCache = media.NewCache(gcs, cfg.Storage.Bucket, nil, logger)
	}

	svc := imports.NewService(
		store.NewImportRepository(postgresSvc, logger),
		store.NewInfluencerRepository(postgresSvc, logger),
		mediaCache,
		nil,
		logger,
	)

	n, err := svc.CleanupDrafts(ctx)
	if err != nil {
		logger.Fatal("draft cleanup failed", zap.Error(err))
	}
	logger.Info("Draft cleanup completed", zap.Int("deleted", n))
}
