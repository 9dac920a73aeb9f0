package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/api"
	"github.com/kapu/outreach-pipeline-go/internal/config"
	"github.com/kapu/outreach-pipeline-go/internal/constants"
	"github.com/kapu/outreach-pipeline-go/internal/metrics"
	"github.com/kapu/outreach-pipeline-go/internal/progress"
	"github.com/kapu/outreach-pipeline-go/internal/service/ai"
	"github.com/kapu/outreach-pipeline-go/internal/service/cache"
	"github.com/kapu/outreach-pipeline-go/internal/service/campaign"
	"github.com/kapu/outreach-pipeline-go/internal/service/database"
	"github.com/kapu/outreach-pipeline-go/internal/service/filter"
	"github.com/kapu/outreach-pipeline-go/internal/service/imports"
	"github.com/kapu/outreach-pipeline-go/internal/service/media"
	"github.com/kapu/outreach-pipeline-go/internal/service/notification"
	"github.com/kapu/outreach-pipeline-go/internal/service/scrape"
	"github.com/kapu/outreach-pipeline-go/internal/store"
)

// Container bundles the assembled services.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	Postgres *database.PostgresService
	Cache    *cache.CacheService
	Broker   *progress.Broker

	Imports *imports.Service
	Scrape  *scrape.Orchestrator
	Filter  *filter.Orchestrator

	Router http.Handler

	closers []func()
}

// Wait blocks until background scrapes and filter runs have finished.
func (c *Container) Wait() {
	c.Scrape.Wait()
	c.Filter.Wait()
}

// Close releases connections in reverse construction order.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// Build assembles infrastructure and services. Provider credentials are not
// required here; a missing Gemini key fails individual runs instead.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var closers []func()
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	}()

	// Cache and database
	cacheSvc, err := cache.NewCacheService(cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache service: %w", err)
	}
	closers = append(closers, func() {
		_ = cacheSvc.Close()
	})

	postgresSvc, err := database.NewPostgresService(cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres service: %w", err)
	}
	closers = append(closers, func() {
		_ = postgresSvc.Close()
	})
	metrics.Register(postgresSvc.GetDB())

	importRepo := store.NewImportRepository(postgresSvc, logger)
	influencerRepo := store.NewInfluencerRepository(postgresSvc, logger)
	campaignRepo := store.NewCampaignRepository(postgresSvc, logger)
	runRepo := store.NewRunRepository(postgresSvc, logger)
	notificationRepo := store.NewNotificationRepository(postgresSvc, logger)

	broker := progress.NewBroker(cacheSvc, logger)
	notifier := notification.NewService(notificationRepo, cacheSvc, logger)

	// AI stack
	modelManager, err := ai.NewModelManager(ctx, ai.ModelManagerConfig{
		GeminiAPIKey:   cfg.Gemini.APIKey,
		GeminiModel:    cfg.Gemini.Model,
		OpenAIAPIKey:   cfg.OpenAI.APIKey,
		OpenAIModel:    cfg.OpenAI.Model,
		EnableFallback: cfg.OpenAI.EnableFallback,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create model manager: %w", err)
	}
	scorer := filter.NewRelevanceScorer(modelManager, filter.NewDefaultLimiter(), logger)

	// Scraping
	httpClient := &http.Client{Timeout: constants.ScrapeConfig.RequestTimeout}
	apify := scrape.NewApifyClient(httpClient, scrape.ApifyConfig{
		Token:   cfg.Apify.Token,
		BaseURL: cfg.Apify.BaseURL,
		ActorID: cfg.Apify.ActorID,
	}, logger)
	explorer := scrape.NewLinkPageExplorer(httpClient, logger)
	scrapeOrch := scrape.NewOrchestrator(apify, importRepo, influencerRepo, explorer, notifier, broker, scrape.OrchestratorConfig{
		BatchSize:        cfg.Apify.BatchSize,
		PollInterval:     cfg.Apify.PollInterval,
		MaxVideoCount:    cfg.Scrape.MaxVideoCount,
		ExploreLinkPages: cfg.Scrape.ExploreLinkPage,
	}, logger)

	// Filtering and review
	filterOrch := filter.NewOrchestrator(influencerRepo, campaignRepo, runRepo, scorer, notifier, broker, cacheSvc, logger)
	runQueries := filter.NewRunQueries(runRepo, campaignRepo, cacheSvc, logger)
	reviewer := filter.NewReviewManager(influencerRepo, campaignRepo, runRepo, scorer, cacheSvc, logger)

	// Media is optional; without a bucket the save phase only flips status.
	var (
		mediaCache  imports.MediaCache
		mediaReader api.MediaReader
	)
	if cfg.Storage.Enabled() {
		gcs, gcsErr := media.NewGCSObjectStore(ctx, cfg.Storage, logger)
		if gcsErr != nil {
			return nil, fmt.Errorf("failed to create object store: %w", gcsErr)
		}
		mc := media.NewCache(gcs, cfg.Storage.Bucket, &http.Client{Timeout: constants.MediaConfig.FetchTimeout}, logger)
		mediaCache, mediaReader = mc, mc
		logger.Info("Media caching enabled", zap.String("bucket", cfg.Storage.Bucket))
	} else {
		logger.Warn("GCS_BUCKET not set, media caching disabled")
	}

	importSvc := imports.NewService(importRepo, influencerRepo, mediaCache, notifier, logger)
	campaignSvc := campaign.NewService(campaignRepo, logger)

	handler := api.NewHandler(api.Deps{
		Imports:       importSvc,
		Scrape:        scrapeOrch,
		Campaigns:     campaignSvc,
		Filter:        filterOrch,
		Runs:          runQueries,
		RunList:       runRepo,
		Review:        reviewer,
		Notifications: notifier,
		Media:         mediaReader,
		Broker:        broker,
		WebSocket:     progress.NewWebSocketHandler(broker, cfg.Server.CORSOrigins, logger),
		Health: map[string]api.HealthCheck{
			"postgres": postgresSvc.Ping,
			"redis": func(ctx context.Context) error {
				if !cacheSvc.IsConnected(ctx) {
					return fmt.Errorf("redis unreachable")
				}
				return nil
			},
		},
	}, constants.ServerConfig.SSEHeartbeat, logger)

	return &Container{
		Config:   cfg,
		Logger:   logger,
		Postgres: postgresSvc,
		Cache:    cacheSvc,
		Broker:   broker,
		Imports:  importSvc,
		Scrape:   scrapeOrch,
		Filter:   filterOrch,
		Router:   api.NewRouter(handler, cfg.Server.CORSOrigins),
		closers:  closers,
	}, nil
}
