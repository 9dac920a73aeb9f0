// Package api exposes the pipeline over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/metrics"
	"github.com/kapu/outreach-pipeline-go/internal/progress"
	"github.com/kapu/outreach-pipeline-go/internal/service/campaign"
	"github.com/kapu/outreach-pipeline-go/internal/service/filter"
	"github.com/kapu/outreach-pipeline-go/internal/service/imports"
	"github.com/kapu/outreach-pipeline-go/internal/service/media"
	"github.com/kapu/outreach-pipeline-go/internal/service/scrape"
)

type ImportService interface {
	CreateImport(ctx context.Context, req imports.CreateRequest) (*imports.Intake, error)
	GetImport(ctx context.Context, id string) (*domain.Import, error)
	GetSaveStatus(ctx context.Context, id string) (*imports.SaveStatus, error)
	SaveImport(ctx context.Context, id string) (*imports.SaveResult, error)
	DeleteWithData(ctx context.Context, id string) (*imports.DeleteResult, error)
	CleanupDrafts(ctx context.Context) (int, error)
}

type ScrapeStarter interface {
	Start(ctx context.Context, req scrape.Request) (string, error)
}

type CampaignService interface {
	Create(ctx context.Context, in campaign.CreateInput) (*domain.Campaign, error)
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context) ([]*domain.Campaign, error)
}

type FilterStarter interface {
	StartRun(ctx context.Context, req filter.RunRequest) (string, error)
}

type RunReader interface {
	GetRun(ctx context.Context, runID string) (*domain.AiFilterRun, error)
	GetRunStatus(ctx context.Context, runID string) (*domain.RunStatusView, error)
}

type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]*domain.AiFilterRun, error)
}

type Reviewer interface {
	ApplyReviewDecision(ctx context.Context, runID string, decision filter.ReviewDecision) (domain.Counters, error)
	SaveBucket(ctx context.Context, runID string, bucket domain.Bucket) (int, error)
	DiscardBucket(ctx context.Context, runID string, bucket domain.Bucket) (int, error)
	ListSaved(ctx context.Context) ([]*domain.Evaluation, error)
	RemoveFromQueue(ctx context.Context, evalID string) error
}

type NotificationService interface {
	List(ctx context.Context, limit int, unreadOnly bool) ([]*domain.Notification, int, error)
	MarkRead(ctx context.Context, id string, read bool) error
	MarkAllRead(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) (int, error)
}

type MediaReader interface {
	Read(ctx context.Context, ref string) (*media.Object, error)
}

// HealthCheck reports the health of one dependency.
type HealthCheck func(ctx context.Context) error

// Deps are the services behind the routes. Media may be nil.
type Deps struct {
	Imports       ImportService
	Scrape        ScrapeStarter
	Campaigns     CampaignService
	Filter        FilterStarter
	Runs          RunReader
	RunList       RunLister
	Review        Reviewer
	Notifications NotificationService
	Media         MediaReader
	Broker        *progress.Broker
	WebSocket     *progress.WebSocketHandler
	Health        map[string]HealthCheck
}

type Handler struct {
	deps         Deps
	validator    *requestValidator
	sseHeartbeat time.Duration
	logger       *zap.Logger
}

func NewHandler(deps Deps, sseHeartbeat time.Duration, logger *zap.Logger) *Handler {
	return &Handler{
		deps:         deps,
		validator:    newRequestValidator(),
		sseHeartbeat: sseHeartbeat,
		logger:       logger,
	}
}

// NewRouter wires every route. allowedOrigins configures CORS.
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/imports", func(r chi.Router) {
			r.Post("/", h.createImport)
			r.Post("/cleanup-drafts", h.cleanupDrafts)
			r.Get("/{id}", h.getImport)
			r.Post("/{id}/save", h.saveImport)
			r.Get("/{id}/save/status", h.saveStatus)
			r.Delete("/{id}/data", h.deleteImportData)
		})

		r.Post("/scrape", h.startScrape)
		r.Get("/progress/{channel}", h.streamProgress)
		r.Get("/progress/{channel}/ws", h.progressWebSocket)

		r.Get("/campaigns", h.listCampaigns)
		r.Post("/campaigns", h.createCampaign)
		r.Get("/campaigns/{id}", h.getCampaign)

		r.Route("/ai", func(r chi.Router) {
			r.Post("/filter", h.startFilter)
			r.Get("/filter/runs", h.listRuns)
			r.Get("/filter/runs/{id}", h.getRun)
			r.Get("/filter/runs/{id}/status", h.getRunStatus)
			r.Post("/filter/runs/{id}/review", h.reviewRun)
			r.Post("/filter/runs/{id}/bucket", h.saveBucket)
			r.Delete("/filter/runs/{id}/bucket", h.discardBucket)
			r.Get("/queues", h.listQueue)
			r.Delete("/queues/{id}", h.removeFromQueue)
		})

		r.Get("/notifications", h.listNotifications)
		r.Patch("/notifications", h.markAllNotificationsRead)
		r.Delete("/notifications", h.deleteNotifications)
		r.Post("/notifications/{id}/read", h.markNotificationRead)

		r.Get("/thumbnail", h.thumbnail)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.deps.Health))
	for name, check := range h.deps.Health {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}
