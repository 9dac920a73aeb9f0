package filter

import (
	"context"
	"time"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
)

// Scorer produces a relevance score or a *errors.ScoringError.
type Scorer interface {
	Score(ctx context.Context, inf *domain.InfluencerContext, campaign *domain.CampaignContext) (*ScoreResult, error)
}

// InfluencerReader loads scoring context. Videos are newest first, capped at videoLimit.
type InfluencerReader interface {
	ListContextsByImport(ctx context.Context, importID string, videoLimit int) ([]*domain.InfluencerContext, error)
	GetContext(ctx context.Context, influencerID string, videoLimit int) (*domain.InfluencerContext, error)
}

type CampaignReader interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
}

// RunStore persists runs and their evaluation rows.
type RunStore interface {
	CreateRun(ctx context.Context, run *domain.AiFilterRun) error
	GetRun(ctx context.Context, id string) (*domain.AiFilterRun, error)
	UpdateRunCounters(ctx context.Context, runID string, counters domain.Counters) error
	FinishRun(ctx context.Context, runID string, status domain.RunStatus, errorMessage *string) error

	UpsertEvaluation(ctx context.Context, eval *domain.Evaluation) error
	ListEvaluations(ctx context.Context, runID string) ([]*domain.Evaluation, error)
	GetEvaluations(ctx context.Context, runID string, ids []string) ([]*domain.Evaluation, error)
	DiscardEvaluations(ctx context.Context, runID string, ids []string, reason string) (int, error)
	MarkBucketSaved(ctx context.Context, runID string, bucket domain.Bucket) (int, error)
	DeleteBucket(ctx context.Context, runID string, bucket domain.Bucket) (int, error)
	ListSaved(ctx context.Context) ([]*domain.Evaluation, error)
	SetReviewStatus(ctx context.Context, evalID string, status domain.ReviewStatus) error
}

// Notifier never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// StatusCache holds short-lived run status snapshots for pollers.
type StatusCache interface {
	GetRunStatus(ctx context.Context, runID string) (*domain.RunStatusView, bool, error)
	SetRunStatus(ctx context.Context, view *domain.RunStatusView, ttl time.Duration) error
	DeleteRunStatus(ctx context.Context, runID string) error
}
