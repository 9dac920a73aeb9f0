package filter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/constants"
	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/metrics"
	"github.com/kapu/outreach-pipeline-go/internal/progress"
	"github.com/kapu/outreach-pipeline-go/internal/util"
	apperrors "github.com/kapu/outreach-pipeline-go/pkg/errors"
)

// RunRequest starts a filter run. Empty keyword overrides fall back to the
// campaign defaults; a nil Strictness uses the campaign default.
type RunRequest struct {
	CampaignID     string   `json:"campaignId" validate:"required"`
	ImportID       string   `json:"importId" validate:"required"`
	Strictness     *int     `json:"strictness,omitempty" validate:"omitempty,min=0,max=100"`
	TargetKeywords []string `json:"targetKeywords,omitempty"`
	AvoidKeywords  []string `json:"avoidKeywords,omitempty"`
}

// ProgressOpener opens a progress stream for a run.
type ProgressOpener interface {
	Open(channel string) progress.Emitter
}

// Orchestrator runs the two-stage relevance filter over an import.
type Orchestrator struct {
	influencers InfluencerReader
	campaigns   CampaignReader
	runs        RunStore
	scorer      Scorer
	notifier    Notifier
	progress    ProgressOpener
	statusCache StatusCache
	logger      *zap.Logger

	wg sync.WaitGroup
}

func NewOrchestrator(
	influencers InfluencerReader,
	campaigns CampaignReader,
	runs RunStore,
	scorer Scorer,
	notifier Notifier,
	opener ProgressOpener,
	statusCache StatusCache,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		influencers: influencers,
		campaigns:   campaigns,
		runs:        runs,
		scorer:      scorer,
		notifier:    notifier,
		progress:    opener,
		statusCache: statusCache,
		logger:      logger,
	}
}

// ResolveCampaignContext applies run overrides on top of campaign defaults.
func ResolveCampaignContext(c *domain.Campaign, req RunRequest) *domain.CampaignContext {
	strictness := c.StrictnessDefault
	if req.Strictness != nil {
		strictness = *req.Strictness
	}

	target := util.NormalizeKeywords(req.TargetKeywords)
	if len(target) == 0 {
		target = util.NormalizeKeywords(c.TargetKeywords)
	}
	avoid := util.NormalizeKeywords(req.AvoidKeywords)
	if len(avoid) == 0 {
		avoid = util.NormalizeKeywords(c.AvoidKeywords)
	}

	return &domain.CampaignContext{
		CampaignName:   c.Name,
		Notes:          c.Notes,
		TargetKeywords: target,
		AvoidKeywords:  avoid,
		Strictness:     util.Clamp(strictness, 0, 100),
	}
}

// StartRun validates the request, creates a PROCESSING run and returns its id.
// Processing continues in the background, detached from ctx cancellation.
func (o *Orchestrator) StartRun(ctx context.Context, req RunRequest) (string, error) {
	if strings.TrimSpace(req.CampaignID) == "" {
		return "", apperrors.NewValidationError("campaignId is required", "campaignId", req.CampaignID)
	}
	if strings.TrimSpace(req.ImportID) == "" {
		return "", apperrors.NewValidationError("importId is required", "importId", req.ImportID)
	}

	campaign, err := o.campaigns.GetCampaign(ctx, req.CampaignID)
	if err != nil {
		return "", fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		return "", apperrors.NewNotFoundError("campaign", req.CampaignID)
	}

	influencers, err := o.influencers.ListContextsByImport(ctx, req.ImportID, constants.AIInputLimits.ContextVideos)
	if err != nil {
		return "", fmt.Errorf("failed to load influencers: %w", err)
	}
	if len(influencers) == 0 {
		return "", apperrors.NewValidationError("No influencers found for this import", "importId", req.ImportID)
	}

	cc := ResolveCampaignContext(campaign, req)
	now := time.Now()
	run := &domain.AiFilterRun{
		ID:             uuid.NewString(),
		CampaignID:     campaign.ID,
		ImportID:       req.ImportID,
		Strictness:     cc.Strictness,
		Status:         domain.RunStatusProcessing,
		TargetKeywords: cc.TargetKeywords,
		AvoidKeywords:  cc.AvoidKeywords,
		Counters:       domain.Counters{TotalCount: len(influencers)},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.runs.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	o.logger.Info("Filter run started",
		zap.String("run_id", run.ID),
		zap.String("campaign", campaign.Name),
		zap.String("import_id", req.ImportID),
		zap.Int("total", len(influencers)),
		zap.Int("strictness", cc.Strictness),
	)

	emitter := o.progress.Open(progress.RunChannel(run.ID))
	bg := context.WithoutCancel(ctx)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer emitter.Close()
		o.execute(bg, run, cc, influencers, emitter)
	}()

	return run.ID, nil
}

// Wait blocks until every background run has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) execute(
	ctx context.Context,
	run *domain.AiFilterRun,
	cc *domain.CampaignContext,
	influencers []*domain.InfluencerContext,
	emitter progress.Emitter,
) {
	defer func() {
		if r := recover(); r != nil {
			o.fail(ctx, run, fmt.Errorf("panic: %v", r), emitter)
		}
	}()

	counters := domain.Counters{TotalCount: len(influencers)}

	for i, inf := range influencers {
		eval, err := o.evaluate(ctx, run.ID, inf, cc)
		if err != nil {
			o.fail(ctx, run, err, emitter)
			return
		}

		if err := o.runs.UpsertEvaluation(ctx, eval); err != nil {
			o.fail(ctx, run, fmt.Errorf("failed to persist evaluation for %s: %w", inf.Username, err), emitter)
			return
		}

		rows, err := o.runs.ListEvaluations(ctx, run.ID)
		if err != nil {
			o.fail(ctx, run, fmt.Errorf("failed to load evaluations: %w", err), emitter)
			return
		}
		counters = domain.CountEvaluations(rows)
		counters.TotalCount = len(influencers)

		if err := o.runs.UpdateRunCounters(ctx, run.ID, counters); err != nil {
			o.fail(ctx, run, fmt.Errorf("failed to persist run counters: %w", err), emitter)
			return
		}
		o.invalidateStatus(ctx, run.ID)

		metrics.Metrics.Evaluations.WithLabelValues(eval.Bucket.String()).Inc()
		emitter.Push(domain.NewProgressEvent(i+1, len(influencers), inf.Username))
	}

	if err := o.runs.FinishRun(ctx, run.ID, domain.RunStatusCompleted, nil); err != nil {
		o.fail(ctx, run, fmt.Errorf("failed to complete run: %w", err), emitter)
		return
	}
	o.invalidateStatus(ctx, run.ID)
	metrics.Metrics.RunsTotal.WithLabelValues("filter", domain.RunStatusCompleted.String()).Inc()
	emitter.Push(domain.NewCompleteEvent(len(influencers)))

	o.logger.Info("Filter run completed",
		zap.String("run_id", run.ID),
		zap.Int("approved", counters.ApprovedCount),
		zap.Int("okish", counters.OkishCount),
		zap.Int("rejected", counters.RejectedCount),
		zap.Int("review_queue", counters.ReviewQueueCount),
		zap.Int("failed", counters.FailedCount),
	)

	o.notifier.Notify(ctx, domain.Notification{
		Type:   domain.NotificationAIFilter,
		Status: domain.NotificationSuccess,
		Title:  "AI filter completed",
		Message: fmt.Sprintf("%s: %d approved, %d okish, %d rejected, %d in review queue, %d failed",
			cc.CampaignName, counters.ApprovedCount, counters.OkishCount, counters.RejectedCount,
			counters.ReviewQueueCount, counters.FailedCount),
		ImportID: &run.ImportID,
		RunID:    &run.ID,
	})
}

// evaluate builds exactly one evaluation row for inf. Only configuration
// errors are returned; every other scoring failure is recorded on the row.
func (o *Orchestrator) evaluate(ctx context.Context, runID string, inf *domain.InfluencerContext, cc *domain.CampaignContext) (*domain.Evaluation, error) {
	pre := PreFilter(inf, cc)
	now := time.Now()
	eval := &domain.Evaluation{
		ID:             uuid.NewString(),
		RunID:          runID,
		InfluencerID:   inf.InfluencerID,
		Username:       inf.Username,
		PrefilterLabel: pre.Label,
		MatchedSignals: strings.Join(pre.MatchedTarget, ", "),
		RiskSignals:    strings.Join(pre.MatchedAvoid, ", "),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if !pre.ShouldRunAI {
		eval.Bucket = domain.BucketReviewQueue
		eval.ReviewStatus = domain.ReviewNotReviewed
		eval.Reasons = pre.Reason
		return eval, nil
	}

	eval.ReviewStatus = domain.ReviewApprovedForAI

	result, err := o.scorer.Score(ctx, inf, cc)
	if err != nil {
		var cfgErr *apperrors.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, cfgErr
		}
		o.logger.Warn("Scoring failed",
			zap.String("run_id", runID),
			zap.String("username", inf.Username),
			zap.Error(err),
		)
		eval.Bucket = domain.BucketRejected
		eval.Reasons = constants.ReviewMessages.ScoringFailedPrefix + err.Error()
		return eval, nil
	}

	score := result.Score
	eval.Score = &score
	eval.Bucket = MapScoreToBucket(score)
	eval.Reasons = util.FirstNonEmpty(result.Reasons, pre.Reason)
	eval.MatchedSignals = util.FirstNonEmpty(result.MatchedSignals, eval.MatchedSignals)
	eval.RiskSignals = util.FirstNonEmpty(result.RiskSignals, eval.RiskSignals)
	return eval, nil
}

func (o *Orchestrator) fail(ctx context.Context, run *domain.AiFilterRun, cause error, emitter progress.Emitter) {
	msg := cause.Error()
	o.logger.Error("Filter run failed", zap.String("run_id", run.ID), zap.Error(cause))

	if err := o.runs.FinishRun(ctx, run.ID, domain.RunStatusFailed, &msg); err != nil {
		o.logger.Error("Failed to mark run FAILED", zap.String("run_id", run.ID), zap.Error(err))
	}
	o.invalidateStatus(ctx, run.ID)
	metrics.Metrics.RunsTotal.WithLabelValues("filter", domain.RunStatusFailed.String()).Inc()
	emitter.Push(domain.NewErrorEvent(msg))

	o.notifier.Notify(ctx, domain.Notification{
		Type:     domain.NotificationAIFilter,
		Status:   domain.NotificationError,
		Title:    "AI filter failed",
		Message:  msg,
		ImportID: &run.ImportID,
		RunID:    &run.ID,
	})
}

func (o *Orchestrator) invalidateStatus(ctx context.Context, runID string) {
	if o.statusCache == nil {
		return
	}
	if err := o.statusCache.DeleteRunStatus(ctx, runID); err != nil {
		o.logger.Debug("Failed to invalidate run status cache", zap.String("run_id", runID), zap.Error(err))
	}
}
