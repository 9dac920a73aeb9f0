package filter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/constants"
	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/util"
	apperrors "github.com/kapu/outreach-pipeline-go/pkg/errors"
)

// ReviewDecision lists evaluation ids of one run to re-score or discard.
type ReviewDecision struct {
	ApproveIDs []string `json:"approveIds"`
	DiscardIDs []string `json:"discardIds"`
}

// ReviewManager applies manual decisions to evaluation rows. Run counters
// are always recomputed from the rows afterwards, never adjusted in place.
type ReviewManager struct {
	influencers InfluencerReader
	campaigns   CampaignReader
	runs        RunStore
	scorer      Scorer
	statusCache StatusCache
	logger      *zap.Logger
}

func NewReviewManager(
	influencers InfluencerReader,
	campaigns CampaignReader,
	runs RunStore,
	scorer Scorer,
	statusCache StatusCache,
	logger *zap.Logger,
) *ReviewManager {
	return &ReviewManager{
		influencers: influencers,
		campaigns:   campaigns,
		runs:        runs,
		scorer:      scorer,
		statusCache: statusCache,
		logger:      logger,
	}
}

func (m *ReviewManager) loadRun(ctx context.Context, runID string) (*domain.AiFilterRun, error) {
	run, err := m.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return nil, apperrors.NewNotFoundError("run", runID)
	}
	return run, nil
}

// loadFinishedRun rejects changes while the orchestrator still owns the run's rows.
func (m *ReviewManager) loadFinishedRun(ctx context.Context, runID string) (*domain.AiFilterRun, error) {
	run, err := m.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !run.Status.IsTerminal() {
		return nil, apperrors.NewConflictError("run is still processing", run.Status.String())
	}
	return run, nil
}

// runCampaignContext rebuilds the scoring context the run was created with.
func (m *ReviewManager) runCampaignContext(ctx context.Context, run *domain.AiFilterRun) (*domain.CampaignContext, error) {
	campaign, err := m.campaigns.GetCampaign(ctx, run.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}
	if campaign == nil {
		return nil, apperrors.NewNotFoundError("campaign", run.CampaignID)
	}
	return ResolveCampaignContext(campaign, RunRequest{
		Strictness:     &run.Strictness,
		TargetKeywords: run.TargetKeywords,
		AvoidKeywords:  run.AvoidKeywords,
	}), nil
}

// ApplyReviewDecision discards and re-scores the given evaluations, then
// recomputes and persists the run counters. Ids outside the run are ignored.
// The run must be COMPLETED or FAILED.
func (m *ReviewManager) ApplyReviewDecision(ctx context.Context, runID string, decision ReviewDecision) (domain.Counters, error) {
	approve := util.UniqueStrings(decision.ApproveIDs)
	discard := util.UniqueStrings(decision.DiscardIDs)
	if len(approve) == 0 && len(discard) == 0 {
		return domain.Counters{}, apperrors.NewValidationError("approveIds or discardIds is required", "ids", nil)
	}
	for _, id := range approve {
		if util.Contains(discard, id) {
			return domain.Counters{}, apperrors.NewValidationError("an id cannot be both approved and discarded", "ids", id)
		}
	}

	run, err := m.loadFinishedRun(ctx, runID)
	if err != nil {
		return domain.Counters{}, err
	}

	if len(discard) > 0 {
		n, err := m.runs.DiscardEvaluations(ctx, runID, discard, constants.ReviewMessages.Discarded)
		if err != nil {
			return domain.Counters{}, fmt.Errorf("failed to discard evaluations: %w", err)
		}
		m.logger.Info("Evaluations discarded", zap.String("run_id", runID), zap.Int("count", n))
	}

	if len(approve) > 0 {
		if err := m.rescore(ctx, run, approve); err != nil {
			return domain.Counters{}, err
		}
	}

	return m.recompute(ctx, runID)
}

func (m *ReviewManager) rescore(ctx context.Context, run *domain.AiFilterRun, ids []string) error {
	cc, err := m.runCampaignContext(ctx, run)
	if err != nil {
		return err
	}

	evals, err := m.runs.GetEvaluations(ctx, run.ID, ids)
	if err != nil {
		return fmt.Errorf("failed to load evaluations: %w", err)
	}

	for _, eval := range evals {
		inf, err := m.influencers.GetContext(ctx, eval.InfluencerID, constants.AIInputLimits.ContextVideos)
		if err != nil {
			return fmt.Errorf("failed to load influencer %s: %w", eval.InfluencerID, err)
		}
		if inf == nil {
			return apperrors.NewNotFoundError("influencer", eval.InfluencerID)
		}

		eval.ReviewStatus = domain.ReviewApprovedForAI
		eval.UpdatedAt = time.Now()

		result, err := m.scorer.Score(ctx, inf, cc)
		if err != nil {
			eval.Score = nil
			eval.Bucket = domain.BucketRejected
			eval.Reasons = constants.ReviewMessages.ManualFailedPrefix + err.Error()
		} else {
			score := result.Score
			eval.Score = &score
			eval.Bucket = MapScoreToBucket(score)
			eval.Reasons = result.Reasons
			eval.MatchedSignals = result.MatchedSignals
			eval.RiskSignals = result.RiskSignals
		}

		if err := m.runs.UpsertEvaluation(ctx, eval); err != nil {
			return fmt.Errorf("failed to update evaluation %s: %w", eval.ID, err)
		}
	}
	return nil
}

func (m *ReviewManager) recompute(ctx context.Context, runID string) (domain.Counters, error) {
	evals, err := m.runs.ListEvaluations(ctx, runID)
	if err != nil {
		return domain.Counters{}, fmt.Errorf("failed to load evaluations: %w", err)
	}

	counters := domain.CountEvaluations(evals)
	if err := m.runs.UpdateRunCounters(ctx, runID, counters); err != nil {
		return domain.Counters{}, fmt.Errorf("failed to persist run counters: %w", err)
	}
	if m.statusCache != nil {
		if err := m.statusCache.DeleteRunStatus(ctx, runID); err != nil {
			m.logger.Debug("Failed to invalidate run status cache", zap.String("run_id", runID), zap.Error(err))
		}
	}
	return counters, nil
}

func validateBulkBucket(bucket domain.Bucket) error {
	if !bucket.IsScored() {
		return apperrors.NewValidationError("bucket must be one of APPROVED, OKISH, REJECTED", "bucket", bucket)
	}
	return nil
}

// SaveBucket marks every evaluation of bucket in the run as SAVED.
func (m *ReviewManager) SaveBucket(ctx context.Context, runID string, bucket domain.Bucket) (int, error) {
	if err := validateBulkBucket(bucket); err != nil {
		return 0, err
	}
	if _, err := m.loadFinishedRun(ctx, runID); err != nil {
		return 0, err
	}

	n, err := m.runs.MarkBucketSaved(ctx, runID, bucket)
	if err != nil {
		return 0, fmt.Errorf("failed to save bucket: %w", err)
	}
	if _, err := m.recompute(ctx, runID); err != nil {
		return 0, err
	}
	return n, nil
}

// DiscardBucket deletes every evaluation of bucket in the run.
func (m *ReviewManager) DiscardBucket(ctx context.Context, runID string, bucket domain.Bucket) (int, error) {
	if err := validateBulkBucket(bucket); err != nil {
		return 0, err
	}
	if _, err := m.loadFinishedRun(ctx, runID); err != nil {
		return 0, err
	}

	n, err := m.runs.DeleteBucket(ctx, runID, bucket)
	if err != nil {
		return 0, fmt.Errorf("failed to discard bucket: %w", err)
	}
	if _, err := m.recompute(ctx, runID); err != nil {
		return 0, err
	}
	return n, nil
}

// ListSaved returns the long-lived queue of SAVED evaluations.
func (m *ReviewManager) ListSaved(ctx context.Context) ([]*domain.Evaluation, error) {
	return m.runs.ListSaved(ctx)
}

// RemoveFromQueue takes one evaluation out of the saved queue.
func (m *ReviewManager) RemoveFromQueue(ctx context.Context, evalID string) error {
	if evalID == "" {
		return apperrors.NewValidationError("evaluation id is required", "id", evalID)
	}
	return m.runs.SetReviewStatus(ctx, evalID, domain.ReviewDiscarded)
}
