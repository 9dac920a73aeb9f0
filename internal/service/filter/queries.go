package filter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/constants"
	"github.com/kapu/outreach-pipeline-go/internal/domain"
	apperrors "github.com/kapu/outreach-pipeline-go/pkg/errors"
)

// RunQueries serves the read side of filter runs.
type RunQueries struct {
	runs        RunStore
	campaigns   CampaignReader
	statusCache StatusCache
	logger      *zap.Logger
}

func NewRunQueries(runs RunStore, campaigns CampaignReader, statusCache StatusCache, logger *zap.Logger) *RunQueries {
	return &RunQueries{runs: runs, campaigns: campaigns, statusCache: statusCache, logger: logger}
}

// GetRun returns the run with its evaluations (bucket, then score desc).
func (q *RunQueries) GetRun(ctx context.Context, runID string) (*domain.AiFilterRun, error) {
	run, err := q.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return nil, apperrors.NewNotFoundError("run", runID)
	}

	evals, err := q.runs.ListEvaluations(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load evaluations: %w", err)
	}
	run.Evaluations = evals

	if run.CampaignName == "" {
		if c, err := q.campaigns.GetCampaign(ctx, run.CampaignID); err == nil && c != nil {
			run.CampaignName = c.Name
		}
	}
	return run, nil
}

// GetRunStatus is the polling endpoint payload, cached briefly.
func (q *RunQueries) GetRunStatus(ctx context.Context, runID string) (*domain.RunStatusView, error) {
	if q.statusCache != nil {
		view, ok, err := q.statusCache.GetRunStatus(ctx, runID)
		if err != nil {
			q.logger.Debug("Run status cache read failed", zap.String("run_id", runID), zap.Error(err))
		} else if ok {
			return view, nil
		}
	}

	run, err := q.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return nil, apperrors.NewNotFoundError("run", runID)
	}

	name := run.CampaignName
	if name == "" {
		if c, err := q.campaigns.GetCampaign(ctx, run.CampaignID); err == nil && c != nil {
			name = c.Name
		}
	}

	view := &domain.RunStatusView{
		ID:             run.ID,
		Status:         run.Status,
		CampaignName:   name,
		ErrorMessage:   run.ErrorMessage,
		ProcessedCount: run.Counters.ProcessedCount(),
		Counters:       run.Counters,
	}

	if q.statusCache != nil {
		if err := q.statusCache.SetRunStatus(ctx, view, constants.CacheTTL.RunStatus); err != nil {
			q.logger.Debug("Run status cache write failed", zap.String("run_id", runID), zap.Error(err))
		}
	}
	return view, nil
}
