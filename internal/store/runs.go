package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/service/database"
	"github.com/kapu/outreach-pipeline-go/pkg/errors"
)

const runColumns = `r.id, r.campaign_id, r.import_id, r.strictness, r.status,
	r.total_count, r.ai_processed_count, r.review_queue_count, r.approved_count,
	r.okish_count, r.rejected_count, r.failed_count, r.target_keywords,
	r.avoid_keywords, r.error_message, r.created_at, r.updated_at,
	COALESCE(c.name, '')`

const evaluationColumns = `e.id, e.run_id, e.influencer_id, COALESCE(i.username, ''),
	e.prefilter_label, e.score, e.bucket, e.reasons, e.matched_signals,
	e.risk_signals, e.review_status, e.created_at, e.updated_at`

// RunRepository stores filter runs and their evaluation rows.
type RunRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewRunRepository(postgres *database.PostgresService, logger *zap.Logger) *RunRepository {
	return &RunRepository{
		db:     postgres.GetDB(),
		logger: logger,
	}
}

func (r *RunRepository) CreateRun(ctx context.Context, run *domain.AiFilterRun) error {
	query := `
		INSERT INTO ai_filter_runs (id, campaign_id, import_id, strictness, status, total_count,
		                            target_keywords, avoid_keywords, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		run.ID, run.CampaignID, run.ImportID, run.Strictness, string(run.Status), run.TotalCount,
		pq.Array(nonNil(run.TargetKeywords)), pq.Array(nonNil(run.AvoidKeywords)),
	).Scan(&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert filter run: %w", err)
	}
	return nil
}

// GetRun returns nil when the run does not exist.
func (r *RunRepository) GetRun(ctx context.Context, id string) (*domain.AiFilterRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM ai_filter_runs r
		LEFT JOIN campaigns c ON c.id = r.campaign_id
		WHERE r.id = $1
	`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query filter run: %w", err)
	}
	return run, nil
}

func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]*domain.AiFilterRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM ai_filter_runs r
		LEFT JOIN campaigns c ON c.id = r.campaign_id
		ORDER BY r.created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query filter runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*domain.AiFilterRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan filter run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *RunRepository) UpdateRunCounters(ctx context.Context, runID string, c domain.Counters) error {
	query := `
		UPDATE ai_filter_runs SET
			total_count = $2,
			ai_processed_count = $3,
			review_queue_count = $4,
			approved_count = $5,
			okish_count = $6,
			rejected_count = $7,
			failed_count = $8,
			updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, runID,
		c.TotalCount, c.AIProcessedCount, c.ReviewQueueCount, c.ApprovedCount,
		c.OkishCount, c.RejectedCount, c.FailedCount)
	if err != nil {
		return fmt.Errorf("failed to update run counters: %w", err)
	}
	return nil
}

func (r *RunRepository) FinishRun(ctx context.Context, runID string, status domain.RunStatus, errorMessage *string) error {
	query := `UPDATE ai_filter_runs SET status = $2, error_message = $3, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, runID, string(status), errorMessage); err != nil {
		return fmt.Errorf("failed to finish filter run: %w", err)
	}
	return nil
}

// UpsertEvaluation keeps exactly one row per (run, influencer).
func (r *RunRepository) UpsertEvaluation(ctx context.Context, e *domain.Evaluation) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	query := `
		INSERT INTO influencer_ai_evaluations (id, run_id, influencer_id, prefilter_label, score,
		                                       bucket, reasons, matched_signals, risk_signals,
		                                       review_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		ON CONFLICT (run_id, influencer_id) DO UPDATE SET
			prefilter_label = EXCLUDED.prefilter_label,
			score           = EXCLUDED.score,
			bucket          = EXCLUDED.bucket,
			reasons         = EXCLUDED.reasons,
			matched_signals = EXCLUDED.matched_signals,
			risk_signals    = EXCLUDED.risk_signals,
			review_status   = EXCLUDED.review_status,
			updated_at      = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		e.ID, e.RunID, e.InfluencerID, string(e.PrefilterLabel), e.Score,
		string(e.Bucket), e.Reasons, e.MatchedSignals, e.RiskSignals, string(e.ReviewStatus),
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert evaluation: %w", err)
	}
	return nil
}

func (r *RunRepository) ListEvaluations(ctx context.Context, runID string) ([]*domain.Evaluation, error) {
	return r.queryEvaluations(ctx, `
		SELECT `+evaluationColumns+`
		FROM influencer_ai_evaluations e
		LEFT JOIN influencers i ON i.id = e.influencer_id
		WHERE e.run_id = $1
		ORDER BY `+bucketOrder+`, e.score DESC NULLS LAST, i.username
	`, runID)
}

func (r *RunRepository) GetEvaluations(ctx context.Context, runID string, ids []string) ([]*domain.Evaluation, error) {
	if len(ids) == 0 {
		return []*domain.Evaluation{}, nil
	}
	return r.queryEvaluations(ctx, `
		SELECT `+evaluationColumns+`
		FROM influencer_ai_evaluations e
		LEFT JOIN influencers i ON i.id = e.influencer_id
		WHERE e.run_id = $1 AND e.id = ANY($2)
		ORDER BY i.username
	`, runID, pq.Array(ids))
}

// ListSaved returns every SAVED evaluation across runs.
func (r *RunRepository) ListSaved(ctx context.Context) ([]*domain.Evaluation, error) {
	return r.queryEvaluations(ctx, `
		SELECT `+evaluationColumns+`
		FROM influencer_ai_evaluations e
		LEFT JOIN influencers i ON i.id = e.influencer_id
		WHERE e.review_status = $1
		ORDER BY `+bucketOrder+`, e.score DESC NULLS LAST, i.username
	`, string(domain.ReviewSaved))
}

func (r *RunRepository) DiscardEvaluations(ctx context.Context, runID string, ids []string, reason string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `
		UPDATE influencer_ai_evaluations
		SET bucket = $3, review_status = $4, score = NULL, reasons = $5, updated_at = NOW()
		WHERE run_id = $1 AND id = ANY($2)
	`

	res, err := r.db.ExecContext(ctx, query, runID, pq.Array(ids),
		string(domain.BucketRejected), string(domain.ReviewDiscarded), reason)
	if err != nil {
		return 0, fmt.Errorf("failed to discard evaluations: %w", err)
	}
	return rowsAffected(res), nil
}

func (r *RunRepository) MarkBucketSaved(ctx context.Context, runID string, bucket domain.Bucket) (int, error) {
	query := `
		UPDATE influencer_ai_evaluations
		SET review_status = $3, updated_at = NOW()
		WHERE run_id = $1 AND bucket = $2
	`

	res, err := r.db.ExecContext(ctx, query, runID, string(bucket), string(domain.ReviewSaved))
	if err != nil {
		return 0, fmt.Errorf("failed to save bucket: %w", err)
	}
	return rowsAffected(res), nil
}

func (r *RunRepository) DeleteBucket(ctx context.Context, runID string, bucket domain.Bucket) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM influencer_ai_evaluations WHERE run_id = $1 AND bucket = $2`,
		runID, string(bucket))
	if err != nil {
		return 0, fmt.Errorf("failed to delete bucket: %w", err)
	}
	return rowsAffected(res), nil
}

func (r *RunRepository) SetReviewStatus(ctx context.Context, evalID string, status domain.ReviewStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE influencer_ai_evaluations SET review_status = $2, updated_at = NOW() WHERE id = $1`,
		evalID, string(status))
	if err != nil {
		return fmt.Errorf("failed to update review status: %w", err)
	}
	if rowsAffected(res) == 0 {
		return errors.NewNotFoundError("evaluation", evalID)
	}
	return nil
}

func (r *RunRepository) queryEvaluations(ctx context.Context, query string, args ...any) ([]*domain.Evaluation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluations: %w", err)
	}
	defer rows.Close()

	evals := make([]*domain.Evaluation, 0)
	for rows.Next() {
		var (
			e            domain.Evaluation
			label        string
			score        sql.NullInt64
			bucket       string
			reviewStatus string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.InfluencerID, &e.Username,
			&label, &score, &bucket, &e.Reasons, &e.MatchedSignals,
			&e.RiskSignals, &reviewStatus, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		e.PrefilterLabel = domain.PrefilterLabel(label)
		e.Score = nullIntPtr(score)
		e.Bucket = domain.Bucket(bucket)
		e.ReviewStatus = domain.ReviewStatus(reviewStatus)
		evals = append(evals, &e)
	}
	return evals, rows.Err()
}

func scanRun(row rowScanner) (*domain.AiFilterRun, error) {
	var (
		run          domain.AiFilterRun
		status       string
		target       pq.StringArray
		avoid        pq.StringArray
		errorMessage sql.NullString
	)

	err := row.Scan(
		&run.ID, &run.CampaignID, &run.ImportID, &run.Strictness, &status,
		&run.TotalCount, &run.AIProcessedCount, &run.ReviewQueueCount, &run.ApprovedCount,
		&run.OkishCount, &run.RejectedCount, &run.FailedCount, &target,
		&avoid, &errorMessage, &run.CreatedAt, &run.UpdatedAt,
		&run.CampaignName,
	)
	if err != nil {
		return nil, err
	}

	run.Status = domain.RunStatus(status)
	run.TargetKeywords = nonNil(target)
	run.AvoidKeywords = nonNil(avoid)
	run.ErrorMessage = nullStringPtr(errorMessage)
	return &run, nil
}
