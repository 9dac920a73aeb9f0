package domain

import "time"

// PrefilterLabel is the keyword gate outcome.
type PrefilterLabel string

const (
	PrefilterNone           PrefilterLabel = "NONE"
	PrefilterLikelyRelevant PrefilterLabel = "LIKELY_RELEVANT"
	PrefilterReviewQueue    PrefilterLabel = "REVIEW_QUEUE"
)

func (l PrefilterLabel) String() string {
	return string(l)
}

func (l PrefilterLabel) IsValid() bool {
	switch l {
	case PrefilterNone, PrefilterLikelyRelevant, PrefilterReviewQueue:
		return true
	default:
		return false
	}
}

// Bucket is the final relevance classification.
type Bucket string

const (
	BucketApproved    Bucket = "APPROVED"
	BucketOkish       Bucket = "OKISH"
	BucketRejected    Bucket = "REJECTED"
	BucketReviewQueue Bucket = "REVIEW_QUEUE"
)

func (b Bucket) String() string {
	return string(b)
}

func (b Bucket) IsValid() bool {
	switch b {
	case BucketApproved, BucketOkish, BucketRejected, BucketReviewQueue:
		return true
	default:
		return false
	}
}

// IsScored reports whether the bucket is one of the score-derived buckets
// accepted by bulk save/discard actions.
func (b Bucket) IsScored() bool {
	return b == BucketApproved || b == BucketOkish || b == BucketRejected
}

type ReviewStatus string

const (
	ReviewNotReviewed   ReviewStatus = "NOT_REVIEWED"
	ReviewApprovedForAI ReviewStatus = "APPROVED_FOR_AI"
	ReviewDiscarded     ReviewStatus = "DISCARDED"
	ReviewSaved         ReviewStatus = "SAVED"
)

func (s ReviewStatus) String() string {
	return string(s)
}

func (s ReviewStatus) IsValid() bool {
	switch s {
	case ReviewNotReviewed, ReviewApprovedForAI, ReviewDiscarded, ReviewSaved:
		return true
	default:
		return false
	}
}

type RunStatus string

const (
	RunStatusProcessing RunStatus = "PROCESSING"
	RunStatusCompleted  RunStatus = "COMPLETED"
	RunStatusFailed     RunStatus = "FAILED"
)

func (s RunStatus) String() string {
	return string(s)
}

func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusProcessing, RunStatusCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Counters is the materialized view of a run's evaluation rows.
type Counters struct {
	TotalCount       int `json:"total_count"`
	AIProcessedCount int `json:"ai_processed_count"`
	ReviewQueueCount int `json:"review_queue_count"`
	ApprovedCount    int `json:"approved_count"`
	OkishCount       int `json:"okish_count"`
	RejectedCount    int `json:"rejected_count"`
	FailedCount      int `json:"failed_count"`
}

// ProcessedCount is the number of influencers that already have an outcome.
func (c Counters) ProcessedCount() int {
	return c.AIProcessedCount + c.ReviewQueueCount + c.FailedCount
}

// BucketSum must equal TotalCount once a run completes.
func (c Counters) BucketSum() int {
	return c.ApprovedCount + c.OkishCount + c.RejectedCount + c.ReviewQueueCount
}

// Add increments the bucket counter that matches b.
func (c *Counters) Add(b Bucket) {
	switch b {
	case BucketApproved:
		c.ApprovedCount++
	case BucketOkish:
		c.OkishCount++
	case BucketRejected:
		c.RejectedCount++
	case BucketReviewQueue:
		c.ReviewQueueCount++
	}
}

// AiFilterRun is one execution of the filter pipeline for an import and campaign.
type AiFilterRun struct {
	ID           string    `json:"id"`
	CampaignID   string    `json:"campaign_id"`
	ImportID     string    `json:"import_id"`
	Strictness   int       `json:"strictness"`
	Status       RunStatus `json:"status"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Counters

	TargetKeywords []string `json:"target_keywords"`
	AvoidKeywords  []string `json:"avoid_keywords"`

	CampaignName string        `json:"campaign_name,omitempty"`
	Evaluations  []*Evaluation `json:"evaluations,omitempty"`
}

// RunStatusView is the polling payload for a run.
type RunStatusView struct {
	ID             string    `json:"id"`
	Status         RunStatus `json:"status"`
	CampaignName   string    `json:"campaign_name"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	ProcessedCount int       `json:"processed_count"`
	Counters
}

// Evaluation is one influencer's outcome within one run.
type Evaluation struct {
	ID             string         `json:"id"`
	RunID          string         `json:"run_id"`
	InfluencerID   string         `json:"influencer_id"`
	Username       string         `json:"username,omitempty"`
	PrefilterLabel PrefilterLabel `json:"prefilter_label"`
	Score          *int           `json:"score"`
	Bucket         Bucket         `json:"bucket"`
	Reasons        string         `json:"reasons"`
	MatchedSignals string         `json:"matched_signals"`
	RiskSignals    string         `json:"risk_signals"`
	ReviewStatus   ReviewStatus   `json:"review_status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// CountEvaluations derives the counter set from authoritative rows.
// A row counts as AI-processed when it carries a score; a scored attempt
// without a score is a scoring failure. Discarded rows count only as rejected.
func CountEvaluations(evals []*Evaluation) Counters {
	c := Counters{TotalCount: len(evals)}
	for _, e := range evals {
		c.Add(e.Bucket)
		switch {
		case e.Score != nil:
			c.AIProcessedCount++
		case e.ReviewStatus == ReviewApprovedForAI || e.ReviewStatus == ReviewSaved:
			if e.Bucket == BucketRejected {
				c.FailedCount++
			}
		}
	}
	return c
}
