package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kapu/outreach-pipeline-go/internal/constants"
	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/metrics"
	"github.com/kapu/outreach-pipeline-go/internal/prompt"
	"github.com/kapu/outreach-pipeline-go/internal/service/ai"
	"github.com/kapu/outreach-pipeline-go/internal/util"
	apperrors "github.com/kapu/outreach-pipeline-go/pkg/errors"
)

// Generator is the LLM contract the scorer needs.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts ai.GenerateOptions) (string, *ai.GenerateMetadata, error)
}

// ScoreResult is a validated relevance score.
type ScoreResult struct {
	Score          int    `json:"score"`
	Reasons        string `json:"reasons"`
	MatchedSignals string `json:"matched_signals"`
	RiskSignals    string `json:"risk_signals"`
}

type RelevanceScorer struct {
	llm     Generator
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRelevanceScorer paces LLM calls with limiter; a nil limiter disables pacing.
func NewRelevanceScorer(llm Generator, limiter *rate.Limiter, logger *zap.Logger) *RelevanceScorer {
	return &RelevanceScorer{llm: llm, limiter: limiter, logger: logger}
}

func NewDefaultLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(constants.AIInputLimits.RequestsPerSec), constants.AIInputLimits.Burst)
}

// Score asks the LLM for a 0-100 fit score. Every failure is returned as a
// *errors.ScoringError; a missing API key keeps its *errors.ConfigError cause.
func (s *RelevanceScorer) Score(ctx context.Context, inf *domain.InfluencerContext, campaign *domain.CampaignContext) (*ScoreResult, error) {
	text, err := prompt.BuildRelevancePrompt(inf, campaign)
	if err != nil {
		return nil, apperrors.NewScoringError("failed to build prompt", inf.Username, err)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, apperrors.NewScoringError("rate limiter wait aborted", inf.Username, err)
		}
	}

	temp := constants.AIInputLimits.Temperature
	start := time.Now()
	raw, meta, err := s.llm.Generate(ctx, text, ai.GenerateOptions{
		Preset:      ai.PresetPrecise,
		Temperature: &temp,
		JSONMode:    true,
	})
	metrics.Metrics.ScoringDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, apperrors.NewScoringError("LLM request failed", inf.Username, err)
	}

	result, err := parseScore(raw)
	if err != nil {
		return nil, apperrors.NewScoringError(err.Error(), inf.Username, nil)
	}

	if meta != nil {
		s.logger.Debug("Influencer scored",
			zap.String("username", inf.Username),
			zap.Int("score", result.Score),
			zap.String("provider", meta.Provider),
			zap.Bool("fallback", meta.UsedFallback),
		)
	}
	return result, nil
}

type rawScore struct {
	Score          any `json:"score"`
	Reasons        any `json:"reasons"`
	MatchedSignals any `json:"matchedSignals"`
	RiskSignals    any `json:"riskSignals"`
}

func parseScore(raw string) (*ScoreResult, error) {
	preview := util.TruncateString(raw, 300)

	var parsed rawScore
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("model returned invalid JSON: %s", preview)
	}

	value, ok := toFloat(parsed.Score)
	if !ok {
		return nil, fmt.Errorf("model score is invalid: %s", preview)
	}
	score, ok := util.RoundScore(value)
	if !ok {
		return nil, fmt.Errorf("model score is invalid: %s", preview)
	}

	return &ScoreResult{
		Score:          score,
		Reasons:        toText(parsed.Reasons),
		MatchedSignals: toText(parsed.MatchedSignals),
		RiskSignals:    toText(parsed.RiskSignals),
	}, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// toText flattens the free-text fields; models sometimes answer with lists.
func toText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := toText(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	default:
		return fmt.Sprint(t)
	}
}
