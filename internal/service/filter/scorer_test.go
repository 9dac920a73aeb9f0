package filter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/service/ai"
	apperrors "github.com/kapu/outreach-pipeline-go/pkg/errors"
)

type fakeGenerator struct {
	text   string
	err    error
	prompt string
	opts   ai.GenerateOptions
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, opts ai.GenerateOptions) (string, *ai.GenerateMetadata, error) {
	f.prompt = prompt
	f.opts = opts
	if f.err != nil {
		return "", nil, f.err
	}
	return f.text, &ai.GenerateMetadata{Provider: "fake"}, nil
}

func scoreWith(t *testing.T, gen *fakeGenerator, inf *domain.InfluencerContext) (*ScoreResult, error) {
	t.Helper()
	s := NewRelevanceScorer(gen, nil, zap.NewNop())
	return s.Score(context.Background(), inf, &domain.CampaignContext{CampaignName: "C", TargetKeywords: []string{"beauty"}})
}

func TestScoreParsesAndClamps(t *testing.T) {
	gen := &fakeGenerator{text: `{"score": 104.6, "reasons": "direct match", "matchedSignals": ["beauty", "skincare"], "riskSignals": ""}`}
	res, err := scoreWith(t, gen, &domain.InfluencerContext{Username: "a", Bio: strPtr("beauty")})
	require.NoError(t, err)

	assert.Equal(t, 100, res.Score)
	assert.Equal(t, "direct match", res.Reasons)
	assert.Equal(t, "beauty; skincare", res.MatchedSignals)
	assert.True(t, gen.opts.JSONMode)
	require.NotNil(t, gen.opts.Temperature)
	assert.InDelta(t, 0.2, *gen.opts.Temperature, 1e-6)
}

func TestScoreRoundsNumericStrings(t *testing.T) {
	res, err := scoreWith(t, &fakeGenerator{text: `{"score": "44.5"}`}, &domain.InfluencerContext{Username: "a"})
	require.NoError(t, err)
	assert.Equal(t, 45, res.Score)
	assert.Equal(t, domain.BucketOkish, MapScoreToBucket(res.Score))
}

func TestScoreFailures(t *testing.T) {
	cases := map[string]*fakeGenerator{
		"malformed json": {text: "not json"},
		"missing score":  {text: `{"reasons": "x"}`},
		"nan score":      {text: `{"score": "NaN"}`},
		"bool score":     {text: `{"score": true}`},
		"llm error":      {err: errors.New("503 backend error")},
	}
	for name, gen := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := scoreWith(t, gen, &domain.InfluencerContext{Username: "a"})
			var se *apperrors.ScoringError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "a", se.Username)
		})
	}
}

func TestScoreKeepsConfigErrorCause(t *testing.T) {
	gen := &fakeGenerator{err: apperrors.NewConfigError("GEMINI_API_KEY is missing", "GEMINI_API_KEY")}
	_, err := scoreWith(t, gen, &domain.InfluencerContext{Username: "a"})

	var cfg *apperrors.ConfigError
	require.ErrorAs(t, err, &cfg)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY is missing")
}

func TestScorePromptWarnsForEmptyProfile(t *testing.T) {
	gen := &fakeGenerator{text: `{"score": 3}`}
	_, err := scoreWith(t, gen, &domain.InfluencerContext{Username: "empty"})
	require.NoError(t, err)

	assert.Contains(t, gen.prompt, "score 0-10")
	assert.Contains(t, gen.prompt, "WARNING: This influencer has essentially NO profile data")
}
