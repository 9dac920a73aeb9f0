package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
)

func strPtr(s string) *string { return &s }
func intPtr(i int64) *int64   { return &i }

func campaignCtx() *domain.CampaignContext {
	return &domain.CampaignContext{
		CampaignName:   "Spring Glow",
		TargetKeywords: []string{"beauty", "skincare"},
		AvoidKeywords:  []string{"politics"},
		Strictness:     80,
	}
}

func TestBuildRelevancePromptIncludesProfile(t *testing.T) {
	inf := &domain.InfluencerContext{
		Username:  "glowgirl",
		Bio:       strPtr("beauty tips daily"),
		Followers: intPtr(12000),
		Videos: []domain.VideoSummary{
			{Title: strPtr("Morning routine"), Views: intPtr(500)},
			{Title: nil, Views: nil},
		},
	}

	out, err := BuildRelevancePrompt(inf, campaignCtx())
	require.NoError(t, err)

	assert.Contains(t, out, "=== CAMPAIGN ===")
	assert.Contains(t, out, "Name: Spring Glow")
	assert.Contains(t, out, "Notes: N/A")
	assert.Contains(t, out, "Target keywords: beauty, skincare")
	assert.Contains(t, out, "Strictness (0-100): 80")
	assert.Contains(t, out, "Username: @glowgirl")
	assert.Contains(t, out, "Followers: 12000")
	assert.Contains(t, out, "1. Morning routine (views: 500)")
	assert.Contains(t, out, "2. Untitled (views: N/A)")
	assert.Contains(t, out, "score 0-10")
	assert.NotContains(t, out, "WARNING")
	assert.True(t, strings.HasSuffix(out, `"riskSignals": string}`))
}

func TestBuildRelevancePromptWarnsOnEmptyProfile(t *testing.T) {
	inf := &domain.InfluencerContext{Username: "ghost"}

	out, err := BuildRelevancePrompt(inf, &domain.CampaignContext{CampaignName: "Any"})
	require.NoError(t, err)

	assert.Contains(t, out, "WARNING: This influencer has essentially NO profile data")
	assert.Contains(t, out, "Score accordingly (0-10)")
	assert.Contains(t, out, "(no videos)")
	assert.Contains(t, out, "Target keywords: none")
}

func TestRelevancePromptCapsVideos(t *testing.T) {
	inf := &domain.InfluencerContext{Username: "busy"}
	for i := 0; i < 25; i++ {
		inf.Videos = append(inf.Videos, domain.VideoSummary{Title: strPtr(fmt.Sprintf("clip %02d", i))})
	}

	data := NewRelevancePromptData(inf, campaignCtx())
	assert.Len(t, data.Videos, 15)
	assert.Equal(t, "clip 00", data.Videos[0].Title)
	assert.False(t, data.NoContent)
}
