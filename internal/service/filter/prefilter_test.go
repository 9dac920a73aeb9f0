package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
)

func TestPreFilterWithoutKeywordsAlwaysRunsAI(t *testing.T) {
	profiles := []*domain.InfluencerContext{
		{Username: "politics_daily", Bio: strPtr("all politics all day")},
		{Username: "ghost"},
	}
	campaigns := []*domain.CampaignContext{
		{},
		{TargetKeywords: []string{" ", ""}, AvoidKeywords: []string{"  "}},
	}

	for _, inf := range profiles {
		for _, c := range campaigns {
			got := PreFilter(inf, c)
			assert.Equal(t, domain.PrefilterNone, got.Label)
			assert.True(t, got.ShouldRunAI)
			assert.Equal(t, "No pre-filter configured. Sent directly to AI scoring.", got.Reason)
		}
	}
}

func TestPreFilterAvoidWithoutTargetGoesToReview(t *testing.T) {
	inf := &domain.InfluencerContext{
		Username: "newsguy",
		Videos:   []domain.VideoSummary{{Title: strPtr("Election POLITICS recap")}},
	}
	got := PreFilter(inf, &domain.CampaignContext{
		TargetKeywords: []string{"beauty"},
		AvoidKeywords:  []string{"Politics"},
	})

	assert.Equal(t, domain.PrefilterReviewQueue, got.Label)
	assert.False(t, got.ShouldRunAI)
	assert.Empty(t, got.MatchedTarget)
	assert.Equal(t, []string{"politics"}, got.MatchedAvoid)
	assert.Contains(t, got.Reason, "Requires manual review")
}

func TestPreFilterTargetRescuesAvoidMatch(t *testing.T) {
	inf := &domain.InfluencerContext{Username: "mix", Bio: strPtr("beauty and politics blog")}
	got := PreFilter(inf, &domain.CampaignContext{
		TargetKeywords: []string{"beauty"},
		AvoidKeywords:  []string{"politics"},
	})

	assert.Equal(t, domain.PrefilterLikelyRelevant, got.Label)
	assert.True(t, got.ShouldRunAI)
	assert.Equal(t, []string{"beauty"}, got.MatchedTarget)
	assert.Equal(t, []string{"politics"}, got.MatchedAvoid)
	assert.Equal(t, "Contains campaign target keywords.", got.Reason)
}

func TestPreFilterNoMatchesIsEligible(t *testing.T) {
	inf := &domain.InfluencerContext{Username: "cook", Bio: strPtr("pasta recipes")}
	got := PreFilter(inf, &domain.CampaignContext{
		TargetKeywords: []string{"beauty"},
		AvoidKeywords:  []string{"politics"},
	})

	assert.Equal(t, domain.PrefilterLikelyRelevant, got.Label)
	assert.True(t, got.ShouldRunAI)
	assert.Equal(t, "No hard-negative conflict. Eligible for AI scoring.", got.Reason)
}

func TestPreFilterMatchesUsername(t *testing.T) {
	inf := &domain.InfluencerContext{Username: "BeautyByAnna"}
	got := PreFilter(inf, &domain.CampaignContext{TargetKeywords: []string{"beauty"}})
	assert.Equal(t, []string{"beauty"}, got.MatchedTarget)
}

func TestPreFilterIsDeterministic(t *testing.T) {
	inf := &domain.InfluencerContext{Username: "x", Bio: strPtr("skincare politics")}
	c := &domain.CampaignContext{TargetKeywords: []string{"skincare", "makeup"}, AvoidKeywords: []string{"politics"}}
	assert.Equal(t, PreFilter(inf, c), PreFilter(inf, c))
}

func TestMapScoreToBucketBoundaries(t *testing.T) {
	cases := map[int]domain.Bucket{
		0:   domain.BucketRejected,
		44:  domain.BucketRejected,
		45:  domain.BucketOkish,
		69:  domain.BucketOkish,
		70:  domain.BucketApproved,
		100: domain.BucketApproved,
	}
	for score, want := range cases {
		assert.Equal(t, want, MapScoreToBucket(score), "score %d", score)
	}
}
