package filter

import (
	"strings"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/util"
)

// PreFilterResult is the keyword gate decision for one influencer.
type PreFilterResult struct {
	Label         domain.PrefilterLabel `json:"label"`
	MatchedTarget []string              `json:"matched_target"`
	MatchedAvoid  []string              `json:"matched_avoid"`
	ShouldRunAI   bool                  `json:"should_run_ai"`
	Reason        string                `json:"reason"`
}

const (
	reasonNoFilter    = "No pre-filter configured. Sent directly to AI scoring."
	reasonAvoidOnly   = "Matches avoided keywords with no positive target signal. Requires manual review."
	reasonTargetMatch = "Contains campaign target keywords."
	reasonNoConflict  = "No hard-negative conflict. Eligible for AI scoring."
)

// Corpus is the lowercased text the keyword gate searches:
// username, bio and video titles joined by spaces.
func Corpus(inf *domain.InfluencerContext) string {
	parts := make([]string, 0, len(inf.Videos)+2)
	parts = append(parts, inf.Username, util.Deref(inf.Bio))
	for _, v := range inf.Videos {
		parts = append(parts, util.Deref(v.Title))
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// PreFilter decides whether an influencer goes to LLM scoring. It never
// auto-rejects: an avoid hit without any target hit is routed to review.
func PreFilter(inf *domain.InfluencerContext, campaign *domain.CampaignContext) PreFilterResult {
	target := util.NormalizeKeywords(campaign.TargetKeywords)
	avoid := util.NormalizeKeywords(campaign.AvoidKeywords)

	if len(target) == 0 && len(avoid) == 0 {
		return PreFilterResult{
			Label:         domain.PrefilterNone,
			MatchedTarget: []string{},
			MatchedAvoid:  []string{},
			ShouldRunAI:   true,
			Reason:        reasonNoFilter,
		}
	}

	corpus := Corpus(inf)
	matchedTarget := matchKeywords(corpus, target)
	matchedAvoid := matchKeywords(corpus, avoid)

	if len(matchedAvoid) > 0 && len(matchedTarget) == 0 {
		return PreFilterResult{
			Label:         domain.PrefilterReviewQueue,
			MatchedTarget: matchedTarget,
			MatchedAvoid:  matchedAvoid,
			ShouldRunAI:   false,
			Reason:        reasonAvoidOnly,
		}
	}

	reason := reasonNoConflict
	if len(matchedTarget) > 0 {
		reason = reasonTargetMatch
	}
	return PreFilterResult{
		Label:         domain.PrefilterLikelyRelevant,
		MatchedTarget: matchedTarget,
		MatchedAvoid:  matchedAvoid,
		ShouldRunAI:   true,
		Reason:        reason,
	}
}

func matchKeywords(corpus string, keywords []string) []string {
	matched := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if strings.Contains(corpus, k) {
			matched = append(matched, k)
		}
	}
	return matched
}
