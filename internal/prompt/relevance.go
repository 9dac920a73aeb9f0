package prompt

import (
	"strconv"
	"strings"

	"github.com/kapu/outreach-pipeline-go/internal/constants"
	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/util"
)

// NewRelevancePromptData flattens influencer and campaign context for rendering.
// At most AIInputLimits.PromptVideos videos are included, in the given order.
func NewRelevancePromptData(inf *domain.InfluencerContext, campaign *domain.CampaignContext) RelevancePromptData {
	videos := inf.Videos
	if len(videos) > constants.AIInputLimits.PromptVideos {
		videos = videos[:constants.AIInputLimits.PromptVideos]
	}

	data := RelevancePromptData{
		CampaignName:   campaign.CampaignName,
		Notes:          util.Deref(campaign.Notes),
		TargetKeywords: campaign.TargetKeywords,
		AvoidKeywords:  campaign.AvoidKeywords,
		Strictness:     campaign.Strictness,
		Username:       inf.Username,
		Bio:            util.TruncateString(util.Deref(inf.Bio), constants.AIInputLimits.MaxBioRunes),
		Email:          util.Deref(inf.Email),
		SocialLinks:    strings.Join(inf.SocialLinks, ", "),
		Videos:         make([]RelevanceVideo, 0, len(videos)),
		NoContent:      !inf.HasAnyContent(),
	}
	if inf.Followers != nil {
		data.Followers = strconv.FormatInt(*inf.Followers, 10)
	}

	for _, v := range videos {
		rv := RelevanceVideo{Title: "Untitled", Views: "N/A"}
		if v.Title != nil && strings.TrimSpace(*v.Title) != "" {
			rv.Title = util.TruncateString(*v.Title, constants.AIInputLimits.MaxTitleRunes)
		}
		if v.Views != nil {
			rv.Views = strconv.FormatInt(*v.Views, 10)
		}
		data.Videos = append(data.Videos, rv)
	}

	return data
}

// BuildRelevancePrompt renders the scoring prompt for one influencer.
func BuildRelevancePrompt(inf *domain.InfluencerContext, campaign *domain.CampaignContext) (string, error) {
	return DefaultPromptBuilder().Render(TemplateRelevanceScore, NewRelevancePromptData(inf, campaign))
}
