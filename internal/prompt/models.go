package prompt

type RelevanceVideo struct {
	Title string
	Views string
}

// RelevancePromptData is the flattened view rendered into relevance_score.yaml.
// Optional profile fields are pre-formatted; blanks render as N/A.
type RelevancePromptData struct {
	CampaignName   string
	Notes          string
	TargetKeywords []string
	AvoidKeywords  []string
	Strictness     int

	Username    string
	Bio         string
	Followers   string
	Email       string
	SocialLinks string
	Videos      []RelevanceVideo
	NoContent   bool
}
