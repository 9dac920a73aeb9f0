package domain

import "time"

// Campaign is a reusable filter configuration.
type Campaign struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Notes             *string   `json:"notes,omitempty"`
	StrictnessDefault int       `json:"strictness_default"`
	TargetKeywords    []string  `json:"target_keywords"`
	AvoidKeywords     []string  `json:"avoid_keywords"`
	CreatedAt         time.Time `json:"created_at"`
}

// CampaignContext is the effective campaign configuration for one run.
type CampaignContext struct {
	CampaignName   string
	Notes          *string
	TargetKeywords []string
	AvoidKeywords  []string
	Strictness     int
}
