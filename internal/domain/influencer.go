package domain

import "time"

// Influencer is a scraped profile. Username is the global identity.
type Influencer struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	ProfileURL     *string   `json:"profile_url,omitempty"`
	AvatarURL      *string   `json:"avatar_url,omitempty"`
	Bio            *string   `json:"bio,omitempty"`
	Followers      *int64    `json:"followers,omitempty"`
	Email          *string   `json:"email,omitempty"`
	Phone          *string   `json:"phone,omitempty"`
	BioLinkURL     *string   `json:"bio_link_url,omitempty"`
	SocialLinks    []string  `json:"social_links,omitempty"`
	ImportID       *string   `json:"import_id,omitempty"`
	SourceFilename *string   `json:"source_filename,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Videos []*Video `json:"videos,omitempty"`
}

// Video belongs to exactly one influencer.
type Video struct {
	ID           string     `json:"id"`
	InfluencerID string     `json:"influencer_id"`
	Username     string     `json:"username"`
	Title        *string    `json:"title,omitempty"`
	Views        *int64     `json:"views,omitempty"`
	Bookmarks    *int64     `json:"bookmarks,omitempty"`
	UploadedAt   *time.Time `json:"uploaded_at,omitempty"`
	ThumbnailURL *string    `json:"thumbnail_url,omitempty"`
}

// DedupKey identifies a video across rescrapes.
func (v *Video) DedupKey() string {
	title := ""
	if v.Title != nil {
		title = *v.Title
	}
	uploaded := ""
	if v.UploadedAt != nil {
		uploaded = v.UploadedAt.UTC().Format(time.RFC3339)
	}
	return title + "|" + uploaded
}

// InfluencerContext is the read model consumed by the relevance filter.
type InfluencerContext struct {
	InfluencerID string
	Username     string
	Bio          *string
	Followers    *int64
	Email        *string
	Phone        *string
	SocialLinks  []string
	Videos       []VideoSummary
}

type VideoSummary struct {
	Title *string
	Views *int64
}

// HasAnyContent reports whether the profile carries any usable signal.
func (c *InfluencerContext) HasAnyContent() bool {
	if c.Bio != nil && *c.Bio != "" {
		return true
	}
	if c.Followers != nil && *c.Followers > 0 {
		return true
	}
	for _, v := range c.Videos {
		if v.Title != nil && *v.Title != "" {
			return true
		}
	}
	return false
}
