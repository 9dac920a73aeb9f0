package scrape

import (
	"strings"
	"time"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/util"
)

// Profile is the merged view of every dataset row of one username.
type Profile struct {
	Username   string
	ProfileURL string
	AvatarURL  string
	Bio        string
	Followers  *int64
	Contact    ContactFields
	Videos     []*domain.Video
}

var uploadedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalize groups rows by lowercased username. For every profile field the
// first non-empty value across the rows wins. Rows without a username are
// dropped. Profiles keep first-seen order.
func Normalize(items []RawItem) []*Profile {
	byUsername := make(map[string]*Profile)
	order := make([]*Profile, 0)

	for i := range items {
		item := &items[i]
		if item.Channel == nil {
			continue
		}
		username := util.NormalizeUsername(item.Channel.Username)
		if username == "" {
			continue
		}

		p, ok := byUsername[username]
		if !ok {
			p = &Profile{Username: username}
			byUsername[username] = p
			order = append(order, p)
		}
		p.merge(item)

		if v := toVideo(username, item); v != nil {
			p.Videos = append(p.Videos, v)
		}
	}
	return order
}

func (p *Profile) merge(item *RawItem) {
	ch := item.Channel
	p.ProfileURL = util.FirstNonEmpty(p.ProfileURL, ch.URL)
	p.AvatarURL = util.FirstNonEmpty(p.AvatarURL, ch.Avatar, ch.ProfilePicture)
	p.Bio = util.FirstNonEmpty(p.Bio, ch.Bio)
	if p.Followers == nil {
		p.Followers = ch.Followers.Ptr()
	}
	p.Contact.Email = util.FirstNonEmpty(p.Contact.Email, ch.Email)
	p.Contact.Phone = util.FirstNonEmpty(p.Contact.Phone, ch.Phone)
	p.Contact.BioLink = util.FirstNonEmpty(p.Contact.BioLink, ch.BioLink)
	if len(p.Contact.Links) == 0 && len(ch.Links) > 0 {
		p.Contact.Links = append([]string(nil), ch.Links...)
	}
}

// toVideo returns nil for profile-only rows.
func toVideo(username string, item *RawItem) *domain.Video {
	cover := ""
	if item.Video != nil {
		cover = item.Video.Cover
	}
	title := strings.TrimSpace(item.Title)
	uploaded := parseUploadedAt(item)
	if title == "" && cover == "" && uploaded == nil && !item.Views.Valid {
		return nil
	}
	return &domain.Video{
		Username:     username,
		Title:        util.StringPtr(title),
		Views:        item.Views.Ptr(),
		Bookmarks:    item.Bookmarks.Ptr(),
		UploadedAt:   uploaded,
		ThumbnailURL: util.StringPtr(cover),
	}
}

func parseUploadedAt(item *RawItem) *time.Time {
	if s := strings.TrimSpace(item.UploadedAtFormatted); s != "" {
		for _, layout := range uploadedLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	if item.UploadedAt.Valid && item.UploadedAt.Value > 0 {
		t := time.Unix(item.UploadedAt.Value, 0).UTC()
		return &t
	}
	return nil
}

// ToInfluencer builds the persisted influencer from a merged profile.
func (p *Profile) ToInfluencer(importID, sourceFilename string) *domain.Influencer {
	contact := DeriveContact(p.Contact, p.Bio, p.ProfileURL)
	return &domain.Influencer{
		Username:       p.Username,
		ProfileURL:     util.StringPtr(p.ProfileURL),
		AvatarURL:      util.StringPtr(p.AvatarURL),
		Bio:            util.StringPtr(p.Bio),
		Followers:      p.Followers,
		Email:          util.StringPtr(contact.Email),
		Phone:          util.StringPtr(contact.Phone),
		BioLinkURL:     util.StringPtr(contact.BioLinkURL),
		SocialLinks:    contact.SocialLinks,
		ImportID:       util.StringPtr(importID),
		SourceFilename: util.StringPtr(sourceFilename),
		Videos:         p.Videos,
	}
}
