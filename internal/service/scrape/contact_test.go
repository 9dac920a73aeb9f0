package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveContactFromBio(t *testing.T) {
	bio := "Skincare daily ✨ collab: Anna.Beauty@Gmail.com | call +1 (555) 123-4567 | linktr.ee/annabeauty | IG: @anna.glow"
	c := DeriveContact(ContactFields{}, bio, "https://www.tiktok.com/@anna")

	assert.Equal(t, "Anna.Beauty@Gmail.com", c.Email)
	assert.Equal(t, "+15551234567", c.Phone)
	assert.Equal(t, "https://linktr.ee/annabeauty", c.BioLinkURL)
	assert.Equal(t, []string{"https://www.instagram.com/anna.glow"}, c.SocialLinks)
}

func TestDeriveContactPrefersStructuredFields(t *testing.T) {
	c := DeriveContact(ContactFields{
		Email:   "booking@agency.com",
		Phone:   "+44 20 7946 0958",
		BioLink: "https://beacons.ai/anna/",
	}, "mail me: other@x.com https://shop.example.com/anna", "")

	assert.Equal(t, "booking@agency.com", c.Email)
	assert.Equal(t, "+442079460958", c.Phone)
	assert.Equal(t, "https://beacons.ai/anna", c.BioLinkURL)
}

func TestDeriveContactNeverUsesProfileURLAsBioLink(t *testing.T) {
	c := DeriveContact(ContactFields{
		BioLink: "https://www.tiktok.com/@anna",
		Links:   []string{"https://www.tiktok.com/@anna?lang=en", "https://youtube.com/@anna"},
	}, "", "https://www.tiktok.com/@anna")

	assert.Empty(t, c.BioLinkURL)
	assert.Equal(t, []string{"https://youtube.com/@anna"}, c.SocialLinks)
}

func TestDeriveContactIgnoresShortNumbers(t *testing.T) {
	c := DeriveContact(ContactFields{}, "since 2019 • 123 456", "")
	assert.Empty(t, c.Phone)
	assert.Empty(t, c.Email)
	assert.Empty(t, c.BioLinkURL)
	assert.Empty(t, c.SocialLinks)
}

func TestURLClassification(t *testing.T) {
	assert.True(t, IsSocialURL("https://www.instagram.com/anna"))
	assert.True(t, IsSocialURL("https://m.youtube.com/@anna"))
	assert.False(t, IsSocialURL("https://notinstagram.com/anna"))

	assert.True(t, IsAggregatorURL("https://linktr.ee/anna"))
	assert.False(t, IsAggregatorURL("https://shop.example.com"))
}

func TestMergeSocialLinksDedupes(t *testing.T) {
	got := MergeSocialLinks(
		[]string{"https://www.instagram.com/anna"},
		[]string{"https://www.instagram.com/anna/", "https://x.com/anna", "not a url"},
	)
	assert.Equal(t, []string{"https://www.instagram.com/anna", "https://x.com/anna"}, got)
}
