package scrape

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phonePattern  = regexp.MustCompile(`\+?\(?\d[\d\s().-]{6,}\d`)
	urlPattern    = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"']+|\b(?:[a-z0-9-]+\.)+(?:com|net|org|io|me|ee|bio|link|co|tv|app|page|gg|ly|to|cc)/[^\s<>"']*`)
	handlePattern = regexp.MustCompile(`(?i)\b(ig|insta|instagram|yt|youtube|twitter|x|twitch|snap|snapchat)\s*[:\-]\s*@?([a-z0-9._]{2,30})`)
)

// socialHosts maps a registrable host to its canonical form.
var socialHosts = map[string]string{
	"instagram.com": "instagram.com",
	"youtube.com":   "youtube.com",
	"youtu.be":      "youtube.com",
	"twitter.com":   "x.com",
	"x.com":         "x.com",
	"facebook.com":  "facebook.com",
	"fb.com":        "facebook.com",
	"twitch.tv":     "twitch.tv",
	"snapchat.com":  "snapchat.com",
	"linkedin.com":  "linkedin.com",
	"threads.net":   "threads.net",
	"pinterest.com": "pinterest.com",
}

var handleHosts = map[string]string{
	"ig":        "https://www.instagram.com/",
	"insta":     "https://www.instagram.com/",
	"instagram": "https://www.instagram.com/",
	"yt":        "https://www.youtube.com/@",
	"youtube":   "https://www.youtube.com/@",
	"twitter":   "https://x.com/",
	"x":         "https://x.com/",
	"twitch":    "https://www.twitch.tv/",
	"snap":      "https://www.snapchat.com/add/",
	"snapchat":  "https://www.snapchat.com/add/",
}

// aggregatorHosts are link-in-bio landing pages worth exploring.
var aggregatorHosts = []string{
	"linktr.ee", "beacons.ai", "lnk.bio", "linkin.bio", "stan.store",
	"campsite.bio", "bio.link", "solo.to", "taplink.cc", "carrd.co",
}

// ContactFields are contact values the provider returned as structured data.
type ContactFields struct {
	Email   string
	Phone   string
	BioLink string
	Links   []string
}

// Contact is the derived, canonical contact information of a profile.
type Contact struct {
	Email       string
	Phone       string
	BioLinkURL  string
	SocialLinks []string
}

// DeriveContact extracts contact data. Structured provider fields win over
// values found in the bio; profileURL is never used as the bio link.
func DeriveContact(fields ContactFields, bio, profileURL string) Contact {
	c := Contact{
		Email: strings.TrimSpace(fields.Email),
		Phone: normalizePhone(fields.Phone),
	}
	if c.Email == "" {
		c.Email = emailPattern.FindString(bio)
	}
	if c.Phone == "" {
		c.Phone = extractPhone(bio)
	}

	candidates := make([]string, 0, len(fields.Links)+4)
	if fields.BioLink != "" {
		candidates = append(candidates, fields.BioLink)
	}
	candidates = append(candidates, fields.Links...)
	candidates = append(candidates, findURLs(bio)...)

	profile := canonicalURL(profileURL)
	seen := map[string]struct{}{}
	for _, raw := range candidates {
		u := canonicalURL(raw)
		if u == "" || u == profile || isProviderProfile(u) {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}

		if IsSocialURL(u) {
			c.SocialLinks = append(c.SocialLinks, u)
			continue
		}
		if c.BioLinkURL == "" {
			c.BioLinkURL = u
		}
	}

	for _, m := range handlePattern.FindAllStringSubmatch(bio, -1) {
		prefix := handleHosts[strings.ToLower(m[1])]
		u := prefix + strings.TrimRight(m[2], ".")
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		c.SocialLinks = append(c.SocialLinks, u)
	}

	return c
}

// MergeSocialLinks appends extra links not already present.
func MergeSocialLinks(existing, extra []string) []string {
	seen := make(map[string]struct{}, len(existing))
	out := append([]string(nil), existing...)
	for _, u := range existing {
		seen[u] = struct{}{}
	}
	for _, raw := range extra {
		u := canonicalURL(raw)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func findURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimRight(m, ".,;:!?)"))
	}
	return out
}

// canonicalURL returns an absolute https URL without fragment, trailing slash
// or tracking query, or "" when raw is not a usable web URL.
func canonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || !strings.Contains(u.Host, ".") {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawQuery = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func hostMatches(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func isProviderProfile(u string) bool {
	return hostMatches(hostOf(u), "tiktok.com")
}

// IsSocialURL reports whether u points at a known social network.
func IsSocialURL(u string) bool {
	host := hostOf(u)
	for domain := range socialHosts {
		if hostMatches(host, domain) {
			return true
		}
	}
	return false
}

// IsAggregatorURL reports whether u is a link-in-bio landing page.
func IsAggregatorURL(u string) bool {
	host := hostOf(u)
	for _, domain := range aggregatorHosts {
		if hostMatches(host, domain) {
			return true
		}
	}
	return false
}

func extractPhone(text string) string {
	for _, m := range phonePattern.FindAllString(text, -1) {
		if p := normalizePhone(m); p != "" {
			return p
		}
	}
	return ""
}

// normalizePhone keeps digits and a leading "+"; 8 to 15 digits are accepted.
func normalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	digits := 0
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	if digits < 8 || digits > 15 {
		return ""
	}
	return b.String()
}
