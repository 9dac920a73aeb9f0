package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/constants"
)

// LinkExplorer harvests social links from a link-in-bio page.
type LinkExplorer interface {
	Explore(ctx context.Context, pageURL string) ([]string, error)
}

// LinkPageExplorer fetches aggregator pages (linktr.ee and friends) and
// collects anchors that point at known social networks.
type LinkPageExplorer struct {
	httpClient *http.Client
	logger     *zap.Logger
}

func NewLinkPageExplorer(httpClient *http.Client, logger *zap.Logger) *LinkPageExplorer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.LinkPageConfig.Timeout}
	}
	return &LinkPageExplorer{httpClient: httpClient, logger: logger}
}

func (e *LinkPageExplorer) Explore(ctx context.Context, pageURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; outreach-pipeline/1.0)")
	req.Header.Set("Accept", "text/html")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch link page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("link page returned %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, constants.LinkPageConfig.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse link page: %w", err)
	}

	base, _ := url.Parse(pageURL)
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") {
			return
		}
		if base != nil {
			if ref, err := url.Parse(href); err == nil {
				href = base.ResolveReference(ref).String()
			}
		}
		if u := canonicalURL(href); u != "" && IsSocialURL(u) {
			links = append(links, u)
		}
	})

	e.logger.Debug("Link page explored",
		zap.String("url", pageURL),
		zap.Int("social_links", len(links)),
	)
	return MergeSocialLinks(nil, links), nil
}
