// Package media copies remote profile images into durable object storage so
// saved imports stop depending on expiring CDN links.
package media

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/constants"
	"github.com/kapu/outreach-pipeline-go/internal/metrics"
)

const urlScheme = "gcs://"

// Kind is the media folder under an import.
type Kind string

const (
	KindAvatar    Kind = "avatars"
	KindThumbnail Kind = "thumbnails"
)

type Object struct {
	Body        []byte
	ContentType string
}

// ObjectStore is the bucket-level storage surface used by Cache.
type ObjectStore interface {
	Exists(ctx context.Context, bucket, name string) (bool, error)
	Put(ctx context.Context, bucket, name, contentType string, body []byte) error
	Get(ctx context.Context, bucket, name string) (*Object, error)
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Delete(ctx context.Context, bucket, name string) error
}

// Cache stores remote images under imports/{import}/{kind}/{user}/{hash}.{ext}
// and hands back gcs://bucket/path references.
type Cache struct {
	store      ObjectStore
	bucket     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewCache(store ObjectStore, bucket string, httpClient *http.Client, logger *zap.Logger) *Cache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.MediaConfig.FetchTimeout}
	}
	return &Cache{
		store:      store,
		bucket:     bucket,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Store copies sourceURL into the bucket and returns the durable reference.
// Empty sources return "", and gcs:// sources are returned unchanged.
func (c *Cache) Store(ctx context.Context, sourceURL, importID string, kind Kind, username string) (string, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return "", nil
	}
	if IsStoredURL(sourceURL) {
		metrics.Metrics.MediaCached.WithLabelValues("skipped").Inc()
		return sourceURL, nil
	}

	img, err := c.fetch(ctx, sourceURL)
	if err != nil {
		metrics.Metrics.MediaCached.WithLabelValues("failed").Inc()
		return "", err
	}

	name := ObjectPath(importID, kind, username, sourceURL, img.ContentType)
	exists, err := c.store.Exists(ctx, c.bucket, name)
	if err != nil {
		metrics.Metrics.MediaCached.WithLabelValues("failed").Inc()
		return "", err
	}
	if !exists {
		if err := c.store.Put(ctx, c.bucket, name, img.ContentType, img.Body); err != nil {
			metrics.Metrics.MediaCached.WithLabelValues("failed").Inc()
			return "", err
		}
	}

	metrics.Metrics.MediaCached.WithLabelValues("stored").Inc()
	return urlScheme + c.bucket + "/" + name, nil
}

// Read returns nil for references that are malformed or missing.
func (c *Cache) Read(ctx context.Context, ref string) (*Object, error) {
	bucket, name, ok := ParseStoredURL(ref)
	if !ok {
		return nil, nil
	}
	return c.store.Get(ctx, bucket, name)
}

// DeleteImport removes every object under the import's prefix.
func (c *Cache) DeleteImport(ctx context.Context, importID string) (deleted, failed int, err error) {
	names, err := c.store.List(ctx, c.bucket, "imports/"+importID+"/")
	if err != nil {
		return 0, 0, err
	}
	if len(names) == 0 {
		return 0, 0, nil
	}

	p := pool.NewWithResults[bool]().WithContext(ctx).WithMaxGoroutines(constants.ImportConfig.SaveConcurrency)
	for _, name := range names {
		p.Go(func(ctx context.Context) (bool, error) {
			if err := c.store.Delete(ctx, c.bucket, name); err != nil {
				c.logger.Warn("Failed to delete media object", zap.String("object", name), zap.Error(err))
				return false, nil
			}
			return true, nil
		})
	}
	results, _ := p.Wait()
	for _, ok := range results {
		if ok {
			deleted++
		}
	}
	return deleted, len(names) - deleted, nil
}

var heicExt = regexp.MustCompile(`(?i)\.heic(\?|$)`)
var heicFormat = regexp.MustCompile(`(?i)format=heic`)

// candidateURLs lists JPEG/WEBP variants for HEIC links, which browsers
// cannot render.
func candidateURLs(raw string) []string {
	out := []string{raw}
	seen := map[string]struct{}{raw: {}}
	add := func(u string) {
		if _, ok := seen[u]; !ok {
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	if strings.Contains(strings.ToLower(raw), ".heic") {
		for _, ext := range []string{".jpeg", ".jpg", ".webp"} {
			add(heicExt.ReplaceAllString(raw, ext+"$1"))
		}
	}
	if heicFormat.MatchString(raw) {
		add(heicFormat.ReplaceAllString(raw, "format=jpeg"))
		add(heicFormat.ReplaceAllString(raw, "format=webp"))
	}
	return out
}

func (c *Cache) fetch(ctx context.Context, sourceURL string) (*Object, error) {
	var lastErr error
	for _, candidate := range candidateURLs(sourceURL) {
		img, err := c.fetchOne(ctx, candidate)
		if err != nil {
			lastErr = err
			continue
		}
		return img, nil
	}
	return nil, fmt.Errorf("failed to fetch media %s: %w", sourceURL, lastErr)
}

func (c *Cache) fetchOne(ctx context.Context, url string) (*Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", constants.MediaConfig.UserAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Referer", constants.MediaConfig.Referer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "heic") || strings.Contains(strings.ToLower(url), ".heic") {
		return nil, fmt.Errorf("unsupported heic image")
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, constants.MediaConfig.MaxBytes))
	if err != nil {
		return nil, err
	}
	return &Object{Body: body, ContentType: contentType}, nil
}

// ObjectPath builds the deterministic object name for a source URL.
func ObjectPath(importID string, kind Kind, username, sourceURL, contentType string) string {
	sum := sha1.Sum([]byte(sourceURL))
	return fmt.Sprintf("imports/%s/%s/%s/%s.%s",
		importID, kind, sanitizeSegment(username), hex.EncodeToString(sum[:])[:16], extensionFor(contentType))
}

var unsafeSegment = regexp.MustCompile(`[^a-z0-9_-]`)

func sanitizeSegment(v string) string {
	s := unsafeSegment.ReplaceAllString(strings.ToLower(v), "-")
	if len(s) > 64 {
		s = s[:64]
	}
	if s == "" {
		return "unknown"
	}
	return s
}

func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return "png"
	case strings.Contains(contentType, "webp"):
		return "webp"
	default:
		return "jpg"
	}
}

func IsStoredURL(u string) bool {
	return strings.HasPrefix(u, urlScheme)
}

// ParseStoredURL splits gcs://bucket/path.
func ParseStoredURL(u string) (bucket, name string, ok bool) {
	if !IsStoredURL(u) {
		return "", "", false
	}
	rest := strings.TrimPrefix(u, urlScheme)
	slash := strings.Index(rest, "/")
	if slash <= 0 || slash == len(rest)-1 {
		return "", "", false
	}
	return rest[:slash], rest[slash+1:], true
}
