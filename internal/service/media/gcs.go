package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/kapu/outreach-pipeline-go/internal/config"
)

const cacheControl = "public, max-age=31536000, immutable"

// GCSObjectStore is an ObjectStore backed by the Cloud Storage JSON API.
type GCSObjectStore struct {
	service *storage.Service
	logger  *zap.Logger
}

// NewGCSObjectStore authenticates with the configured service account JSON,
// then the credentials file, then application default credentials.
func NewGCSObjectStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*GCSObjectStore, error) {
	var opts []option.ClientOption

	credsJSON := []byte(cfg.CredentialsJSON)
	if len(credsJSON) == 0 && cfg.CredentialsFile != "" {
		path := cfg.CredentialsFile
		if !filepath.IsAbs(path) {
			if wd, err := os.Getwd(); err == nil {
				path = filepath.Join(wd, path)
			}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read GCS credentials file: %w", err)
		}
		credsJSON = data
	}

	if len(credsJSON) > 0 {
		creds, err := google.CredentialsFromJSON(ctx, credsJSON, storage.DevstorageReadWriteScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse GCS credentials: %w", err)
		}
		opts = append(opts, option.WithTokenSource(creds.TokenSource))
	}

	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}

	logger.Info("GCS media store initialized", zap.String("bucket", cfg.Bucket))
	return &GCSObjectStore{service: svc, logger: logger}, nil
}

func (s *GCSObjectStore) Exists(ctx context.Context, bucket, name string) (bool, error) {
	_, err := s.service.Objects.Get(bucket, name).Context(ctx).Do()
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}

func (s *GCSObjectStore) Put(ctx context.Context, bucket, name, contentType string, body []byte) error {
	obj := &storage.Object{
		Name:         name,
		ContentType:  contentType,
		CacheControl: cacheControl,
	}
	_, err := s.service.Objects.Insert(bucket, obj).
		Media(bytes.NewReader(body), googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// Get returns nil when the object does not exist.
func (s *GCSObjectStore) Get(ctx context.Context, bucket, name string) (*Object, error) {
	meta, err := s.service.Objects.Get(bucket, name).Context(ctx).Do()
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}

	resp, err := s.service.Objects.Get(bucket, name).Context(ctx).Download()
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download object: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}

	contentType := meta.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return &Object{Body: body, ContentType: contentType}, nil
}

func (s *GCSObjectStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var names []string
	err := s.service.Objects.List(bucket).Prefix(prefix).Pages(ctx, func(page *storage.Objects) error {
		for _, item := range page.Items {
			names = append(names, item.Name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	return names, nil
}

// Delete ignores objects that are already gone.
func (s *GCSObjectStore) Delete(ctx context.Context, bucket, name string) error {
	err := s.service.Objects.Delete(bucket, name).Context(ctx).Do()
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
