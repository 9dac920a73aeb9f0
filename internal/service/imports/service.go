// Package imports manages CSV intake, the save phase that moves media to
// durable storage, and import deletion.
package imports

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/constants"
	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/metrics"
	"github.com/kapu/outreach-pipeline-go/internal/service/media"
	"github.com/kapu/outreach-pipeline-go/pkg/errors"
)

type Store interface {
	CreateImport(ctx context.Context, imp *domain.Import) error
	GetImport(ctx context.Context, id string) (*domain.Import, error)
	UpdateImportStatus(ctx context.Context, id string, status domain.ImportStatus, errorMessage *string) error
	TransitionImportStatus(ctx context.Context, id string, from, to domain.ImportStatus) (bool, error)
	UpdateSaveProgress(ctx context.Context, id string, done, total int) error
	ListDraftIDsBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	DeleteWithData(ctx context.Context, ids []string) (int, error)
}

type InfluencerStore interface {
	VideoCounts(ctx context.Context, usernames []string) (map[string]int, error)
	ListByImport(ctx context.Context, importID string) ([]*domain.Influencer, error)
	UpdateAvatarURL(ctx context.Context, influencerID, url string) error
	UpdateThumbnailURL(ctx context.Context, videoID, url string) error
}

// MediaCache is satisfied by *media.Cache.
type MediaCache interface {
	Store(ctx context.Context, sourceURL, importID string, kind media.Kind, username string) (string, error)
	DeleteImport(ctx context.Context, importID string) (deleted, failed int, err error)
}

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// CreateRequest is one CSV upload.
type CreateRequest struct {
	Filename      string
	Data          []byte
	UsernameLimit int
	VideoCount    int
}

// Intake is the result of an upload: the new import and its scrape plan.
type Intake struct {
	Import      *domain.Import    `json:"import"`
	UniqueCount int               `json:"unique_count"`
	FinalCount  int               `json:"final_count"`
	Usernames   []string          `json:"usernames"`
	Plan        domain.ScrapePlan `json:"plan"`
}

type SaveStatus struct {
	Status       domain.ImportStatus `json:"status"`
	SaveProgress int                 `json:"save_progress"`
	SaveTotal    int                 `json:"save_total"`
	ErrorMessage *string             `json:"error_message,omitempty"`
}

type SaveResult struct {
	Cached int `json:"cached"`
	Failed int `json:"failed"`
}

type DeleteResult struct {
	DeletedInfluencers int `json:"deleted_influencers"`
	DeletedMediaFiles  int `json:"deleted_media_files"`
	FailedMediaDeletes int `json:"failed_media_deletes"`
}

type Service struct {
	imports     Store
	influencers InfluencerStore
	media       MediaCache
	notifier    Notifier
	logger      *zap.Logger
	now         func() time.Time
}

// NewService builds the service. mediaCache may be nil when storage is not
// configured; saving then only flips the status.
func NewService(imports Store, influencers InfluencerStore, mediaCache MediaCache, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{
		imports:     imports,
		influencers: influencers,
		media:       mediaCache,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateImport parses the upload, records a PENDING import and plans the
// scrape against what is already stored.
func (s *Service) CreateImport(ctx context.Context, req CreateRequest) (*Intake, error) {
	if !strings.EqualFold(filepath.Ext(req.Filename), ".csv") {
		return nil, errors.NewValidationError("Only CSV files are accepted", "file", req.Filename)
	}

	videoCount := req.VideoCount
	switch {
	case videoCount <= 0:
		videoCount = constants.ScrapeConfig.DefaultVideoCount
	case videoCount > constants.ScrapeConfig.MaxVideoCount:
		videoCount = constants.ScrapeConfig.MaxVideoCount
	}
	limit := req.UsernameLimit
	if limit <= 0 {
		limit = -1
	}

	parsed, err := ParseUsernames(req.Data, limit)
	if err != nil {
		return nil, err
	}

	counts, err := s.influencers.VideoCounts(ctx, parsed.Usernames)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored video counts: %w", err)
	}

	imp := &domain.Import{
		ID:             uuid.NewString(),
		SourceFilename: req.Filename,
		RowCount:       parsed.RowCount,
		Status:         domain.ImportStatusPending,
		UsernameLimit:  limit,
		VideoCount:     videoCount,
	}
	if err := s.imports.CreateImport(ctx, imp); err != nil {
		return nil, err
	}

	s.logger.Info("Import created",
		zap.String("import_id", imp.ID),
		zap.String("filename", imp.SourceFilename),
		zap.Int("rows", parsed.RowCount),
		zap.Int("usernames", len(parsed.Usernames)),
	)

	return &Intake{
		Import:      imp,
		UniqueCount: len(parsed.Unique),
		FinalCount:  len(parsed.Usernames),
		Usernames:   parsed.Usernames,
		Plan:        BuildPlan(parsed.Usernames, counts, videoCount),
	}, nil
}

// BuildPlan sorts usernames into unknown, under-filled and satisfied sets.
func BuildPlan(usernames []string, storedVideos map[string]int, videoCount int) domain.ScrapePlan {
	plan := domain.ScrapePlan{
		ToScrape:   []string{},
		ToRescrape: []string{},
		Skipped:    []string{},
	}
	for _, u := range usernames {
		count, known := storedVideos[u]
		switch {
		case !known:
			plan.ToScrape = append(plan.ToScrape, u)
		case count < videoCount:
			plan.ToRescrape = append(plan.ToRescrape, u)
		default:
			plan.Skipped = append(plan.Skipped, u)
		}
	}
	return plan
}

// GetImport returns the import with its influencers and their videos.
func (s *Service) GetImport(ctx context.Context, id string) (*domain.Import, error) {
	imp, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	influencers, err := s.influencers.ListByImport(ctx, id)
	if err != nil {
		return nil, err
	}
	imp.Influencers = influencers
	return imp, nil
}

func (s *Service) GetSaveStatus(ctx context.Context, id string) (*SaveStatus, error) {
	imp, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	return &SaveStatus{
		Status:       imp.Status,
		SaveProgress: imp.SaveProgress,
		SaveTotal:    imp.SaveTotal,
		ErrorMessage: imp.ErrorMessage,
	}, nil
}

type mediaTask struct {
	kind        media.Kind
	ownerID     string
	username    string
	sourceURL   string
	isThumbnail bool
}

// SaveImport moves a DRAFT import to COMPLETED, caching its avatars and
// thumbnails first. Per-item cache failures are counted, not fatal; any
// other failure returns the import to DRAFT. A save that loses the race for
// the DRAFT row is a ConflictError.
func (s *Service) SaveImport(ctx context.Context, id string) (*SaveResult, error) {
	imp, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if imp.Status != domain.ImportStatusDraft {
		return nil, errors.NewValidationError(fmt.Sprintf("Import is already %s", imp.Status), "status", imp.Status.String())
	}

	claimed, err := s.imports.TransitionImportStatus(ctx, id, domain.ImportStatusDraft, domain.ImportStatusProcessing)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, errors.NewConflictError("Import save already in progress", domain.ImportStatusProcessing.String())
	}

	result, err := s.cacheMedia(ctx, imp)
	if err == nil {
		err = s.imports.UpdateImportStatus(ctx, id, domain.ImportStatusCompleted, nil)
	}
	if err != nil {
		msg := err.Error()
		ctx := context.WithoutCancel(ctx)
		if rbErr := s.imports.UpdateImportStatus(ctx, id, domain.ImportStatusDraft, &msg); rbErr != nil {
			s.logger.Error("Failed to restore import to DRAFT", zap.String("import_id", id), zap.Error(rbErr))
		}
		metrics.Metrics.RunsTotal.WithLabelValues("import_save", domain.ImportStatusFailed.String()).Inc()
		s.notify(ctx, domain.Notification{
			Type:     domain.NotificationImportSave,
			Status:   domain.NotificationError,
			Title:    "Import save failed",
			Message:  fmt.Sprintf("%s: %s", imp.SourceFilename, msg),
			ImportID: &imp.ID,
		})
		return nil, fmt.Errorf("failed to save import: %w", err)
	}

	metrics.Metrics.RunsTotal.WithLabelValues("import_save", domain.ImportStatusCompleted.String()).Inc()
	s.notify(ctx, domain.Notification{
		Type:     domain.NotificationImportSave,
		Status:   domain.NotificationSuccess,
		Title:    "Import saved",
		Message:  fmt.Sprintf("%s saved (%d media cached, %d failed)", imp.SourceFilename, result.Cached, result.Failed),
		ImportID: &imp.ID,
	})

	s.logger.Info("Import saved",
		zap.String("import_id", id),
		zap.Int("cached", result.Cached),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *Service) cacheMedia(ctx context.Context, imp *domain.Import) (*SaveResult, error) {
	result := &SaveResult{}
	if s.media == nil {
		return result, nil
	}

	influencers, err := s.influencers.ListByImport(ctx, imp.ID)
	if err != nil {
		return nil, err
	}

	var tasks []mediaTask
	for _, inf := range influencers {
		if inf.AvatarURL != nil && *inf.AvatarURL != "" && !media.IsStoredURL(*inf.AvatarURL) {
			tasks = append(tasks, mediaTask{kind: media.KindAvatar, ownerID: inf.ID, username: inf.Username, sourceURL: *inf.AvatarURL})
		}
		for _, v := range inf.Videos {
			if v.ThumbnailURL != nil && *v.ThumbnailURL != "" && !media.IsStoredURL(*v.ThumbnailURL) {
				tasks = append(tasks, mediaTask{kind: media.KindThumbnail, ownerID: v.ID, username: inf.Username, sourceURL: *v.ThumbnailURL, isThumbnail: true})
			}
		}
	}

	total := len(tasks)
	if err := s.imports.UpdateSaveProgress(ctx, imp.ID, 0, total); err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		done int
	)
	p := pool.New().WithContext(ctx).WithMaxGoroutines(constants.ImportConfig.SaveConcurrency)
	for _, task := range tasks {
		p.Go(func(ctx context.Context) error {
			ok := s.cacheOne(ctx, imp.ID, task)

			mu.Lock()
			done++
			if ok {
				result.Cached++
			} else {
				result.Failed++
			}
			current := done
			mu.Unlock()

			if current%10 == 0 && current < total {
				if err := s.imports.UpdateSaveProgress(ctx, imp.ID, current, total); err != nil {
					s.logger.Debug("Failed to update save progress", zap.Error(err))
				}
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.imports.UpdateSaveProgress(ctx, imp.ID, total, total); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) cacheOne(ctx context.Context, importID string, task mediaTask) bool {
	ref, err := s.media.Store(ctx, task.sourceURL, importID, task.kind, task.username)
	if err != nil {
		s.logger.Warn("Media cache failed",
			zap.String("import_id", importID),
			zap.String("kind", string(task.kind)),
			zap.String("username", task.username),
			zap.Error(err),
		)
		return false
	}
	if ref == "" || ref == task.sourceURL {
		return true
	}

	if task.isThumbnail {
		err = s.influencers.UpdateThumbnailURL(ctx, task.ownerID, ref)
	} else {
		err = s.influencers.UpdateAvatarURL(ctx, task.ownerID, ref)
	}
	if err != nil {
		s.logger.Warn("Failed to store cached media url", zap.String("owner_id", task.ownerID), zap.Error(err))
		return false
	}
	return true
}

// DeleteWithData removes the import, its influencers with their videos and
// evaluations, and the import's cached media.
func (s *Service) DeleteWithData(ctx context.Context, id string) (*DeleteResult, error) {
	if _, err := s.mustGet(ctx, id); err != nil {
		return nil, err
	}

	result := &DeleteResult{}
	result.DeletedMediaFiles, result.FailedMediaDeletes = s.deleteMedia(ctx, id)

	deleted, err := s.imports.DeleteWithData(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	result.DeletedInfluencers = deleted
	return result, nil
}

// CleanupDrafts deletes DRAFT imports untouched for longer than the draft TTL.
func (s *Service) CleanupDrafts(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-constants.ImportConfig.DraftTTL)
	ids, err := s.imports.ListDraftIDsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	for _, id := range ids {
		s.deleteMedia(ctx, id)
	}
	if _, err := s.imports.DeleteWithData(ctx, ids); err != nil {
		return 0, err
	}

	s.logger.Info("Stale drafts cleaned up", zap.Int("deleted", len(ids)))
	return len(ids), nil
}

func (s *Service) deleteMedia(ctx context.Context, importID string) (deleted, failed int) {
	if s.media == nil {
		return 0, 0
	}
	deleted, failed, err := s.media.DeleteImport(ctx, importID)
	if err != nil {
		s.logger.Warn("Failed to delete import media", zap.String("import_id", importID), zap.Error(err))
	}
	return deleted, failed
}

func (s *Service) mustGet(ctx context.Context, id string) (*domain.Import, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.NewValidationError("import id is required", "id", id)
	}
	imp, err := s.imports.GetImport(ctx, id)
	if err != nil {
		return nil, err
	}
	if imp == nil {
		return nil, errors.NewNotFoundError("import", id)
	}
	return imp, nil
}

func (s *Service) notify(ctx context.Context, n domain.Notification) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, n)
	}
}
