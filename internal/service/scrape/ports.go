package scrape

import (
	"context"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/progress"
)

type ImportStore interface {
	GetImport(ctx context.Context, id string) (*domain.Import, error)
	UpdateImportStatus(ctx context.Context, id string, status domain.ImportStatus, errorMessage *string) error
	SetProcessedCount(ctx context.Context, id string, processed int) error
}

// InfluencerStore persists scrape output. SaveScraped upserts by username and
// applies mode to the influencer's videos inside one transaction.
type InfluencerStore interface {
	PurgeUsernames(ctx context.Context, usernames []string) (int, error)
	LinkUsernames(ctx context.Context, importID, sourceFilename string, usernames []string) (int, error)
	SaveScraped(ctx context.Context, inf *domain.Influencer, mode VideoMode, videoLimit int) error
}

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

type ProgressOpener interface {
	Open(channel string) progress.Emitter
}
