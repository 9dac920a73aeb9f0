// Package notification records user-facing notifications and fans them out
// over Redis pub/sub.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/constants"
	"github.com/kapu/outreach-pipeline-go/internal/domain"
)

type Store interface {
	InsertNotification(ctx context.Context, n *domain.Notification) error
	ListNotifications(ctx context.Context, limit int, unreadOnly bool) ([]*domain.Notification, int, error)
	SetRead(ctx context.Context, id string, read bool) error
	MarkAllRead(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) (int, error)
}

type Publisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

type Service struct {
	store     Store
	publisher Publisher
	logger    *zap.Logger
}

// NewService builds the service. publisher may be nil.
func NewService(store Store, publisher Publisher, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Notify persists and publishes n. Failures are logged, never returned.
func (s *Service) Notify(ctx context.Context, n domain.Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	if err := s.store.InsertNotification(ctx, &n); err != nil {
		s.logger.Warn("Failed to persist notification",
			zap.String("type", string(n.Type)),
			zap.String("title", n.Title),
			zap.Error(err),
		)
		return
	}

	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, constants.NotificationConfig.Channel, n); err != nil {
		s.logger.Warn("Failed to publish notification",
			zap.String("id", n.ID),
			zap.Error(err),
		)
	}
}

// List clamps limit to (0, MaxLimit], defaulting to DefaultLimit.
func (s *Service) List(ctx context.Context, limit int, unreadOnly bool) ([]*domain.Notification, int, error) {
	switch {
	case limit <= 0:
		limit = constants.NotificationConfig.DefaultLimit
	case limit > constants.NotificationConfig.MaxLimit:
		limit = constants.NotificationConfig.MaxLimit
	}
	return s.store.ListNotifications(ctx, limit, unreadOnly)
}

func (s *Service) MarkRead(ctx context.Context, id string, read bool) error {
	return s.store.SetRead(ctx, id, read)
}

func (s *Service) MarkAllRead(ctx context.Context) (int, error) {
	return s.store.MarkAllRead(ctx)
}

func (s *Service) DeleteAll(ctx context.Context) (int, error) {
	return s.store.DeleteAll(ctx)
}
