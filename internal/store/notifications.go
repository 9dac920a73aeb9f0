package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/service/database"
	"github.com/kapu/outreach-pipeline-go/pkg/errors"
)

type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewNotificationRepository(postgres *database.PostgresService, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     postgres.GetDB(),
		logger: logger,
	}
}

func (r *NotificationRepository) InsertNotification(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (id, type, status, title, message, import_id, run_id, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, NOW())
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		n.ID, string(n.Type), string(n.Status), n.Title, n.Message, n.ImportID, n.RunID,
	).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns the newest notifications and the total unread count.
func (r *NotificationRepository) ListNotifications(ctx context.Context, limit int, unreadOnly bool) ([]*domain.Notification, int, error) {
	query := `
		SELECT id, type, status, title, message, import_id, run_id, read, created_at
		FROM notifications
		WHERE NOT $2 OR read = FALSE
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit, unreadOnly)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	list := make([]*domain.Notification, 0)
	for rows.Next() {
		var (
			n        domain.Notification
			nType    string
			status   string
			importID sql.NullString
			runID    sql.NullString
		)
		if err := rows.Scan(&n.ID, &nType, &status, &n.Title, &n.Message,
			&importID, &runID, &n.Read, &n.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = domain.NotificationType(nType)
		n.Status = domain.NotificationStatus(status)
		n.ImportID = nullStringPtr(importID)
		n.RunID = nullStringPtr(runID)
		list = append(list, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var unread int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE read = FALSE`).Scan(&unread); err != nil {
		return nil, 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return list, unread, nil
}

func (r *NotificationRepository) SetRead(ctx context.Context, id string, read bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = $2 WHERE id = $1`, id, read)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	if rowsAffected(res) == 0 {
		return errors.NewNotFoundError("notification", id)
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE read = FALSE`)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return rowsAffected(res), nil
}

func (r *NotificationRepository) DeleteAll(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications: %w", err)
	}
	return rowsAffected(res), nil
}
