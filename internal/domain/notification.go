package domain

import "time"

type NotificationType string

const (
	NotificationImportSave NotificationType = "import_save"
	NotificationAIFilter   NotificationType = "ai_filter"
	NotificationScrape     NotificationType = "scrape"
)

type NotificationStatus string

const (
	NotificationSuccess NotificationStatus = "success"
	NotificationError   NotificationStatus = "error"
	NotificationInfo    NotificationStatus = "info"
)

type Notification struct {
	ID        string             `json:"id"`
	Type      NotificationType   `json:"type"`
	Status    NotificationStatus `json:"status"`
	Title     string             `json:"title"`
	Message   string             `json:"message"`
	ImportID  *string            `json:"import_id,omitempty"`
	RunID     *string            `json:"run_id,omitempty"`
	Read      bool               `json:"read"`
	CreatedAt time.Time          `json:"created_at"`
}
