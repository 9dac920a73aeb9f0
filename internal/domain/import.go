package domain

import "time"

type ImportStatus string

const (
	ImportStatusPending    ImportStatus = "PENDING"
	ImportStatusProcessing ImportStatus = "PROCESSING"
	ImportStatusDraft      ImportStatus = "DRAFT"
	ImportStatusCompleted  ImportStatus = "COMPLETED"
	ImportStatusFailed     ImportStatus = "FAILED"
)

func (s ImportStatus) String() string {
	return string(s)
}

func (s ImportStatus) IsValid() bool {
	switch s {
	case ImportStatusPending, ImportStatusProcessing, ImportStatusDraft,
		ImportStatusCompleted, ImportStatusFailed:
		return true
	default:
		return false
	}
}

// CanStartScrape reports whether a scrape may be started from this status.
func (s ImportStatus) CanStartScrape() bool {
	return s == ImportStatusPending || s == ImportStatusDraft
}

// Import is one CSV ingestion batch.
type Import struct {
	ID             string       `json:"id"`
	SourceFilename string       `json:"source_filename"`
	RowCount       int          `json:"row_count"`
	ProcessedCount int          `json:"processed_count"`
	Status         ImportStatus `json:"status"`
	UsernameLimit  int          `json:"username_limit"`
	VideoCount     int          `json:"video_count"`
	SaveProgress   int          `json:"save_progress"`
	SaveTotal      int          `json:"save_total"`
	ErrorMessage   *string      `json:"error_message,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`

	Influencers []*Influencer `json:"influencers,omitempty"`
}

// ScrapePlan partitions an import's usernames into three disjoint sets.
type ScrapePlan struct {
	ToScrape   []string `json:"toScrape"`
	ToRescrape []string `json:"toRescrape"`
	Skipped    []string `json:"skipped"`
}

// All returns every username of the plan, scrape targets first.
func (p ScrapePlan) All() []string {
	all := make([]string, 0, len(p.ToScrape)+len(p.ToRescrape)+len(p.Skipped))
	all = append(all, p.ToScrape...)
	all = append(all, p.ToRescrape...)
	all = append(all, p.Skipped...)
	return all
}

// Work returns the usernames that need the scraping provider.
func (p ScrapePlan) Work() []string {
	work := make([]string, 0, len(p.ToScrape)+len(p.ToRescrape))
	work = append(work, p.ToScrape...)
	work = append(work, p.ToRescrape...)
	return work
}
