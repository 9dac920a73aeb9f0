package scrape

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
)

// JobStatus is the lifecycle state of a provider job.
type JobStatus string

const (
	JobStatusReady     JobStatus = "READY"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusAborted   JobStatus = "ABORTED"
	JobStatusTimedOut  JobStatus = "TIMED-OUT"
)

func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether polling can stop.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusAborted, JobStatusTimedOut:
		return true
	default:
		return false
	}
}

// Provider is the external batch scraping service.
type Provider interface {
	Submit(ctx context.Context, usernames []string, resultsPerUser int) (jobID string, err error)
	Poll(ctx context.Context, jobID string) (JobStatus, error)
	Fetch(ctx context.Context, jobID string) ([]RawItem, error)
}

// RawItem is one dataset row: a video plus the channel it belongs to.
// Providers spread profile fields over rows, so any row may carry them.
type RawItem struct {
	Channel             *RawChannel `json:"channel,omitempty"`
	Title               string      `json:"title,omitempty"`
	Views               FlexInt     `json:"views,omitempty"`
	Bookmarks           FlexInt     `json:"bookmarks,omitempty"`
	UploadedAtFormatted string      `json:"uploadedAtFormatted,omitempty"`
	UploadedAt          FlexInt     `json:"uploadedAt,omitempty"`
	Video               *RawVideo   `json:"video,omitempty"`
}

type RawChannel struct {
	Username       string   `json:"username,omitempty"`
	URL            string   `json:"url,omitempty"`
	Bio            string   `json:"bio,omitempty"`
	Followers      FlexInt  `json:"followers,omitempty"`
	Avatar         string   `json:"avatar,omitempty"`
	ProfilePicture string   `json:"profilePicture,omitempty"`
	Email          string   `json:"email,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	BioLink        string   `json:"bioLink,omitempty"`
	Links          []string `json:"links,omitempty"`
}

type RawVideo struct {
	Cover string `json:"cover,omitempty"`
	URL   string `json:"url,omitempty"`
}

// FlexInt accepts numbers, numeric strings and null.
type FlexInt struct {
	Value int64
	Valid bool
}

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = FlexInt{}
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = FlexInt{Value: n, Valid: true}
		return nil
	}
	var fl float64
	if err := json.Unmarshal([]byte(s), &fl); err != nil {
		// Unparseable counters are treated as absent.
		*f = FlexInt{}
		return nil
	}
	*f = FlexInt{Value: int64(fl), Valid: true}
	return nil
}

func (f FlexInt) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(f.Value, 10)), nil
}

// Ptr returns nil when the value is absent.
func (f FlexInt) Ptr() *int64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}
