package domain

// ProgressEventType discriminates progress stream payloads.
type ProgressEventType string

const (
	ProgressEventProgress ProgressEventType = "progress"
	ProgressEventComplete ProgressEventType = "complete"
	ProgressEventError    ProgressEventType = "error"
)

func (t ProgressEventType) IsTerminal() bool {
	return t == ProgressEventComplete || t == ProgressEventError
}

// ProgressEvent is one entry of an ordered progress stream.
type ProgressEvent struct {
	Type      ProgressEventType `json:"type"`
	Processed int               `json:"processed,omitempty"`
	Total     int               `json:"total,omitempty"`
	Username  string            `json:"username,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func NewProgressEvent(processed, total int, username string) ProgressEvent {
	return ProgressEvent{Type: ProgressEventProgress, Processed: processed, Total: total, Username: username}
}

func NewCompleteEvent(total int) ProgressEvent {
	return ProgressEvent{Type: ProgressEventComplete, Processed: total, Total: total}
}

func NewErrorEvent(msg string) ProgressEvent {
	return ProgressEvent{Type: ProgressEventError, Error: msg}
}
