package progress

import "github.com/kapu/outreach-pipeline-go/internal/domain"

// Emitter is an ordered, append-only progress channel. Push must not block
// on slow or absent consumers.
type Emitter interface {
	Push(ev domain.ProgressEvent)
	Close()
}

// Discard drops every event.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Push(domain.ProgressEvent) {}
func (discard) Close()                    {}

// Recorder keeps events in memory. Useful for synchronous callers and tests.
type Recorder struct {
	Events []domain.ProgressEvent
	Closed bool
}

func (r *Recorder) Push(ev domain.ProgressEvent) {
	r.Events = append(r.Events, ev)
}

func (r *Recorder) Close() {
	r.Closed = true
}

// ScrapeChannel and RunChannel name the broker channels of the two long-running jobs.
func ScrapeChannel(importID string) string {
	return "scrape:" + importID
}

func RunChannel(runID string) string {
	return "run:" + runID
}
