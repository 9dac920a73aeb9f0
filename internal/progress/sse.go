package progress

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
)

// SSEWriter streams progress events as text/event-stream.
type SSEWriter struct {
	w         http.ResponseWriter
	rc        *http.ResponseController
	heartbeat time.Duration
}

// NewSSEWriter sets the stream headers and flushes them.
func NewSSEWriter(w http.ResponseWriter, heartbeat time.Duration) (*SSEWriter, error) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("streaming not supported: %w", err)
	}
	return &SSEWriter{w: w, rc: rc, heartbeat: heartbeat}, nil
}

// Send writes one event as `event: <type>` plus `data: <json>`.
func (s *SSEWriter) Send(ev domain.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *SSEWriter) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Stream writes the replay and then live events until the subscription ends
// or done fires. A write error means the client went away; the job keeps running.
func (s *SSEWriter) Stream(done <-chan struct{}, sub *Subscription) error {
	for _, ev := range sub.Replay {
		if err := s.Send(ev); err != nil {
			return err
		}
	}

	var tick <-chan time.Time
	if s.heartbeat > 0 {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := s.Send(ev); err != nil {
				return err
			}
		case <-tick:
			if err := s.comment("keep-alive"); err != nil {
				return err
			}
		case <-done:
			return nil
		}
	}
}
