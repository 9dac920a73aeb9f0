package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/progress"
	"github.com/kapu/outreach-pipeline-go/internal/service/scrape"
)

// startScrape starts the scrape and streams its progress as SSE. The scrape
// runs detached from the request, so a client disconnect only ends the
// stream. With ?stream=false it answers 202 with the channel name instead.
func (h *Handler) startScrape(w http.ResponseWriter, r *http.Request) {
	var req scrape.Request
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	channel, err := h.deps.Scrape.Start(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("stream") == "false" {
		writeJSON(w, http.StatusAccepted, map[string]string{"channel": channel})
		return
	}
	h.stream(w, r, channel)
}

// streamProgress replays and follows any progress channel as SSE.
func (h *Handler) streamProgress(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, chi.URLParam(r, "channel"))
}

func (h *Handler) progressWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.deps.WebSocket == nil {
		http.NotFound(w, r)
		return
	}
	h.deps.WebSocket.Serve(w, r, chi.URLParam(r, "channel"))
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, channel string) {
	sub, err := h.deps.Broker.Subscribe(r.Context(), channel)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer sub.Cancel()

	sse, err := progress.NewSSEWriter(w, h.sseHeartbeat)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := sse.Stream(r.Context().Done(), sub); err != nil {
		h.logger.Debug("Progress stream ended early",
			zap.String("channel", channel),
			zap.Error(err),
		)
	}
}
