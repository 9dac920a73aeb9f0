package api

import (
	"net/http"
	"strconv"

	"github.com/kapu/outreach-pipeline-go/internal/service/media"
)

// thumbnail serves a cached gcs:// image referenced by ?url=.
func (h *Handler) thumbnail(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("url")
	if h.deps.Media == nil || !media.IsStoredURL(ref) {
		http.NotFound(w, r)
		return
	}

	obj, err := h.deps.Media.Read(r.Context(), ref)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if obj == nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Body)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Body)
}
