package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/service/filter"
	apperrors "github.com/kapu/outreach-pipeline-go/pkg/errors"
)

type bucketRequest struct {
	Bucket domain.Bucket `json:"bucket" validate:"required,oneof=APPROVED OKISH REJECTED"`
}

func (h *Handler) startFilter(w http.ResponseWriter, r *http.Request) {
	var req filter.RunRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	runID, err := h.deps.Filter.StartRun(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID})
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	runs, err := h.deps.RunList.ListRuns(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.deps.Runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) getRunStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.Runs.GetRunStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) reviewRun(w http.ResponseWriter, r *http.Request) {
	var decision filter.ReviewDecision
	if err := h.decodeJSON(r, &decision); err != nil {
		h.writeError(w, r, err)
		return
	}

	counters, err := h.deps.Review.ApplyReviewDecision(r.Context(), chi.URLParam(r, "id"), decision)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "counters": counters})
}

func (h *Handler) saveBucket(w http.ResponseWriter, r *http.Request) {
	var req bucketRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	n, err := h.deps.Review.SaveBucket(r.Context(), chi.URLParam(r, "id"), req.Bucket)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"saved": n})
}

// discardBucket reads the bucket from ?bucket= or, failing that, the JSON body.
func (h *Handler) discardBucket(w http.ResponseWriter, r *http.Request) {
	req := bucketRequest{Bucket: domain.Bucket(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("bucket"))))}
	if req.Bucket == "" && r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, r, apperrors.NewValidationError("bucket is required", "bucket", nil))
			return
		}
	}
	if err := h.validator.Validate(&req); err != nil {
		h.writeError(w, r, err)
		return
	}

	n, err := h.deps.Review.DiscardBucket(r.Context(), chi.URLParam(r, "id"), req.Bucket)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (h *Handler) listQueue(w http.ResponseWriter, r *http.Request) {
	saved, err := h.deps.Review.ListSaved(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) removeFromQueue(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Review.RemoveFromQueue(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
