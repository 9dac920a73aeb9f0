package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kapu/outreach-pipeline-go/internal/constants"
	"github.com/kapu/outreach-pipeline-go/internal/service/imports"
	apperrors "github.com/kapu/outreach-pipeline-go/pkg/errors"
)

// createImport accepts multipart form fields file, usernameLimit and videoCount.
func (h *Handler) createImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.ImportConfig.MaxUploadBytes)
	if err := r.ParseMultipartForm(constants.ImportConfig.MaxUploadBytes); err != nil {
		h.writeError(w, r, apperrors.NewValidationError("invalid multipart form", "file", nil))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, apperrors.NewValidationError("No file uploaded", "file", nil))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, r, apperrors.NewValidationError("failed to read upload", "file", nil))
		return
	}

	intake, err := h.deps.Imports.CreateImport(r.Context(), imports.CreateRequest{
		Filename:      header.Filename,
		Data:          data,
		UsernameLimit: formInt(r, "usernameLimit", -1),
		VideoCount:    formInt(r, "videoCount", constants.ScrapeConfig.DefaultVideoCount),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, intake)
}

func (h *Handler) getImport(w http.ResponseWriter, r *http.Request) {
	imp, err := h.deps.Imports.GetImport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, imp)
}

func (h *Handler) saveStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.Imports.GetSaveStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// saveImport keeps running when the client disconnects so the import never
// stays PROCESSING.
func (h *Handler) saveImport(w http.ResponseWriter, r *http.Request) {
	result, err := h.deps.Imports.SaveImport(context.WithoutCancel(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  "COMPLETED",
		"cached":  result.Cached,
		"failed":  result.Failed,
	})
}

func (h *Handler) deleteImportData(w http.ResponseWriter, r *http.Request) {
	result, err := h.deps.Imports.DeleteWithData(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) cleanupDrafts(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Imports.CleanupDrafts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func formInt(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
