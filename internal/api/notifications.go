package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type markReadRequest struct {
	Read *bool `json:"read"`
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	unreadOnly := q.Get("unreadOnly") == "true"

	list, unread, err := h.deps.Notifications.List(r.Context(), limit, unreadOnly)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": list,
		"unreadCount":   unread,
	})
}

// markNotificationRead defaults to read=true when the body is empty.
func (h *Handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	read := true
	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Read != nil {
		read = *req.Read
	}

	if err := h.deps.Notifications.MarkRead(r.Context(), chi.URLParam(r, "id"), read); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true, "read": read})
}

func (h *Handler) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Notifications.MarkAllRead(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (h *Handler) deleteNotifications(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Notifications.DeleteAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}
