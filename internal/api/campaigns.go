package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kapu/outreach-pipeline-go/internal/service/campaign"
)

type createCampaignRequest struct {
	Name              string   `json:"name" validate:"required,max=200"`
	Notes             *string  `json:"notes,omitempty"`
	StrictnessDefault *int     `json:"strictnessDefault,omitempty" validate:"omitempty,min=0,max=100"`
	TargetKeywords    []string `json:"targetKeywords,omitempty"`
	AvoidKeywords     []string `json:"avoidKeywords,omitempty"`
}

func (h *Handler) listCampaigns(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Campaigns.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) createCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	c, err := h.deps.Campaigns.Create(r.Context(), campaign.CreateInput{
		Name:              req.Name,
		Notes:             req.Notes,
		StrictnessDefault: req.StrictnessDefault,
		TargetKeywords:    req.TargetKeywords,
		AvoidKeywords:     req.AvoidKeywords,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) getCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
