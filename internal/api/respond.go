package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/kapu/outreach-pipeline-go/pkg/errors"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps typed errors to their status; anything unmapped is a 500
// whose detail stays in the log.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.StatusCode(err)
	resp := errorResponse{Error: err.Error(), Code: apperrors.Code(err)}

	var ve *apperrors.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		resp.Error = "internal server error"
	}
	writeJSON(w, status, resp)
}

// decodeJSON decodes the body into dst and validates its tags.
func (h *Handler) decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.NewValidationError("invalid json body", "body", nil)
	}
	return h.validator.Validate(dst)
}
