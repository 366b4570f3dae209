package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pulseboard/device-service/internal/middleware"
	"github.com/pulseboard/device-service/internal/service"
)

// FeedbackHandler stores user feedback from authenticated sessions.
type FeedbackHandler struct {
	feedback *service.FeedbackService
}

func NewFeedbackHandler(feedback *service.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback}
}

type submitFeedbackRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Contact string `json:"contact"`
}

func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var deviceKey *string
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		deviceKey = &claims.DeviceKey
	}

	fb, err := h.feedback.Submit(r.Context(), deviceKey, req.Subject, req.Body, req.Contact)
	if err != nil {
		if errors.Is(err, service.ErrInvalidFeedback) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to store feedback")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         fb.ID,
		"created_at": fb.CreatedAt,
	})
}
