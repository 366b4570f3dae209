package handler

import (
	"net/http"

	"github.com/pulseboard/device-service/internal/middleware"
	"github.com/pulseboard/device-service/internal/service"
)

// SessionHandler issues, introspects and revokes device session tokens.
type SessionHandler struct {
	sessions *service.SessionService
}

func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Open exchanges a signed device envelope for a bearer token.
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		writeJSONError(w, http.StatusBadRequest, "missing signature header")
		return
	}

	payload, ok := decodeEnvelopeBody(w, r)
	if !ok {
		return
	}

	token, rec, err := h.sessions.Open(r.Context(), payload, signature)
	if err != nil {
		writeIngestError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"device_key":   rec.DeviceKey,
		"expires_at":   rec.ExpiresAt,
	})
}

// Info returns the claims of the authenticated session.
func (h *SessionHandler) Info(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "no active session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token_id":   claims.TokenID,
		"device_key": claims.DeviceKey,
		"issued_at":  claims.IssuedAt,
		"expires_at": claims.ExpiresAt,
	})
}

// Revoke invalidates the authenticated session.
func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "no active session")
		return
	}

	if err := h.sessions.Revoke(r.Context(), claims); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to revoke session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "session revoked"})
}
