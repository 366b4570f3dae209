package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"

	"github.com/pulseboard/device-service/internal/identity"
	"github.com/pulseboard/device-service/internal/models"
	"github.com/pulseboard/device-service/internal/service"
)

// SignatureHeader carries the hex HMAC digest of the decoded request body.
const SignatureHeader = "X-Envelope-Signature"

// maxEnvelopeSize bounds the base64 body read from a device.
const maxEnvelopeSize = 1 << 20

type ingestFunc func(ctx context.Context, payload []byte, signature string) (*models.Device, error)

// TelemetryHandler handles signed track and diag submissions.
type TelemetryHandler struct {
	telemetry *service.TelemetryService
}

func NewTelemetryHandler(ts *service.TelemetryService) *TelemetryHandler {
	return &TelemetryHandler{telemetry: ts}
}

func (h *TelemetryHandler) SubmitTrack(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, h.telemetry.IngestTrack)
}

func (h *TelemetryHandler) SubmitDiag(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, h.telemetry.IngestDiag)
}

func (h *TelemetryHandler) submit(w http.ResponseWriter, r *http.Request, ingest ingestFunc) {
	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		writeJSONError(w, http.StatusBadRequest, "missing signature header")
		return
	}

	payload, ok := decodeEnvelopeBody(w, r)
	if !ok {
		return
	}

	dev, err := ingest(r.Context(), payload, signature)
	if err != nil {
		writeIngestError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_key": dev.DeviceKey,
		"updated_at": dev.UpdatedAt,
	})
}

// decodeEnvelopeBody reads the base64 body and returns the raw payload
// bytes the signature was computed over.
func decodeEnvelopeBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	encoded, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeSize))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "unreadable request body")
		return nil, false
	}
	payload, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "request body is not valid base64")
		return nil, false
	}
	return payload, true
}

func writeIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrBadSignature):
		writeJSONError(w, http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, identity.ErrMalformedMAC):
		writeJSONError(w, http.StatusUnprocessableEntity, "invalid device identity")
	case errors.Is(err, service.ErrInvalidPayload):
		writeJSONError(w, http.StatusBadRequest, "invalid payload")
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}
