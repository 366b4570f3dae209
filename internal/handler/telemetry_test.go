package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/device-service/internal/identity"
	"github.com/pulseboard/device-service/internal/models"
	"github.com/pulseboard/device-service/internal/repository"
	"github.com/pulseboard/device-service/internal/service"
)

// memDeviceRepo is a map-backed DeviceRepository for handler tests.
type memDeviceRepo struct {
	mu      sync.Mutex
	devices map[string]*models.Device
}

func newMemDeviceRepo() *memDeviceRepo {
	return &memDeviceRepo{devices: make(map[string]*models.Device)}
}

func (m *memDeviceRepo) GetByKey(_ context.Context, deviceKey string) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceKey]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDeviceRepo) UpsertTrack(_ context.Context, deviceKey, keyScheme, firmware, hardwareRev string, payload json.RawMessage, observedAt time.Time) (*models.Device, error) {
	return m.upsert(deviceKey, keyScheme, firmware, hardwareRev, payload, nil, observedAt)
}

func (m *memDeviceRepo) UpsertDiag(_ context.Context, deviceKey, keyScheme, firmware, hardwareRev string, payload json.RawMessage, observedAt time.Time) (*models.Device, error) {
	return m.upsert(deviceKey, keyScheme, firmware, hardwareRev, nil, payload, observedAt)
}

func (m *memDeviceRepo) upsert(deviceKey, keyScheme, firmware, hardwareRev string, track, diag json.RawMessage, observedAt time.Time) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceKey]
	if !ok {
		d = &models.Device{ID: uuid.NewString(), DeviceKey: deviceKey, CreatedAt: observedAt}
		m.devices[deviceKey] = d
	}
	d.KeyScheme = keyScheme
	d.Firmware = firmware
	d.HardwareRev = hardwareRev
	if track != nil {
		d.TrackPayload = track
	}
	if diag != nil {
		d.DiagPayload = diag
	}
	d.UpdatedAt = observedAt
	cp := *d
	return &cp, nil
}

func (m *memDeviceRepo) RenameKey(_ context.Context, fromKey, toKey, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[fromKey]
	if !ok {
		return false, nil
	}
	if _, taken := m.devices[toKey]; taken {
		return false, nil
	}
	delete(m.devices, fromKey)
	d.DeviceKey = toKey
	m.devices[toKey] = d
	return true, nil
}

func (m *memDeviceRepo) BumpTrackStats(_ context.Context, _ string, _ time.Time) error { return nil }
func (m *memDeviceRepo) BumpDiagStats(_ context.Context, _ string) error               { return nil }

func newTestTelemetryHandler(t *testing.T) (*TelemetryHandler, *identity.Authenticator) {
	t.Helper()
	auth, err := identity.NewAuthenticator([]byte("handler-test-secret"))
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}
	ts := service.NewTelemetryService(auth, newMemDeviceRepo(), nil)
	return NewTelemetryHandler(ts), auth
}

func trackEnvelope(t *testing.T, auth *identity.Authenticator) (body string, signature string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"mac":      "aa:bb:cc:dd:ee:ff",
		"firmware": "2.1.0",
		"stats":    map[string]int{"tracks_played": 3},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return base64.StdEncoding.EncodeToString(payload), auth.Sign(payload)
}

func TestSubmitTrack(t *testing.T) {
	h, auth := newTestTelemetryHandler(t)
	body, sig := trackEnvelope(t, auth)

	req := httptest.NewRequest(http.MethodPost, "/v1/telemetry/track", strings.NewReader(body))
	req.Header.Set(SignatureHeader, sig)
	rr := httptest.NewRecorder()

	h.SubmitTrack(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	key, _ := resp["device_key"].(string)
	if !strings.HasPrefix(key, identity.KeyPrefix) {
		t.Errorf("device_key = %q, want %q prefix", key, identity.KeyPrefix)
	}
}

func TestSubmitTrackErrors(t *testing.T) {
	h, auth := newTestTelemetryHandler(t)
	goodBody, goodSig := trackEnvelope(t, auth)

	badMACPayload, _ := json.Marshal(map[string]string{"mac": "not-a-mac"})
	notJSON := []byte("plain text")

	tests := []struct {
		name       string
		body       string
		signature  string
		wantStatus int
	}{
		{"missing signature header", goodBody, "", http.StatusBadRequest},
		{"body not base64", "%%%not-base64%%%", goodSig, http.StatusBadRequest},
		{"wrong signature", goodBody, "deadbeef", http.StatusUnauthorized},
		{"malformed mac", base64.StdEncoding.EncodeToString(badMACPayload), auth.Sign(badMACPayload), http.StatusUnprocessableEntity},
		{"payload not json", base64.StdEncoding.EncodeToString(notJSON), auth.Sign(notJSON), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/telemetry/track", strings.NewReader(tt.body))
			if tt.signature != "" {
				req.Header.Set(SignatureHeader, tt.signature)
			}
			rr := httptest.NewRecorder()

			h.SubmitTrack(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body: %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}
}

func TestSubmitDiag(t *testing.T) {
	h, auth := newTestTelemetryHandler(t)

	payload, _ := json.Marshal(map[string]any{
		"mac":    "aa:bb:cc:dd:ee:ff",
		"report": map[string]string{"battery": "low"},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/telemetry/diag",
		strings.NewReader(base64.StdEncoding.EncodeToString(payload)))
	req.Header.Set(SignatureHeader, auth.Sign(payload))
	rr := httptest.NewRecorder()

	h.SubmitDiag(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}
