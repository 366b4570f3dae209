package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pulseboard/device-service/internal/identity"
	"github.com/pulseboard/device-service/internal/models"
	"github.com/pulseboard/device-service/internal/repository"
	"github.com/pulseboard/device-service/internal/telemetry"
	"github.com/pulseboard/device-service/internal/util/logger"
)

// ErrInvalidPayload marks a verified envelope whose body is not a usable
// telemetry document. Distinct from both signature and identity errors.
var ErrInvalidPayload = errors.New("telemetry: invalid payload")

// AuditPublisher receives ingest audit events. Satisfied by the Kafka
// shipper; nil disables auditing.
type AuditPublisher interface {
	Publish(ev any)
}

// TelemetryService authenticates signed device envelopes and applies the
// identity migration policy before any record read or write.
type TelemetryService struct {
	auth    *identity.Authenticator
	devices repository.DeviceRepository
	audit   AuditPublisher
}

func NewTelemetryService(auth *identity.Authenticator, devices repository.DeviceRepository, audit AuditPublisher) *TelemetryService {
	return &TelemetryService{
		auth:    auth,
		devices: devices,
		audit:   audit,
	}
}

// ResolveDeviceKey derives both identity keys for a reported MAC and
// migrates any record still stored under the legacy key. The rename is a
// single atomic compare-and-rename in the store, so concurrent submissions
// from one device cannot duplicate it: one caller migrates, the rest see the
// already-current record. Idempotent by construction.
func (s *TelemetryService) ResolveDeviceKey(ctx context.Context, mac string) (identity.DeviceKey, bool, error) {
	raw, err := identity.ParseMAC(mac)
	if err != nil {
		return identity.DeviceKey{}, false, err
	}
	keys, err := identity.DeriveDeviceKey(raw)
	if err != nil {
		return identity.DeviceKey{}, false, err
	}

	migrated, err := s.devices.RenameKey(ctx, keys.Legacy, keys.Current, string(identity.SchemeMAC))
	if err != nil {
		return identity.DeviceKey{}, false, err
	}
	if migrated {
		logger.Infof("Migrated device record %s -> %s", keys.Legacy, keys.Current)
	}
	return keys, migrated, nil
}

// IngestTrack verifies and stores a track submission. All reads and writes
// after resolution use the current key only.
func (s *TelemetryService) IngestTrack(ctx context.Context, payload []byte, signature string) (*models.Device, error) {
	start := time.Now()

	body, err := s.auth.Verify(payload, signature)
	if err != nil {
		return nil, err
	}

	var tp models.TrackPayload
	if err := json.Unmarshal(body, &tp); err != nil {
		return nil, ErrInvalidPayload
	}

	keys, migrated, err := s.ResolveDeviceKey(ctx, tp.MAC)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	dev, err := s.devices.UpsertTrack(ctx, keys.Current, string(identity.SchemeMAC), tp.Firmware, tp.HardwareRev, tp.Stats, now)
	if err != nil {
		return nil, err
	}
	if err := s.devices.BumpTrackStats(ctx, keys.Current, now); err != nil {
		logger.Warn("Failed to bump track stats for %s: %v", keys.Current, err)
	}

	s.publish(telemetry.TrackAuditEvent{
		Timestamp:  now,
		Kind:       "track",
		DeviceKey:  keys.Current,
		Firmware:   tp.Firmware,
		Migrated:   migrated,
		DurationMs: time.Since(start).Milliseconds(),
	})
	return dev, nil
}

// IngestDiag verifies and stores a diag submission on the same record.
func (s *TelemetryService) IngestDiag(ctx context.Context, payload []byte, signature string) (*models.Device, error) {
	start := time.Now()

	body, err := s.auth.Verify(payload, signature)
	if err != nil {
		return nil, err
	}

	var dp models.DiagPayload
	if err := json.Unmarshal(body, &dp); err != nil {
		return nil, ErrInvalidPayload
	}

	keys, migrated, err := s.ResolveDeviceKey(ctx, dp.MAC)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	dev, err := s.devices.UpsertDiag(ctx, keys.Current, string(identity.SchemeMAC), dp.Firmware, dp.HardwareRev, dp.Report, now)
	if err != nil {
		return nil, err
	}
	if err := s.devices.BumpDiagStats(ctx, keys.Current); err != nil {
		logger.Warn("Failed to bump diag stats for %s: %v", keys.Current, err)
	}

	s.publish(telemetry.TrackAuditEvent{
		Timestamp:  now,
		Kind:       "diag",
		DeviceKey:  keys.Current,
		Firmware:   dp.Firmware,
		Migrated:   migrated,
		DurationMs: time.Since(start).Milliseconds(),
	})
	return dev, nil
}

func (s *TelemetryService) publish(ev any) {
	if s.audit != nil {
		s.audit.Publish(ev)
	}
}
