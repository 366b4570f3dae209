package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/pulseboard/device-service/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
)

// DeviceRepository provides persistence for telemetry records keyed by the
// derived device key.
type DeviceRepository interface {
	GetByKey(ctx context.Context, deviceKey string) (*models.Device, error)

	// UpsertTrack writes a track contact last-write-wins: every column is
	// overwritten except identity and created_at.
	UpsertTrack(ctx context.Context, deviceKey, keyScheme, firmware, hardwareRev string, payload json.RawMessage, observedAt time.Time) (*models.Device, error)

	// UpsertDiag writes a diag contact on the same record.
	UpsertDiag(ctx context.Context, deviceKey, keyScheme, firmware, hardwareRev string, payload json.RawMessage, observedAt time.Time) (*models.Device, error)

	// RenameKey atomically re-keys a record from fromKey to toKey. The
	// conditional update is the compare half of compare-and-rename: it
	// succeeds only while fromKey still exists and toKey does not, so at
	// most one of N concurrent callers wins. A false return with nil
	// error means there was nothing to rename, which callers treat as an
	// expected outcome rather than a failure.
	RenameKey(ctx context.Context, fromKey, toKey, toScheme string) (bool, error)

	// BumpTrackStats and BumpDiagStats maintain the per-device counters
	// behind the leaderboard.
	BumpTrackStats(ctx context.Context, deviceKey string, at time.Time) error
	BumpDiagStats(ctx context.Context, deviceKey string) error
}

type postgresDeviceRepository struct {
	db *sql.DB
}

// NewPostgresDeviceRepository wires a DeviceRepository over database/sql
// with pooling tuned for the telemetry write path.
func NewPostgresDeviceRepository(db *sql.DB) DeviceRepository {
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &postgresDeviceRepository{db: db}
}

func (r *postgresDeviceRepository) GetByKey(ctx context.Context, deviceKey string) (*models.Device, error) {
	const q = `
SELECT id, device_key, key_scheme, firmware, hardware_rev, track_payload, diag_payload, created_at, updated_at
FROM devices WHERE device_key = $1
`
	var d models.Device
	if err := r.db.QueryRowContext(ctx, q, deviceKey).Scan(
		&d.ID, &d.DeviceKey, &d.KeyScheme, &d.Firmware, &d.HardwareRev,
		&d.TrackPayload, &d.DiagPayload, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *postgresDeviceRepository) UpsertTrack(ctx context.Context, deviceKey, keyScheme, firmware, hardwareRev string, payload json.RawMessage, observedAt time.Time) (*models.Device, error) {
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	const q = `
INSERT INTO devices (device_key, key_scheme, firmware, hardware_rev, track_payload, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (device_key) DO UPDATE
SET
  key_scheme = EXCLUDED.key_scheme,
  firmware = EXCLUDED.firmware,
  hardware_rev = EXCLUDED.hardware_rev,
  track_payload = EXCLUDED.track_payload,
  updated_at = EXCLUDED.updated_at
RETURNING id, device_key, key_scheme, firmware, hardware_rev, track_payload, diag_payload, created_at, updated_at
`
	return r.scanDevice(r.db.QueryRowContext(ctx, q, deviceKey, keyScheme, firmware, hardwareRev, payload, observedAt))
}

func (r *postgresDeviceRepository) UpsertDiag(ctx context.Context, deviceKey, keyScheme, firmware, hardwareRev string, payload json.RawMessage, observedAt time.Time) (*models.Device, error) {
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	const q = `
INSERT INTO devices (device_key, key_scheme, firmware, hardware_rev, diag_payload, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (device_key) DO UPDATE
SET
  key_scheme = EXCLUDED.key_scheme,
  firmware = EXCLUDED.firmware,
  hardware_rev = EXCLUDED.hardware_rev,
  diag_payload = EXCLUDED.diag_payload,
  updated_at = EXCLUDED.updated_at
RETURNING id, device_key, key_scheme, firmware, hardware_rev, track_payload, diag_payload, created_at, updated_at
`
	return r.scanDevice(r.db.QueryRowContext(ctx, q, deviceKey, keyScheme, firmware, hardwareRev, payload, observedAt))
}

// RenameKey is a single conditional UPDATE, never a read-then-write pair.
func (r *postgresDeviceRepository) RenameKey(ctx context.Context, fromKey, toKey, toScheme string) (bool, error) {
	const q = `
UPDATE devices
SET device_key = $2, key_scheme = $3, updated_at = now()
WHERE device_key = $1
  AND NOT EXISTS (SELECT 1 FROM devices d WHERE d.device_key = $2)
`
	res, err := r.db.ExecContext(ctx, q, fromKey, toKey, toScheme)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *postgresDeviceRepository) BumpTrackStats(ctx context.Context, deviceKey string, at time.Time) error {
	const q = `
INSERT INTO device_stats (device_key, track_count, diag_count, last_track_at)
VALUES ($1, 1, 0, $2)
ON CONFLICT (device_key) DO UPDATE
SET track_count = device_stats.track_count + 1,
    last_track_at = GREATEST(device_stats.last_track_at, EXCLUDED.last_track_at)
`
	_, err := r.db.ExecContext(ctx, q, deviceKey, at)
	return err
}

func (r *postgresDeviceRepository) BumpDiagStats(ctx context.Context, deviceKey string) error {
	const q = `
INSERT INTO device_stats (device_key, track_count, diag_count)
VALUES ($1, 0, 1)
ON CONFLICT (device_key) DO UPDATE
SET diag_count = device_stats.diag_count + 1
`
	_, err := r.db.ExecContext(ctx, q, deviceKey)
	return err
}

func (r *postgresDeviceRepository) scanDevice(row *sql.Row) (*models.Device, error) {
	var d models.Device
	if err := row.Scan(
		&d.ID, &d.DeviceKey, &d.KeyScheme, &d.Firmware, &d.HardwareRev,
		&d.TrackPayload, &d.DiagPayload, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}
