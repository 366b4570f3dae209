package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Device is the persisted telemetry record for one physical device. Keyed by
// the derived device key; every contact overwrites all fields except the
// identity and CreatedAt.
type Device struct {
	ID           string          `db:"id"` // UUID
	DeviceKey    string          `db:"device_key"`
	KeyScheme    string          `db:"key_scheme"` // "trunc32" or "mac"
	Firmware     string          `db:"firmware"`
	HardwareRev  string          `db:"hardware_rev"`
	TrackPayload json.RawMessage `db:"track_payload"` // JSONB
	DiagPayload  json.RawMessage `db:"diag_payload"`  // JSONB
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// DeviceStats holds the per-device counters the telemetry write path bumps.
type DeviceStats struct {
	DeviceKey   string    `db:"device_key"`
	TrackCount  int64     `db:"track_count"`
	DiagCount   int64     `db:"diag_count"`
	LastTrackAt time.Time `db:"last_track_at"`
}

// Feedback is an append-only user feedback entry. DeviceKey is present when
// the submitting session is bound to a device.
type Feedback struct {
	ID        uuid.UUID `db:"id"`
	DeviceKey *string   `db:"device_key"`
	Subject   string    `db:"subject"`
	Body      string    `db:"body"`
	Contact   *string   `db:"contact"`
	CreatedAt time.Time `db:"created_at"`
}

// TrackPayload is the decoded body of a track submission. The envelope
// signature is checked against the raw bytes before this is unmarshalled.
type TrackPayload struct {
	MAC         string          `json:"mac"`
	Firmware    string          `json:"firmware"`
	HardwareRev string          `json:"hardware_rev"`
	Stats       json.RawMessage `json:"stats"`
}

// DiagPayload is the decoded body of a diag submission.
type DiagPayload struct {
	MAC         string          `json:"mac"`
	Firmware    string          `json:"firmware"`
	HardwareRev string          `json:"hardware_rev"`
	Report      json.RawMessage `json:"report"`
}
