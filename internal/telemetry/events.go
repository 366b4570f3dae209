package telemetry

import "time"

// Telemetry ingest audit
type TrackAuditEvent struct {
	Timestamp  time.Time `json:"@timestamp"`
	Kind       string    `json:"kind"` // "track" or "diag"
	DeviceKey  string    `json:"device_key,omitempty"`
	Firmware   string    `json:"firmware,omitempty"`
	Migrated   bool      `json:"migrated,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// Session lifecycle audit
type SessionAuditEvent struct {
	Timestamp time.Time `json:"@timestamp"`
	Action    string    `json:"action"` // "open" or "revoke"
	DeviceKey string    `json:"device_key,omitempty"`
	TokenID   string    `json:"token_id,omitempty"`
}
