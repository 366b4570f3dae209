package repository

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed by the service.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const schema = `
-- Telemetry records, one row per physical device
CREATE TABLE IF NOT EXISTS devices (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    device_key TEXT NOT NULL UNIQUE,
    key_scheme TEXT NOT NULL DEFAULT 'mac',
    firmware TEXT NOT NULL DEFAULT '',
    hardware_rev TEXT NOT NULL DEFAULT '',
    track_payload JSONB,
    diag_payload JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_devices_updated_at ON devices(updated_at);

-- Leaderboard write path
CREATE TABLE IF NOT EXISTS device_stats (
    device_key TEXT PRIMARY KEY,
    track_count BIGINT NOT NULL DEFAULT 0,
    diag_count BIGINT NOT NULL DEFAULT 0,
    last_track_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- User feedback, append-only
CREATE TABLE IF NOT EXISTS feedback (
    id UUID PRIMARY KEY,
    device_key TEXT,
    subject TEXT NOT NULL,
    body TEXT NOT NULL,
    contact TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_feedback_device_key ON feedback(device_key);
`
