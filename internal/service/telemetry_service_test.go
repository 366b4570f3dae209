package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/pulseboard/device-service/internal/identity"
)

const testMAC = "AA:BB:CC:DD:EE:FF"

func newTestTelemetryService(t *testing.T) (*TelemetryService, *fakeDeviceRepo, *identity.Authenticator) {
	t.Helper()
	auth, err := identity.NewAuthenticator([]byte("test-secret"))
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}
	repo := newFakeDeviceRepo()
	return NewTelemetryService(auth, repo, nil), repo, auth
}

func signedTrack(t *testing.T, auth *identity.Authenticator, mac string) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"mac":          mac,
		"firmware":     "2.1.0",
		"hardware_rev": "rev3",
		"stats":        map[string]int{"tracks_played": 12},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload, auth.Sign(payload)
}

func TestIngestTrack(t *testing.T) {
	svc, repo, auth := newTestTelemetryService(t)
	payload, sig := signedTrack(t, auth, testMAC)

	dev, err := svc.IngestTrack(context.Background(), payload, sig)
	if err != nil {
		t.Fatalf("IngestTrack() error = %v", err)
	}

	keys, _ := identity.DeriveDeviceKey([]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})
	if dev.DeviceKey != keys.Current {
		t.Errorf("DeviceKey = %q, want %q", dev.DeviceKey, keys.Current)
	}
	if dev.KeyScheme != string(identity.SchemeMAC) {
		t.Errorf("KeyScheme = %q, want %q", dev.KeyScheme, identity.SchemeMAC)
	}
	if repo.rowCount() != 1 {
		t.Errorf("row count = %d, want 1", repo.rowCount())
	}
}

func TestIngestTrackRejectsBadSignature(t *testing.T) {
	svc, repo, auth := newTestTelemetryService(t)
	payload, _ := signedTrack(t, auth, testMAC)

	_, err := svc.IngestTrack(context.Background(), payload, "deadbeef")
	if !errors.Is(err, identity.ErrBadSignature) {
		t.Fatalf("IngestTrack() error = %v, want ErrBadSignature", err)
	}
	if repo.rowCount() != 0 {
		t.Errorf("rejected submission must not write rows, got %d", repo.rowCount())
	}
}

func TestIngestTrackMalformedMAC(t *testing.T) {
	svc, _, auth := newTestTelemetryService(t)
	payload, sig := signedTrack(t, auth, "not-a-mac")

	if _, err := svc.IngestTrack(context.Background(), payload, sig); !errors.Is(err, identity.ErrMalformedMAC) {
		t.Fatalf("IngestTrack() error = %v, want ErrMalformedMAC", err)
	}
}

func TestIngestTrackInvalidPayload(t *testing.T) {
	svc, _, auth := newTestTelemetryService(t)
	payload := []byte("not json")

	if _, err := svc.IngestTrack(context.Background(), payload, auth.Sign(payload)); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("IngestTrack() error = %v, want ErrInvalidPayload", err)
	}
}

func TestIngestDiagSameRecordAsTrack(t *testing.T) {
	svc, repo, auth := newTestTelemetryService(t)

	trackPayload, trackSig := signedTrack(t, auth, testMAC)
	if _, err := svc.IngestTrack(context.Background(), trackPayload, trackSig); err != nil {
		t.Fatalf("IngestTrack() error = %v", err)
	}

	diagPayload, _ := json.Marshal(map[string]any{
		"mac":      testMAC,
		"firmware": "2.1.0",
		"report":   map[string]string{"battery": "ok"},
	})
	dev, err := svc.IngestDiag(context.Background(), diagPayload, auth.Sign(diagPayload))
	if err != nil {
		t.Fatalf("IngestDiag() error = %v", err)
	}

	if repo.rowCount() != 1 {
		t.Fatalf("track+diag for one device produced %d rows, want 1", repo.rowCount())
	}
	if dev.TrackPayload == nil || dev.DiagPayload == nil {
		t.Error("record must keep both track and diag payloads")
	}
}

func TestMigrationRekeysLegacyRecord(t *testing.T) {
	svc, repo, auth := newTestTelemetryService(t)
	keys, _ := identity.DeriveDeviceKey([]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})

	repo.seed(keys.Legacy, string(identity.SchemeTruncated))

	payload, sig := signedTrack(t, auth, testMAC)
	if _, err := svc.IngestTrack(context.Background(), payload, sig); err != nil {
		t.Fatalf("IngestTrack() error = %v", err)
	}

	if repo.rowCount() != 1 {
		t.Fatalf("row count = %d, want 1 (no duplicate on migration)", repo.rowCount())
	}
	if _, err := repo.GetByKey(context.Background(), keys.Legacy); err == nil {
		t.Error("legacy key must no longer address the record")
	}
	dev, err := repo.GetByKey(context.Background(), keys.Current)
	if err != nil {
		t.Fatalf("GetByKey(current) error = %v", err)
	}
	if dev.KeyScheme != string(identity.SchemeMAC) {
		t.Errorf("migrated KeyScheme = %q, want %q", dev.KeyScheme, identity.SchemeMAC)
	}
}

func TestMigrationIdempotent(t *testing.T) {
	svc, repo, auth := newTestTelemetryService(t)
	keys, _ := identity.DeriveDeviceKey([]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})
	repo.seed(keys.Legacy, string(identity.SchemeTruncated))

	payload, sig := signedTrack(t, auth, testMAC)
	for i := 0; i < 3; i++ {
		if _, err := svc.IngestTrack(context.Background(), payload, sig); err != nil {
			t.Fatalf("IngestTrack() run %d error = %v", i, err)
		}
	}

	if repo.rowCount() != 1 {
		t.Fatalf("row count after repeated ingest = %d, want 1", repo.rowCount())
	}
}

func TestMigrationConcurrentSingleWinner(t *testing.T) {
	svc, repo, _ := newTestTelemetryService(t)
	keys, _ := identity.DeriveDeviceKey([]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})
	repo.seed(keys.Legacy, string(identity.SchemeTruncated))

	const n = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, migrated, err := svc.ResolveDeviceKey(context.Background(), testMAC)
			if err != nil {
				t.Errorf("ResolveDeviceKey() error = %v", err)
				return
			}
			if migrated {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("concurrent migrations: %d winners, want exactly 1", winners)
	}
	if repo.rowCount() != 1 {
		t.Errorf("row count = %d, want 1", repo.rowCount())
	}
	if _, err := repo.GetByKey(context.Background(), keys.Current); err != nil {
		t.Errorf("record not addressable under current key: %v", err)
	}
}
