package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/device-service/internal/models"
	"github.com/pulseboard/device-service/internal/repository"
)

// fakeDeviceRepo is an in-memory DeviceRepository with the same atomicity
// contract as the Postgres implementation: RenameKey is a single
// compare-and-rename under one lock.
type fakeDeviceRepo struct {
	mu   sync.Mutex
	rows map[string]*models.Device
}

func newFakeDeviceRepo() *fakeDeviceRepo {
	return &fakeDeviceRepo{rows: make(map[string]*models.Device)}
}

func (f *fakeDeviceRepo) GetByKey(_ context.Context, deviceKey string) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.rows[deviceKey]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDeviceRepo) UpsertTrack(_ context.Context, deviceKey, keyScheme, firmware, hardwareRev string, payload json.RawMessage, observedAt time.Time) (*models.Device, error) {
	return f.upsert(deviceKey, keyScheme, firmware, hardwareRev, payload, nil, observedAt)
}

func (f *fakeDeviceRepo) UpsertDiag(_ context.Context, deviceKey, keyScheme, firmware, hardwareRev string, payload json.RawMessage, observedAt time.Time) (*models.Device, error) {
	return f.upsert(deviceKey, keyScheme, firmware, hardwareRev, nil, payload, observedAt)
}

func (f *fakeDeviceRepo) upsert(deviceKey, keyScheme, firmware, hardwareRev string, track, diag json.RawMessage, observedAt time.Time) (*models.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.rows[deviceKey]
	if !ok {
		d = &models.Device{
			ID:        uuid.NewString(),
			DeviceKey: deviceKey,
			CreatedAt: observedAt,
		}
		f.rows[deviceKey] = d
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

func (f *fakeDeviceRepo) RenameKey(_ context.Context, fromKey, toKey, toScheme string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.rows[fromKey]
	if !ok {
		return false, nil
	}
	if _, exists := f.rows[toKey]; exists {
		return false, nil
	}
	delete(f.rows, fromKey)
	d.DeviceKey = toKey
	d.KeyScheme = toScheme
	f.rows[toKey] = d
	return true, nil
}

func (f *fakeDeviceRepo) BumpTrackStats(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func (f *fakeDeviceRepo) BumpDiagStats(_ context.Context, _ string) error {
	return nil
}

func (f *fakeDeviceRepo) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeDeviceRepo) seed(deviceKey, keyScheme string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	f.rows[deviceKey] = &models.Device{
		ID:        uuid.NewString(),
		DeviceKey: deviceKey,
		KeyScheme: keyScheme,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// fakeSessionRepo is an in-memory SessionRepository.
type fakeSessionRepo struct {
	mu   sync.Mutex
	recs map[string]repository.SessionRecord
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{recs: make(map[string]repository.SessionRecord)}
}

func (f *fakeSessionRepo) Put(_ context.Context, rec repository.SessionRecord, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs[rec.TokenID] = rec
	return nil
}

func (f *fakeSessionRepo) Get(_ context.Context, tokenID string) (*repository.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[tokenID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (f *fakeSessionRepo) Delete(_ context.Context, tokenID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.recs, tokenID)
	return nil
}

// fakeFeedbackRepo is an in-memory FeedbackRepository.
type fakeFeedbackRepo struct {
	mu      sync.Mutex
	entries []models.Feedback
}

func (f *fakeFeedbackRepo) Create(_ context.Context, fb *models.Feedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fb.ID == uuid.Nil {
		fb.ID = uuid.New()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	f.entries = append(f.entries, *fb)
	return nil
}

func (f *fakeFeedbackRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Feedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.entries {
		if f.entries[i].ID == id {
			cp := f.entries[i]
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}
