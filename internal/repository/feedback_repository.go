package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/device-service/internal/models"
)

// FeedbackRepository stores user feedback entries append-only.
type FeedbackRepository interface {
	Create(ctx context.Context, fb *models.Feedback) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Feedback, error)
}

type postgresFeedbackRepository struct {
	db *sql.DB
}

func NewPostgresFeedbackRepository(db *sql.DB) FeedbackRepository {
	return &postgresFeedbackRepository{db: db}
}

func (r *postgresFeedbackRepository) Create(ctx context.Context, fb *models.Feedback) error {
	if fb.ID == uuid.Nil {
		fb.ID = uuid.New()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	const q = `
INSERT INTO feedback (id, device_key, subject, body, contact, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
	_, err := r.db.ExecContext(ctx, q, fb.ID, fb.DeviceKey, fb.Subject, fb.Body, fb.Contact, fb.CreatedAt)
	return err
}

func (r *postgresFeedbackRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Feedback, error) {
	const q = `
SELECT id, device_key, subject, body, contact, created_at
FROM feedback WHERE id = $1
`
	var fb models.Feedback
	if err := r.db.QueryRowContext(ctx, q, id).Scan(
		&fb.ID, &fb.DeviceKey, &fb.Subject, &fb.Body, &fb.Contact, &fb.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &fb, nil
}
