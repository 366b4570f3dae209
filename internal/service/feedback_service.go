package service

import (
	"context"
	"errors"
	"strings"

	"github.com/pulseboard/device-service/internal/models"
	"github.com/pulseboard/device-service/internal/repository"
)

const (
	maxFeedbackSubjectLen = 200
	maxFeedbackBodyLen    = 10000
)

var ErrInvalidFeedback = errors.New("feedback: subject and body are required")

// FeedbackService validates and stores user feedback.
type FeedbackService struct {
	feedback repository.FeedbackRepository
}

func NewFeedbackService(feedback repository.FeedbackRepository) *FeedbackService {
	return &FeedbackService{feedback: feedback}
}

// Submit stores one feedback entry. deviceKey is taken from the session, not
// the request body.
func (s *FeedbackService) Submit(ctx context.Context, deviceKey *string, subject, body, contact string) (*models.Feedback, error) {
	subject = strings.TrimSpace(subject)
	body = strings.TrimSpace(body)
	if subject == "" || body == "" {
		return nil, ErrInvalidFeedback
	}
	if len(subject) > maxFeedbackSubjectLen {
		subject = subject[:maxFeedbackSubjectLen]
	}
	if len(body) > maxFeedbackBodyLen {
		body = body[:maxFeedbackBodyLen]
	}

	fb := &models.Feedback{
		DeviceKey: deviceKey,
		Subject:   subject,
		Body:      body,
	}
	if c := strings.TrimSpace(contact); c != "" {
		fb.Contact = &c
	}

	if err := s.feedback.Create(ctx, fb); err != nil {
		return nil, err
	}
	return fb, nil
}
