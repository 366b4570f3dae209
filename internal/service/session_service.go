package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pulseboard/device-service/internal/identity"
	"github.com/pulseboard/device-service/internal/repository"
	"github.com/pulseboard/device-service/internal/telemetry"
	"github.com/pulseboard/device-service/internal/util"
)

// sessionRequest is the signed body of a session open call.
type sessionRequest struct {
	MAC string `json:"mac"`
}

// SessionService issues bearer tokens to authenticated devices and tracks
// them in Redis so revocation is immediate.
type SessionService struct {
	auth      *identity.Authenticator
	tokens    *util.TokenManager
	sessions  repository.SessionRepository
	telemetry *TelemetryService
	audit     AuditPublisher
}

func NewSessionService(auth *identity.Authenticator, tokens *util.TokenManager, sessions repository.SessionRepository, ts *TelemetryService, audit AuditPublisher) *SessionService {
	return &SessionService{
		auth:      auth,
		tokens:    tokens,
		sessions:  sessions,
		telemetry: ts,
		audit:     audit,
	}
}

// Open verifies a signed session request and issues a token bound to the
// device's current identity key. Migration runs here too, so a legacy-keyed
// device picks up its re-keyed record on first session open.
func (s *SessionService) Open(ctx context.Context, payload []byte, signature string) (string, *repository.SessionRecord, error) {
	body, err := s.auth.Verify(payload, signature)
	if err != nil {
		return "", nil, err
	}

	var req sessionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", nil, ErrInvalidPayload
	}

	keys, _, err := s.telemetry.ResolveDeviceKey(ctx, req.MAC)
	if err != nil {
		return "", nil, err
	}

	tokenString, tokenID, expiresAt, err := s.tokens.Issue(keys.Current)
	if err != nil {
		return "", nil, err
	}

	rec := repository.SessionRecord{
		TokenID:   tokenID,
		DeviceKey: keys.Current,
		IssuedAt:  time.Now().UTC(),
		ExpiresAt: expiresAt,
	}
	if err := s.sessions.Put(ctx, rec, s.tokens.TokenDuration()); err != nil {
		return "", nil, err
	}

	if s.audit != nil {
		s.audit.Publish(telemetry.SessionAuditEvent{
			Timestamp: rec.IssuedAt,
			Action:    "open",
			DeviceKey: keys.Current,
			TokenID:   tokenID,
		})
	}
	return tokenString, &rec, nil
}

// Validate checks a token's signature and that the session has not been
// revoked.
func (s *SessionService) Validate(ctx context.Context, tokenString string) (*util.SessionClaims, error) {
	claims, err := s.tokens.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if _, err := s.sessions.Get(ctx, claims.TokenID); err != nil {
		if err == repository.ErrNotFound {
			return nil, util.ErrInvalidToken
		}
		return nil, err
	}
	return claims, nil
}

// Revoke removes the session record; the token fails validation afterwards.
func (s *SessionService) Revoke(ctx context.Context, claims *util.SessionClaims) error {
	if err := s.sessions.Delete(ctx, claims.TokenID); err != nil {
		return err
	}
	if s.audit != nil {
		s.audit.Publish(telemetry.SessionAuditEvent{
			Timestamp: time.Now().UTC(),
			Action:    "revoke",
			DeviceKey: claims.DeviceKey,
			TokenID:   claims.TokenID,
		})
	}
	return nil
}
