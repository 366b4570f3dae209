package util

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
)

// SessionClaims are the JWT claims carried by a device session token.
type SessionClaims struct {
	DeviceKey string `json:"device_key"`
	TokenID   string `json:"jti"`

	jwt.RegisteredClaims
}

// TokenConfig holds session token configuration.
type TokenConfig struct {
	SigningKey    []byte
	TokenDuration time.Duration
	Issuer        string
	Audience      []string
}

// TokenManager issues and validates HS256 session tokens.
type TokenManager struct {
	config TokenConfig
}

// NewTokenManager validates the signing key up front so misconfiguration
// fails at startup.
func NewTokenManager(config TokenConfig) (*TokenManager, error) {
	if len(config.SigningKey) == 0 {
		return nil, errors.New("token: empty signing key")
	}
	if config.TokenDuration == 0 {
		config.TokenDuration = 24 * time.Hour
	}
	return &TokenManager{config: config}, nil
}

// Issue creates a session token bound to a device key.
func (t *TokenManager) Issue(deviceKey string) (tokenString, tokenID string, expiresAt time.Time, err error) {
	now := time.Now()

	tokenID, err = generateSecureTokenID()
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to generate token ID: %w", err)
	}

	expiresAt = now.Add(t.config.TokenDuration)

	claims := SessionClaims{
		DeviceKey: deviceKey,
		TokenID:   tokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   deviceKey,
			Audience:  jwt.ClaimStrings(t.config.Audience),
			Issuer:    t.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err = token.SignedString(t.config.SigningKey)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, tokenID, expiresAt, nil
}

// Validate parses and verifies a session token string.
func (t *TokenManager) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.config.SigningKey, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenDuration exposes the configured token lifetime.
func (t *TokenManager) TokenDuration() time.Duration {
	return t.config.TokenDuration
}

func generateSecureTokenID() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
