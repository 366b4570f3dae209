package util

import (
	"errors"
	"testing"
	"time"
)

func TestNewTokenManagerRejectsEmptyKey(t *testing.T) {
	if _, err := NewTokenManager(TokenConfig{}); err == nil {
		t.Fatal("NewTokenManager() with empty key: expected error")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	tm, err := NewTokenManager(TokenConfig{
		SigningKey:    []byte("signing-key"),
		TokenDuration: time.Hour,
		Issuer:        "device-service",
	})
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}

	tokenString, tokenID, expiresAt, err := tm.Issue("device_qrvM3e7_")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if tokenID == "" {
		t.Fatal("Issue() returned empty token ID")
	}
	if remaining := time.Until(expiresAt); remaining < 55*time.Minute || remaining > time.Hour {
		t.Errorf("expiry %v outside configured window", remaining)
	}

	claims, err := tm.Validate(tokenString)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.DeviceKey != "device_qrvM3e7_" {
		t.Errorf("DeviceKey = %q", claims.DeviceKey)
	}
	if claims.TokenID != tokenID {
		t.Errorf("TokenID = %q, want %q", claims.TokenID, tokenID)
	}
	if claims.Issuer != "device-service" {
		t.Errorf("Issuer = %q", claims.Issuer)
	}
}

func TestTokenValidateRejects(t *testing.T) {
	tm, err := NewTokenManager(TokenConfig{SigningKey: []byte("signing-key")})
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}
	other, err := NewTokenManager(TokenConfig{SigningKey: []byte("different-key")})
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}
	foreign, _, _, err := other.Issue("device_abc")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"wrong key", foreign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tm.Validate(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Validate() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestTokenIDsAreUnique(t *testing.T) {
	tm, err := NewTokenManager(TokenConfig{SigningKey: []byte("signing-key")})
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		_, tokenID, _, err := tm.Issue("device_abc")
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		if seen[tokenID] {
			t.Fatalf("duplicate token ID %q", tokenID)
		}
		seen[tokenID] = true
	}
}
