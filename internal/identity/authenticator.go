package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

var (
	// ErrBadSignature is returned when a payload signature does not match.
	// Callers must treat it as an untrusted request, never a server error.
	ErrBadSignature = errors.New("identity: signature mismatch")

	// ErrEmptySecret is returned by NewAuthenticator when no signing
	// secret is configured. Startup must fail on it.
	ErrEmptySecret = errors.New("identity: empty signing secret")
)

// Authenticator verifies that device-originated payloads were produced by a
// holder of the shared telemetry secret. It is stateless after construction
// and safe for concurrent use; Verify performs no I/O.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator builds an Authenticator around the shared secret. The
// secret is fixed for the life of the process; an empty secret is refused so
// that misconfiguration surfaces at startup instead of at request time.
func NewAuthenticator(secret []byte) (*Authenticator, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &Authenticator{secret: s}, nil
}

// Sign computes the hex HMAC-SHA256 digest of payload under the shared
// secret. Device firmware computes the same value client-side.
func (a *Authenticator) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against the digest of the exact payload bytes as
// received. The comparison is constant time. On success the original payload
// is returned unchanged; on mismatch ErrBadSignature is returned.
func (a *Authenticator) Verify(payload []byte, signature string) ([]byte, error) {
	expected := a.Sign(payload)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return nil, ErrBadSignature
	}
	return payload, nil
}
