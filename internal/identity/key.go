package identity

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
)

// KeyScheme names a device-key derivation strategy. Stored records carry the
// scheme they were keyed under so that future scheme changes can reuse the
// same migration path.
type KeyScheme string

const (
	// SchemeTruncated is the historical derivation: the MAC's hex form
	// minus its two-byte vendor prefix, read as a big-endian uint32 and
	// rendered in decimal before encoding. Collapsing six bytes into four
	// loses information, so the scheme is kept only to locate records
	// written under it.
	SchemeTruncated KeyScheme = "trunc32"

	// SchemeMAC encodes the raw MAC bytes directly. Reversible: decoding
	// the text after the prefix recovers the original six bytes.
	SchemeMAC KeyScheme = "mac"
)

// KeyPrefix namespaces device keys in every backing store.
const KeyPrefix = "device_"

const macLen = 6

// ErrMalformedMAC is returned for MAC input of the wrong length or with
// non-hex characters. Distinct from signature failure.
var ErrMalformedMAC = errors.New("identity: malformed mac address")

// DeviceKey holds both derivations for one physical device. Current is the
// only key new reads and writes use; Legacy exists to find records that
// predate SchemeMAC.
type DeviceKey struct {
	Current string
	Legacy  string
}

// ParseMAC normalizes a device-reported MAC string ("AA:BB:CC:DD:EE:FF",
// "aa-bb-cc-dd-ee-ff" or bare hex) into its six raw bytes.
func ParseMAC(s string) ([]byte, error) {
	cleaned := strings.NewReplacer(":", "", "-", "").Replace(strings.TrimSpace(s))
	if len(cleaned) != macLen*2 {
		return nil, ErrMalformedMAC
	}
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, ErrMalformedMAC
	}
	return raw, nil
}

// DeriveDeviceKey computes both identity keys for a raw MAC. Both values are
// pure functions of the input.
func DeriveDeviceKey(rawMac []byte) (DeviceKey, error) {
	if len(rawMac) != macLen {
		return DeviceKey{}, ErrMalformedMAC
	}

	current := KeyPrefix + base64.RawURLEncoding.EncodeToString(rawMac)

	// Legacy derivation: the last four MAC bytes as a big-endian uint32,
	// printed in decimal, then encoded like any other key body.
	trunc := binary.BigEndian.Uint32(rawMac[2:])
	dec := strconv.FormatUint(uint64(trunc), 10)
	legacy := KeyPrefix + base64.RawURLEncoding.EncodeToString([]byte(dec))

	return DeviceKey{Current: current, Legacy: legacy}, nil
}

// MACFromKey recovers the raw MAC bytes from a SchemeMAC key. It fails on
// legacy-scheme keys since their derivation is not invertible.
func MACFromKey(key string) ([]byte, error) {
	body, ok := strings.CutPrefix(key, KeyPrefix)
	if !ok {
		return nil, ErrMalformedMAC
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil || len(raw) != macLen {
		return nil, ErrMalformedMAC
	}
	return raw, nil
}
