package key

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/edup2p/pairsok/types"
	"go4.org/mem"
	"golang.org/x/crypto/curve25519"
)

// DevicePrivate is the private half of a device's long-lived keypair.
// It never leaves the device; only its DevicePublic is transmitted.
type DevicePrivate struct {
	_   types.Incomparable
	key NakedKey
}

// NewDevice creates and returns a new device private key.
func NewDevice() DevicePrivate {
	var ret DevicePrivate
	rand(ret.key[:])
	clamp25519Private(ret.key[:])
	return ret
}

func DevicePrivateFrom(key NakedKey) DevicePrivate {
	return DevicePrivate{key: key}
}

// Equal reports whether k and other are the same key.
func (d DevicePrivate) Equal(other DevicePrivate) bool {
	return subtle.ConstantTimeCompare(d.key[:], other.key[:]) == 1
}

// IsZero reports whether k is the zero value.
func (d DevicePrivate) IsZero() bool {
	return d.Equal(DevicePrivate{})
}

// OpenFrom opens the NaCl box ciphertext, which must be a value
// created by SealTo, and returns the inner cleartext if ciphertext is
// a valid box from p to k.
func (d DevicePrivate) OpenFrom(p DevicePublic, ciphertext []byte) (cleartext []byte, ok bool) {
	if d.IsZero() || p.IsZero() {
		panic("can't open with zero keys")
	}
	return openFrom(d.key, NakedKey(p), ciphertext)
}

// SealTo wraps cleartext into a NaCl box (see
// golang.org/x/crypto/nacl) to p, authenticated from k, using a
// random nonce.
//
// The returned ciphertext is a 24-byte nonce concatenated with the
// box value.
func (d DevicePrivate) SealTo(p DevicePublic, cleartext []byte) (ciphertext []byte) {
	if d.IsZero() || p.IsZero() {
		panic("can't seal with zero keys")
	}
	return sealTo(d.key, NakedKey(p), cleartext)
}

func (d DevicePrivate) Public() DevicePublic {
	if d.IsZero() {
		panic("can't take the public key of a zero DevicePrivate")
	}

	var ret DevicePublic
	curve25519.ScalarBaseMult((*[32]byte)(&ret), (*[32]byte)(&d.key))
	return ret
}

// AppendText implements encoding.TextAppender.
func (d DevicePrivate) AppendText(b []byte) ([]byte, error) {
	return appendHexKey(b, devicePrivateHexPrefix, d.key[:]), nil
}

// MarshalText implements encoding.TextMarshaler.
func (d DevicePrivate) MarshalText() ([]byte, error) {
	return d.AppendText(nil)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DevicePrivate) UnmarshalText(b []byte) error {
	return parseHex(d.key[:], mem.B(b), mem.S(devicePrivateHexPrefix))
}

func UnmarshalDevicePrivate(s string) (*DevicePrivate, error) {
	if !strings.HasSuffix(s, "\"") && !strings.HasPrefix(s, "\"") {
		s = fmt.Sprintf("\"%s\"", s)
	}

	priv := new(DevicePrivate)

	if err := json.Unmarshal([]byte(s), priv); err != nil {
		return nil, err
	}

	return priv, nil
}

func (d DevicePrivate) Marshal() string {
	b, _ := json.Marshal(d)
	return string(b)
}
