package key

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/edup2p/pairsok/types"
	"go4.org/mem"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// SessionPublic is the public half of an ephemeral pairing-session
// keypair; the issuer's is carried in its rendezvous record, the
// consumer's travels in the clear handshake wire header.
type SessionPublic NakedKey

func (s SessionPublic) Debug() string {
	return fmt.Sprintf("%x", s)
}

func (s SessionPublic) HexString() string {
	return hex.EncodeToString(s[:])
}

// IsZero reports whether k is the zero value.
func (s SessionPublic) IsZero() bool {
	return s == SessionPublic{}
}

func (s SessionPublic) AppendText(b []byte) ([]byte, error) {
	return appendHexKey(b, sessPublicHexPrefix, s[:]), nil
}

func (s SessionPublic) MarshalText() (text []byte, err error) {
	return s.AppendText(nil)
}

func (s *SessionPublic) UnmarshalText(text []byte) error {
	return parseHex(s[:], mem.B(text), mem.S(sessPublicHexPrefix))
}

// MakeSessionPublic parses a 32-byte raw value as a SessionPublic.
//
// This should be used only when deserializing a SessionPublic from a
// binary protocol.
func MakeSessionPublic(raw [32]byte) SessionPublic {
	return raw
}

func (s SessionPublic) ToByteSlice() []byte {
	return s[:]
}

// SessionPrivate is the private half of an ephemeral pairing-session
// keypair. A fresh one is generated per pairing attempt and discarded
// with the session.
type SessionPrivate struct {
	_   types.Incomparable
	key NakedKey
}

// NewSession creates and returns a new session private key.
func NewSession() SessionPrivate {
	var ret SessionPrivate
	rand(ret.key[:])
	// Key used for nacl seal/open, so needs to be clamped.
	clamp25519Private(ret.key[:])
	return ret
}

// IsZero reports whether k is the zero value.
func (s SessionPrivate) IsZero() bool {
	return s.Equal(SessionPrivate{})
}

// Equal reports whether k and other are the same key.
func (s SessionPrivate) Equal(other SessionPrivate) bool {
	return subtle.ConstantTimeCompare(s.key[:], other.key[:]) == 1
}

// Public returns the SessionPublic for k.
// Panics if SessionPrivate is zero.
func (s SessionPrivate) Public() SessionPublic {
	if s.IsZero() {
		panic("can't take the public key of a zero SessionPrivate")
	}
	var ret SessionPublic
	curve25519.ScalarBaseMult((*[32]byte)(&ret), (*[32]byte)(&s.key))
	return ret
}

// Shared returns the SessionShared for communication between k and p.
func (s SessionPrivate) Shared(p SessionPublic) SessionShared {
	if s.IsZero() || p.IsZero() {
		panic("can't compute shared secret with zero keys")
	}
	var ret SessionShared
	box.Precompute((*[32]byte)(&ret.key), (*[32]byte)(&p), (*[32]byte)(&s.key))
	return ret
}

// SessionShared is the precomputed NaCl box shared key between two
// session keypairs; both handshake directions seal with it.
type SessionShared struct {
	_   types.Incomparable
	key NakedKey
}

// Equal reports whether k and other are the same key.
func (k SessionShared) Equal(other SessionShared) bool {
	return subtle.ConstantTimeCompare(k.key[:], other.key[:]) == 1
}

func (k SessionShared) IsZero() bool {
	return k.Equal(SessionShared{})
}

// Seal wraps cleartext into a NaCl box (see
// golang.org/x/crypto/nacl), using k as the shared secret and a
// random nonce.
func (k SessionShared) Seal(cleartext []byte) (ciphertext []byte) {
	if k.IsZero() {
		panic("can't seal with zero key")
	}
	var nonce [24]byte
	rand(nonce[:])
	return box.SealAfterPrecomputation(nonce[:], cleartext, &nonce, (*[32]byte)(&k.key))
}

// Open opens the NaCl box ciphertext, which must be a value created
// by Seal, and returns the inner cleartext if ciphertext is a valid
// box using shared secret k.
func (k SessionShared) Open(ciphertext []byte) (cleartext []byte, ok bool) {
	if k.IsZero() {
		panic("can't open with zero key")
	}
	if len(ciphertext) < 24 {
		return nil, false
	}
	nonce := (*[24]byte)(ciphertext)
	return box.OpenAfterPrecomputation(nil, ciphertext[24:], nonce, (*[32]byte)(&k.key))
}
