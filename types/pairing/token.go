// Package pairing holds the leaf types of one pairing attempt: the secret
// session token, its code-visible prefix, and the session record that the
// pairing state machine mutates.
package pairing

import (
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	// TokenLen is the full width of a session token, in bytes.
	TokenLen = 8

	// PrefixLen is the width of the code-visible token prefix, in bytes.
	//
	// A share code carries PrefixBits of these; the remaining low bits
	// of the last byte are always zero.
	PrefixLen = 4

	// PrefixBits is how many leading token bits a share code carries.
	PrefixBits = 30
)

// Token is the per-attempt secret: TokenLen random bytes, generated fresh
// for every code generation, never reused.
type Token [TokenLen]byte

// NewToken returns a fresh random token. Panics if no OS randomness is
// available.
func NewToken() Token {
	var t Token
	if _, err := crand.Read(t[:]); err != nil {
		panic(fmt.Sprintf("unable to read random bytes from OS: %v", err))
	}
	return t
}

// Prefix returns the code-visible prefix of t.
func (t Token) Prefix() Prefix {
	var p Prefix
	copy(p[:], t[:PrefixLen])
	// Mask the bits a code does not carry.
	p[PrefixLen-1] &= prefixLastByteMask
	return p
}

func (t Token) IsZero() bool {
	return t == Token{}
}

// Prefix is the leading PrefixBits of a Token, held in PrefixLen bytes with
// the unused low bits zeroed. It is what a share code encodes, what the
// rendezvous directory key is derived from, and what both sides of a
// handshake carry; comparable, and safe as a map key.
type Prefix [PrefixLen]byte

const prefixLastByteMask = (0xFF << (PrefixLen*8 - PrefixBits)) & 0xFF

func (p Prefix) IsZero() bool {
	return p == Prefix{}
}

func (p Prefix) Debug() string {
	return hex.EncodeToString(p[:])
}

// MakePrefix parses a PrefixLen-byte raw value as a Prefix.
//
// This should be used only when deserializing a Prefix from a binary
// protocol; it masks the bits a code cannot carry.
func MakePrefix(raw [PrefixLen]byte) Prefix {
	raw[PrefixLen-1] &= prefixLastByteMask
	return raw
}
