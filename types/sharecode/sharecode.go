// Package sharecode encodes the leading bits of a session token as a short
// code a human can read aloud or type, and decodes such a code back into
// the token prefix used for rendezvous lookup.
//
// The alphabet is Crockford-style base32: 32 runes, excluding I, L, O and U
// as visually or aurally confusable. Decoding folds lowercase input and the
// common misreadings (o for 0, i/l for 1), so codes survive being dictated
// over a phone. 6 runes of 5 bits carry a 30-bit prefix; the code space of
// 32^6 ≈ 1.07e9 keeps accidental collisions negligible for the handful of
// short-lived sessions a device has live at once.
package sharecode

import (
	"errors"
	"fmt"

	"github.com/edup2p/pairsok/types/pairing"
)

const (
	// Alphabet is the 32-rune code alphabet, indexed by 5-bit value.
	Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

	// Length is the fixed code length, in runes.
	Length = pairing.PrefixBits / bitsPerRune

	bitsPerRune = 5
)

// ErrInvalidFormat is returned for input of the wrong length, or containing
// runes outside the (folded) alphabet.
var ErrInvalidFormat = errors.New("invalid share code format")

// runeValues maps a byte to its 5-bit value, or -1.
var runeValues [256]int8

func init() {
	for i := range runeValues {
		runeValues[i] = -1
	}
	for i, c := range []byte(Alphabet) {
		runeValues[c] = int8(i)
		// Lowercase folds.
		if c >= 'A' && c <= 'Z' {
			runeValues[c+('a'-'A')] = int8(i)
		}
	}

	// Confusable folds.
	for _, f := range []struct{ from, to byte }{
		{'O', '0'}, {'o', '0'},
		{'I', '1'}, {'i', '1'},
		{'L', '1'}, {'l', '1'},
	} {
		runeValues[f.from] = runeValues[f.to]
	}
}

// Encode maps the leading bits of tok onto a fixed-length code.
// It is deterministic: the same token always yields the same code.
func Encode(tok pairing.Token) string {
	return EncodePrefix(tok.Prefix())
}

// EncodePrefix maps a bare prefix onto its code form.
func EncodePrefix(p pairing.Prefix) string {
	// Load the prefix big-endian, then peel off 5 bits per rune,
	// most significant first.
	var v uint64
	for _, b := range p {
		v = v<<8 | uint64(b)
	}
	v >>= uint(pairing.PrefixLen*8 - pairing.PrefixBits)

	out := make([]byte, Length)
	for i := Length - 1; i >= 0; i-- {
		out[i] = Alphabet[v&(1<<bitsPerRune-1)]
		v >>= bitsPerRune
	}

	return string(out)
}

// Decode turns a code back into the token prefix it carries.
//
// The prefix is only a lookup key: the actual record is validated at
// resolution time, and prefix collisions between live tokens are caught
// by the issuer at publish time.
func Decode(code string) (pairing.Prefix, error) {
	if len(code) != Length {
		return pairing.Prefix{}, fmt.Errorf("%w: want %d characters, got %d", ErrInvalidFormat, Length, len(code))
	}

	var v uint64
	for i := 0; i < Length; i++ {
		val := runeValues[code[i]]
		if val < 0 {
			return pairing.Prefix{}, fmt.Errorf("%w: character %q not in alphabet", ErrInvalidFormat, code[i])
		}
		v = v<<bitsPerRune | uint64(val)
	}
	v <<= uint(pairing.PrefixLen*8 - pairing.PrefixBits)

	var raw [pairing.PrefixLen]byte
	for i := pairing.PrefixLen - 1; i >= 0; i-- {
		raw[i] = byte(v)
		v >>= 8
	}

	return pairing.MakePrefix(raw), nil
}
