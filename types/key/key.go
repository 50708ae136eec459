// Package key holds the asymmetric key material pairsok works with;
// the long-lived device keypair that anchors a device's identity, and
// the ephemeral session keypairs that seal one pairing attempt's handshake.
package key

import (
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"go4.org/mem"
	"golang.org/x/crypto/nacl/box"
)

const Len = 32

// NakedKey is the 32-byte underlying key.
//
// Only ever used for public interfaces, very dangerous to use directly, due to the security implications.
type NakedKey [Len]byte

func (n NakedKey) Debug() string {
	return fmt.Sprintf("%x", n)
}

func (n NakedKey) HexString() string {
	return hex.EncodeToString(n[:])
}

// IsZero reports whether k is the zero value.
func (n NakedKey) IsZero() bool {
	return n == NakedKey{}
}

const (
	devicePublicHexPrefix  = "devpub:"
	devicePrivateHexPrefix = "devpriv:"
	sessPublicHexPrefix    = "sesspub:"
)

// rand fills b with cryptographically strong random bytes. Panics if
// no random bytes are available.
func rand(b []byte) {
	if _, err := io.ReadFull(crand.Reader, b[:]); err != nil {
		panic(fmt.Sprintf("unable to read random bytes from OS: %v", err))
	}
}

// clamp25519Private clamps b, which must be a 32-byte Curve25519
// private key, to a safe value.
//
// The clamping effectively constrains the key to a number between
// 2^251 and 2^252-1, which is then multiplied by 8 (the cofactor of
// Curve25519). This produces a value that doesn't have any unsafe
// properties when doing operations like ScalarMult.
//
// Note that keys used for nacl box sealing (all keys in this package)
// must be clamped at creation; keys handed to Noise or WireGuard must not.
//
// (Taken from tailscale)
func clamp25519Private(b []byte) {
	b[0] &= 248
	b[31] = (b[31] & 127) | 64
}

// sealTo seals cleartext into a NaCl box from priv to pub, prepending
// the random 24-byte nonce to the returned ciphertext.
func sealTo(priv, pub NakedKey, cleartext []byte) []byte {
	var nonce [24]byte
	rand(nonce[:])

	return box.Seal(nonce[:], cleartext, &nonce, (*[32]byte)(&pub), (*[32]byte)(&priv))
}

// openFrom opens a ciphertext created by sealTo, from pub to priv.
func openFrom(priv, pub NakedKey, ciphertext []byte) (cleartext []byte, ok bool) {
	if len(ciphertext) < 24 {
		return nil, false
	}

	nonce := (*[24]byte)(ciphertext)

	return box.Open(nil, ciphertext[24:], nonce, (*[32]byte)(&pub), (*[32]byte)(&priv))
}

func appendHexKey(dst []byte, prefix string, key []byte) []byte {
	dst = append(dst, prefix...)
	dst = append(dst, hex.EncodeToString(key)...)
	return dst
}

func parseHex(out []byte, in, prefix mem.RO) error {
	if !mem.HasPrefix(in, prefix) {
		return fmt.Errorf("key hex string doesn't have expected type prefix %s", prefix.StringCopy())
	}

	in = in.SliceFrom(prefix.Len())
	if want := len(out) * 2; in.Len() != want {
		return fmt.Errorf("key hex has the wrong size, got %d want %d", in.Len(), want)
	}

	for i := range out {
		a, ok1 := fromHexChar(in.At(i*2 + 0))
		b, ok2 := fromHexChar(in.At(i*2 + 1))
		if !ok1 || !ok2 {
			return errors.New("invalid hex character in key")
		}
		out[i] = (a << 4) | b
	}

	return nil
}

// fromHexChar converts a hex character into its value and a success flag.
func fromHexChar(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}

	return 0, false
}
