package key

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// The current supported version of the encrypted keystore format on disk.
const keystoreFormatVersion = 1

const keystoreSaltLen = 16

// ErrWrongPassphrase is returned when the passphrase is incorrect, or the
// ciphertext has been modified or corrupted.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted keystore")

// keystoreBlob is the on-disk JSON structure holding the ciphertext and KDF parameters.
type keystoreBlob struct {
	V       int    `json:"v"`
	Salt    []byte `json:"salt"`
	Time    uint32 `json:"argon_time"`
	Mem     uint32 `json:"argon_mem"`
	Threads uint8  `json:"argon_threads"`
	Cipher  []byte `json:"cipher"`
}

// keystoreContent is the cleartext inside the blob.
type keystoreContent struct {
	DevicePrivate DevicePrivate `json:"device_private"`
	DisplayName   string        `json:"display_name"`
}

func defaultKDFParams() (time, mem uint32, threads uint8) {
	return 1, 1 << 16, 4
}

func deriveKeystoreKey(passphrase string, salt []byte, time, mem uint32, threads uint8) []byte {
	return argon2.IDKey([]byte(passphrase), salt, time, mem, threads, chacha20poly1305.KeySize)
}

// SealKeystore encrypts the device private key and display name under a
// passphrase-derived key, for persisting the device identity at rest.
func SealKeystore(priv DevicePrivate, displayName, passphrase string) ([]byte, error) {
	if priv.IsZero() {
		return nil, errors.New("refusing to persist a zero device key")
	}

	raw, err := json.Marshal(keystoreContent{
		DevicePrivate: priv,
		DisplayName:   displayName,
	})
	if err != nil {
		return nil, err
	}

	var salt [keystoreSaltLen]byte
	rand(salt[:])

	time, mem, threads := defaultKDFParams()

	aead, err := chacha20poly1305.New(deriveKeystoreKey(passphrase, salt[:], time, mem, threads))
	if err != nil {
		return nil, err
	}

	// Zero nonce; the salt-bound key is single-use.
	var nonce [chacha20poly1305.NonceSize]byte
	ct := aead.Seal(nil, nonce[:], raw, salt[:])

	return json.Marshal(keystoreBlob{
		V:       keystoreFormatVersion,
		Salt:    salt[:],
		Time:    time,
		Mem:     mem,
		Threads: threads,
		Cipher:  ct,
	})
}

// OpenKeystore decrypts a blob produced by SealKeystore.
func OpenKeystore(blob []byte, passphrase string) (DevicePrivate, string, error) {
	var bl keystoreBlob

	if err := json.Unmarshal(blob, &bl); err != nil {
		return DevicePrivate{}, "", fmt.Errorf("could not parse keystore: %w", err)
	}

	if bl.V > keystoreFormatVersion {
		return DevicePrivate{}, "", fmt.Errorf("unsupported keystore version %d", bl.V)
	}

	aead, err := chacha20poly1305.New(deriveKeystoreKey(passphrase, bl.Salt, bl.Time, bl.Mem, bl.Threads))
	if err != nil {
		return DevicePrivate{}, "", err
	}

	var nonce [chacha20poly1305.NonceSize]byte
	raw, err := aead.Open(nil, nonce[:], bl.Cipher, bl.Salt)
	if err != nil {
		return DevicePrivate{}, "", ErrWrongPassphrase
	}

	var content keystoreContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return DevicePrivate{}, "", fmt.Errorf("could not parse keystore content: %w", err)
	}

	return content.DevicePrivate, content.DisplayName, nil
}

// SaveKeystore writes a sealed keystore to path with owner-only permissions.
func SaveKeystore(path string, priv DevicePrivate, displayName, passphrase string) error {
	blob, err := SealKeystore(priv, displayName, passphrase)
	if err != nil {
		return err
	}

	return os.WriteFile(path, blob, 0o600)
}

// LoadKeystore reads and opens a sealed keystore from path.
func LoadKeystore(path, passphrase string) (DevicePrivate, string, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return DevicePrivate{}, "", err
	}

	return OpenKeystore(blob, passphrase)
}
