package key

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeystoreSealOpen(t *testing.T) {
	priv := NewDevice()

	blob, err := SealKeystore(priv, "living room box", "hunter2")
	require.NoError(t, err)

	back, name, err := OpenKeystore(blob, "hunter2")
	require.NoError(t, err)

	assert.True(t, priv.Equal(back))
	assert.Equal(t, "living room box", name)
}

func TestKeystoreWrongPassphrase(t *testing.T) {
	blob, err := SealKeystore(NewDevice(), "", "correct")
	require.NoError(t, err)

	_, _, err = OpenKeystore(blob, "incorrect")
	assert.ErrorIs(t, err, ErrWrongPassphrase)
}

func TestKeystoreTamperDetected(t *testing.T) {
	blob, err := SealKeystore(NewDevice(), "", "pass")
	require.NoError(t, err)

	// Flip one byte of the ciphertext region.
	tampered := []byte(string(blob))
	tampered[len(tampered)/2] ^= 0x01

	_, _, err = OpenKeystore(tampered, "pass")
	assert.Error(t, err)
}

func TestKeystoreRefusesZeroKey(t *testing.T) {
	_, err := SealKeystore(DevicePrivate{}, "", "pass")
	assert.Error(t, err)
}

func TestKeystoreSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.keystore")

	priv := NewDevice()

	require.NoError(t, SaveKeystore(path, priv, "garage pi", "pass"))

	back, name, err := LoadKeystore(path, "pass")
	require.NoError(t, err)

	assert.True(t, priv.Equal(back))
	assert.Equal(t, "garage pi", name)
}
