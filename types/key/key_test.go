package key

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceSealOpen(t *testing.T) {
	alice := NewDevice()
	bob := NewDevice()

	msg := []byte("hello bob")

	ct := alice.SealTo(bob.Public(), msg)

	pt, ok := bob.OpenFrom(alice.Public(), ct)
	require.True(t, ok)
	assert.Equal(t, msg, pt)

	// A third party cannot open it.
	eve := NewDevice()
	_, ok = eve.OpenFrom(alice.Public(), ct)
	assert.False(t, ok)
}

func TestSessionSharedSymmetric(t *testing.T) {
	a := NewSession()
	b := NewSession()

	ab := a.Shared(b.Public())
	ba := b.Shared(a.Public())

	assert.True(t, ab.Equal(ba), "the shared key should be the same from both ends")
}

func TestSessionSharedSealOpen(t *testing.T) {
	a := NewSession()
	b := NewSession()

	shared := a.Shared(b.Public())
	other := b.Shared(a.Public())

	msg := []byte("boxed across the pairing channel")

	ct := shared.Seal(msg)

	pt, ok := other.Open(ct)
	require.True(t, ok)
	assert.Equal(t, msg, pt)

	// Tampering breaks the box.
	ct[len(ct)-1] ^= 0x01
	_, ok = other.Open(ct)
	assert.False(t, ok)
}

func TestSessionSharedOpenRejectsForeign(t *testing.T) {
	a := NewSession()
	b := NewSession()
	c := NewSession()

	ct := a.Shared(b.Public()).Seal([]byte("not for c"))

	_, ok := c.Shared(a.Public()).Open(ct)
	assert.False(t, ok)
}

func TestDevicePublicTextRoundtrip(t *testing.T) {
	pub := NewDevice().Public()

	text, err := pub.MarshalText()
	require.NoError(t, err)
	assert.Contains(t, string(text), "devpub:")

	var back DevicePublic
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, pub, back)
}

func TestDevicePrivateTextRoundtrip(t *testing.T) {
	priv := NewDevice()

	text, err := priv.MarshalText()
	require.NoError(t, err)
	assert.Contains(t, string(text), "devpriv:")

	var back DevicePrivate
	require.NoError(t, back.UnmarshalText(text))
	assert.True(t, priv.Equal(back))
}

func TestSessionPublicTextRoundtrip(t *testing.T) {
	pub := NewSession().Public()

	text, err := pub.MarshalText()
	require.NoError(t, err)

	var back SessionPublic
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, pub, back)
}

func TestUnmarshalRejectsWrongPrefix(t *testing.T) {
	priv := NewDevice()

	text, err := priv.MarshalText()
	require.NoError(t, err)

	var pub DevicePublic
	assert.Error(t, pub.UnmarshalText(text), "a private key string should not parse as a public key")
}

func TestPublicIsStable(t *testing.T) {
	priv := NewDevice()

	assert.Equal(t, priv.Public(), priv.Public())
}
