package key

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"go4.org/mem"
)

// DevicePublic is the public half of a device's long-lived keypair;
// it is the device identifier that gets transmitted to peers and
// published in rendezvous records.
type DevicePublic NakedKey

func (d DevicePublic) Debug() string {
	return fmt.Sprintf("%x", d)
}

func (d DevicePublic) HexString() string {
	return hex.EncodeToString(d[:])
}

// ShortString returns an abbreviated form for display purposes.
func (d DevicePublic) ShortString() string {
	return hex.EncodeToString(d[:4])
}

// IsZero reports whether k is the zero value.
func (d DevicePublic) IsZero() bool {
	return d == DevicePublic{}
}

// MakeDevicePublic parses a 32-byte raw value as a DevicePublic.
//
// This should be used only when deserializing a DevicePublic from a
// binary protocol.
func MakeDevicePublic(raw [32]byte) DevicePublic {
	return raw
}

func (d DevicePublic) ToByteSlice() []byte {
	return d[:]
}

// AppendText implements encoding.TextAppender. It appends a typed prefix
// followed by hex encoded represtation of k to b.
func (d DevicePublic) AppendText(b []byte) ([]byte, error) {
	return appendHexKey(b, devicePublicHexPrefix, d[:]), nil
}

// MarshalText implements encoding.TextMarshaler. It returns a typed prefix
// followed by a hex encoded representation of k.
func (d DevicePublic) MarshalText() ([]byte, error) {
	return d.AppendText(nil)
}

// UnmarshalText implements encoding.TextUnmarshaler. It expects a typed prefix
// followed by a hex encoded representation of k.
func (d *DevicePublic) UnmarshalText(b []byte) error {
	return parseHex(d[:], mem.B(b), mem.S(devicePublicHexPrefix))
}

func UnmarshalDevicePublic(s string) (*DevicePublic, error) {
	if !strings.HasSuffix(s, "\"") && !strings.HasPrefix(s, "\"") {
		s = fmt.Sprintf("\"%s\"", s)
	}

	pub := new(DevicePublic)

	if err := json.Unmarshal([]byte(s), pub); err != nil {
		return nil, err
	}

	return pub, nil
}

func (d DevicePublic) Marshal() string {
	b, _ := json.Marshal(d)
	return string(b)
}
