package key

import "encoding"

type canTextMarshal interface {
	// We need text encoding for JSON, BSON, and the on-disk keystore.

	encoding.TextMarshaler
	encoding.TextUnmarshaler
}

// DEVICE

var (
	// We need this to send keys over the wire via JSON/BSON
	_ canTextMarshal = &DevicePublic{}

	// We need this to persist device keys to disk.
	_ canTextMarshal = &DevicePrivate{}
)

// SESSION

var (
	// We need this to send keys over the wire
	_ canTextMarshal = &SessionPublic{}
)
