package msgpair

// Magic is the 8 byte header of all pairing wire messages
// "🧦🔑"
// F0 9F A7 A6
// F0 9F 94 91
const Magic = "\xF0\x9F\xA7\xA6\xF0\x9F\x94\x91"

var MagicBytes = []byte(Magic)

type VersionMarker byte

const v1 = VersionMarker(0x1)

type MessageType byte

const (
	RequestMessage  = MessageType(0x00)
	ResponseMessage = MessageType(0x01)
)

const (
	NaclBoxNonceLen = 24

	// NonceLen is the request nonce width; the response echoes it to bind
	// itself to the specific request and defeat cross-session replay.
	NonceLen = 16
)
