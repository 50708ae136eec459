package msgpair

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/edup2p/pairsok/types/key"
	"github.com/edup2p/pairsok/types/pairing"
)

// Pairing wire header:
//   Magic (8) + Token Prefix (4) + Sender Session Key (32) + Nacl Box Nonce (24) + encrypted user message.
//
// Pairing user messages:
//   Version (1) + Type (1) + Prefix (4) + Data
//
// The token prefix rides in the clear header so a receiver can look up its
// session (and that session's keys) before it can decrypt; it is repeated
// inside the box so the binding is authenticated.

const wireHeaderLen = len(Magic) + pairing.PrefixLen + key.Len + NaclBoxNonceLen

// ErrInvalidHandshake is the single error surfaced for any malformed,
// mismatched, or undecryptable handshake message. Deliberately carries no
// detail about which check failed.
var ErrInvalidHandshake = errors.New("invalid handshake")

func LooksLikePairingWireMessage(pkt []byte) bool {
	if len(pkt) < wireHeaderLen {
		// too short, cant possibly be a wire message
		return false
	}

	return string(pkt[:len(Magic)]) == Magic
}

// Pack seals m into a full wire message, from the session keypair that
// produced shared, for the token prefix the session runs under.
func Pack(shared key.SessionShared, from key.SessionPublic, prefix pairing.Prefix, m PairingMessage) []byte {
	return bytes.Join([][]byte{MagicBytes, prefix[:], from.ToByteSlice(), shared.Seal(m.MarshalPairingMessage())}, nil)
}

// ParseHeader splits a wire message into its clear parts. The ciphertext
// still needs OpenMessage with the right shared key.
func ParseHeader(pkt []byte) (prefix pairing.Prefix, sender key.SessionPublic, ciphertext []byte, err error) {
	if !LooksLikePairingWireMessage(pkt) {
		err = ErrInvalidHandshake
		return
	}

	pkt = pkt[len(Magic):]
	prefix = pairing.MakePrefix([pairing.PrefixLen]byte(pkt[:pairing.PrefixLen]))
	pkt = pkt[pairing.PrefixLen:]
	sender = key.MakeSessionPublic([key.Len]byte(pkt[:key.Len]))
	ciphertext = pkt[key.Len:]

	return
}

// OpenMessage decrypts and parses the boxed part of a wire message.
func OpenMessage(shared key.SessionShared, prefix pairing.Prefix, sender key.SessionPublic, ciphertext []byte) (*ClearMessage, error) {
	clear, ok := shared.Open(ciphertext)
	if !ok {
		return nil, ErrInvalidHandshake
	}

	m, err := ParsePairingMessage(clear)
	if err != nil {
		return nil, err
	}

	return &ClearMessage{
		Prefix:  prefix,
		Session: sender,
		Message: m,
	}, nil
}

// Unpack is ParseHeader + OpenMessage for callers that already know the
// shared key, e.g. a consumer awaiting its response.
func Unpack(shared key.SessionShared, pkt []byte) (*ClearMessage, error) {
	prefix, sender, ciphertext, err := ParseHeader(pkt)
	if err != nil {
		return nil, err
	}

	return OpenMessage(shared, prefix, sender, ciphertext)
}

func ParsePairingMessage(usrMsg []byte) (PairingMessage, error) {
	if len(usrMsg) < 2+pairing.PrefixLen {
		return nil, ErrInvalidHandshake
	}

	version := usrMsg[0]
	msgType := usrMsg[1]

	specificMsg := usrMsg[2:]

	if VersionMarker(version) != v1 {
		return nil, fmt.Errorf("%w: invalid version %x", ErrInvalidHandshake, version)
	}

	switch MessageType(msgType) {
	case RequestMessage:
		return parseRequest(specificMsg)
	case ResponseMessage:
		return parseResponse(specificMsg)
	default:
		return nil, fmt.Errorf("%w: invalid message type %x", ErrInvalidHandshake, msgType)
	}
}

var errTooSmall = fmt.Errorf("%w: message too small", ErrInvalidHandshake)

func parseRequest(b []byte) (*Request, error) {
	if len(b) < pairing.PrefixLen+key.Len+8+NonceLen {
		return nil, errTooSmall
	}

	prefix := pairing.MakePrefix([pairing.PrefixLen]byte(b[:pairing.PrefixLen]))
	b = b[pairing.PrefixLen:]

	devKey := key.MakeDevicePublic([key.Len]byte(b[:key.Len]))
	b = b[key.Len:]

	deadline := time.Unix(int64(getUint64(b[:8])), 0)
	b = b[8:]

	nonce := Nonce(b[:NonceLen])
	b = b[NonceLen:]

	return &Request{
		Prefix:      prefix,
		DeviceKey:   devKey,
		DisplayName: string(b),
		Deadline:    deadline,
		Nonce:       nonce,
	}, nil
}

func parseResponse(b []byte) (*Response, error) {
	if len(b) < pairing.PrefixLen+1+NonceLen {
		return nil, errTooSmall
	}

	prefix := pairing.MakePrefix([pairing.PrefixLen]byte(b[:pairing.PrefixLen]))
	b = b[pairing.PrefixLen:]

	accepted := b[0] == 1
	b = b[1:]

	echo := Nonce(b[:NonceLen])
	b = b[NonceLen:]

	return &Response{
		Prefix:      prefix,
		Accepted:    accepted,
		DisplayName: string(b),
		NonceEcho:   echo,
	}, nil
}
