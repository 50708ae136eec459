package msgpair

import (
	"bytes"
	crand "crypto/rand"
	"fmt"
	"time"

	"github.com/edup2p/pairsok/types/key"
	"github.com/edup2p/pairsok/types/pairing"
)

type Nonce [NonceLen]byte

func NewNonce() Nonce {
	var n Nonce
	if _, err := crand.Read(n[:]); err != nil {
		panic(err)
	}
	return n
}

// Request is the consumer-to-issuer half of the handshake.
type Request struct {
	// Prefix binds the request to one token; it must match the prefix in
	// the clear wire header and the receiving session's own token.
	Prefix pairing.Prefix

	// DeviceKey is the initiator's device identifier.
	DeviceKey key.DevicePublic

	DisplayName string

	// Deadline is the session expiry the initiator believes applies,
	// unix seconds; the receiving side rejects requests past it on its
	// own clock.
	Deadline time.Time

	Nonce Nonce
}

func (r *Request) MarshalPairingMessage() []byte {
	deadline := make([]byte, 8)
	putUint64(deadline, uint64(r.Deadline.Unix()))

	return bytes.Join([][]byte{
		{byte(v1), byte(RequestMessage)},
		r.Prefix[:],
		r.DeviceKey[:],
		deadline,
		r.Nonce[:],
		[]byte(r.DisplayName),
	}, nil)
}

func (r *Request) Debug() string {
	return fmt.Sprintf("request prefix=%s device=%s name=%q deadline=%s",
		r.Prefix.Debug(), r.DeviceKey.ShortString(), r.DisplayName, r.Deadline.Format(time.RFC3339))
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
