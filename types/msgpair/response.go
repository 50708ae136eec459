package msgpair

import (
	"bytes"
	"fmt"

	"github.com/edup2p/pairsok/types/pairing"
)

// Response is the issuer-to-consumer half of the handshake.
type Response struct {
	Prefix pairing.Prefix

	Accepted bool

	DisplayName string

	// NonceEcho must equal the request's nonce; a stale or mismatched echo
	// invalidates the whole handshake.
	NonceEcho Nonce
}

func (r *Response) MarshalPairingMessage() []byte {
	accepted := byte(0)
	if r.Accepted {
		accepted = 1
	}

	return bytes.Join([][]byte{
		{byte(v1), byte(ResponseMessage)},
		r.Prefix[:],
		{accepted},
		r.NonceEcho[:],
		[]byte(r.DisplayName),
	}, nil)
}

func (r *Response) Debug() string {
	return fmt.Sprintf("response prefix=%s accepted=%v name=%q",
		r.Prefix.Debug(), r.Accepted, r.DisplayName)
}
