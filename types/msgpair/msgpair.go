// Package msgpair contains the pairing handshake message definitions and
// parsing methods; exactly one request/response exchange runs per session,
// over whichever connection tier was established.
//
// Pairing message interface definitions are sealed within this package.
package msgpair

import (
	"github.com/edup2p/pairsok/types/key"
	"github.com/edup2p/pairsok/types/pairing"
)

type PairingMessage interface {
	MarshalPairingMessage() []byte

	Debug() string
}

// ClearMessage represents a full pairing wire message in decrypted view
type ClearMessage struct {
	// Prefix is the token prefix from the clear wire header.
	Prefix pairing.Prefix

	// Session is the sender's ephemeral session key from the wire header.
	Session key.SessionPublic

	Message PairingMessage
}
