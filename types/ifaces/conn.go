package ifaces

import (
	"context"
	"net"
	"net/netip"

	"github.com/edup2p/pairsok/types/key"
)

// Tier is the connectivity strategy a connection was established through.
// Descriptive only; it never blocks pairing.
type Tier uint8

const (
	TierNone Tier = iota
	TierDirect
	TierHolePunch
	TierRelay
)

func (t Tier) String() string {
	switch t {
	case TierDirect:
		return "direct"
	case TierHolePunch:
		return "holepunch"
	case TierRelay:
		return "relay"
	default:
		return "none"
	}
}

// Conn is one established, message-framed connection to a peer.
type Conn interface {
	// Send writes one whole message.
	Send(ctx context.Context, pkt []byte) error

	// Receive reads one whole message.
	Receive(ctx context.Context) ([]byte, error)

	Close() error

	// Tier reports how the connection was achieved.
	Tier() Tier
}

// Establisher reaches a resolved peer through an ordered preference of
// connection strategies.
type Establisher interface {
	// Establish tries each strategy in order and returns the first
	// connection achieved, or an error when every tier is exhausted.
	Establish(ctx context.Context, peer key.DevicePublic, hints []netip.AddrPort) (Conn, error)
}

// PunchAssist is the external hole-punch collaborator; when both peers
// support it, Punch upgrades to a direct path through their NATs.
type PunchAssist interface {
	Punch(ctx context.Context, peer key.DevicePublic, hints []netip.AddrPort) (net.Conn, error)
}

// RelayDialer is the external relay collaborator; DialPeer opens a relayed
// byte stream to the peer through a third party.
type RelayDialer interface {
	DialPeer(ctx context.Context, peer key.DevicePublic) (net.Conn, error)
}
