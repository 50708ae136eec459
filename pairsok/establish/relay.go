package establish

import (
	"context"
	"net/netip"

	"github.com/edup2p/pairsok/types/ifaces"
	"github.com/edup2p/pairsok/types/key"
)

// relayTier reaches the peer through a third-party relay; the tier of last
// resort, but never a blocker for pairing.
type relayTier struct {
	dialer ifaces.RelayDialer
}

func (t *relayTier) Tier() ifaces.Tier {
	return ifaces.TierRelay
}

func (t *relayTier) Attempt(ctx context.Context, peer key.DevicePublic, _ []netip.AddrPort) (ifaces.Conn, error) {
	conn, err := t.dialer.DialPeer(ctx, peer)
	if err != nil {
		return nil, err
	}

	return NewConn(conn, ifaces.TierRelay), nil
}
