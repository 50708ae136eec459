package establish

import (
	"context"
	"net/netip"

	"github.com/edup2p/pairsok/types/ifaces"
	"github.com/edup2p/pairsok/types/key"
)

// punchTier upgrades to a NAT-traversed path through the external
// hole-punch collaborator.
type punchTier struct {
	assist ifaces.PunchAssist
}

func (t *punchTier) Tier() ifaces.Tier {
	return ifaces.TierHolePunch
}

func (t *punchTier) Attempt(ctx context.Context, peer key.DevicePublic, hints []netip.AddrPort) (ifaces.Conn, error) {
	conn, err := t.assist.Punch(ctx, peer, hints)
	if err != nil {
		return nil, err
	}

	return NewConn(conn, ifaces.TierHolePunch), nil
}
