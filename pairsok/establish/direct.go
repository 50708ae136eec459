package establish

import (
	"context"
	"errors"
	"net/netip"
	"slices"
	"time"

	"github.com/edup2p/pairsok/types"
	"github.com/edup2p/pairsok/types/dial"
	"github.com/edup2p/pairsok/types/ifaces"
	"github.com/edup2p/pairsok/types/key"
	"go4.org/netipx"
)

// directTier dials the peer's advertised addresses directly; covers
// same-network peers and publicly reachable ones.
type directTier struct {
	timeout time.Duration
}

func (t *directTier) Tier() ifaces.Tier {
	return ifaces.TierDirect
}

func (t *directTier) Attempt(ctx context.Context, _ key.DevicePublic, hints []netip.AddrPort) (ifaces.Conn, error) {
	if len(hints) == 0 {
		return nil, errors.New("no address hints")
	}

	conn, err := dial.Race(ctx, OrderHints(hints), t.timeout)
	if err != nil {
		return nil, err
	}

	return NewConn(conn, ifaces.TierDirect), nil
}

// lanSet covers the address space where a hint most likely means "same
// network as you": loopback, RFC1918, link-local, and ULA.
var lanSet = func() *netipx.IPSet {
	var b netipx.IPSetBuilder

	for _, p := range []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	} {
		b.AddPrefix(netip.MustParsePrefix(p))
	}

	set, err := b.IPSet()
	if err != nil {
		panic(err)
	}

	return set
}()

// OrderHints sorts address hints local-network-first, preserving the
// publisher's relative order within each class.
func OrderHints(hints []netip.AddrPort) []netip.AddrPort {
	hints = types.NormaliseAddrPortSlice(slices.Clone(hints))

	slices.SortStableFunc(hints, func(a, b netip.AddrPort) int {
		al, bl := lanSet.Contains(a.Addr().Unmap()), lanSet.Contains(b.Addr().Unmap())
		switch {
		case al && !bl:
			return -1
		case !al && bl:
			return 1
		default:
			return 0
		}
	})

	return hints
}
