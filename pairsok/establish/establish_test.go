package establish

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/edup2p/pairsok/types/ifaces"
	"github.com/edup2p/pairsok/types/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTier is a scripted TierDialer.
type mockTier struct {
	tier ifaces.Tier
	err  error

	attempts int
}

func (m *mockTier) Tier() ifaces.Tier {
	return m.tier
}

func (m *mockTier) Attempt(_ context.Context, _ key.DevicePublic, _ []netip.AddrPort) (ifaces.Conn, error) {
	m.attempts++

	if m.err != nil {
		return nil, m.err
	}

	a, b := net.Pipe()
	_ = b

	return NewConn(a, m.tier), nil
}

var testPeer = key.NewDevice().Public()

func TestEstablishFirstTierWins(t *testing.T) {
	direct := &mockTier{tier: ifaces.TierDirect}
	relay := &mockTier{tier: ifaces.TierRelay}

	e := NewWithTiers(time.Second, direct, relay)

	conn, err := e.Establish(context.Background(), testPeer, nil)
	require.NoError(t, err)

	assert.Equal(t, ifaces.TierDirect, conn.Tier())
	assert.Equal(t, 1, direct.attempts)
	assert.Equal(t, 0, relay.attempts, "later tiers should not be tried once one succeeds")
}

func TestEstablishFallsThroughToRelay(t *testing.T) {
	direct := &mockTier{tier: ifaces.TierDirect, err: errors.New("connection refused")}
	punch := &mockTier{tier: ifaces.TierHolePunch, err: errors.New("punch failed")}
	relay := &mockTier{tier: ifaces.TierRelay}

	e := NewWithTiers(time.Second, direct, punch, relay)

	conn, err := e.Establish(context.Background(), testPeer, nil)
	require.NoError(t, err)

	assert.Equal(t, ifaces.TierRelay, conn.Tier(), "the achieved tier should be reported, not the preferred one")
	assert.Equal(t, 1, direct.attempts)
	assert.Equal(t, 1, punch.attempts)
}

func TestEstablishExhaustionJoinsErrors(t *testing.T) {
	errDirect := errors.New("no route to host")
	errRelay := errors.New("relay unavailable")

	e := NewWithTiers(time.Second,
		&mockTier{tier: ifaces.TierDirect, err: errDirect},
		&mockTier{tier: ifaces.TierRelay, err: errRelay},
	)

	_, err := e.Establish(context.Background(), testPeer, nil)

	require.ErrorIs(t, err, ErrUnreachable)
	assert.ErrorIs(t, err, errDirect)
	assert.ErrorIs(t, err, errRelay)
}

func TestEstablishRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewWithTiers(time.Second, &mockTier{tier: ifaces.TierDirect})

	_, err := e.Establish(ctx, testPeer, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewBuildsLadderFromOptions(t *testing.T) {
	// Bare options: only the direct tier.
	e := New(Options{})
	assert.Len(t, e.tiers, 1)

	e = New(Options{Punch: punchFunc(nil), Relay: relayFunc(nil)})
	require.Len(t, e.tiers, 3)

	assert.Equal(t, ifaces.TierDirect, e.tiers[0].Tier())
	assert.Equal(t, ifaces.TierHolePunch, e.tiers[1].Tier())
	assert.Equal(t, ifaces.TierRelay, e.tiers[2].Tier())
}

type punchFunc func(ctx context.Context, peer key.DevicePublic, hints []netip.AddrPort) (net.Conn, error)

func (f punchFunc) Punch(ctx context.Context, peer key.DevicePublic, hints []netip.AddrPort) (net.Conn, error) {
	return f(ctx, peer, hints)
}

type relayFunc func(ctx context.Context, peer key.DevicePublic) (net.Conn, error)

func (f relayFunc) DialPeer(ctx context.Context, peer key.DevicePublic) (net.Conn, error) {
	return f(ctx, peer)
}

func TestOrderHintsLANFirst(t *testing.T) {
	public1 := netip.MustParseAddrPort("203.0.113.4:7133")
	public2 := netip.MustParseAddrPort("198.51.100.9:7133")
	lan := netip.MustParseAddrPort("192.168.1.10:7133")
	loopback := netip.MustParseAddrPort("127.0.0.1:7133")

	got := OrderHints([]netip.AddrPort{public1, lan, public2, loopback})

	assert.Equal(t, []netip.AddrPort{lan, loopback, public1, public2}, got,
		"LAN hints first, preserving relative order within each class")
}

func TestOrderHintsDoesNotMutateInput(t *testing.T) {
	in := []netip.AddrPort{
		netip.MustParseAddrPort("203.0.113.4:7133"),
		netip.MustParseAddrPort("10.0.0.2:7133"),
	}

	_ = OrderHints(in)

	assert.Equal(t, netip.MustParseAddrPort("203.0.113.4:7133"), in[0])
}

func TestFrameConnRoundtrip(t *testing.T) {
	a, b := net.Pipe()

	ca := NewConn(a, ifaces.TierDirect)
	cb := NewConn(b, ifaces.TierDirect)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg := []byte("one framed message")

	go func() {
		_ = ca.Send(ctx, msg)
	}()

	got, err := cb.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestFrameConnRejectsOversizedFrame(t *testing.T) {
	a, _ := net.Pipe()
	c := NewConn(a, ifaces.TierDirect)

	err := c.Send(context.Background(), make([]byte, maxFrameLen+1))
	assert.Error(t, err)
}
