package establish

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/edup2p/pairsok/types/ifaces"
)

// maxFrameLen bounds one framed message; handshake messages are tiny, so
// anything near the limit is garbage.
const maxFrameLen = 1 << 14

// frameConn frames whole messages onto a byte stream with a 2-byte
// big-endian length prefix, and remembers the tier it was achieved on.
type frameConn struct {
	nc   net.Conn
	tier ifaces.Tier
}

// NewConn wraps a raw byte stream into a message-framed Conn.
func NewConn(nc net.Conn, tier ifaces.Tier) ifaces.Conn {
	return &frameConn{
		nc:   nc,
		tier: tier,
	}
}

func (c *frameConn) Send(ctx context.Context, pkt []byte) error {
	if len(pkt) > maxFrameLen {
		return fmt.Errorf("frame too large: %d", len(pkt))
	}

	if err := c.applyDeadline(ctx, c.nc.SetWriteDeadline); err != nil {
		return err
	}

	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(pkt)))

	if _, err := c.nc.Write(hdr[:]); err != nil {
		return err
	}

	_, err := c.nc.Write(pkt)
	return err
}

func (c *frameConn) Receive(ctx context.Context) ([]byte, error) {
	if err := c.applyDeadline(ctx, c.nc.SetReadDeadline); err != nil {
		return nil, err
	}

	var hdr [2]byte
	if _, err := io.ReadFull(c.nc, hdr[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint16(hdr[:])
	if length > maxFrameLen {
		return nil, fmt.Errorf("frame too large: %d", length)
	}

	pkt := make([]byte, length)
	if _, err := io.ReadFull(c.nc, pkt); err != nil {
		return nil, err
	}

	return pkt, nil
}

func (c *frameConn) applyDeadline(ctx context.Context, set func(time.Time) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		return set(deadline)
	}

	return set(time.Time{})
}

func (c *frameConn) Close() error {
	return c.nc.Close()
}

func (c *frameConn) Tier() ifaces.Tier {
	return c.tier
}
