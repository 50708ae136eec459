// Package dial races plain TCP dials across a peer's advertised address
// hints; the direct connection tier is built on it.
package dial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"
)

const DefaultConnectTimeout = time.Second * 10

// Race dials every addr in parallel and returns the first established
// connection, closing the losers. Only exhaustion of all addrs (or the
// timeout) fails.
func Race(ctx context.Context, addrs []netip.AddrPort, timeout time.Duration) (net.Conn, error) {
	if len(addrs) == 0 {
		return nil, errors.New("no addresses to dial")
	}

	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}

	type dialResult struct {
		c net.Conn
		e error
	}

	dialCtx, dialCancel := context.WithCancel(ctx)
	defer dialCancel()

	results := make(chan dialResult)

	returned := make(chan struct{})
	defer close(returned)

	for _, ap := range addrs {
		ap := ap
		go func() {
			conn, err := dialOneTCP(dialCtx, ap)

			select {
			case results <- dialResult{c: conn, e: err}:
			case <-returned:
				if conn != nil {
					if err := conn.Close(); err != nil {
						slog.Error("failed to close tcp connection while multi-dialing", "err", err)
					}
				}
			}
		}()
	}

	// Start the timer for the fallback racer.
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var errs []error

	for {
		select {
		case <-timer.C:
			// Timeout
			return nil, fmt.Errorf("dial timeout: %w", errors.Join(errs...))
		case res := <-results:
			if res.e == nil {
				return res.c, nil
			} else {
				errs = append(errs, res.e)

				if len(errs) >= len(addrs) {
					return nil, fmt.Errorf("dial failure: %w", errors.Join(errs...))
				}
			}
		}
	}
}

func dialOneTCP(ctx context.Context, ap netip.AddrPort) (net.Conn, error) {
	// For some reason, DialTCP does not have a *Context variant.
	// So for now we put the AddrPort back into a string and pass it to our dialer.
	// see: https://github.com/golang/go/issues/49097

	var d net.Dialer
	d.LocalAddr = nil
	d.KeepAlive = time.Second * 10

	return d.DialContext(ctx, "tcp", ap.String())
}
