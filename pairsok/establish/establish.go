// Package establish turns a resolved peer identity plus address hints into
// a live connection, by walking a fixed, ordered list of strategies:
// direct dial, assisted hole-punch, then relay. Each tier gets its own
// timeout, each failure falls through to the next, and only exhaustion of
// all tiers is an error.
package establish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/edup2p/pairsok/types/ifaces"
	"github.com/edup2p/pairsok/types/key"
)

const (
	DefaultTierTimeout = time.Second * 10
)

// ErrUnreachable means every configured tier failed.
var ErrUnreachable = errors.New("peer unreachable on all tiers")

// TierDialer is one connection strategy.
type TierDialer interface {
	// Tier names the strategy's tier.
	Tier() ifaces.Tier

	// Attempt tries to reach the peer within ctx's deadline.
	Attempt(ctx context.Context, peer key.DevicePublic, hints []netip.AddrPort) (ifaces.Conn, error)
}

type Establisher struct {
	tiers []TierDialer

	tierTimeout time.Duration
}

// Options carries the collaborator backends; nil backends simply remove
// their tier from the ladder.
type Options struct {
	// DirectTimeout bounds each direct dial race; zero means the default.
	DirectTimeout time.Duration

	// Punch, when set, enables the hole-punch tier.
	Punch ifaces.PunchAssist

	// Relay, when set, enables the relay tier.
	Relay ifaces.RelayDialer

	// TierTimeout bounds each tier attempt; zero means the default.
	TierTimeout time.Duration
}

func New(opts Options) *Establisher {
	tiers := []TierDialer{
		&directTier{timeout: opts.DirectTimeout},
	}

	if opts.Punch != nil {
		tiers = append(tiers, &punchTier{assist: opts.Punch})
	}

	if opts.Relay != nil {
		tiers = append(tiers, &relayTier{dialer: opts.Relay})
	}

	tt := opts.TierTimeout
	if tt == 0 {
		tt = DefaultTierTimeout
	}

	return &Establisher{
		tiers:       tiers,
		tierTimeout: tt,
	}
}

// NewWithTiers builds an establisher from an explicit tier list; for tests
// and callers with custom strategies.
func NewWithTiers(tierTimeout time.Duration, tiers ...TierDialer) *Establisher {
	if tierTimeout == 0 {
		tierTimeout = DefaultTierTimeout
	}

	return &Establisher{
		tiers:       tiers,
		tierTimeout: tierTimeout,
	}
}

func (e *Establisher) Establish(ctx context.Context, peer key.DevicePublic, hints []netip.AddrPort) (ifaces.Conn, error) {
	var errs []error

	for _, tier := range e.tiers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tctx, cancel := context.WithTimeout(ctx, e.tierTimeout)
		conn, err := tier.Attempt(tctx, peer, hints)
		cancel()

		if err == nil {
			slog.Debug("established connection",
				"peer", peer.ShortString(),
				"tier", tier.Tier().String())
			return conn, nil
		}

		slog.Debug("tier failed, falling through",
			"peer", peer.ShortString(),
			"tier", tier.Tier().String(),
			"err", err)

		errs = append(errs, fmt.Errorf("%s: %w", tier.Tier(), err))
	}

	return nil, fmt.Errorf("%w: %w", ErrUnreachable, errors.Join(errs...))
}

var _ ifaces.Establisher = (*Establisher)(nil)
