// Package pairsok pairs two devices that share nothing but a short code:
// one side generates the code and publishes a rendezvous record under it,
// the other enters the code, resolves the record, connects through a ladder
// of strategies, and both sides confirm an end-to-end encrypted handshake.
package pairsok

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/edup2p/pairsok/pairsok/actors"
	"github.com/edup2p/pairsok/pairsok/establish"
	"github.com/edup2p/pairsok/types"
	"github.com/edup2p/pairsok/types/directory"
	"github.com/edup2p/pairsok/types/ifaces"
	"github.com/edup2p/pairsok/types/key"
	"github.com/edup2p/pairsok/types/pairing"
	"github.com/edup2p/pairsok/types/sharecode"
)

// ErrEngineStopped is returned by operations on an engine whose context has
// ended.
var ErrEngineStopped = errors.New("engine stopped")

type EngineOptions struct {
	Ctx context.Context

	// DevPriv is this device's long-lived identity; a fresh one is
	// generated when zero.
	DevPriv key.DevicePrivate

	DisplayName string

	// Store is the external rendezvous directory backend.
	Store directory.Store

	// Listener accepts inbound pairing connections; optional, a device that
	// only ever enters codes doesn't need one.
	Listener net.Listener

	// AdvertiseAddrs are the reachability hints put in published records.
	// When empty, the listener's own address is used.
	AdvertiseAddrs []netip.AddrPort

	// Punch and Relay are the optional connection-ladder collaborators.
	Punch ifaces.PunchAssist
	Relay ifaces.RelayDialer

	// ConfirmResolvedPeer makes code entry stop for a local decision after
	// resolving, before anything is sent to the peer.
	ConfirmResolvedPeer bool

	SessionTTL       time.Duration
	ResolveTimeout   time.Duration
	EstablishTimeout time.Duration
	HandshakeTimeout time.Duration
}

type Engine struct {
	ctx    context.Context
	ctxCan context.CancelFunc

	devPriv key.DevicePrivate

	man *actors.PairingManager

	listener  net.Listener
	advertise []netip.AddrPort

	started bool
}

// NewEngine creates a new engine and initiates it; Start makes it live.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("cannot initialise pairsok with nil directory store")
	}

	pCtx := opts.Ctx
	if pCtx == nil {
		pCtx = context.Background()
	}
	ctx, ctxCan := context.WithCancel(pCtx)

	devPriv := opts.DevPriv
	if devPriv.IsZero() {
		devPriv = key.NewDevice()
	}

	advertise := opts.AdvertiseAddrs
	if len(advertise) == 0 && opts.Listener != nil {
		if ap, err := netip.ParseAddrPort(opts.Listener.Addr().String()); err == nil {
			advertise = []netip.AddrPort{types.NormaliseAddrPort(ap)}
		}
	}

	e := &Engine{
		ctx:    ctx,
		ctxCan: ctxCan,

		devPriv: devPriv,

		listener:  opts.Listener,
		advertise: advertise,
	}

	e.man = actors.NewPairingManager(ctx, actors.PairingManagerOpts{
		DeviceKey:   devPriv.Public(),
		DisplayName: opts.DisplayName,

		Directory: directory.New(opts.Store),
		Establisher: establish.New(establish.Options{
			Punch: opts.Punch,
			Relay: opts.Relay,
		}),

		ConfirmResolvedPeer: opts.ConfirmResolvedPeer,

		SessionTTL:       opts.SessionTTL,
		ResolveTimeout:   opts.ResolveTimeout,
		EstablishTimeout: opts.EstablishTimeout,
		HandshakeTimeout: opts.HandshakeTimeout,
	})

	return e, nil
}

func (e *Engine) Start() error {
	if e.started {
		return errors.New("already started")
	}

	go e.man.Run()

	if e.listener != nil {
		go e.acceptLoop()
	}

	e.started = true

	return nil
}

// Stop cancels the engine; in-flight sessions end, published records get a
// best-effort unpublish.
func (e *Engine) Stop() {
	e.ctxCan()
}

// DeviceKey is this device's public identifier.
func (e *Engine) DeviceKey() key.DevicePublic {
	return e.devPriv.Public()
}

// Updates is the session-state-changed notification stream.
func (e *Engine) Updates() <-chan pairing.Update {
	return e.man.Updates()
}

// ======================================================================================================
// Pairing operations; all of them round-trip through the manager's loop.

// GenerateCode starts an issuer session: a fresh token, a published
// rendezvous record, and the share code for the user to hand over.
// A zero ttl means the engine default.
func (e *Engine) GenerateCode(ttl time.Duration) (code string, prefix pairing.Prefix, err error) {
	reply := make(chan actors.GenerateCodeResult, 1)

	res, err := roundTrip(e, &actors.CmdGenerateCode{
		TTL:       ttl,
		Addresses: e.advertise,
		Reply:     reply,
	}, reply)
	if err != nil {
		return "", pairing.Prefix{}, err
	}

	return res.Code, res.Prefix, res.Err
}

// GenerateLocalCode is GenerateCode without the directory: the returned
// record is meant to be advertised over local-network discovery, and the
// peer feeds it back through PairWithLocal.
func (e *Engine) GenerateLocalCode(ttl time.Duration) (code string, rec directory.Record, err error) {
	reply := make(chan actors.GenerateCodeResult, 1)

	res, err := roundTrip(e, &actors.CmdGenerateCode{
		TTL:       ttl,
		Addresses: e.advertise,
		Local:     true,
		Reply:     reply,
	}, reply)
	if err != nil {
		return "", directory.Record{}, err
	}

	return res.Code, res.Record, res.Err
}

// EnterCode starts a consumer session for a share code received out of
// band.
func (e *Engine) EnterCode(code string) (pairing.Prefix, error) {
	prefix, err := sharecode.Decode(code)
	if err != nil {
		return pairing.Prefix{}, err
	}

	reply := make(chan error, 1)

	res, err := roundTrip(e, &actors.CmdEnterCode{Prefix: prefix, Reply: reply}, reply)
	if err != nil {
		return pairing.Prefix{}, err
	}

	return prefix, res
}

// PairWithLocal starts a consumer session from a record obtained through
// local-network discovery, skipping the directory.
func (e *Engine) PairWithLocal(code string, rec directory.Record) (pairing.Prefix, error) {
	prefix, err := sharecode.Decode(code)
	if err != nil {
		return pairing.Prefix{}, err
	}

	reply := make(chan error, 1)

	res, err := roundTrip(e, &actors.CmdPairLocal{Prefix: prefix, Rec: rec, Reply: reply}, reply)
	if err != nil {
		return pairing.Prefix{}, err
	}

	return prefix, res
}

// Confirm approves the pending decision on a session: the issuer's "accept
// this request", or (when configured) the consumer's "this is the right
// peer".
func (e *Engine) Confirm(prefix pairing.Prefix) error {
	reply := make(chan error, 1)
	return flatten(roundTrip(e, &actors.CmdConfirm{Prefix: prefix, Reply: reply}, reply))
}

// Reject denies the pending decision on a session.
func (e *Engine) Reject(prefix pairing.Prefix) error {
	reply := make(chan error, 1)
	return flatten(roundTrip(e, &actors.CmdReject{Prefix: prefix, Reply: reply}, reply))
}

// Cancel ends a session from any state; cancelling a finalised session is a
// no-op.
func (e *Engine) Cancel(prefix pairing.Prefix) error {
	reply := make(chan error, 1)
	return flatten(roundTrip(e, &actors.CmdCancel{Prefix: prefix, Reply: reply}, reply))
}

func flatten(res, err error) error {
	if err != nil {
		return err
	}
	return res
}

// Session returns a snapshot of one session, nil if unknown.
func (e *Engine) Session(prefix pairing.Prefix) *pairing.Session {
	reply := make(chan *pairing.Session, 1)

	sess, err := roundTrip(e, &actors.CmdGetSession{Prefix: prefix, Reply: reply}, reply)
	if err != nil {
		return nil
	}

	return sess
}

// Sessions returns snapshots of all sessions, live and recently finalised.
func (e *Engine) Sessions() []pairing.Session {
	reply := make(chan []pairing.Session, 1)

	sessions, err := roundTrip(e, &actors.CmdListSessions{Reply: reply}, reply)
	if err != nil {
		return nil
	}

	return sessions
}

// TakeConn hands over the established connection of a confirmed session;
// nil if there is none (or it was already taken). The caller owns it from
// then on.
func (e *Engine) TakeConn(prefix pairing.Prefix) ifaces.Conn {
	reply := make(chan ifaces.Conn, 1)

	conn, err := roundTrip(e, &actors.CmdTakeConn{Prefix: prefix, Reply: reply}, reply)
	if err != nil {
		return nil
	}

	return conn
}

func roundTrip[T any](e *Engine, cmd actors.ActorMessage, reply chan T) (T, error) {
	var zero T

	select {
	case e.man.Inbox() <- cmd:
	case <-e.ctx.Done():
		return zero, ErrEngineStopped
	}

	select {
	case res := <-reply:
		return res, nil
	case <-e.ctx.Done():
		return zero, ErrEngineStopped
	}
}

// ======================================================================================================
// Inbound connections

func (e *Engine) acceptLoop() {
	for {
		nc, err := e.listener.Accept()
		if err != nil {
			if types.IsContextDone(e.ctx) || errors.Is(err, net.ErrClosed) {
				return
			}

			slog.Warn("engine: accept failed", "err", err)
			continue
		}

		go e.handleInbound(nc)
	}
}

// handleInbound reads the first frame off an accepted connection and hands
// both to the manager; everything after that first frame is the manager's
// business.
func (e *Engine) handleInbound(nc net.Conn) {
	conn := establish.NewConn(nc, ifaces.TierDirect)

	ctx, cancel := context.WithTimeout(e.ctx, actors.DefaultHandshakeTimeout)
	defer cancel()

	pkt, err := conn.Receive(ctx)
	if err != nil {
		slog.Debug("engine: inbound connection died before its first frame", "err", err)
		_ = conn.Close()
		return
	}

	select {
	case e.man.Inbox() <- &actors.InboundPacket{Conn: conn, Pkt: pkt}:
	case <-e.ctx.Done():
		_ = conn.Close()
	}
}
