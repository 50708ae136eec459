package actors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/LukaGiorgadze/gonull"
	"github.com/edup2p/pairsok/pairsok/actors/pairstate"
	"github.com/edup2p/pairsok/types/directory"
	"github.com/edup2p/pairsok/types/ifaces"
	"github.com/edup2p/pairsok/types/key"
	"github.com/edup2p/pairsok/types/msgpair"
	"github.com/edup2p/pairsok/types/pairing"
	"github.com/edup2p/pairsok/types/sharecode"
	"github.com/google/uuid"
)

// ErrSessionNotFound is returned by commands aimed at an unknown prefix.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionFinalised is returned by commands aimed at a terminal session.
var ErrSessionFinalised = errors.New("session already finalised")

// PairingManager is the single actor that owns every pairing session.
//
// All session mutation happens on its event loop: commands from the
// presentation layer, inbound handshake messages, completions of the async
// tasks it dispatched, and the periodic sweep all arrive through one inbox.
// The tasks themselves (directory queries, dialing, handshake I/O) run in
// short-lived goroutines that never touch a session; they report back with
// a TaskDone tagged with the session generation they were started under.
type PairingManager struct {
	*ActorCommon

	devKey      key.DevicePublic
	displayName string

	dir *directory.Directory
	est ifaces.Establisher

	confirmResolvedPeer bool

	sessionTTL       time.Duration
	resolveTimeout   time.Duration
	establishTimeout time.Duration
	handshakeTimeout time.Duration

	registry *SessionRegistry

	// records holds the published issuer records, for periodic republish
	// and the exactly-once unpublish. Local-only sessions never enter it.
	records map[pairing.Prefix]directory.Record

	// pendingGenerates holds the generate commands whose reply waits on the
	// first successful publish; a collision redraws the token and moves the
	// entry to the fresh prefix.
	pendingGenerates map[pairing.Prefix]*pendingGenerate

	// conns holds the per-session connection the manager has adopted; it is
	// closed at any terminal state except confirmed, where it lingers for
	// pickup through CmdTakeConn.
	conns map[pairing.Prefix]ifaces.Conn

	updates chan pairing.Update
}

// PairingManagerOpts configures a PairingManager; zero durations fall back
// to the package defaults.
type PairingManagerOpts struct {
	DeviceKey   key.DevicePublic
	DisplayName string

	Directory   *directory.Directory
	Establisher ifaces.Establisher

	// ConfirmResolvedPeer makes consumer sessions stop for a local decision
	// after resolving, before anything is sent to the peer.
	ConfirmResolvedPeer bool

	SessionTTL       time.Duration
	GracePeriod      time.Duration
	ResolveTimeout   time.Duration
	EstablishTimeout time.Duration
	HandshakeTimeout time.Duration
}

func NewPairingManager(ctx context.Context, opts PairingManagerOpts) *PairingManager {
	return &PairingManager{
		ActorCommon: MakeCommon(ctx, PairManInboxChLen),

		devKey:      opts.DeviceKey,
		displayName: opts.DisplayName,

		dir: opts.Directory,
		est: opts.Establisher,

		confirmResolvedPeer: opts.ConfirmResolvedPeer,

		sessionTTL:       orDefault(opts.SessionTTL, DefaultSessionTTL),
		resolveTimeout:   orDefault(opts.ResolveTimeout, DefaultResolveTimeout),
		establishTimeout: orDefault(opts.EstablishTimeout, DefaultEstablishTimeout),
		handshakeTimeout: orDefault(opts.HandshakeTimeout, DefaultHandshakeTimeout),

		registry:         NewSessionRegistry(orDefault(opts.GracePeriod, DefaultGracePeriod)),
		records:          make(map[pairing.Prefix]directory.Record),
		pendingGenerates: make(map[pairing.Prefix]*pendingGenerate),
		conns:            make(map[pairing.Prefix]ifaces.Conn),
		updates:          make(chan pairing.Update, UpdatesChanBuffer),
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return d
}

// Updates is the session-state-changed notification stream; closed when the
// manager shuts down.
func (pm *PairingManager) Updates() <-chan pairing.Update {
	return pm.updates
}

func (pm *PairingManager) Run() {
	defer func() {
		if v := recover(); v != nil {
			L(pm).Error("panicked", "panic", v)
			pm.Cancel()
		}
	}()

	if !pm.running.CheckOrMark() {
		L(pm).Warn("tried to run pairing manager, while already running")
		return
	}

	sweep := time.NewTicker(DefaultSweepInterval)
	defer sweep.Stop()

	republish := time.NewTicker(DefaultRepublishInterval)
	defer republish.Stop()

	for {
		select {
		case <-pm.ctx.Done():
			pm.Close()
			return
		case msg := <-pm.inbox:
			pm.handle(msg)
		case <-sweep.C:
			pm.doSweep(time.Now())
		case <-republish.C:
			pm.doRepublish()
		}
	}
}

func (pm *PairingManager) Close() {
	for prefix, conn := range pm.conns {
		if err := conn.Close(); err != nil {
			L(pm).Debug("error when closing connection", "prefix", prefix.Debug(), "err", err)
		}
	}

	close(pm.updates)
}

func (pm *PairingManager) handle(am ActorMessage) {
	// A panic while handling one message must not take down every live
	// session with it; the message is dropped, the loop keeps running.
	defer func() {
		if v := recover(); v != nil {
			L(pm).Error("panicked handling message", "msg", fmt.Sprintf("%T", am), "panic", v)
		}
	}()

	switch m := am.(type) {
	case *CmdGenerateCode:
		pm.handleGenerateCode(m)
	case *CmdEnterCode:
		pm.handleEnterCode(m)
	case *CmdPairLocal:
		pm.handlePairLocal(m)
	case *CmdConfirm:
		m.Reply <- pm.handleCommand(m.Prefix, pairstate.CommandConfirm)
	case *CmdReject:
		m.Reply <- pm.handleCommand(m.Prefix, pairstate.CommandReject)
	case *CmdCancel:
		m.Reply <- pm.handleCancel(m.Prefix)
	case *CmdGetSession:
		pm.handleGetSession(m)
	case *CmdListSessions:
		m.Reply <- pm.registry.Snapshot()
	case *CmdTakeConn:
		pm.handleTakeConn(m)
	case *TaskDone:
		pm.handleTaskDone(m)
	case *InboundPacket:
		pm.handleInboundPacket(m)
	default:
		pm.logUnknownMessage(am)
	}
}

// ======================================================================================================
// Command handlers

// pendingGenerate is a generate command awaiting its first successful
// publish; the code only goes back to the caller once the record is live.
type pendingGenerate struct {
	reply chan GenerateCodeResult

	ttl   time.Duration
	addrs []netip.AddrPort

	// attempts counts the tokens tried for this command, bounded by
	// tokenDrawAttempts across collisions.
	attempts int
}

func (pm *PairingManager) handleGenerateCode(m *CmdGenerateCode) {
	ttl := m.TTL
	if ttl == 0 {
		ttl = pm.sessionTTL
	}

	if m.Local {
		// No directory involved; the caller advertises rec itself, and
		// there is nothing to wait on.
		token, err := pm.drawToken()
		if err != nil {
			m.Reply <- GenerateCodeResult{Err: err}
			return
		}

		sess, rec := pm.makeIssuerSession(token, ttl, m.Addresses)

		if err := pm.registry.Register(pairstate.MakeAwaitingPeerFor(pm, sess)); err != nil {
			m.Reply <- GenerateCodeResult{Err: err}
			return
		}

		pm.notify(sess)

		m.Reply <- GenerateCodeResult{
			Code:   sharecode.Encode(token),
			Prefix: sess.Prefix,
			Record: rec,
		}

		return
	}

	pm.startGenerate(&pendingGenerate{
		reply:    m.Reply,
		ttl:      ttl,
		addrs:    m.Addresses,
		attempts: 1,
	})
}

// startGenerate draws a token, registers its publishing session, and puts
// its record in flight; the pending reply resolves on publish completion.
func (pm *PairingManager) startGenerate(pending *pendingGenerate) {
	token, err := pm.drawToken()
	if err != nil {
		pending.reply <- GenerateCodeResult{Err: err}
		return
	}

	sess, rec := pm.makeIssuerSession(token, pending.ttl, pending.addrs)

	st := pairstate.MakePublishing(pm, sess)

	if err := pm.registry.Register(st); err != nil {
		pending.reply <- GenerateCodeResult{Err: err}
		return
	}

	pm.records[sess.Prefix] = rec
	pm.pendingGenerates[sess.Prefix] = pending
	pm.dispatchPublish(sess, rec)

	pm.notify(sess)
}

// drawToken draws a token whose prefix is not already live on this device;
// the odds of needing a redraw are astronomically against, but the registry
// is keyed by prefix, so it has to hold.
func (pm *PairingManager) drawToken() (pairing.Token, error) {
	for i := 0; i < tokenDrawAttempts; i++ {
		token := pairing.NewToken()

		if cur := pm.registry.Get(token.Prefix()); cur == nil || cur.Session().State.Terminal() {
			return token, nil
		}
	}

	return pairing.Token{}, pairing.ErrDuplicateToken
}

func (pm *PairingManager) makeIssuerSession(token pairing.Token, ttl time.Duration, addrs []netip.AddrPort) (*pairing.Session, directory.Record) {
	now := time.Now()

	sess := &pairing.Session{
		Token:     token,
		Prefix:    token.Prefix(),
		Role:      pairing.RoleIssuer,
		SessKey:   key.NewSession(),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	rec := directory.Record{
		TokenHash:   directory.TokenHash(token),
		Publisher:   pm.devKey,
		DisplayName: pm.displayName,
		Addresses:   addrs,
		SessionKey:  sess.SessKey.Public(),
		CreatedAt:   now,
		TTL:         ttl,
	}

	return sess, rec
}

func (pm *PairingManager) handleEnterCode(m *CmdEnterCode) {
	sess := pm.makeConsumerSession(m.Prefix)

	st := pairstate.MakeAwaitingPeerFor(pm, sess)

	if err := pm.registry.Register(st); err != nil {
		m.Reply <- err
		return
	}

	pm.DispatchResolve(sess)
	pm.notify(sess)

	m.Reply <- nil
}

func (pm *PairingManager) handlePairLocal(m *CmdPairLocal) {
	sess := pm.makeConsumerSession(m.Prefix)

	st := pairstate.MakeAwaitingPeerFor(pm, sess)

	if err := pm.registry.Register(st); err != nil {
		m.Reply <- err
		return
	}

	pm.notify(sess)

	// The record came from local discovery; feed it through the same path a
	// directory resolve would have taken.
	pm.applyTransition(st.OnTask(pairstate.ResolveResult{Gen: sess.Gen, Rec: m.Rec}))

	m.Reply <- nil
}

func (pm *PairingManager) makeConsumerSession(prefix pairing.Prefix) *pairing.Session {
	now := time.Now()

	return &pairing.Session{
		Prefix:    prefix,
		Role:      pairing.RoleConsumer,
		SessKey:   key.NewSession(),
		CreatedAt: now,
		ExpiresAt: now.Add(pm.sessionTTL),
	}
}

func (pm *PairingManager) handleCommand(prefix pairing.Prefix, cmd pairstate.Command) error {
	st := pm.registry.Get(prefix)
	if st == nil {
		return ErrSessionNotFound
	}

	if st.Session().State.Terminal() {
		return ErrSessionFinalised
	}

	pm.applyTransition(st.OnCommand(cmd))

	return nil
}

func (pm *PairingManager) handleCancel(prefix pairing.Prefix) error {
	st := pm.registry.Get(prefix)
	if st == nil {
		return ErrSessionNotFound
	}

	if st.Session().State.Terminal() {
		// Nothing left to cancel.
		return nil
	}

	pm.enterState(pairstate.MakeTerminal(st.Common(), pairing.StateCancelled, pairing.ErrCancelled))

	return nil
}

func (pm *PairingManager) handleGetSession(m *CmdGetSession) {
	st := pm.registry.Get(m.Prefix)
	if st == nil {
		m.Reply <- nil
		return
	}

	copied := *st.Session()
	m.Reply <- &copied
}

func (pm *PairingManager) handleTakeConn(m *CmdTakeConn) {
	st := pm.registry.Get(m.Prefix)
	if st == nil || st.Session().State != pairing.StateConfirmed {
		m.Reply <- nil
		return
	}

	conn := pm.conns[m.Prefix]
	delete(pm.conns, m.Prefix)

	m.Reply <- conn
}

// ======================================================================================================
// Task and network event handlers

func (pm *PairingManager) handleTaskDone(m *TaskDone) {
	st := pm.registry.Get(m.Prefix)
	if st == nil {
		pm.discardTaskResult(m, "no such session")
		return
	}

	if m.Res.ResultGen() != st.Session().Gen {
		pm.discardTaskResult(m, "stale generation")
		return
	}

	// Publish completions with a generate command still waiting on them are
	// the manager's to resolve, collision redraw included.
	if pr, ok := m.Res.(pairstate.PublishResult); ok && pm.resolvePendingGenerate(st, pr) {
		return
	}

	// Connections belong to the manager from the moment they exist, so a
	// terminal transition (and Close) can always reach them.
	if cr, ok := m.Res.(pairstate.ConnectResult); ok && cr.Conn != nil {
		pm.conns[m.Prefix] = cr.Conn
	}

	pm.applyTransition(st.OnTask(m.Res))
}

// resolvePendingGenerate settles the generate command waiting on st's
// publish, if any. On a collision with attempts left it retires the session
// and starts over with a fresh token; any other outcome answers the caller.
func (pm *PairingManager) resolvePendingGenerate(st pairstate.PairState, pr pairstate.PublishResult) bool {
	sess := st.Session()

	pending, ok := pm.pendingGenerates[sess.Prefix]
	if !ok {
		return false
	}

	delete(pm.pendingGenerates, sess.Prefix)

	switch {
	case pr.Err == nil:
		pending.reply <- GenerateCodeResult{
			Code:   sharecode.Encode(sess.Token),
			Prefix: sess.Prefix,
			Record: pm.records[sess.Prefix],
		}

		pm.applyTransition(st.OnTask(pr))

	case errors.Is(pr.Err, directory.ErrCollision) && pending.attempts < tokenDrawAttempts:
		L(pm).Info("prefix collision on publish, redrawing token", "prefix", sess.Prefix.Debug())

		pending.attempts++

		pm.registry.Remove(sess.Prefix)
		delete(pm.records, sess.Prefix)

		pm.startGenerate(pending)

	default:
		pending.reply <- GenerateCodeResult{Err: pr.Err}

		pm.applyTransition(st.OnTask(pr))
	}

	return true
}

func (pm *PairingManager) discardTaskResult(m *TaskDone, why string) {
	L(pm).Debug("discarding task result",
		"prefix", m.Prefix.Debug(),
		"why", why)

	// A connection nobody will ever use still has to be closed.
	if cr, ok := m.Res.(pairstate.ConnectResult); ok && cr.Conn != nil {
		_ = cr.Conn.Close()
	}
}

func (pm *PairingManager) handleInboundPacket(m *InboundPacket) {
	prefix, sender, ciphertext, err := msgpair.ParseHeader(m.Pkt)
	if err != nil {
		L(pm).Debug("dropping inbound packet; not a pairing wire message")
		_ = m.Conn.Close()
		return
	}

	st := pm.registry.Get(prefix)
	if st == nil {
		L(pm).Debug("dropping inbound packet for unknown session", "prefix", prefix.Debug())
		_ = m.Conn.Close()
		return
	}

	sess := st.Session()

	// A zero sender key has no shared secret to even attempt; same
	// treatment as an undecryptable box.
	if sender.IsZero() {
		pm.burnInvalidHandshake(st, m.Conn)
		return
	}

	clear, err := msgpair.OpenMessage(sess.SessKey.Shared(sender), prefix, sender, ciphertext)
	if err != nil {
		pm.burnInvalidHandshake(st, m.Conn)
		return
	}

	pm.conns[prefix] = m.Conn

	pm.applyTransition(st.OnMessage(clear, m.Conn))
}

// burnInvalidHandshake ends a session that received an undecryptable or
// malformed handshake message; the token must be assumed probed.
func (pm *PairingManager) burnInvalidHandshake(st pairstate.PairState, conn ifaces.Conn) {
	sess := st.Session()

	L(pm).Warn("invalid handshake message", "prefix", sess.Prefix.Debug())
	_ = conn.Close()

	if !sess.State.Terminal() {
		pm.enterState(pairstate.MakeTerminal(st.Common(), pairing.StateRejected, msgpair.ErrInvalidHandshake))
	}
}

// ======================================================================================================
// Transitions

func (pm *PairingManager) applyTransition(next pairstate.PairState) {
	if next == nil {
		return
	}

	pm.enterState(next)
}

// enterState installs st as its session's current state and applies the
// manager-level consequences of the transition.
func (pm *PairingManager) enterState(st pairstate.PairState) {
	pm.registry.SetState(st)

	sess := st.Session()

	if sess.State.Terminal() {
		pm.finalise(sess)
	}

	pm.notify(sess)
}

func (pm *PairingManager) finalise(sess *pairing.Session) {
	// A session ending while its generate command still waits on a publish
	// (cancelled or swept mid-retry) must not leave the caller hanging.
	if pending, ok := pm.pendingGenerates[sess.Prefix]; ok {
		delete(pm.pendingGenerates, sess.Prefix)
		pending.reply <- GenerateCodeResult{Err: sess.Reason}
	}

	// A confirmed session's connection is the product; it lingers for
	// pickup. Every other ending closes it.
	if sess.State != pairing.StateConfirmed {
		if conn, ok := pm.conns[sess.Prefix]; ok {
			_ = conn.Close()
			delete(pm.conns, sess.Prefix)
		}
	}

	if _, published := pm.records[sess.Prefix]; published && !sess.Unpublished {
		sess.Unpublished = true
		delete(pm.records, sess.Prefix)

		// Unpublish outlives the manager context on purpose; a record left
		// behind on shutdown would be live until its ttl.
		go pm.dir.Unpublish(context.WithoutCancel(pm.ctx), sess.Prefix)
	}
}

func (pm *PairingManager) notify(sess *pairing.Session) {
	u := pairing.Update{
		Prefix: sess.Prefix,
		Role:   sess.Role,
		State:  sess.State,
	}

	if sess.PeerName != "" {
		u.PeerName = gonull.NewNullable(sess.PeerName)
	}

	if sess.ConnTier != "" {
		u.Tier = gonull.NewNullable(sess.ConnTier)
	}

	select {
	case pm.updates <- u:
	default:
		L(pm).Warn("updates channel full, dropping notification", "prefix", sess.Prefix.Debug())
	}
}

// ======================================================================================================
// Periodic work

func (pm *PairingManager) doSweep(now time.Time) {
	expired, evicted := pm.registry.Sweep(now)

	for _, st := range expired {
		pm.enterState(pairstate.MakeTerminal(st.Common(), pairing.StateExpired, pairing.ErrExpired))
	}

	for _, sess := range evicted {
		L(pm).Debug("forgot session past grace period", "prefix", sess.Prefix.Debug())
	}
}

func (pm *PairingManager) doRepublish() {
	for prefix, rec := range pm.records {
		st := pm.registry.Get(prefix)
		if st == nil || st.Session().State.Terminal() {
			continue
		}

		go func(prefix pairing.Prefix, rec directory.Record) {
			if err := pm.dir.Publish(pm.ctx, prefix, rec); err != nil {
				slog.Debug("republish failed", "prefix", prefix.Debug(), "err", err)
			}
		}(prefix, rec)
	}
}

// ======================================================================================================
// PairManagerActor; identity and task dispatch

var _ ifaces.PairManagerActor = (*PairingManager)(nil)

func (pm *PairingManager) DeviceKey() key.DevicePublic {
	return pm.devKey
}

func (pm *PairingManager) DisplayName() string {
	return pm.displayName
}

func (pm *PairingManager) ConfirmResolvedPeer() bool {
	return pm.confirmResolvedPeer
}

func (pm *PairingManager) taskLogger(name string, prefix pairing.Prefix) *slog.Logger {
	return slog.With(
		"task", name,
		"id", uuid.NewString(),
		"prefix", prefix.Debug(),
	)
}

func (pm *PairingManager) postTask(prefix pairing.Prefix, res pairstate.TaskResult) {
	select {
	case pm.inbox <- &TaskDone{Prefix: prefix, Res: res}:
	case <-pm.ctx.Done():
	}
}

// dispatchPublish puts rec in the directory, retrying transient failures
// until the session deadline. A collision fails fast and surfaces to the
// event loop, which redraws a fresh token; persistence is no remedy there.
func (pm *PairingManager) dispatchPublish(sess *pairing.Session, rec directory.Record) {
	var (
		gen      = sess.Gen
		prefix   = sess.Prefix
		deadline = sess.ExpiresAt
		l        = pm.taskLogger("publish", prefix)
	)

	go func() {
		var err error

		for {
			err = pm.dir.Publish(pm.ctx, prefix, rec)

			if err == nil || errors.Is(err, directory.ErrCollision) {
				break
			}

			l.Debug("publish attempt failed, retrying", "err", err)

			if !sleepCtx(pm.ctx, publishRetryInterval) || time.Now().After(deadline) {
				break
			}
		}

		pm.postTask(prefix, pairstate.PublishResult{Gen: gen, Err: err})
	}()
}

// DispatchResolve polls the directory for prefix's record with exponential
// backoff, until found or the resolve window closes.
func (pm *PairingManager) DispatchResolve(sess *pairing.Session) {
	var (
		gen      = sess.Gen
		prefix   = sess.Prefix
		deadline = time.Now().Add(pm.resolveTimeout)
		l        = pm.taskLogger("resolve", prefix)
	)

	go func() {
		backoff := resolveBackoffMin

		for {
			rec, err := pm.dir.Resolve(pm.ctx, prefix)
			if err == nil {
				pm.postTask(prefix, pairstate.ResolveResult{Gen: gen, Rec: rec})
				return
			}

			retryable := errors.Is(err, directory.ErrNotFound) || errors.Is(err, directory.ErrUnavailable)

			if !retryable || time.Now().After(deadline) {
				pm.postTask(prefix, pairstate.ResolveResult{Gen: gen, Err: err})
				return
			}

			l.Debug("resolve attempt failed, backing off", "backoff", backoff, "err", err)

			if !sleepCtx(pm.ctx, backoff) {
				pm.postTask(prefix, pairstate.ResolveResult{Gen: gen, Err: pm.ctx.Err()})
				return
			}

			backoff = min(backoff*2, resolveBackoffMax)
		}
	}()
}

// DispatchConnect walks the connection tiers towards rec's publisher.
func (pm *PairingManager) DispatchConnect(sess *pairing.Session, rec directory.Record) {
	var (
		gen    = sess.Gen
		prefix = sess.Prefix
		l      = pm.taskLogger("connect", prefix)
	)

	go func() {
		ctx, cancel := context.WithTimeout(pm.ctx, pm.establishTimeout)
		defer cancel()

		conn, err := pm.est.Establish(ctx, rec.Publisher, rec.Addresses)
		if err != nil {
			l.Debug("establishment failed", "err", err)
		}

		pm.postTask(prefix, pairstate.ConnectResult{Gen: gen, Conn: conn, Err: err})
	}()
}

// DispatchHandshake sends the pairing request over conn and reads the
// response; the consumer half of the handshake.
func (pm *PairingManager) DispatchHandshake(sess *pairing.Session, conn ifaces.Conn, rec directory.Record) {
	// The nonce is drawn here, on the event loop, so the state machine can
	// check the echo against the session later.
	nonce := msgpair.NewNonce()
	sess.Nonce = nonce

	var (
		gen    = sess.Gen
		prefix = sess.Prefix
		shared = sess.SessKey.Shared(rec.SessionKey)
		l      = pm.taskLogger("handshake", prefix)
	)

	pkt := msgpair.Pack(shared, sess.SessKey.Public(), prefix, &msgpair.Request{
		Prefix:      prefix,
		DeviceKey:   pm.devKey,
		DisplayName: pm.displayName,
		Deadline:    sess.ExpiresAt,
		Nonce:       nonce,
	})

	go func() {
		ctx, cancel := context.WithTimeout(pm.ctx, pm.handshakeTimeout)
		defer cancel()

		resp, err := func() (*msgpair.Response, error) {
			if err := conn.Send(ctx, pkt); err != nil {
				return nil, err
			}

			raw, err := conn.Receive(ctx)
			if err != nil {
				return nil, err
			}

			clear, err := msgpair.Unpack(shared, raw)
			if err != nil {
				return nil, err
			}

			resp, ok := clear.Message.(*msgpair.Response)
			if !ok {
				return nil, msgpair.ErrInvalidHandshake
			}

			return resp, nil
		}()

		if err != nil {
			l.Debug("handshake failed", "err", err)
		}

		pm.postTask(prefix, pairstate.HandshakeResult{Gen: gen, Resp: resp, Err: err})
	}()
}

// DispatchResponse sends the pairing response over conn; the issuer half of
// the handshake.
func (pm *PairingManager) DispatchResponse(sess *pairing.Session, conn ifaces.Conn, peerSess key.SessionPublic, accepted bool) {
	var (
		gen    = sess.Gen
		prefix = sess.Prefix
		shared = sess.SessKey.Shared(peerSess)
		l      = pm.taskLogger("respond", prefix)
	)

	pkt := msgpair.Pack(shared, sess.SessKey.Public(), prefix, &msgpair.Response{
		Prefix:      prefix,
		Accepted:    accepted,
		DisplayName: pm.displayName,
		NonceEcho:   msgpair.Nonce(sess.Nonce),
	})

	go func() {
		ctx, cancel := context.WithTimeout(pm.ctx, pm.handshakeTimeout)
		defer cancel()

		err := conn.Send(ctx, pkt)
		if err != nil {
			l.Debug("response send failed", "err", err)
		}

		pm.postTask(prefix, pairstate.SendResult{Gen: gen, Err: err})
	}()
}

// sleepCtx sleeps for d, returning false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
