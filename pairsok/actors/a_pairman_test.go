package actors

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edup2p/pairsok/pairsok/actors/pairstate"
	"github.com/edup2p/pairsok/pairsok/establish"
	"github.com/edup2p/pairsok/types/directory"
	"github.com/edup2p/pairsok/types/ifaces"
	"github.com/edup2p/pairsok/types/key"
	"github.com/edup2p/pairsok/types/msgpair"
	"github.com/edup2p/pairsok/types/pairing"
	"github.com/edup2p/pairsok/types/sharecode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	eventuallyTick    = 5 * time.Millisecond
	eventuallyTimeout = 2 * time.Second
)

// countingStore wraps a MemStore and counts deletes, to observe the
// exactly-once unpublish.
type countingStore struct {
	*directory.MemStore

	deletes atomic.Int64
}

func newCountingStore() *countingStore {
	return &countingStore{MemStore: directory.NewMemStore()}
}

func (s *countingStore) Delete(ctx context.Context, key []byte) error {
	s.deletes.Add(1)
	return s.MemStore.Delete(ctx, key)
}

// collidingStore answers every Get with a live record owned by a foreign
// token, for the first n lookups, forcing publish collisions.
type collidingStore struct {
	*directory.MemStore

	remaining atomic.Int64
	foreign   []byte
}

func newCollidingStore(t *testing.T, n int64) *collidingStore {
	t.Helper()

	foreign, err := directory.EncodeRecord(directory.Record{
		TokenHash:  directory.TokenHash(pairing.NewToken()),
		Publisher:  key.NewDevice().Public(),
		SessionKey: key.NewSession().Public(),
		CreatedAt:  time.Now(),
		TTL:        time.Minute,
	})
	require.NoError(t, err)

	s := &collidingStore{MemStore: directory.NewMemStore(), foreign: foreign}
	s.remaining.Store(n)

	return s
}

func (s *collidingStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if s.remaining.Add(-1) >= 0 {
		return s.foreign, true, nil
	}
	return s.MemStore.Get(ctx, key)
}

// sinkConn is an inbound connection the tests feed packets through.
type sinkConn struct {
	closed atomic.Bool
}

func (c *sinkConn) Send(context.Context, []byte) error      { return nil }
func (c *sinkConn) Receive(context.Context) ([]byte, error) { return nil, errors.New("no more frames") }
func (c *sinkConn) Close() error                            { c.closed.Store(true); return nil }
func (c *sinkConn) Tier() ifaces.Tier                       { return ifaces.TierDirect }

func startManager(t *testing.T, store directory.Store, opts PairingManagerOpts) *PairingManager {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if opts.DeviceKey.IsZero() {
		opts.DeviceKey = key.NewDevice().Public()
	}
	if opts.DisplayName == "" {
		opts.DisplayName = "test device"
	}
	opts.Directory = directory.New(store)
	if opts.Establisher == nil {
		opts.Establisher = establish.New(establish.Options{})
	}

	pm := NewPairingManager(ctx, opts)
	go pm.Run()

	return pm
}

func generateCode(t *testing.T, pm *PairingManager) GenerateCodeResult {
	t.Helper()

	reply := make(chan GenerateCodeResult, 1)
	pm.Inbox() <- &CmdGenerateCode{Reply: reply}

	res := <-reply
	require.NoError(t, res.Err)

	return res
}

func getSession(pm *PairingManager, prefix pairing.Prefix) *pairing.Session {
	reply := make(chan *pairing.Session, 1)
	pm.Inbox() <- &CmdGetSession{Prefix: prefix, Reply: reply}
	return <-reply
}

func sessionInState(pm *PairingManager, prefix pairing.Prefix, state pairing.State) func() bool {
	return func() bool {
		sess := getSession(pm, prefix)
		return sess != nil && sess.State == state
	}
}

func TestGenerateCodePublishes(t *testing.T) {
	store := newCountingStore()
	pm := startManager(t, store, PairingManagerOpts{})

	res := generateCode(t, pm)

	// The code decodes back to the session's prefix.
	prefix, err := sharecode.Decode(res.Code)
	require.NoError(t, err)
	assert.Equal(t, res.Prefix, prefix)

	// Publish confirmation moves the session to awaiting-peer, and the
	// record is in the store.
	assert.Eventually(t, sessionInState(pm, res.Prefix, pairing.StateAwaitingPeer),
		eventuallyTimeout, eventuallyTick)
	assert.Equal(t, 1, store.Len())

	sess := getSession(pm, res.Prefix)
	require.NotNil(t, sess)
	assert.Equal(t, pairing.RoleIssuer, sess.Role)
	assert.False(t, sess.Token.IsZero())
}

func TestGenerateLocalCodeSkipsDirectory(t *testing.T) {
	store := newCountingStore()
	pm := startManager(t, store, PairingManagerOpts{})

	reply := make(chan GenerateCodeResult, 1)
	pm.Inbox() <- &CmdGenerateCode{Local: true, Reply: reply}

	res := <-reply
	require.NoError(t, res.Err)

	assert.Equal(t, 0, store.Len(), "local generation should not touch the directory")
	assert.NotEmpty(t, res.Record.TokenHash, "the record is returned for local advertisement instead")

	sess := getSession(pm, res.Prefix)
	require.NotNil(t, sess)
	assert.Equal(t, pairing.StateAwaitingPeer, sess.State)
}

func TestCancelUnpublishesExactlyOnce(t *testing.T) {
	store := newCountingStore()
	pm := startManager(t, store, PairingManagerOpts{})

	res := generateCode(t, pm)

	require.Eventually(t, sessionInState(pm, res.Prefix, pairing.StateAwaitingPeer),
		eventuallyTimeout, eventuallyTick)

	cancelReply := make(chan error, 1)
	pm.Inbox() <- &CmdCancel{Prefix: res.Prefix, Reply: cancelReply}
	require.NoError(t, <-cancelReply)

	sess := getSession(pm, res.Prefix)
	require.NotNil(t, sess)
	assert.Equal(t, pairing.StateCancelled, sess.State)
	assert.ErrorIs(t, sess.Reason, pairing.ErrCancelled)

	assert.Eventually(t, func() bool { return store.Len() == 0 },
		eventuallyTimeout, eventuallyTick, "the record should be withdrawn on cancel")

	// Cancelling again is a no-op, and does not unpublish a second time.
	pm.Inbox() <- &CmdCancel{Prefix: res.Prefix, Reply: cancelReply}
	require.NoError(t, <-cancelReply)

	assert.Eventually(t, func() bool { return store.deletes.Load() == 1 },
		eventuallyTimeout, eventuallyTick)
	assert.Never(t, func() bool { return store.deletes.Load() > 1 },
		50*time.Millisecond, eventuallyTick)
}

func TestSessionExpiryIsSweptAndUnpublished(t *testing.T) {
	store := newCountingStore()
	pm := startManager(t, store, PairingManagerOpts{SessionTTL: 50 * time.Millisecond})

	res := generateCode(t, pm)

	assert.Eventually(t, sessionInState(pm, res.Prefix, pairing.StateExpired),
		eventuallyTimeout, eventuallyTick)

	sess := getSession(pm, res.Prefix)
	require.NotNil(t, sess)
	assert.ErrorIs(t, sess.Reason, pairing.ErrExpired)

	assert.Eventually(t, func() bool { return store.deletes.Load() == 1 },
		eventuallyTimeout, eventuallyTick)
}

func TestEnterCodeUnknownPrefixFails(t *testing.T) {
	store := newCountingStore()
	pm := startManager(t, store, PairingManagerOpts{
		// Keep the resolve backoff window short; nothing will ever appear.
		ResolveTimeout: 10 * time.Millisecond,
	})

	prefix := pairing.NewToken().Prefix()

	reply := make(chan error, 1)
	pm.Inbox() <- &CmdEnterCode{Prefix: prefix, Reply: reply}
	require.NoError(t, <-reply)

	assert.Eventually(t, sessionInState(pm, prefix, pairing.StateFailed),
		eventuallyTimeout, eventuallyTick)

	sess := getSession(pm, prefix)
	require.NotNil(t, sess)
	assert.ErrorIs(t, sess.Reason, directory.ErrNotFound)
}

func TestEnterCodeDuplicatePrefixRefused(t *testing.T) {
	store := newCountingStore()
	pm := startManager(t, store, PairingManagerOpts{})

	prefix := pairing.NewToken().Prefix()

	reply := make(chan error, 1)
	pm.Inbox() <- &CmdEnterCode{Prefix: prefix, Reply: reply}
	require.NoError(t, <-reply)

	pm.Inbox() <- &CmdEnterCode{Prefix: prefix, Reply: reply}
	assert.ErrorIs(t, <-reply, pairing.ErrDuplicateToken)
}

func TestCommandsOnUnknownSession(t *testing.T) {
	pm := startManager(t, newCountingStore(), PairingManagerOpts{})

	prefix := pairing.NewToken().Prefix()

	reply := make(chan error, 1)

	pm.Inbox() <- &CmdConfirm{Prefix: prefix, Reply: reply}
	assert.ErrorIs(t, <-reply, ErrSessionNotFound)

	pm.Inbox() <- &CmdCancel{Prefix: prefix, Reply: reply}
	assert.ErrorIs(t, <-reply, ErrSessionNotFound)
}

func TestListSessions(t *testing.T) {
	pm := startManager(t, newCountingStore(), PairingManagerOpts{})

	first := generateCode(t, pm)
	second := generateCode(t, pm)

	reply := make(chan []pairing.Session, 1)
	pm.Inbox() <- &CmdListSessions{Reply: reply}

	sessions := <-reply
	require.Len(t, sessions, 2)

	prefixes := []pairing.Prefix{sessions[0].Prefix, sessions[1].Prefix}
	assert.Contains(t, prefixes, first.Prefix)
	assert.Contains(t, prefixes, second.Prefix)
}

func TestGenerateCodeRedrawsOnCollision(t *testing.T) {
	// The first two publishes land on prefixes held by someone else's live
	// record; the third token is clean.
	store := newCollidingStore(t, 2)
	pm := startManager(t, store, PairingManagerOpts{})

	res := generateCode(t, pm)

	require.Eventually(t, sessionInState(pm, res.Prefix, pairing.StateAwaitingPeer),
		eventuallyTimeout, eventuallyTick)
	assert.Equal(t, 1, store.Len())

	// The abandoned colliding sessions were retired, not left behind.
	reply := make(chan []pairing.Session, 1)
	pm.Inbox() <- &CmdListSessions{Reply: reply}
	assert.Len(t, <-reply, 1)
}

func TestGenerateCodeFailsWhenCollisionsPersist(t *testing.T) {
	store := newCollidingStore(t, 64)
	pm := startManager(t, store, PairingManagerOpts{})

	reply := make(chan GenerateCodeResult, 1)
	pm.Inbox() <- &CmdGenerateCode{Reply: reply}

	res := <-reply
	assert.ErrorIs(t, res.Err, directory.ErrCollision)
}

func TestInboundZeroSenderKeyBurnsSessionOnly(t *testing.T) {
	pm := startManager(t, newCountingStore(), PairingManagerOpts{})

	res := generateCode(t, pm)
	other := generateCode(t, pm)

	require.Eventually(t, sessionInState(pm, res.Prefix, pairing.StateAwaitingPeer),
		eventuallyTimeout, eventuallyTick)

	// Magic + prefix + an all-zero sender key + garbage where the box
	// should be.
	pkt := bytes.Join([][]byte{msgpair.MagicBytes, res.Prefix[:],
		make([]byte, key.Len), bytes.Repeat([]byte{0xAA}, 48)}, nil)

	conn := &sinkConn{}
	pm.Inbox() <- &InboundPacket{Conn: conn, Pkt: pkt}

	require.Eventually(t, sessionInState(pm, res.Prefix, pairing.StateRejected),
		eventuallyTimeout, eventuallyTick)

	sess := getSession(pm, res.Prefix)
	require.NotNil(t, sess)
	assert.ErrorIs(t, sess.Reason, msgpair.ErrInvalidHandshake)
	assert.True(t, conn.closed.Load())

	// The other session, and the loop itself, are untouched.
	require.Eventually(t, sessionInState(pm, other.Prefix, pairing.StateAwaitingPeer),
		eventuallyTimeout, eventuallyTick)
}

func TestNilTaskResultDoesNotKillLoop(t *testing.T) {
	pm := startManager(t, newCountingStore(), PairingManagerOpts{})

	res := generateCode(t, pm)

	pm.Inbox() <- &TaskDone{Prefix: res.Prefix}

	// The loop keeps answering afterwards.
	require.NotNil(t, getSession(pm, res.Prefix))
}

func TestStaleTaskResultDropped(t *testing.T) {
	store := newCountingStore()
	pm := startManager(t, store, PairingManagerOpts{})

	res := generateCode(t, pm)

	require.Eventually(t, sessionInState(pm, res.Prefix, pairing.StateAwaitingPeer),
		eventuallyTimeout, eventuallyTick)

	cancelReply := make(chan error, 1)
	pm.Inbox() <- &CmdCancel{Prefix: res.Prefix, Reply: cancelReply}
	require.NoError(t, <-cancelReply)

	// A completion from before the cancel carries a stale generation; it
	// must not resurrect the session.
	sess := getSession(pm, res.Prefix)
	require.NotNil(t, sess)

	pm.Inbox() <- &TaskDone{
		Prefix: res.Prefix,
		Res:    pairstate.ResolveResult{Gen: sess.Gen - 1},
	}

	assert.Never(t, func() bool {
		s := getSession(pm, res.Prefix)
		return s == nil || s.State != pairing.StateCancelled
	}, 50*time.Millisecond, eventuallyTick)
}
