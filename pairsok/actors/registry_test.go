package actors

import (
	"testing"
	"time"

	"github.com/edup2p/pairsok/pairsok/actors/pairstate"
	"github.com/edup2p/pairsok/types/key"
	"github.com/edup2p/pairsok/types/pairing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession(role pairing.Role, ttl time.Duration) *pairing.Session {
	tok := pairing.NewToken()
	now := time.Now()

	return &pairing.Session{
		Token:     tok,
		Prefix:    tok.Prefix(),
		Role:      role,
		SessKey:   key.NewSession(),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestRegistryRejectsDuplicateLiveToken(t *testing.T) {
	r := NewSessionRegistry(DefaultGracePeriod)

	sess := testSession(pairing.RoleIssuer, time.Minute)

	require.NoError(t, r.Register(pairstate.MakeAwaitingPeerFor(nil, sess)))

	dup := *sess
	err := r.Register(pairstate.MakeAwaitingPeerFor(nil, &dup))

	assert.ErrorIs(t, err, pairing.ErrDuplicateToken)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryEvictsLingeringTerminalOnRegister(t *testing.T) {
	r := NewSessionRegistry(DefaultGracePeriod)

	sess := testSession(pairing.RoleConsumer, time.Minute)
	st := pairstate.MakeAwaitingPeerFor(nil, sess)
	require.NoError(t, r.Register(st))

	r.SetState(pairstate.MakeTerminal(st.Common(), pairing.StateCancelled, pairing.ErrCancelled))

	// Same prefix again, while the old session lingers in its grace period.
	fresh := *testSession(pairing.RoleConsumer, time.Minute)
	fresh.Prefix = sess.Prefix

	assert.NoError(t, r.Register(pairstate.MakeAwaitingPeerFor(nil, &fresh)))
	assert.Equal(t, 1, r.Len())
}

func TestRegistrySweepExpiresLiveSessions(t *testing.T) {
	r := NewSessionRegistry(DefaultGracePeriod)

	live := testSession(pairing.RoleIssuer, time.Hour)
	stale := testSession(pairing.RoleIssuer, time.Minute)

	require.NoError(t, r.Register(pairstate.MakeAwaitingPeerFor(nil, live)))
	require.NoError(t, r.Register(pairstate.MakeAwaitingPeerFor(nil, stale)))

	expired, evicted := r.Sweep(time.Now().Add(30 * time.Minute))

	require.Len(t, expired, 1)
	assert.Equal(t, stale.Prefix, expired[0].Session().Prefix)
	assert.Empty(t, evicted)

	// The sweep reports; finalising is the manager's move. Both stay
	// registered.
	assert.Equal(t, 2, r.Len())
}

func TestRegistrySweepEvictsPastGrace(t *testing.T) {
	r := NewSessionRegistry(time.Minute)

	sess := testSession(pairing.RoleConsumer, time.Hour)
	st := pairstate.MakeAwaitingPeerFor(nil, sess)
	require.NoError(t, r.Register(st))

	r.SetState(pairstate.MakeTerminal(st.Common(), pairing.StateRejected, nil))

	// Within grace: kept.
	expired, evicted := r.Sweep(time.Now().Add(30 * time.Second))
	assert.Empty(t, expired)
	assert.Empty(t, evicted)
	assert.Equal(t, 1, r.Len())

	// Past grace: forgotten.
	expired, evicted = r.Sweep(time.Now().Add(2 * time.Minute))
	assert.Empty(t, expired)
	require.Len(t, evicted, 1)
	assert.Equal(t, sess.Prefix, evicted[0].Prefix)
	assert.Equal(t, 0, r.Len())
}

func TestRegistrySweepNeverExpiresTerminal(t *testing.T) {
	r := NewSessionRegistry(time.Hour)

	sess := testSession(pairing.RoleIssuer, time.Minute)
	st := pairstate.MakeAwaitingPeerFor(nil, sess)
	require.NoError(t, r.Register(st))

	r.SetState(pairstate.MakeTerminal(st.Common(), pairing.StateConfirmed, nil))

	// Way past the session deadline, still within grace.
	expired, evicted := r.Sweep(time.Now().Add(30 * time.Minute))

	assert.Empty(t, expired, "a finalised session should not be reported as expired")
	assert.Empty(t, evicted)
}

func TestRegistrySnapshotCopies(t *testing.T) {
	r := NewSessionRegistry(DefaultGracePeriod)

	sess := testSession(pairing.RoleIssuer, time.Minute)
	require.NoError(t, r.Register(pairstate.MakeAwaitingPeerFor(nil, sess)))

	snap := r.Snapshot()
	require.Len(t, snap, 1)

	snap[0].PeerName = "scribbled on"
	assert.Empty(t, sess.PeerName, "snapshots should be copies, not aliases")
}
