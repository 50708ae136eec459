package pairsok

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/edup2p/pairsok/types/directory"
	"github.com/edup2p/pairsok/types/pairing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	eventuallyTick    = 5 * time.Millisecond
	eventuallyTimeout = 5 * time.Second
)

func startEngine(t *testing.T, store directory.Store, name string, confirmResolved bool) *Engine {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	e, err := NewEngine(EngineOptions{
		DisplayName:         name,
		Store:               store,
		Listener:            listener,
		ConfirmResolvedPeer: confirmResolved,
	})
	require.NoError(t, err)
	t.Cleanup(e.Stop)

	require.NoError(t, e.Start())

	// Updates must keep flowing somewhere, or the buffer would fill.
	go func() {
		for range e.Updates() {
		}
	}()

	return e
}

func inState(e *Engine, prefix pairing.Prefix, state pairing.State) func() bool {
	return func() bool {
		sess := e.Session(prefix)
		return sess != nil && sess.State == state
	}
}

func TestPairingRehearsal(t *testing.T) {
	store := directory.NewMemStore()

	issuer := startEngine(t, store, "living room tv", false)
	consumer := startEngine(t, store, "couch phone", false)

	code, prefix, err := issuer.GenerateCode(0)
	require.NoError(t, err)

	// The consumer enters the code; resolve, connect and request run
	// without further input, landing the issuer in handshaking.
	enteredPrefix, err := consumer.EnterCode(code)
	require.NoError(t, err)
	assert.Equal(t, prefix, enteredPrefix)

	require.Eventually(t, inState(issuer, prefix, pairing.StateHandshaking),
		eventuallyTimeout, eventuallyTick)

	// The issuer sees who is asking before deciding.
	issuerSess := issuer.Session(prefix)
	require.NotNil(t, issuerSess)
	assert.Equal(t, "couch phone", issuerSess.PeerName)
	assert.Equal(t, consumer.DeviceKey(), issuerSess.Peer)

	require.NoError(t, issuer.Confirm(prefix))

	require.Eventually(t, inState(issuer, prefix, pairing.StateConfirmed),
		eventuallyTimeout, eventuallyTick)
	require.Eventually(t, inState(consumer, prefix, pairing.StateConfirmed),
		eventuallyTimeout, eventuallyTick)

	// Both sides ended up with each other's identity.
	consumerSess := consumer.Session(prefix)
	require.NotNil(t, consumerSess)
	assert.Equal(t, issuer.DeviceKey(), consumerSess.Peer)
	assert.Equal(t, "living room tv", consumerSess.PeerName)

	// The record is withdrawn once pairing concluded.
	assert.Eventually(t, func() bool { return store.Len() == 0 },
		eventuallyTimeout, eventuallyTick)

	// The paired connection carries application traffic.
	issuerConn := issuer.TakeConn(prefix)
	consumerConn := consumer.TakeConn(prefix)
	require.NotNil(t, issuerConn)
	require.NotNil(t, consumerConn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		_ = consumerConn.Send(ctx, []byte("hello from the couch"))
	}()

	got, err := issuerConn.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello from the couch"), got)

	// Taking again yields nothing.
	assert.Nil(t, issuer.TakeConn(prefix))
}

func TestPairingIssuerRejects(t *testing.T) {
	store := directory.NewMemStore()

	issuer := startEngine(t, store, "tv", false)
	consumer := startEngine(t, store, "phone", false)

	code, prefix, err := issuer.GenerateCode(0)
	require.NoError(t, err)

	_, err = consumer.EnterCode(code)
	require.NoError(t, err)

	require.Eventually(t, inState(issuer, prefix, pairing.StateHandshaking),
		eventuallyTimeout, eventuallyTick)

	require.NoError(t, issuer.Reject(prefix))

	require.Eventually(t, inState(issuer, prefix, pairing.StateRejected),
		eventuallyTimeout, eventuallyTick)
	require.Eventually(t, inState(consumer, prefix, pairing.StateRejected),
		eventuallyTimeout, eventuallyTick)

	assert.Nil(t, issuer.TakeConn(prefix), "a rejected session should not hand out a connection")
}

func TestPairingWithConsumerConfirmation(t *testing.T) {
	store := directory.NewMemStore()

	issuer := startEngine(t, store, "tv", false)
	consumer := startEngine(t, store, "phone", true)

	code, prefix, err := issuer.GenerateCode(0)
	require.NoError(t, err)

	_, err = consumer.EnterCode(code)
	require.NoError(t, err)

	// The consumer stops after connecting, with the resolved identity on
	// display; nothing has been sent yet.
	require.Eventually(t, inState(consumer, prefix, pairing.StateAwaitingConfirmation),
		eventuallyTimeout, eventuallyTick)

	consumerSess := consumer.Session(prefix)
	require.NotNil(t, consumerSess)
	assert.Equal(t, "tv", consumerSess.PeerName)

	issuerSess := issuer.Session(prefix)
	require.NotNil(t, issuerSess)
	assert.Equal(t, pairing.StateAwaitingPeer, issuerSess.State,
		"the issuer should not have heard anything yet")

	require.NoError(t, consumer.Confirm(prefix))

	require.Eventually(t, inState(issuer, prefix, pairing.StateHandshaking),
		eventuallyTimeout, eventuallyTick)

	require.NoError(t, issuer.Confirm(prefix))

	require.Eventually(t, inState(issuer, prefix, pairing.StateConfirmed),
		eventuallyTimeout, eventuallyTick)
	require.Eventually(t, inState(consumer, prefix, pairing.StateConfirmed),
		eventuallyTimeout, eventuallyTick)
}

func TestPairingWithLocalRecord(t *testing.T) {
	// Distinct stores: nothing rendezvous through a directory here.
	issuer := startEngine(t, directory.NewMemStore(), "tv", false)
	consumer := startEngine(t, directory.NewMemStore(), "phone", false)

	code, rec, err := issuer.GenerateLocalCode(0)
	require.NoError(t, err)

	prefix, err := consumer.PairWithLocal(code, rec)
	require.NoError(t, err)

	require.Eventually(t, inState(issuer, prefix, pairing.StateHandshaking),
		eventuallyTimeout, eventuallyTick)

	require.NoError(t, issuer.Confirm(prefix))

	require.Eventually(t, inState(issuer, prefix, pairing.StateConfirmed),
		eventuallyTimeout, eventuallyTick)
	require.Eventually(t, inState(consumer, prefix, pairing.StateConfirmed),
		eventuallyTimeout, eventuallyTick)
}

func TestEnterCodeRejectsMalformedCode(t *testing.T) {
	consumer := startEngine(t, directory.NewMemStore(), "phone", false)

	_, err := consumer.EnterCode("not a code")
	assert.Error(t, err)
}

func TestEngineStopEndsOperations(t *testing.T) {
	e := startEngine(t, directory.NewMemStore(), "tv", false)

	e.Stop()

	assert.Eventually(t, func() bool {
		_, _, err := e.GenerateCode(0)
		return err != nil
	}, eventuallyTimeout, eventuallyTick)
}
