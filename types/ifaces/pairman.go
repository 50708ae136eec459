package ifaces

import (
	"github.com/edup2p/pairsok/types/directory"
	"github.com/edup2p/pairsok/types/key"
	"github.com/edup2p/pairsok/types/pairing"
)

// PairManagerActor is the view a session state has of the pairing manager:
// identity lookups, and dispatching the long-running work whose completion
// re-enters the event loop as a task result.
//
// Dispatch methods never block; they spawn work and return.
type PairManagerActor interface {
	Actor

	// DeviceKey is this device's public identifier.
	DeviceKey() key.DevicePublic

	// DisplayName is this device's declared name.
	DisplayName() string

	// ConfirmResolvedPeer reports whether a consumer session should wait
	// for local confirmation before sending its handshake request.
	ConfirmResolvedPeer() bool

	// DispatchResolve starts resolving sess's prefix in the directory,
	// retried with backoff until found or the session deadline.
	DispatchResolve(sess *pairing.Session)

	// DispatchConnect starts connection establishment towards rec's publisher.
	DispatchConnect(sess *pairing.Session, rec directory.Record)

	// DispatchHandshake sends the pairing request over conn and awaits the
	// response (consumer side).
	DispatchHandshake(sess *pairing.Session, conn Conn, rec directory.Record)

	// DispatchResponse sends the pairing response over conn (issuer side).
	DispatchResponse(sess *pairing.Session, conn Conn, peerSess key.SessionPublic, accepted bool)
}
