package pairstate

import (
	"errors"
	"time"

	"github.com/edup2p/pairsok/types/ifaces"
	"github.com/edup2p/pairsok/types/msgpair"
	"github.com/edup2p/pairsok/types/pairing"
)

// AwaitingPeer is both sides' waiting room.
//
// An issuer sits here with a live record, waiting for a peer to connect and
// send its request. A consumer sits here while its resolve task polls the
// directory with backoff.
type AwaitingPeer struct {
	*StateCommon
}

func MakeAwaitingPeer(sc *StateCommon) PairState {
	sc.sess.State = pairing.StateAwaitingPeer

	a := &AwaitingPeer{StateCommon: sc}
	L(a).Info("initialised")

	return a
}

// MakeAwaitingPeerFor is the consumer entry point; consumers skip Publishing.
func MakeAwaitingPeerFor(man ifaces.PairManagerActor, sess *pairing.Session) PairState {
	return MakeAwaitingPeer(&StateCommon{man: man, sess: sess})
}

func (a *AwaitingPeer) Name() string {
	return "awaiting-peer"
}

func (a *AwaitingPeer) OnTask(res TaskResult) PairState {
	if a.sess.Role != pairing.RoleConsumer {
		L(a).Warn("ignoring unexpected task result", "result", res)
		return nil
	}

	rr, ok := res.(ResolveResult)
	if !ok {
		L(a).Warn("ignoring unexpected task result", "result", res)
		return nil
	}

	if rr.Err != nil {
		return LogTransition(a, MakeTerminal(a.StateCommon, pairing.StateFailed, rr.Err))
	}

	// Remember the publisher's declared identity; the UI may want to show
	// it before anything is sent.
	a.sess.Peer = rr.Rec.Publisher
	a.sess.PeerName = rr.Rec.DisplayName

	a.man.DispatchConnect(a.sess, rr.Rec)

	return LogTransition(a, MakeConnecting(a.StateCommon, rr.Rec))
}

func (a *AwaitingPeer) OnMessage(clear *msgpair.ClearMessage, conn ifaces.Conn) PairState {
	LogMessage(a, clear)

	if a.sess.Role != pairing.RoleIssuer {
		L(a).Warn("ignoring handshake message; not an issuer")
		return nil
	}

	req, ok := clear.Message.(*msgpair.Request)
	if !ok {
		return LogTransition(a, MakeTerminal(a.StateCommon, pairing.StateRejected, msgpair.ErrInvalidHandshake))
	}

	if !a.requestValid(clear, req, time.Now()) {
		return LogTransition(a, MakeTerminal(a.StateCommon, pairing.StateRejected, msgpair.ErrInvalidHandshake))
	}

	a.sess.Peer = req.DeviceKey
	a.sess.PeerName = req.DisplayName
	a.sess.Nonce = req.Nonce

	return LogTransition(a, MakeIssuerHandshaking(a.StateCommon, conn, clear.Session))
}

func (a *AwaitingPeer) OnCommand(cmd Command) PairState {
	if a.sess.Role == pairing.RoleConsumer && cmd == CommandReject {
		return LogTransition(a, MakeTerminal(a.StateCommon, pairing.StateRejected, errors.New("rejected before resolution")))
	}

	L(a).Warn("ignoring command", "cmd", cmd.String())
	return nil
}
