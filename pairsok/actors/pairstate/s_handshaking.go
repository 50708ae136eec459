package pairstate

import (
	"errors"
	"time"

	"github.com/edup2p/pairsok/types/ifaces"
	"github.com/edup2p/pairsok/types/key"
	"github.com/edup2p/pairsok/types/msgpair"
	"github.com/edup2p/pairsok/types/pairing"
)

// ConsumerHandshaking is the consumer with its request on the wire,
// awaiting the issuer's response.
type ConsumerHandshaking struct {
	*StateCommon
}

func MakeConsumerHandshaking(sc *StateCommon) PairState {
	sc.sess.State = pairing.StateHandshaking

	h := &ConsumerHandshaking{StateCommon: sc}
	L(h).Info("initialised")

	return h
}

func (h *ConsumerHandshaking) Name() string {
	return "handshaking"
}

func (h *ConsumerHandshaking) OnTask(res TaskResult) PairState {
	hr, ok := res.(HandshakeResult)
	if !ok {
		L(h).Warn("ignoring unexpected task result", "result", res)
		return nil
	}

	if hr.Err != nil {
		if errors.Is(hr.Err, msgpair.ErrInvalidHandshake) {
			return LogTransition(h, MakeTerminal(h.StateCommon, pairing.StateRejected, msgpair.ErrInvalidHandshake))
		}
		return LogTransition(h, MakeTerminal(h.StateCommon, pairing.StateFailed, hr.Err))
	}

	resp := hr.Resp

	// A response binding to the wrong token or a stale nonce is treated the
	// same as any other invalid handshake.
	if resp.Prefix != h.sess.Prefix || resp.NonceEcho != msgpair.Nonce(h.sess.Nonce) {
		return LogTransition(h, MakeTerminal(h.StateCommon, pairing.StateRejected, msgpair.ErrInvalidHandshake))
	}

	if resp.DisplayName != "" {
		h.sess.PeerName = resp.DisplayName
	}

	if !resp.Accepted {
		return LogTransition(h, MakeTerminal(h.StateCommon, pairing.StateRejected, errors.New("peer declined pairing")))
	}

	// Past the session deadline nothing confirms, even a response landing
	// just before the next sweep.
	if h.sess.Expired(time.Now()) {
		return LogTransition(h, MakeTerminal(h.StateCommon, pairing.StateExpired, pairing.ErrExpired))
	}

	return LogTransition(h, MakeTerminal(h.StateCommon, pairing.StateConfirmed, nil))
}

func (h *ConsumerHandshaking) OnMessage(clear *msgpair.ClearMessage, _ ifaces.Conn) PairState {
	LogMessage(h, clear)
	L(h).Warn("ignoring handshake message; response is read by the handshake task")
	return nil
}

func (h *ConsumerHandshaking) OnCommand(cmd Command) PairState {
	L(h).Warn("ignoring command", "cmd", cmd.String())
	return nil
}

// IssuerHandshaking is the issuer holding a validated request, waiting for
// the local user to approve or deny, and then for the response send to
// complete.
type IssuerHandshaking struct {
	*StateCommon

	conn     ifaces.Conn
	peerSess key.SessionPublic

	// responded is set once a user decision has been dispatched.
	responded bool
	accepted  bool
}

func MakeIssuerHandshaking(sc *StateCommon, conn ifaces.Conn, peerSess key.SessionPublic) PairState {
	sc.sess.State = pairing.StateHandshaking

	h := &IssuerHandshaking{StateCommon: sc, conn: conn, peerSess: peerSess}
	L(h).Info("initialised")

	return h
}

func (h *IssuerHandshaking) Name() string {
	return "handshaking"
}

func (h *IssuerHandshaking) OnTask(res TaskResult) PairState {
	sr, ok := res.(SendResult)
	if !ok || !h.responded {
		L(h).Warn("ignoring unexpected task result", "result", res)
		return nil
	}

	if !h.accepted {
		// The user already denied; whether the denial reached the peer
		// makes no difference to the outcome.
		return LogTransition(h, MakeTerminal(h.StateCommon, pairing.StateRejected, errors.New("pairing denied locally")))
	}

	if sr.Err != nil {
		return LogTransition(h, MakeTerminal(h.StateCommon, pairing.StateFailed, sr.Err))
	}

	// Same deadline rule as the consumer side: a send completing past the
	// session deadline does not confirm.
	if h.sess.Expired(time.Now()) {
		return LogTransition(h, MakeTerminal(h.StateCommon, pairing.StateExpired, pairing.ErrExpired))
	}

	return LogTransition(h, MakeTerminal(h.StateCommon, pairing.StateConfirmed, nil))
}

func (h *IssuerHandshaking) OnMessage(clear *msgpair.ClearMessage, _ ifaces.Conn) PairState {
	LogMessage(h, clear)
	L(h).Warn("ignoring duplicate handshake message")
	return nil
}

func (h *IssuerHandshaking) OnCommand(cmd Command) PairState {
	if h.responded {
		L(h).Warn("ignoring command; already responded", "cmd", cmd.String())
		return nil
	}

	switch cmd {
	case CommandConfirm:
		h.responded, h.accepted = true, true
	case CommandReject:
		h.responded, h.accepted = true, false
	default:
		L(h).Warn("ignoring command", "cmd", cmd.String())
		return nil
	}

	h.man.DispatchResponse(h.sess, h.conn, h.peerSess, h.accepted)

	return nil
}
