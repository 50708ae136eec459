package pairstate

import (
	"github.com/edup2p/pairsok/types/directory"
	"github.com/edup2p/pairsok/types/ifaces"
	"github.com/edup2p/pairsok/types/msgpair"
	"github.com/edup2p/pairsok/types/pairing"
)

// Connecting is the consumer working through the connection tiers towards
// the resolved record's publisher.
type Connecting struct {
	*StateCommon

	rec directory.Record
}

func MakeConnecting(sc *StateCommon, rec directory.Record) PairState {
	sc.sess.State = pairing.StateConnecting

	c := &Connecting{StateCommon: sc, rec: rec}
	L(c).Info("initialised")

	return c
}

func (c *Connecting) Name() string {
	return "connecting"
}

func (c *Connecting) OnTask(res TaskResult) PairState {
	cr, ok := res.(ConnectResult)
	if !ok {
		L(c).Warn("ignoring unexpected task result", "result", res)
		return nil
	}

	if cr.Err != nil {
		// All tiers exhausted; terminal, a retry is a new session with a
		// new token.
		return LogTransition(c, MakeTerminal(c.StateCommon, pairing.StateFailed, cr.Err))
	}

	c.sess.ConnTier = cr.Conn.Tier().String()

	if c.man.ConfirmResolvedPeer() {
		return LogTransition(c, MakeAwaitingConfirmation(c.StateCommon, cr.Conn, c.rec))
	}

	c.man.DispatchHandshake(c.sess, cr.Conn, c.rec)

	return LogTransition(c, MakeConsumerHandshaking(c.StateCommon))
}

func (c *Connecting) OnMessage(clear *msgpair.ClearMessage, _ ifaces.Conn) PairState {
	LogMessage(c, clear)
	L(c).Warn("ignoring handshake message while connecting")
	return nil
}

func (c *Connecting) OnCommand(cmd Command) PairState {
	L(c).Warn("ignoring command", "cmd", cmd.String())
	return nil
}
