package pairstate

import (
	"errors"

	"github.com/edup2p/pairsok/types/directory"
	"github.com/edup2p/pairsok/types/ifaces"
	"github.com/edup2p/pairsok/types/msgpair"
	"github.com/edup2p/pairsok/types/pairing"
)

// AwaitingConfirmation is the consumer holding an established connection,
// waiting for the local user to approve the resolved peer's declared
// identity before anything is sent.
//
// Only entered when the manager is configured to require it.
type AwaitingConfirmation struct {
	*StateCommon

	conn ifaces.Conn
	rec  directory.Record
}

func MakeAwaitingConfirmation(sc *StateCommon, conn ifaces.Conn, rec directory.Record) PairState {
	sc.sess.State = pairing.StateAwaitingConfirmation

	a := &AwaitingConfirmation{StateCommon: sc, conn: conn, rec: rec}
	L(a).Info("initialised")

	return a
}

func (a *AwaitingConfirmation) Name() string {
	return "awaiting-confirmation"
}

func (a *AwaitingConfirmation) OnTask(res TaskResult) PairState {
	L(a).Warn("ignoring unexpected task result", "result", res)
	return nil
}

func (a *AwaitingConfirmation) OnMessage(clear *msgpair.ClearMessage, _ ifaces.Conn) PairState {
	LogMessage(a, clear)
	L(a).Warn("ignoring handshake message while awaiting local confirmation")
	return nil
}

func (a *AwaitingConfirmation) OnCommand(cmd Command) PairState {
	switch cmd {
	case CommandConfirm:
		a.man.DispatchHandshake(a.sess, a.conn, a.rec)
		return LogTransition(a, MakeConsumerHandshaking(a.StateCommon))
	case CommandReject:
		return LogTransition(a, MakeTerminal(a.StateCommon, pairing.StateRejected, errors.New("resolved peer rejected locally")))
	default:
		L(a).Warn("ignoring command", "cmd", cmd.String())
		return nil
	}
}
